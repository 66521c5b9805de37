package bluegreen

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractID(t *testing.T) {
	cases := []struct {
		name string
		doc  Document
		want string
		ok   bool
	}{
		{"lowercase id", Document{"id": "abc"}, "abc", true},
		{"capitalized id", Document{"Id": "abc"}, "abc", true},
		{"upper id", Document{"ID": "abc"}, "abc", true},
		{"id wins over recordId", Document{"id": "abc", "recordId": float64(7)}, "abc", true},
		{"numeric recordId", Document{"recordId": float64(42)}, "42", true},
		{"capitalized recordId", Document{"RecordId": int64(42)}, "42", true},
		{"json number recordId", Document{"recordId": json.Number("1234567890123")}, "1234567890123", true},
		{"empty id falls through", Document{"id": "", "recordId": 9}, "9", true},
		{"no usable id", Document{"name": "widget"}, "", false},
		{"non-string id ignored", Document{"id": 42}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.doc.ExtractID()
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestFallbackID(t *testing.T) {
	id := FallbackID("batch_1756000000000_abc123def", 3, 17, 1756000123456)
	assert.Equal(t, "doc_batch_1756000000000_abc123def_3_17_1756000123456", id)
}
