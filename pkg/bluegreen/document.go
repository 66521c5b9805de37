package bluegreen

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Document is opaque to the control plane except for the id used as the
// bulk operation's document id.
type Document map[string]interface{}

// ExtractID returns the document's own id, falling back to its record id.
// The second return value reports whether any id was found.
func (d Document) ExtractID() (string, bool) {
	for _, key := range []string{"id", "Id", "ID"} {
		if s, ok := d[key].(string); ok && s != "" {
			return s, true
		}
	}
	for _, key := range []string{"recordId", "RecordId"} {
		if v, ok := d[key]; ok {
			if s := stringifyID(v); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func stringifyID(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatInt(int64(value), 10)
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	default:
		return ""
	}
}

// FallbackID composes the deterministic id used when a document carries
// neither an id nor a record id.
func FallbackID(sessionID string, batchNumber, indexInBatch int, epochMs int64) string {
	return fmt.Sprintf("doc_%s_%d_%d_%d", sessionID, batchNumber, indexInBatch, epochMs)
}
