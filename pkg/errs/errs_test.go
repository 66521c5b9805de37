package errs

import (
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "index %s not found", "idx")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "index idx not found", err.Error())

	assert.Equal(t, KindUnknown, KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(pkgerrors.New("plain")))
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(KindConflict, "session is completed")

	wrapped := pkgerrors.Wrap(base, "failed to process batch")
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindConflict))
	assert.False(t, Is(wrapped, KindNotFound))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(KindCluster, nil, "ignored"))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := pkgerrors.New("connection refused")
	err := Wrap(KindCluster, cause, "bulk request failed")

	assert.Equal(t, KindCluster, KindOf(err))
	assert.Contains(t, err.Error(), "bulk request failed")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, pkgerrors.Cause(err))
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "invalid_argument", KindInvalidArgument.String())
	assert.Equal(t, "precondition_failed", KindPreconditionFailed.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}
