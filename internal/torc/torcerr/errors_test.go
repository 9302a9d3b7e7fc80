package torcerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_Classified(t *testing.T) {
	err := New(NotFound, "workflow not found")
	assert.Equal(t, NotFound, KindOf(err))
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Conflict))
}

func TestKindOf_Unclassified_DefaultsTransient(t *testing.T) {
	assert.Equal(t, Transient, KindOf(errors.New("boom")))
}

func TestWrap_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(StorageConflict, "claim failed", cause)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestWithDetail_ChainsAndAccumulates(t *testing.T) {
	err := New(InvalidArgument, "bad job").
		WithDetail("name", "must not be empty").
		WithDetail("command", "must not be empty")
	assert.Equal(t, "must not be empty", err.Details["name"])
	assert.Equal(t, "must not be empty", err.Details["command"])
}

func TestError_StringIncludesKind(t *testing.T) {
	err := New(CyclicDependency, "cycle detected involving job 7")
	assert.Equal(t, fmt.Sprintf("%s: cycle detected involving job 7", CyclicDependency), err.Error())
}
