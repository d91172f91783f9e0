package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindConstructors(t *testing.T) {
	err := NotFound("memory %s", "abc")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, err.Error(), "not_found")
	assert.Contains(t, err.Error(), "memory abc")

	wrapped := BackendUnavailable(stderrors.New("connection refused"), "ping %s", "postgres")
	assert.Equal(t, KindBackendUnavailable, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "connection refused")
	assert.EqualError(t, stderrors.Unwrap(wrapped), "connection refused")
}

func TestIsKindSeesThroughWrapping(t *testing.T) {
	inner := Validation("bad input")
	outer := fmt.Errorf("handling request: %w", inner)

	assert.True(t, IsKind(outer, KindValidation))
	assert.False(t, IsKind(outer, KindNotFound))
	assert.Equal(t, KindValidation, KindOf(outer))
}

func TestKindOfUntyped(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(stderrors.New("plain")))
	assert.False(t, IsKind(nil, KindNotFound))
}
