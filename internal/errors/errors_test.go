package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapNilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "query failed"))
}

func TestWrapPreservesChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeUnavailable, "database ping failed")

	assert.EqualError(t, err, "database ping failed: connection refused")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeUnavailable, CodeOf(err))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestCodeOfSeesThroughOuterWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("approval", 42))
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
	assert.True(t, IsNotFound(err))
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("approval", int64(7))
	assert.EqualError(t, err, "approval 7 not found")
	assert.False(t, IsNotFound(New(ErrCodeConflict, "already resolved")))
}
