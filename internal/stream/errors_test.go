package stream

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesCode(t *testing.T) {
	err := Errorf(CodeStreamFrozen, "stream is frozen")
	assert.ErrorIs(t, err, ErrStreamFrozen)
	assert.NotErrorIs(t, err, ErrStreamPaused)

	wrapped := fmt.Errorf("withdraw: %w", err)
	assert.ErrorIs(t, wrapped, ErrStreamFrozen)
	assert.Equal(t, CodeStreamFrozen, CodeOf(wrapped))
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		err  error
		want Class
	}{
		{ErrInvalidAmount, ClassValidation},
		{ErrNotArbiter, ClassAuthorization},
		{ErrStreamNotFound, ClassNotFound},
		{ErrAlreadyCancelled, ClassState},
		{ErrVaultShortfall, ClassExternal},
		{ErrArithmeticOverflow, ClassArithmetic},
		{errors.New("plain"), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassOf(tt.err), tt.err.Error())
	}
}

func TestForStream(t *testing.T) {
	base := Wrap(CodeTransferFailed, errors.New("insufficient balance"), "move")

	err := ForStream(base, 7)
	var se *Error
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, uint64(7), se.StreamID)
	assert.Zero(t, base.StreamID)
	assert.Equal(t, "TRANSFER_FAILED: move (stream=7): insufficient balance", err.Error())

	plain := errors.New("boom")
	assert.Same(t, plain, ForStream(plain, 7))
	assert.Same(t, error(base), ForStream(base, 0))
}
