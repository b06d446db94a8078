package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfUnwrapsChains(t *testing.T) {
	base := New(ErrCodeNotFound, "invoice not found")
	wrapped := fmt.Errorf("loading invoice: %w", base)

	assert.Equal(t, ErrCodeNotFound, CodeOf(base))
	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, ErrCodeNotFound))
	assert.False(t, IsCode(wrapped, ErrCodeForbidden))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(fmt.Errorf("plain error")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, ErrCodeInternal, "querying users")

	assert.Equal(t, cause, err.Unwrap())
	assert.Contains(t, err.Error(), "INTERNAL")
	assert.Contains(t, err.Error(), "querying users")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestHelperConstructors(t *testing.T) {
	nf := NotFound("user", "u-1")
	assert.Equal(t, ErrCodeNotFound, nf.Code)
	assert.Contains(t, nf.Message, "user not found: u-1")

	ii := InvalidInput("amount_cents", "must be positive")
	assert.Equal(t, ErrCodeInvalidInput, ii.Code)
	assert.Contains(t, ii.Message, "amount_cents")
}
