package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsAppErrorThroughWrapping(t *testing.T) {
	base := NewNotFound("category", 42)
	wrapped := fmt.Errorf("load detail: %w", base)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, appErr.Code)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsValidation(wrapped))

	_, ok = AsAppError(errors.New("plain"))
	assert.False(t, ok)
}

func TestFieldErrors(t *testing.T) {
	err := NewFieldValidation([]FieldError{
		{Field: "items[1].quantity", Message: "must be positive"},
		{Field: "supplier_id", Message: "is required"},
	})
	assert.True(t, IsValidation(err))
	assert.Equal(t, "validation failed", err.Message)

	fields := FieldErrors(fmt.Errorf("submit: %w", err))
	require.Len(t, fields, 2)
	assert.Equal(t, "items[1].quantity", fields[0].Field)

	// Single violation promotes its message to the top level.
	one := NewFieldValidation([]FieldError{{Field: "code", Message: "must be exactly 3 characters"}})
	assert.Equal(t, "code: must be exactly 3 characters", one.Message)

	assert.Nil(t, FieldErrors(NewValidation("nope")))
	assert.Nil(t, FieldErrors(errors.New("plain")))
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := NewNetwork(cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "NETWORK_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, IsNetwork(err))
}

func TestWithDetail(t *testing.T) {
	err := NewUnauthorized("session token has expired").WithDetail("expired_at", "2026-08-01T00:00:00Z")
	assert.Equal(t, "2026-08-01T00:00:00Z", err.Details["expired_at"])

	adj := NewInvalidAdjustment(7, -10, 4)
	assert.Equal(t, int64(7), adj.Details["category_id"])
	assert.Equal(t, -10, adj.Details["requested"])
	assert.Equal(t, 4, adj.Details["available"])
}
