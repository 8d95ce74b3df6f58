package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Clone(ErrForbidden, "Not a member of this classroom"))

	got := FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, http.StatusForbidden, got.Status)
	assert.Equal(t, "Not a member of this classroom", got.Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	got := FromError(errors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, ErrInternal.Code, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestCloneDoesNotMutateOriginal(t *testing.T) {
	clone := Clone(ErrNotFound, "Room not found")
	assert.Equal(t, "Room not found", clone.Message)
	assert.Equal(t, "resource not found", ErrNotFound.Message)
	assert.Nil(t, Clone(nil, "x"))
}

func TestFromErrorMapsContextErrors(t *testing.T) {
	got := FromError(fmt.Errorf("transcribe: %w", context.DeadlineExceeded))
	assert.Equal(t, http.StatusRequestTimeout, got.Status)

	got = FromError(context.Canceled)
	assert.Equal(t, ErrClientClosed.Code, got.Code)
}

func TestValidationCollectsFieldRules(t *testing.T) {
	type payload struct {
		RoomID  string `validate:"required,uuid"`
		Content string `validate:"required,max=5"`
	}
	err := validator.New().Struct(payload{Content: "too long"})
	require.Error(t, err)

	got := Validation(err, "invalid message payload")
	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Equal(t, "invalid message payload", got.Message)
	assert.Equal(t, map[string]string{"room_id": "required", "content": "max=5"}, got.Details)

	plain := Validation(errors.New("bad json"), "invalid body")
	assert.Nil(t, plain.Details)
}
