package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeToHTTPStatus(t *testing.T) {
	cases := []struct {
		code   ErrorCode
		status int
	}{
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidState, http.StatusUnprocessableEntity},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeGateway, http.StatusBadGateway},
		{ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, New(tc.code, "x").HTTPStatus, string(tc.code))
	}
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, ErrCodeGateway, "шлюз недоступен")

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, ErrCodeGateway, CodeOf(err))
}

func TestCodeOf_Unknown(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))
}

func TestIs_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("контекст операции: %w", New(ErrCodeConflict, "гонка"))

	assert.True(t, IsConflict(err))
	assert.False(t, IsNotFound(err))

	var appErr *AppError
	assert.True(t, As(err, &appErr))
	assert.Equal(t, ErrCodeConflict, appErr.Code)
}
