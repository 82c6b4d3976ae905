package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: http.StatusOK},
		{name: "invalid input", err: InvalidInput("rating must be between 1 and 5"), expected: http.StatusBadRequest},
		{name: "duplicate", err: DuplicateReview("0380795272"), expected: http.StatusConflict},
		{name: "not found", err: NotFound("book", "123"), expected: http.StatusNotFound},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", NotFound("book", "123")), expected: http.StatusNotFound},
		{name: "upstream", err: Upstream(ErrUpstreamRejected, "unknown isbn", nil), expected: http.StatusBadGateway},
		{name: "storage", err: Storage("insert review", errors.New("disk full")), expected: http.StatusInternalServerError},
		{name: "plain", err: errors.New("boom"), expected: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Storage("insert review", cause)

	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "book 42 not found", Message(NotFound("book", "42")))
	assert.Equal(t, "an internal error occurred", Message(Storage("query", errors.New("secret dsn"))))
	assert.Equal(t, "an internal error occurred", Message(errors.New("raw")))
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(DuplicateReview("1")))
	assert.True(t, IsRecoverable(InvalidInput("x")))
	assert.True(t, IsRecoverable(NotFound("book", "1")))
	assert.False(t, IsRecoverable(Storage("x", errors.New("y"))))
}
