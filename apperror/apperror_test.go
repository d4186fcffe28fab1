package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindUserNotFound, http.StatusNotFound},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindBadRequest, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindInternal, http.StatusInternalServerError},
		{Kind("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}

func TestWrapKeepsAppErrors(t *testing.T) {
	orig := Conflict(CodeAlreadyMember, "user is already a member of this team")
	wrapped := fmt.Errorf("add member: %w", orig)

	assert.Same(t, orig, As(Wrap(wrapped, "ignored")))
	assert.True(t, Is(wrapped, KindConflict))
}

func TestWrapTurnsUnknownIntoInternal(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, "failed to load team")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestToBodyHidesInternalCause(t *testing.T) {
	body := ToBody(Internal("failed to fetch messages", errors.New("pq: password authentication failed")))

	assert.Equal(t, "failed to fetch messages", body.Error)
	assert.Equal(t, KindInternal, body.Kind)
	assert.NotContains(t, body.Error, "pq:")
}

func TestNewDefaultsCodeToKind(t *testing.T) {
	err := NotFound("project")
	assert.Equal(t, "NOT_FOUND", err.Code)
	assert.Equal(t, "project not found", err.Message)
	assert.Equal(t, "", string(KindOf(nil)))
}
