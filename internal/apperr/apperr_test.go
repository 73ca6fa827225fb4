package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{Unauthorized("no session"), http.StatusUnauthorized},
		{Forbidden("leader only"), http.StatusForbidden},
		{NotFound("group not found"), http.StatusNotFound},
		{Conflict("cycle already active"), http.StatusBadRequest},
		{Invalid("bad payload"), http.StatusBadRequest},
		{Internal(errors.New("db down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("%s: HTTPStatus = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("activating cycle: %w", Conflict("Cycle %d is already active", 2))
	if !HasCode(err, CodeConflict) {
		t.Error("HasCode did not find wrapped conflict")
	}
	if HasCode(err, CodeNotFound) {
		t.Error("HasCode matched the wrong code")
	}
	if HasCode(errors.New("plain"), CodeConflict) {
		t.Error("HasCode matched a non-application error")
	}

	e, ok := As(err)
	if !ok {
		t.Fatal("As failed on wrapped error")
	}
	if e.Message != "Cycle 2 is already active" {
		t.Errorf("Message = %q", e.Message)
	}
}

func TestInternalHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Internal(cause)
	if err.Message == cause.Error() {
		t.Error("Internal must not expose the cause as the client message")
	}
	if !errors.Is(err, cause) {
		t.Error("Internal must keep the cause reachable for logging")
	}
}
