package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestRelayError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RelayError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(KindUnauthorized, "test message", http.StatusUnauthorized),
			want: "[unauthorized] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(KindInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[internal] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRelayError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(KindInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestRelayError_WithDetails(t *testing.T) {
	err := Validation("username", "too short")
	err.WithDetails("min_length", 3)

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}
	if err.Details["field"] != "username" {
		t.Errorf("Details[field] = %v, want username", err.Details["field"])
	}
}

func TestGetHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("pipeline", "p1"), http.StatusNotFound},
		{Conflict("duplicate name"), http.StatusConflict},
		{Validation("role", "unknown role"), http.StatusBadRequest},
		{NoData("p1"), http.StatusUnprocessableEntity},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := GetHTTPStatus(c.err); got != c.want {
			t.Errorf("GetHTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestIsRelayError(t *testing.T) {
	if !IsRelayError(NotFound("pipeline", "p1")) {
		t.Error("expected RelayError to be recognized")
	}
	if IsRelayError(errors.New("plain")) {
		t.Error("expected plain error to not be recognized")
	}
}

func TestRoleHierarchy(t *testing.T) {
	err := Forbidden("Insufficient permissions")
	if err.HTTPStatus != http.StatusForbidden {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusForbidden)
	}
}
