package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestToHTTP_FromHTTP(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrPermissionDenied, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		wrapped := fmt.Errorf("handler: %w", tc.err)
		if got := ToHTTP(wrapped); got != tc.status {
			t.Fatalf("ToHTTP(%v) = %d, want %d", tc.err, got, tc.status)
		}
		if got := FromHTTP(tc.status); !errors.Is(got, tc.err) {
			t.Fatalf("FromHTTP(%d) = %v, want %v", tc.status, got, tc.err)
		}
	}

	if got := ToHTTP(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("unknown error should map to 500, got %d", got)
	}
	if got := FromHTTP(http.StatusBadGateway); !errors.Is(got, ErrUpstream) {
		t.Fatalf("502 should map to ErrUpstream, got %v", got)
	}
	if FromHTTP(http.StatusOK) != nil {
		t.Fatal("2xx must not map to an error")
	}
}
