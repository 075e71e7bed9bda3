package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("category", "event category is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "event category is required" {
		t.Errorf("expected message 'event category is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "category" {
		t.Errorf("expected field 'category', got %q", appErr.Field)
	}
}

func TestUnavailable(t *testing.T) {
	t.Parallel()
	err := Unavailable("relay is shutting down")

	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected error to match ErrUnavailable")
	}
	if err.Error() != "relay is shutting down" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestInternal(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("disk full")
	err := Internal("backlog.save", cause)

	if !errors.Is(err, ErrInternal) {
		t.Error("expected error to match ErrInternal")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Op != "backlog.save" {
		t.Errorf("expected op 'backlog.save', got %q", appErr.Op)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: Validation("action", "required"), want: http.StatusBadRequest},
		{name: "unavailable", err: Unavailable("shutting down"), want: http.StatusServiceUnavailable},
		{name: "internal", err: Internal("op", fmt.Errorf("boom")), want: http.StatusInternalServerError},
		{name: "unknown", err: fmt.Errorf("plain"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.want)
			}
		})
	}
}
