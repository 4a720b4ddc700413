package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cause := errors.New("underlying error")

	err := New(IOError, "manifest write failed", cause)

	if err.Code != IOError {
		t.Errorf("Code = %v, want %v", err.Code, IOError)
	}
	if err.Message != "manifest write failed" {
		t.Errorf("Message = %q, want %q", err.Message, "manifest write failed")
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want %v", err.Unwrap(), cause)
	}
}

func TestStoreError_Error(t *testing.T) {
	tests := []struct {
		name      string
		code      ErrorCode
		message   string
		cause     error
		wantParts []string
	}{
		{
			name:      "with cause",
			code:      IOError,
			message:   "could not move project",
			cause:     errors.New("permission denied"),
			wantParts: []string{"IO_ERROR", "could not move project", "permission denied"},
		},
		{
			name:      "without cause",
			code:      DoesNotExist,
			message:   "project p1 does not exist",
			cause:     nil,
			wantParts: []string{"DOES_NOT_EXIST", "project p1 does not exist"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.code, tt.message, tt.cause).Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestStoreError_IsMatchesByCode(t *testing.T) {
	err := NotFound("project", "p1")
	if !errors.Is(err, ErrDoesNotExist) {
		t.Error("NotFound should match ErrDoesNotExist")
	}
	if errors.Is(err, ErrAlreadyExists) {
		t.Error("NotFound should not match ErrAlreadyExists")
	}

	wrapped := fmt.Errorf("reading manifest: %w", err)
	if !errors.Is(wrapped, ErrDoesNotExist) {
		t.Error("wrapped NotFound should still match ErrDoesNotExist")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{"store error", ErrAlreadyExists, AlreadyExists},
		{"wrapped", fmt.Errorf("ctx: %w", ErrInvalidModel), InvalidModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}

	plain := errors.New("disk full")
	wrapped := Wrap(plain, "write failed")
	if CodeOf(wrapped) != IOError {
		t.Errorf("CodeOf(Wrap(plain)) = %q, want IO_ERROR", CodeOf(wrapped))
	}
	if !errors.Is(wrapped, plain) {
		t.Error("wrapped error should unwrap to the cause")
	}

	if got := Wrap(ErrNotAllowed, "ignored"); got != ErrNotAllowed {
		t.Error("Wrap should leave StoreErrors untouched")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(IOError, "write-back failed", nil).WithDetails(map[string]string{"sha": "abc"})
	details, ok := err.Details.(map[string]string)
	if !ok || details["sha"] != "abc" {
		t.Errorf("Details = %v, want sha=abc", err.Details)
	}
}
