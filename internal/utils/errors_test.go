package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorMatchesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("%w: connection refused", ErrNetwork)
	err := &AppError{Kind: ErrUpload, Op: "upload", Msg: "Upload failed", Err: cause}

	if !errors.Is(err, ErrUpload) {
		t.Fatalf("expected upload kind")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected wrapped network cause")
	}
	if errors.Is(err, ErrFetch) {
		t.Fatalf("unexpected fetch kind")
	}
	if got := err.Error(); got != "upload: Upload failed: network error: connection refused" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewValidationError("apply", "Confidence must be between 0 and 1"))
	if got := UserMessage(err, "fallback"); got != "Confidence must be between 0 and 1" {
		t.Fatalf("unexpected message: %s", got)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation kind")
	}
	if got := UserMessage(errors.New("plain"), "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %s", got)
	}
}
