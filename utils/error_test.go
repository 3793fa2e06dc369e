package utils

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("bank link", "abc-123")
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound must match")
	}
	if IsNotFound(errors.New("other")) {
		t.Fatalf("IsNotFound must not match arbitrary errors")
	}
	// Wrapped errors still classify.
	if !IsNotFound(fmt.Errorf("loading: %w", err)) {
		t.Fatalf("wrapped not-found must classify")
	}
}

func TestDuplicateWebhookError(t *testing.T) {
	err := error(&DuplicateWebhookError{Reason: "already handled at 2026-01-02T03:04:05Z"})
	if !IsDuplicateWebhook(err) {
		t.Fatalf("IsDuplicateWebhook must match")
	}
	if IsUnauthorized(err) || IsNotFound(err) {
		t.Fatalf("duplicate must not classify as other kinds")
	}
}

func TestProviderErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapProviderError("teller", cause)

	if !IsProviderError(err) {
		t.Fatalf("IsProviderError must match")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped cause must survive errors.Is")
	}
	if WrapProviderError("teller", nil) != nil {
		t.Fatalf("wrapping nil must stay nil")
	}
}
