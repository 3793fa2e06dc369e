package utils

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError covers unknown providers and unknown bank links scoped to a
// user. Callers surface it; nothing retries it.
type NotFoundError struct {
	Resource string
	Detail   string
}

func (e *NotFoundError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Detail)
}

func NewNotFoundError(resource string, detail string) error {
	return &NotFoundError{Resource: resource, Detail: detail}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// UnauthorizedError is returned when webhook signature verification fails.
// The request is rejected before any state is touched.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// DuplicateWebhookError means a webhook was rejected by the dedup window.
// It is an "already handled" result, not a failure.
type DuplicateWebhookError struct {
	Reason string
}

func (e *DuplicateWebhookError) Error() string {
	return "duplicate webhook: " + e.Reason
}

func IsDuplicateWebhook(err error) bool {
	var de *DuplicateWebhookError
	return errors.As(err, &de)
}

// ProviderError wraps any failure coming out of a provider call so fan-out
// callers can isolate and log it per bank link.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func WrapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}

func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// JoinNonNil formats a list of per-unit errors into one readable message.
func JoinNonNil(errs []error) string {
	parts := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	return strings.Join(parts, "; ")
}
