// Package apierrors defines the error taxonomy shared by every subsystem,
// replacing substring-matched exception classes with typed, wrapped errors.
package apierrors

import (
	"errors"
	"fmt"
)

// StorageError wraps a failure from the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// NotFoundError indicates an id lookup missed.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }

func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError indicates a unique-key collision.
type ConflictError struct {
	Kind string
	Key  string
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s conflict on %s", e.Kind, e.Key) }

func NewConflictError(kind, key string) error {
	return &ConflictError{Kind: kind, Key: key}
}

// ValidationError indicates a malformed payload; never retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AuthFailureError indicates a provider rejected the current credential.
type AuthFailureError struct {
	Key string
	Err error
}

func (e *AuthFailureError) Error() string { return fmt.Sprintf("auth failure for key %s: %v", e.Key, e.Err) }
func (e *AuthFailureError) Unwrap() error { return e.Err }

func NewAuthFailureError(key string, err error) error {
	return &AuthFailureError{Key: key, Err: err}
}

// CircuitOpenError indicates the circuit breaker failed the call fast.
type CircuitOpenError struct {
	Provider string
}

func (e *CircuitOpenError) Error() string { return fmt.Sprintf("circuit open for %s", e.Provider) }

func NewCircuitOpenError(provider string) error {
	return &CircuitOpenError{Provider: provider}
}

// RateLimitedError indicates the provider (or local limiter) rejected a call.
type RateLimitedError struct {
	RetryAfter string
}

func (e *RateLimitedError) Error() string { return "rate limited: retry after " + e.RetryAfter }

func NewRateLimitedError(retryAfter string) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// TimeoutError indicates a deadline elapsed; always retryable.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string { return fmt.Sprintf("timeout: %s", e.Op) }

func NewTimeoutError(op string) error {
	return &TimeoutError{Op: op}
}

// Retryable reports whether err belongs to a class the caller should retry.
// AuthFailure is deliberately excluded here: callers must rotate the key
// first (see internal/apiclient) rather than blindly retrying the same one.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitedError
	var to *TimeoutError
	var st *StorageError
	switch {
	case errors.As(err, &rl):
		return true
	case errors.As(err, &to):
		return true
	case errors.As(err, &st):
		return true
	}
	return false
}

// NonRetryable reports whether err should never be retried.
func NonRetryable(err error) bool {
	var ve *ValidationError
	var ce *ConflictError
	var nf *NotFoundError
	switch {
	case errors.As(err, &ve):
		return true
	case errors.As(err, &ce):
		return true
	case errors.As(err, &nf):
		return true
	}
	return false
}
