// Package provider contains the uniform provider adapter contract, the
// adapter registry, and the concrete channel adapters that translate relay
// messages into external provider calls.
//
// Adapters own error classification: every expected provider failure comes
// back as a categorized *Error carrying a machine-readable code and a
// retryable flag. Adapters never panic for expected failures and make
// exactly one external call per Send invocation; retry scheduling belongs
// to the dispatch loop.
package provider

import (
	"context"
	"fmt"
)

// SendParams carries everything an adapter needs for one delivery attempt.
type SendParams struct {
	// Recipient is the channel-specific destination (email address, phone
	// number, URL).
	Recipient string

	// Payload is the opaque provider-specific JSON the tenant submitted.
	Payload string

	// Credentials is the tenant's encrypted provider configuration.
	// Decryption happens inside the adapter, right before the provider
	// call; a decryption failure is a permanent error.
	Credentials []byte

	// Identity is the verified sender identity bound to the project
	// (from-address, sender id).
	Identity string

	// IdempotencyKey is derived from the message id. Adapters pass it to
	// providers that support one; delivery is otherwise at-least-once.
	IdempotencyKey string
}

// SendResult is the successful outcome of an adapter invocation.
type SendResult struct {
	// ProviderRef is the provider-side identifier for the accepted message.
	ProviderRef string

	// Delivered is true when the provider confirmed final delivery
	// synchronously rather than mere acceptance.
	Delivered bool
}

// Adapter is the uniform send contract implemented per (provider type,
// channel) pair. Implementations return *Error for expected provider
// failures and reserve plain errors and panics for programmer mistakes.
type Adapter interface {
	Send(ctx context.Context, params SendParams) (*SendResult, error)
}

// Error codes shared across adapters and the dispatch layer.
const (
	// CodeProviderNotFound: no adapter is registered for the channel. Permanent.
	CodeProviderNotFound = "PROVIDER_NOT_FOUND"

	// CodeRecipientNotFound: no active project-provider association exists
	// for the message's project and channel. Permanent.
	CodeRecipientNotFound = "RECIPIENT_NOT_FOUND"

	// CodeDecryptFailed: credential decryption failed. Permanent.
	CodeDecryptFailed = "DECRYPT_FAILED"

	// CodeInvalidPayload: the payload is missing required fields or cannot
	// be parsed for this provider. Permanent.
	CodeInvalidPayload = "INVALID_PAYLOAD"

	// CodeInvalidIdentity: the sender identity is malformed or rejected. Permanent.
	CodeInvalidIdentity = "INVALID_IDENTITY"

	// CodeInvalidRecipient: the recipient format is invalid for the channel. Permanent.
	CodeInvalidRecipient = "INVALID_RECIPIENT"

	// CodeUnauthorized: the provider rejected the tenant's credentials. Permanent.
	CodeUnauthorized = "UNAUTHORIZED"

	// CodeThrottling: the provider rate-limited the call. Retryable.
	CodeThrottling = "THROTTLING"

	// CodeServiceUnavailable: provider 5xx or connection failure. Retryable.
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	// CodeUnknown: unrecognized provider error. Retryable, so an
	// uncategorized failure is retried rather than dropped.
	CodeUnknown = "UNKNOWN"
)

// Error is a categorized provider failure.
type Error struct {
	Code      string // Machine-readable error code
	Message   string // Human-readable error message
	Retryable bool   // Whether the dispatch loop may retry
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Permanent creates a non-retryable provider error.
func Permanent(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: false}
}

// Transient creates a retryable provider error.
func Transient(code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// Classify normalizes any error into a *Error. Already-categorized errors
// pass through; everything else becomes a retryable CodeUnknown, so an
// unrecognized provider failure is retried rather than dropped.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(*Error); ok {
		return perr
	}
	return Transient(CodeUnknown, "%v", err)
}
