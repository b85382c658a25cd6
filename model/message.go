// Package model contains all domain entities for the notification relay.
package model

import (
	"database/sql"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const tablePrefix = "relay_"

// Channel identifies the delivery medium for a message.
type Channel string

// Known delivery channels. The provider registry is the authority on which
// channels are actually dispatchable; an unknown channel still reaches
// dispatch and fails closed there.
const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelWebhook Channel = "webhook"
)

// MessageStatus represents the lifecycle state of a message.
type MessageStatus string

const (
	// StatusQueued indicates the message is awaiting a delivery attempt.
	// Both freshly submitted messages and messages awaiting a scheduled
	// retry carry this status.
	StatusQueued MessageStatus = "queued"

	// StatusProcessing indicates a worker is currently dispatching the message.
	StatusProcessing MessageStatus = "processing"

	// StatusSent indicates the provider accepted the message.
	StatusSent MessageStatus = "sent"

	// StatusDelivered indicates the provider confirmed final delivery synchronously.
	StatusDelivered MessageStatus = "delivered"

	// StatusFailed indicates delivery failed permanently or retries were exhausted.
	StatusFailed MessageStatus = "failed"

	// StatusMalformed indicates the message could never be dispatched
	// (unparseable payload, provider mismatch). Terminal, reached without retry.
	StatusMalformed MessageStatus = "malformed"
)

// Message represents one tenant send request tracked through its delivery
// lifecycle. The worker is the sole mutator of status, attempt count and
// error fields once the status leaves queued.
//
// Lifecycle: queued → processing → sent|delivered|failed|malformed.
// A retryable failure moves the message back to queued until the scheduled
// stream entry is picked up again. Terminal statuses are final; callers
// check IsTerminal (or rely on CanAttempt) before mutating.
//
// Delivery is at-least-once: under crash scenarios the same message may be
// handed to the provider more than once. Callers that need stronger
// guarantees should derive an idempotency key from Message.ID for providers
// that support one.
type Message struct {
	ID            string         `json:"id" db:"id"`
	ProjectID     int64          `json:"projectID" db:"project_id"`
	Channel       Channel        `json:"channel" db:"channel"`
	Recipient     string         `json:"recipient" db:"recipient"`
	Payload       string         `json:"payload" db:"payload"`
	Status        MessageStatus  `json:"status" db:"status"`
	AssociationID sql.NullInt64  `json:"associationID" db:"association_id"`
	ErrorCode     sql.NullString `json:"errorCode" db:"error_code"`
	ErrorMessage  sql.NullString `json:"errorMessage" db:"error_message"`
	AttemptCount  int            `json:"attemptCount" db:"attempt_count"`
	ProviderRef   sql.NullString `json:"providerRef" db:"provider_ref"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time      `json:"updatedAt" db:"updated_at"`
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "message"
}

// NewMessage creates a new message in queued state.
func NewMessage(id string, projectID int64, channel Channel, recipient, payload string) Message {
	now := time.Now()
	return Message{
		ID:        id,
		ProjectID: projectID,
		Channel:   channel,
		Recipient: recipient,
		Payload:   payload,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the structural invariants of a message.
// The channel is deliberately not restricted to the known set: unknown
// channels are rejected at dispatch time by the provider registry.
func (m Message) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required),
		validation.Field(&m.ProjectID, validation.Required),
		validation.Field(&m.Channel, validation.Required),
		validation.Field(&m.Recipient, validation.Required, validation.Length(1, 512)),
	)
}

// IsTerminal reports whether the message has reached a final status.
// No further dispatch attempts occur after a terminal status.
func (m *Message) IsTerminal() bool {
	switch m.Status {
	case StatusSent, StatusDelivered, StatusFailed, StatusMalformed:
		return true
	}
	return false
}

// BeginAttempt marks the start of a dispatch attempt: status moves to
// processing and the attempt count increments by exactly one.
func (m *Message) BeginAttempt() {
	m.Status = StatusProcessing
	m.AttemptCount++
	m.UpdatedAt = time.Now()
}

// MarkSent records provider acceptance. Clears error detail from earlier
// attempts and stores the provider's reference id when given.
func (m *Message) MarkSent(providerRef string) {
	m.Status = StatusSent
	m.ErrorCode = sql.NullString{}
	m.ErrorMessage = sql.NullString{}
	if providerRef != "" {
		m.ProviderRef = sql.NullString{String: providerRef, Valid: true}
	}
	m.UpdatedAt = time.Now()
}

// MarkDelivered records a synchronous final delivery confirmation.
func (m *Message) MarkDelivered(providerRef string) {
	m.MarkSent(providerRef)
	m.Status = StatusDelivered
}

// MarkFailed records a permanent failure or retry exhaustion.
func (m *Message) MarkFailed(code, message string) {
	m.Status = StatusFailed
	m.setError(code, message)
}

// MarkMalformed records an unprocessable message. Terminal, no retry.
func (m *Message) MarkMalformed(code, message string) {
	m.Status = StatusMalformed
	m.setError(code, message)
}

// Requeue moves the message back to queued after a retryable failure,
// preserving the failure detail for observability. The attempt count is
// untouched; it only moves in BeginAttempt.
func (m *Message) Requeue(code, message string) {
	m.Status = StatusQueued
	m.setError(code, message)
}

func (m *Message) setError(code, message string) {
	if code != "" {
		m.ErrorCode = sql.NullString{String: code, Valid: true}
	}
	if message != "" {
		m.ErrorMessage = sql.NullString{String: message, Valid: true}
	}
	m.UpdatedAt = time.Now()
}

// CanAttempt validates whether a dispatch attempt may start.
//
// Returns an error when it may not:
//   - ErrAlreadyTerminal: the message reached a final status
//   - ErrMaxAttemptsExceeded: the retry budget is spent
func (m *Message) CanAttempt(maxAttempts int) error {
	if m.IsTerminal() {
		return ErrAlreadyTerminal
	}
	if m.AttemptCount >= maxAttempts {
		return ErrMaxAttemptsExceeded
	}
	return nil
}

// Age returns how long the message has existed since creation.
func (m *Message) Age() time.Duration {
	return time.Since(m.CreatedAt)
}

// Domain errors returned by Message business logic methods.
var (
	// ErrAlreadyTerminal indicates the message reached a final status.
	ErrAlreadyTerminal = DomainError{Code: "ALREADY_TERMINAL", Message: "Message already in terminal status"}

	// ErrMaxAttemptsExceeded indicates the message reached the maximum delivery attempts.
	ErrMaxAttemptsExceeded = DomainError{Code: "MAX_ATTEMPTS", Message: "Maximum delivery attempts exceeded"}
)

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}
