package model

import "time"

// StatusEvent is the payload emitted to downstream consumers (webhook
// dispatchers, audit sinks) whenever a message reaches a terminal status.
// Emission is fire-and-forget: a failed notification never rolls back the
// status transition it describes.
type StatusEvent struct {
	MessageID    string        `json:"messageID"`
	ProjectID    int64         `json:"projectID"`
	Channel      Channel       `json:"channel"`
	Status       MessageStatus `json:"status"`
	ErrorCode    string        `json:"errorCode,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	AttemptCount int           `json:"attemptCount"`
	OccurredAt   time.Time     `json:"occurredAt"`
}

// NewStatusEvent builds a status event snapshot from a message.
func NewStatusEvent(m *Message) StatusEvent {
	ev := StatusEvent{
		MessageID:    m.ID,
		ProjectID:    m.ProjectID,
		Channel:      m.Channel,
		Status:       m.Status,
		AttemptCount: m.AttemptCount,
		OccurredAt:   time.Now(),
	}
	if m.ErrorCode.Valid {
		ev.ErrorCode = m.ErrorCode.String
	}
	if m.ErrorMessage.Valid {
		ev.ErrorMessage = m.ErrorMessage.String
	}
	return ev
}
