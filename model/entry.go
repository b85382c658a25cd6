package model

import (
	"database/sql"
	"time"
)

// StreamEntry is one durable log record announcing that a message is due for
// a delivery attempt. Entries are append-only: a retry produces a new entry
// with a future availability time, never a replay of the original.
//
// Claim and acknowledgment state is tracked per consumer group. An entry is
// "pending" when it has been claimed by a consumer but not yet acked; the
// pending reclaimer hands such entries to a live consumer after they idle
// past a threshold.
type StreamEntry struct {
	ID            string       `json:"id" db:"id"`
	MessageID     string       `json:"messageID" db:"message_id"`
	GroupName     string       `json:"groupName" db:"group_name"`
	ConsumerName  string       `json:"consumerName" db:"consumer_name"`
	DeliveryCount int          `json:"deliveryCount" db:"delivery_count"`
	EnqueuedAt    time.Time    `json:"enqueuedAt" db:"enqueued_at"`
	AvailableAt   time.Time    `json:"availableAt" db:"available_at"`
	ClaimedAt     sql.NullTime `json:"claimedAt" db:"claimed_at"`
	AckedAt       sql.NullTime `json:"ackedAt" db:"acked_at"`
}

// TableName returns the database table name for StreamEntry.
func (e StreamEntry) TableName() string {
	return tablePrefix + "stream"
}

// NewStreamEntry creates an unclaimed entry that becomes available after the
// given delay. A zero delay makes it available immediately.
func NewStreamEntry(id, messageID string, delay time.Duration) StreamEntry {
	now := time.Now()
	return StreamEntry{
		ID:          id,
		MessageID:   messageID,
		EnqueuedAt:  now,
		AvailableAt: now.Add(delay),
	}
}

// IsPending reports whether the entry was claimed but never acknowledged.
func (e *StreamEntry) IsPending() bool {
	return e.ClaimedAt.Valid && !e.AckedAt.Valid
}

// IdleTime returns how long a pending entry has sat unacknowledged.
// Zero for entries that were never claimed.
func (e *StreamEntry) IdleTime() time.Duration {
	if !e.IsPending() {
		return 0
	}
	return time.Since(e.ClaimedAt.Time)
}
