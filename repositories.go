package relay

import (
	"context"
	"time"

	"github.com/coregx/relay/model"
)

// MessageRepository defines the persistence interface for message rows.
// The submission API creates messages; the worker owns every status
// mutation after that. All operations must be safe to call concurrently
// from multiple worker instances: each status mutation is a single-row
// update, never a multi-statement transaction spanning the stream.
type MessageRepository interface {
	// Load retrieves a message by id.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id string) (model.Message, error)

	// Create inserts a new message row.
	Create(ctx context.Context, m *model.Message) error

	// Update persists the message's status, attempt count, error detail
	// and provider reference.
	Update(ctx context.Context, m *model.Message) error

	// FindStuck finds messages sitting in the given status since before
	// olderThan, ordered oldest first. Used by the stuck-processing
	// recoverer. Returns ErrNoData when none match.
	FindStuck(ctx context.Context, status model.MessageStatus, olderThan time.Time, limit int) ([]model.Message, error)

	// FindOrphaned finds messages in the given status created before
	// olderThan but after newerThan, ordered oldest first. Used by the
	// orphaned-event recoverer. Returns ErrNoData when none match.
	FindOrphaned(ctx context.Context, status model.MessageStatus, olderThan, newerThan time.Time, limit int) ([]model.Message, error)

	// CountByStatus returns message counts per status for operational
	// visibility.
	CountByStatus(ctx context.Context) (map[model.MessageStatus]int, error)
}

// CredentialRepository defines the persistence interface for tenant
// provider credentials.
type CredentialRepository interface {
	// Load retrieves a credential by id.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.ProviderCredential, error)

	// Save creates a new credential (if ID=0) or updates an existing one.
	Save(ctx context.Context, c *model.ProviderCredential) error
}

// AssociationRepository defines the persistence interface for
// project-provider associations.
type AssociationRepository interface {
	// Save creates a new association (if ID=0) or updates an existing one.
	Save(ctx context.Context, a *model.ProjectProvider) error

	// Resolve returns the active association for a project and channel
	// together with its credential. Returns ErrNoData when the project has
	// no active association for the channel.
	Resolve(ctx context.Context, projectID int64, channel model.Channel) (model.ResolvedProvider, error)

	// DeactivateForChannel disables any active association for the
	// project and channel. Enforces the one-active-credential-per-channel
	// invariant before a new binding is saved.
	DeactivateForChannel(ctx context.Context, projectID int64, channel model.Channel) error
}

// Stream is the durable ordered log the worker consumes. Entries are
// append-only records announcing that a message is due for delivery;
// consumer-group semantics give each entry to exactly one consumer until it
// is acknowledged or reclaimed.
type Stream interface {
	// Publish appends a new entry for the message, deliverable after the
	// given delay (zero for immediately). Returns the entry id.
	Publish(ctx context.Context, messageID string, delay time.Duration) (string, error)

	// ReadGroup claims up to count available entries for the consumer
	// within the group, blocking up to block when none are available.
	// Returns an empty slice on timeout, never an error for "no data".
	ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]model.StreamEntry, error)

	// Ack acknowledges an entry for the group. Acked entries are never
	// redelivered. Persist the message status BEFORE acking; a crash
	// between the two must cause redelivery, not loss.
	Ack(ctx context.Context, group, entryID string) error

	// ListPending lists entries claimed within the group but unacked for
	// at least minIdle, oldest claim first.
	ListPending(ctx context.Context, group string, minIdle time.Duration, limit int) ([]model.StreamEntry, error)

	// Claim transfers the given pending entries to the consumer and
	// increments their delivery count. Entries already acked (or claimed
	// away concurrently) are omitted from the result.
	Claim(ctx context.Context, group, consumer string, entryIDs []string) ([]model.StreamEntry, error)

	// ScanRecent returns entries enqueued within the wall-clock window,
	// newest first, up to limit. A non-positive window scans by count
	// alone (the fixed-count fallback for dedup).
	ScanRecent(ctx context.Context, window time.Duration, limit int) ([]model.StreamEntry, error)

	// HasLiveEntry reports whether any unacked entry references the
	// message. Used by the orphaned-event recoverer.
	HasLiveEntry(ctx context.Context, messageID string) (bool, error)
}
