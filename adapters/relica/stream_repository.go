package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"
	"github.com/google/uuid"

	"github.com/coregx/relay"
	"github.com/coregx/relay/model"
)

// streamPollInterval bounds how often an idle ReadGroup re-checks the table
// while blocking.
const streamPollInterval = 250 * time.Millisecond

// StreamRepository implements relay.Stream on a plain SQL table.
//
// Consumer-group semantics are emulated with conditional updates: a claim
// only succeeds against an unclaimed, unacked row, so two workers polling
// concurrently never receive the same entry. Blocking reads are emulated by
// polling until the block timeout elapses.
type StreamRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewStreamRepository creates a new StreamRepository with default table prefix.
func NewStreamRepository(sqlDB *sql.DB, driverName string) *StreamRepository {
	return &StreamRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "relay_"}
}

// NewStreamRepositoryWithPrefix creates a new StreamRepository with custom table prefix.
func NewStreamRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *StreamRepository {
	return &StreamRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *StreamRepository) tableName() string {
	return r.tablePrefix + "stream"
}

// Publish appends a new entry for the message, deliverable after delay.
func (r *StreamRepository) Publish(ctx context.Context, messageID string, delay time.Duration) (string, error) {
	entry := model.NewStreamEntry(uuid.NewString(), messageID, delay)
	err := r.db.WithContext(ctx).Model(&entry).Table(r.tableName()).Insert()
	if err != nil {
		return "", relay.NewErrorWithCause(relay.ErrCodeStream, "failed to insert stream entry", err)
	}
	return entry.ID, nil
}

// ReadGroup claims up to count available entries for the consumer, polling
// until entries arrive or the block timeout elapses. Returns an empty slice
// on timeout.
func (r *StreamRepository) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration) ([]model.StreamEntry, error) {
	deadline := time.Now().Add(block)

	for {
		entries, err := r.claimAvailable(ctx, group, consumer, count)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			return entries, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return []model.StreamEntry{}, nil
		}
		wait := streamPollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// claimAvailable attempts one claim pass over currently deliverable entries.
func (r *StreamRepository) claimAvailable(ctx context.Context, group, consumer string, count int) ([]model.StreamEntry, error) {
	var candidates []model.StreamEntry

	now := time.Now()
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("claimed_at IS NULL AND acked_at IS NULL AND available_at <= ?", now).
		OrderBy("available_at ASC").
		Limit(int64(count)).
		WithContext(ctx).
		All(&candidates)
	if err != nil {
		return nil, relay.NewErrorWithCause(relay.ErrCodeStream, "failed to list available entries", err)
	}

	claimed := make([]model.StreamEntry, 0, len(candidates))
	for i := range candidates {
		entry, ok, err := r.tryClaim(ctx, group, consumer, &candidates[i])
		if err != nil {
			return nil, err
		}
		if ok {
			claimed = append(claimed, entry)
		}
	}
	return claimed, nil
}

// tryClaim performs the conditional claim of a single entry. Returns false
// when another consumer won the race.
func (r *StreamRepository) tryClaim(ctx context.Context, group, consumer string, candidate *model.StreamEntry) (model.StreamEntry, bool, error) {
	now := time.Now()
	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"group_name":     group,
			"consumer_name":  consumer,
			"claimed_at":     now,
			"delivery_count": candidate.DeliveryCount + 1,
		}).
		Where("id = ? AND claimed_at IS NULL AND acked_at IS NULL", candidate.ID).
		WithContext(ctx).
		Execute()
	if err != nil {
		return model.StreamEntry{}, false, relay.NewErrorWithCause(relay.ErrCodeStream, "failed to claim entry", err)
	}

	// Reload to learn whether the conditional update was ours. The claim
	// only sticks when the stored consumer identity matches.
	entry, err := r.loadEntry(ctx, candidate.ID)
	if err != nil {
		if relay.IsNoData(err) {
			return model.StreamEntry{}, false, nil
		}
		return model.StreamEntry{}, false, err
	}
	if entry.GroupName != group || entry.ConsumerName != consumer || !entry.IsPending() {
		return model.StreamEntry{}, false, nil
	}
	return entry, true, nil
}

func (r *StreamRepository) loadEntry(ctx context.Context, id string) (model.StreamEntry, error) {
	var entry model.StreamEntry
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&entry)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, relay.ErrNoData
	}
	if err != nil {
		return entry, relay.NewErrorWithCause(relay.ErrCodeStream, "failed to load entry", err)
	}
	return entry, nil
}

// Ack acknowledges an entry for the group. Idempotent: acking an already
// acked entry is a no-op.
func (r *StreamRepository) Ack(ctx context.Context, group, entryID string) error {
	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"acked_at": time.Now(),
		}).
		Where("id = ? AND group_name = ? AND acked_at IS NULL", entryID, group).
		WithContext(ctx).
		Execute()
	if err != nil {
		return relay.NewErrorWithCause(relay.ErrCodeStream, "failed to ack entry", err)
	}
	return nil
}

// ListPending lists entries claimed within the group but unacked for at
// least minIdle, oldest claim first.
func (r *StreamRepository) ListPending(ctx context.Context, group string, minIdle time.Duration, limit int) ([]model.StreamEntry, error) {
	var entries []model.StreamEntry

	cutoff := time.Now().Add(-minIdle)
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("group_name = ? AND claimed_at IS NOT NULL AND acked_at IS NULL AND claimed_at <= ?", group, cutoff).
		OrderBy("claimed_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&entries)
	if err != nil {
		return nil, relay.NewErrorWithCause(relay.ErrCodeStream, "failed to list pending entries", err)
	}
	return entries, nil
}

// Claim transfers pending entries to the consumer and increments their
// delivery count. Entries acked or deleted in the meantime are omitted.
func (r *StreamRepository) Claim(ctx context.Context, group, consumer string, entryIDs []string) ([]model.StreamEntry, error) {
	claimed := make([]model.StreamEntry, 0, len(entryIDs))

	for _, id := range entryIDs {
		current, err := r.loadEntry(ctx, id)
		if err != nil {
			if relay.IsNoData(err) {
				continue
			}
			return nil, err
		}
		if current.AckedAt.Valid {
			continue
		}

		_, err = r.db.WithContext(ctx).Update(r.tableName()).
			Set(map[string]interface{}{
				"consumer_name":  consumer,
				"claimed_at":     time.Now(),
				"delivery_count": current.DeliveryCount + 1,
			}).
			Where("id = ? AND group_name = ? AND acked_at IS NULL", id, group).
			WithContext(ctx).
			Execute()
		if err != nil {
			return nil, relay.NewErrorWithCause(relay.ErrCodeStream, "failed to claim pending entry", err)
		}

		entry, err := r.loadEntry(ctx, id)
		if err != nil {
			if relay.IsNoData(err) {
				continue
			}
			return nil, err
		}
		if entry.ConsumerName != consumer || !entry.IsPending() {
			continue
		}
		claimed = append(claimed, entry)
	}

	return claimed, nil
}

// ScanRecent returns entries enqueued within the wall-clock window, newest
// first. A non-positive window scans by count alone.
func (r *StreamRepository) ScanRecent(ctx context.Context, window time.Duration, limit int) ([]model.StreamEntry, error) {
	var entries []model.StreamEntry

	var err error
	if window > 0 {
		err = r.db.WithContext(ctx).Select("*").
			From(r.tableName()).
			Where("enqueued_at >= ?", time.Now().Add(-window)).
			OrderBy("enqueued_at DESC").
			Limit(int64(limit)).
			WithContext(ctx).
			All(&entries)
	} else {
		err = r.db.WithContext(ctx).Select("*").
			From(r.tableName()).
			OrderBy("enqueued_at DESC").
			Limit(int64(limit)).
			WithContext(ctx).
			All(&entries)
	}
	if err != nil {
		return nil, relay.NewErrorWithCause(relay.ErrCodeStream, "failed to scan recent entries", err)
	}
	return entries, nil
}

// HasLiveEntry reports whether any unacked entry references the message.
func (r *StreamRepository) HasLiveEntry(ctx context.Context, messageID string) (bool, error) {
	var count int
	err := r.db.WithContext(ctx).Select("COUNT(*)").
		From(r.tableName()).
		Where("message_id = ? AND acked_at IS NULL", messageID).
		One(&count)
	if err != nil {
		return false, relay.NewErrorWithCause(relay.ErrCodeStream, "failed to check live entries", err)
	}
	return count > 0, nil
}
