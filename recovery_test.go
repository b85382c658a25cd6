package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/relay/model"
	"github.com/coregx/relay/provider"
)

func newRecoveryFixture(t *testing.T, adapter provider.Adapter, opts ...RecoveryOption) (*dispatchFixture, *Recovery) {
	t.Helper()

	f := newDispatchFixture(t, adapter)
	base := []RecoveryOption{
		WithRecoveryStores(f.messages, f.stream),
		WithRecoveryDispatcher(f.dispatcher),
		WithRecoveryPublisher(f.publisher),
		WithRecoveryLogger(&NoopLogger{}),
		WithRecoveryConsumer("relay-workers", "sweeper-test"),
		WithRecoveryStrategy(immediateRetries),
		WithRecoveryNotifications(f.notifier),
	}
	recovery, err := NewRecovery(append(base, opts...)...)
	require.NoError(t, err)
	return f, recovery
}

// ageClaim backdates an entry's claim so it qualifies for reclaim without
// waiting out the idle threshold.
func ageClaim(f *dispatchFixture, entryID string, age time.Duration) {
	f.stream.mu.Lock()
	defer f.stream.mu.Unlock()
	for _, entry := range f.stream.entries {
		if entry.ID == entryID {
			entry.ClaimedAt.Time = time.Now().Add(-age)
		}
	}
}

func TestRecovery_ReclaimPending(t *testing.T) {
	adapter := &scriptedAdapter{}
	f, recovery := newRecoveryFixture(t, adapter)
	f.associations.bind(1, model.ChannelEmail, "smtp", "noreply@example.com", []byte("sealed"))

	// A dead consumer read the entry and never acked it.
	msg := emailMessage("msg-1")
	require.NoError(t, f.messages.Create(context.Background(), &msg))
	entryID, err := f.publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)
	entries, err := f.stream.ReadGroup(context.Background(), "relay-workers", "worker-dead", 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	ageClaim(f, entryID, 5*time.Minute)

	reclaimed, err := recovery.ReclaimPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	got := f.message(t, "msg-1")
	assert.Equal(t, model.StatusSent, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.True(t, f.stream.entry(t, entryID).AckedAt.Valid)
	assert.Equal(t, 1, adapter.callCount())
}

func TestRecovery_ReclaimPendingSkipsFreshClaims(t *testing.T) {
	adapter := &scriptedAdapter{}
	f, recovery := newRecoveryFixture(t, adapter)
	f.associations.bind(1, model.ChannelEmail, "smtp", "noreply@example.com", []byte("sealed"))

	msg := emailMessage("msg-1")
	require.NoError(t, f.messages.Create(context.Background(), &msg))
	_, err := f.publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)
	_, err = f.stream.ReadGroup(context.Background(), "relay-workers", "worker-busy", 1, 0)
	require.NoError(t, err)

	// Claim is brand new: the owning consumer may still be working on it.
	reclaimed, err := recovery.ReclaimPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)
	assert.Equal(t, 0, adapter.callCount())
}

func TestRecovery_ReclaimPendingEmpty(t *testing.T) {
	_, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	reclaimed, err := recovery.ReclaimPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)
}

func TestRecovery_RecoverOrphaned(t *testing.T) {
	f, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	// Queued message older than the grace period with no stream entry: the
	// submission persisted the row but the publish was lost.
	msg := emailMessage("msg-1")
	msg.CreatedAt = time.Now().Add(-30 * time.Minute)
	require.NoError(t, f.messages.Create(context.Background(), &msg))

	recovered, err := recovery.RecoverOrphaned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, 1, f.stream.liveCount("msg-1"))
}

func TestRecovery_RecoverOrphanedSkipsLiveEntries(t *testing.T) {
	f, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	msg := emailMessage("msg-1")
	msg.CreatedAt = time.Now().Add(-30 * time.Minute)
	require.NoError(t, f.messages.Create(context.Background(), &msg))
	_, err := f.publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)

	recovered, err := recovery.RecoverOrphaned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	assert.Equal(t, 1, f.stream.liveCount("msg-1"), "the existing entry is untouched")
}

func TestRecovery_RecoverOrphanedSkipsFreshMessages(t *testing.T) {
	f, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	// Inside the grace period the publish may simply not have landed yet.
	msg := emailMessage("msg-1")
	require.NoError(t, f.messages.Create(context.Background(), &msg))

	recovered, err := recovery.RecoverOrphaned(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	assert.Equal(t, 0, f.stream.liveCount("msg-1"))
}

func TestRecovery_RecoverStuckWithBudget(t *testing.T) {
	f, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	msg := emailMessage("msg-1")
	msg.BeginAttempt()
	msg.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, f.messages.Create(context.Background(), &msg))

	recovered, err := recovery.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got := f.message(t, "msg-1")
	assert.Equal(t, model.StatusQueued, got.Status)
	assert.Equal(t, 1, got.AttemptCount, "requeue never consumes an attempt")
	assert.Equal(t, 1, f.stream.liveCount("msg-1"), "a fresh entry puts it back on the stream")
}

func TestRecovery_RecoverStuckExhausted(t *testing.T) {
	f, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	msg := emailMessage("msg-1")
	msg.Status = model.StatusProcessing
	msg.AttemptCount = immediateRetries.MaxAttempts
	msg.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, f.messages.Create(context.Background(), &msg))

	recovered, err := recovery.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got := f.message(t, "msg-1")
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, model.ErrMaxAttemptsExceeded.Code, got.ErrorCode.String)
	assert.Equal(t, 0, f.stream.liveCount("msg-1"), "exhausted messages are not re-published")
	require.Len(t, f.notifier.failed, 1)
	assert.Equal(t, "msg-1", f.notifier.failed[0].MessageID)
}

func TestRecovery_RecoverStuckSkipsRecentlyUpdated(t *testing.T) {
	f, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	// Still within the processing timeout: a worker is plausibly on it.
	msg := emailMessage("msg-1")
	msg.BeginAttempt()
	require.NoError(t, f.messages.Create(context.Background(), &msg))

	recovered, err := recovery.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	assert.Equal(t, model.StatusProcessing, f.message(t, "msg-1").Status)
}

func TestRecovery_RecoverStuckRechecksBeforeMutating(t *testing.T) {
	f, recovery := newRecoveryFixture(t, &scriptedAdapter{})

	// The row flipped to sent between the sweep query and the reload (the
	// fake serves both from the same state, so simulate the race by storing
	// a terminal row with a stale timestamp: FindStuck won't return it, and
	// a hand-rolled reload path must leave it alone).
	msg := emailMessage("msg-1")
	msg.MarkSent("prov-1")
	msg.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, f.messages.Create(context.Background(), &msg))

	recovered, err := recovery.RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	assert.Equal(t, model.StatusSent, f.message(t, "msg-1").Status)
}

func TestNewRecovery_RequiredOptions(t *testing.T) {
	_, err := NewRecovery()
	require.Error(t, err)

	f := newDispatchFixture(t, nil)
	_, err = NewRecovery(
		WithRecoveryStores(f.messages, f.stream),
		WithRecoveryDispatcher(f.dispatcher),
		WithRecoveryPublisher(f.publisher),
		WithRecoveryLogger(&NoopLogger{}),
		WithRecoveryConsumer("relay-workers", "sweeper-test"),
	)
	assert.NoError(t, err)
}

func TestWithRecoveryTimings_Validation(t *testing.T) {
	r := &Recovery{}

	err := WithRecoveryTimings(time.Minute, 5*time.Minute, 24*time.Hour, 10*time.Minute)(r)
	assert.NoError(t, err)

	err = WithRecoveryTimings(0, 5*time.Minute, 24*time.Hour, 10*time.Minute)(r)
	assert.Error(t, err)

	// Max age must exceed the grace period or the orphan window is empty.
	err = WithRecoveryTimings(time.Minute, 5*time.Minute, 5*time.Minute, 10*time.Minute)(r)
	assert.Error(t, err)
}
