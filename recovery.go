package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/relay/model"
	"github.com/coregx/relay/retry"
)

// Recovery hosts the three sweepers that put lost messages back on a
// deliverable path. Each sweep is an independent, timer-driven task; they
// share no in-memory state with the dispatch loop or each other and
// coordinate purely through the broker's consumer-group state and the
// message row status.
//
// Sweeps:
//   - ReclaimPending: entries delivered to a consumer that never acked
//     (worker crash mid-processing) are claimed into this consumer and
//     reprocessed.
//   - RecoverOrphaned: queued messages whose stream entry was lost (failed
//     publish) get a fresh entry.
//   - RecoverStuck: messages stuck in processing past the timeout are
//     requeued or failed depending on the remaining retry budget.
//
// Every sweep re-checks the message status immediately before mutating, so
// a message already picked up by the main loop or another sweeper becomes a
// no-op rather than a double recovery. Each method is safe to call
// concurrently with the dispatch loop and with the other sweeps, and is
// individually restartable: a failed sweep leaves no state behind beyond
// what the next run picks up again.
type Recovery struct {
	messages   MessageRepository
	stream     Stream
	dispatcher *Dispatcher
	publisher  *DedupPublisher
	notifier   NotificationService
	strategy   retry.Strategy
	logger     Logger
	group      string
	consumer   string

	minIdleTime       time.Duration
	maxClaimCount     int
	orphanGracePeriod time.Duration
	orphanMaxAge      time.Duration
	recoveryLimit     int
	processingTimeout time.Duration
}

// RecoveryOption is a function that configures a Recovery service.
type RecoveryOption func(*Recovery) error

// NewRecovery creates a Recovery service with the provided options.
//
// Required options:
//   - WithRecoveryStores: message repository and stream
//   - WithRecoveryDispatcher: dispatcher used to reprocess reclaimed entries
//   - WithRecoveryPublisher: dedup publisher used to re-publish entries
//   - WithRecoveryLogger: logger instance
//   - WithRecoveryConsumer: consumer group and consumer name
//
// Optional options:
//   - WithRecoveryStrategy: backoff policy (must match the dispatcher's)
//   - WithRecoveryTimings: idle/grace/timeout thresholds
//   - WithRecoveryLimits: per-sweep batch bounds
//   - WithRecoveryNotifications: downstream status notification service
func NewRecovery(opts ...RecoveryOption) (*Recovery, error) {
	r := &Recovery{
		strategy:          retry.DefaultStrategy(),
		notifier:          &NoOpNotificationService{},
		minIdleTime:       time.Minute,
		maxClaimCount:     50,
		orphanGracePeriod: 5 * time.Minute,
		orphanMaxAge:      24 * time.Hour,
		recoveryLimit:     100,
		processingTimeout: 10 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply recovery option", err)
		}
	}

	if r.messages == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithRecoveryStores)")
	}
	if r.stream == nil {
		return nil, NewError(ErrCodeConfiguration, "Stream is required (use WithRecoveryStores)")
	}
	if r.dispatcher == nil {
		return nil, NewError(ErrCodeConfiguration, "Dispatcher is required (use WithRecoveryDispatcher)")
	}
	if r.publisher == nil {
		return nil, NewError(ErrCodeConfiguration, "DedupPublisher is required (use WithRecoveryPublisher)")
	}
	if r.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithRecoveryLogger)")
	}
	if r.group == "" || r.consumer == "" {
		return nil, NewError(ErrCodeConfiguration, "consumer group and consumer name are required (use WithRecoveryConsumer)")
	}

	return r, nil
}

// WithRecoveryStores sets the message repository and stream.
func WithRecoveryStores(messageRepo MessageRepository, stream Stream) RecoveryOption {
	return func(r *Recovery) error {
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		if stream == nil {
			return fmt.Errorf("stream cannot be nil")
		}
		r.messages = messageRepo
		r.stream = stream
		return nil
	}
}

// WithRecoveryDispatcher sets the dispatcher that reprocesses reclaimed
// entries exactly as if they were freshly read.
func WithRecoveryDispatcher(dispatcher *Dispatcher) RecoveryOption {
	return func(r *Recovery) error {
		if dispatcher == nil {
			return fmt.Errorf("dispatcher cannot be nil")
		}
		r.dispatcher = dispatcher
		return nil
	}
}

// WithRecoveryPublisher sets the dedup publisher used for re-publishes.
func WithRecoveryPublisher(publisher *DedupPublisher) RecoveryOption {
	return func(r *Recovery) error {
		if publisher == nil {
			return fmt.Errorf("publisher cannot be nil")
		}
		r.publisher = publisher
		return nil
	}
}

// WithRecoveryLogger sets the logger instance.
func WithRecoveryLogger(logger Logger) RecoveryOption {
	return func(r *Recovery) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithRecoveryConsumer sets the consumer group and the consumer identity
// pending entries are reclaimed into.
func WithRecoveryConsumer(group, consumer string) RecoveryOption {
	return func(r *Recovery) error {
		if group == "" || consumer == "" {
			return fmt.Errorf("group and consumer cannot be empty")
		}
		r.group = group
		r.consumer = consumer
		return nil
	}
}

// WithRecoveryStrategy sets the backoff policy used when deciding whether a
// stuck message still has retry budget. Keep it identical to the
// dispatcher's strategy.
func WithRecoveryStrategy(strategy retry.Strategy) RecoveryOption {
	return func(r *Recovery) error {
		if strategy.MaxAttempts <= 0 {
			return fmt.Errorf("max attempts must be > 0, got %d", strategy.MaxAttempts)
		}
		r.strategy = strategy
		return nil
	}
}

// WithRecoveryTimings sets the sweep thresholds: how long an entry may sit
// pending before reclaim, how old a queued message must be before it counts
// as orphaned (and how old is too old to bother), and how long processing
// may take before a message counts as stuck.
func WithRecoveryTimings(minIdle, orphanGrace, orphanMaxAge, processingTimeout time.Duration) RecoveryOption {
	return func(r *Recovery) error {
		if minIdle <= 0 || orphanGrace <= 0 || orphanMaxAge <= 0 || processingTimeout <= 0 {
			return fmt.Errorf("recovery timings must be > 0")
		}
		if orphanMaxAge <= orphanGrace {
			return fmt.Errorf("orphan max age %v must exceed grace period %v", orphanMaxAge, orphanGrace)
		}
		r.minIdleTime = minIdle
		r.orphanGracePeriod = orphanGrace
		r.orphanMaxAge = orphanMaxAge
		r.processingTimeout = processingTimeout
		return nil
	}
}

// WithRecoveryLimits sets the per-sweep batch bounds.
func WithRecoveryLimits(maxClaimCount, recoveryLimit int) RecoveryOption {
	return func(r *Recovery) error {
		if maxClaimCount <= 0 || recoveryLimit <= 0 {
			return fmt.Errorf("recovery limits must be > 0")
		}
		r.maxClaimCount = maxClaimCount
		r.recoveryLimit = recoveryLimit
		return nil
	}
}

// WithRecoveryNotifications sets the downstream status notification service
// used when a stuck message is failed terminally.
func WithRecoveryNotifications(service NotificationService) RecoveryOption {
	return func(r *Recovery) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		r.notifier = service
		return nil
	}
}

// ReclaimPending claims entries that another consumer read but never acked
// (a crashed worker) and runs them back through the dispatch state machine.
// Returns the number of reprocessed entries.
func (r *Recovery) ReclaimPending(ctx context.Context) (int, error) {
	pending, err := r.stream.ListPending(ctx, r.group, r.minIdleTime, r.maxClaimCount)
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeStream, "failed to list pending entries", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(pending))
	for i := range pending {
		ids = append(ids, pending[i].ID)
	}

	claimed, err := r.stream.Claim(ctx, r.group, r.consumer, ids)
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeStream, "failed to claim pending entries", err)
	}

	reclaimed := 0
	for i := range claimed {
		if err := r.dispatcher.Process(ctx, claimed[i]); err != nil {
			r.logger.Errorf("Failed to reprocess reclaimed entry %s (message %s): %v",
				claimed[i].ID, claimed[i].MessageID, err)
			continue
		}
		reclaimed++
	}

	if reclaimed > 0 {
		r.logger.Infof("Reclaimed %d pending entr(ies) idle > %v", reclaimed, r.minIdleTime)
	}
	return reclaimed, nil
}

// RecoverOrphaned re-publishes entries for queued messages whose original
// publish was lost: older than the grace period, younger than the max age,
// and with no live entry referencing them. Returns the number of
// re-published messages.
func (r *Recovery) RecoverOrphaned(ctx context.Context) (int, error) {
	now := time.Now()
	msgs, err := r.messages.FindOrphaned(ctx, model.StatusQueued,
		now.Add(-r.orphanGracePeriod), now.Add(-r.orphanMaxAge), r.recoveryLimit)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, NewErrorWithCause(ErrCodeDatabase, "failed to find orphaned messages", err)
	}

	recovered := 0
	for i := range msgs {
		msg := &msgs[i]

		live, err := r.stream.HasLiveEntry(ctx, msg.ID)
		if err != nil {
			r.logger.Errorf("Failed to check stream for message %s: %v", msg.ID, err)
			continue
		}
		if live {
			continue
		}

		if _, err := r.publisher.Publish(ctx, msg.ID, 0); err != nil {
			r.logger.Errorf("Failed to re-publish orphaned message %s: %v", msg.ID, err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		r.logger.Infof("Re-published %d orphaned message(s)", recovered)
	}
	return recovered, nil
}

// RecoverStuck handles messages stuck in processing past the timeout: a
// worker crashed mid-send. With retry budget left the message is requeued
// and a fresh entry published; with the budget spent it is failed
// terminally. Returns the number of recovered messages.
func (r *Recovery) RecoverStuck(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.processingTimeout)
	msgs, err := r.messages.FindStuck(ctx, model.StatusProcessing, cutoff, r.recoveryLimit)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, NewErrorWithCause(ErrCodeDatabase, "failed to find stuck messages", err)
	}

	recovered := 0
	for i := range msgs {
		if r.recoverStuckMessage(ctx, msgs[i].ID, cutoff) {
			recovered++
		}
	}

	if recovered > 0 {
		r.logger.Infof("Recovered %d stuck message(s)", recovered)
	}
	return recovered, nil
}

// recoverStuckMessage reloads the row and re-checks the stuck condition
// right before mutating, so a message the main loop just finished (or
// another sweeper already recovered) is left alone.
func (r *Recovery) recoverStuckMessage(ctx context.Context, id string, cutoff time.Time) bool {
	msg, err := r.messages.Load(ctx, id)
	if err != nil {
		r.logger.Errorf("Failed to reload stuck message %s: %v", id, err)
		return false
	}
	if msg.Status != model.StatusProcessing || msg.UpdatedAt.After(cutoff) {
		return false
	}

	if r.strategy.CanRetry(msg.AttemptCount) {
		msg.Requeue("", "")
		if err := r.messages.Update(ctx, &msg); err != nil {
			r.logger.Errorf("Failed to requeue stuck message %s: %v", msg.ID, err)
			return false
		}
		if _, err := r.publisher.Publish(ctx, msg.ID, 0); err != nil {
			// Message is queued with no live entry; the orphan sweep will
			// pick it up.
			r.logger.Warnf("Failed to re-publish stuck message %s: %v", msg.ID, err)
		}
		r.logger.Warnf("Requeued stuck message %s (attempts=%d)", msg.ID, msg.AttemptCount)
		return true
	}

	msg.MarkFailed(model.ErrMaxAttemptsExceeded.Code, "processing timed out with no attempts remaining")
	if err := r.messages.Update(ctx, &msg); err != nil {
		r.logger.Errorf("Failed to fail stuck message %s: %v", msg.ID, err)
		return false
	}
	if err := r.notifier.NotifyFailed(ctx, model.NewStatusEvent(&msg)); err != nil {
		r.logger.Warnf("Failed to send failure notification for message %s: %v", msg.ID, err)
	}
	r.logger.Warnf("Failed stuck message %s after %d attempt(s)", msg.ID, msg.AttemptCount)
	return true
}
