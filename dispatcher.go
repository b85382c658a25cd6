package relay

import (
	"context"
	"time"

	"github.com/coregx/relay/model"
	"github.com/coregx/relay/provider"
	"github.com/coregx/relay/retry"
)

// Dispatcher is the consumer-group read loop at the heart of the worker.
// It claims batches of stream entries, resolves the provider for each
// referenced message, invokes the adapter, applies the retry policy and
// persists the resulting status transition.
//
// Correctness invariants:
//   - The status transition is persisted BEFORE the entry is acked. A crash
//     between the two causes redelivery, which the terminal-status guard
//     turns into a no-op rather than silent loss.
//   - A message in a terminal status is acked and skipped without touching
//     any provider adapter, so duplicate entries cannot produce duplicate
//     external sends once the message is settled.
//   - Retries are new delayed entries, never replays: the original entry is
//     acked so the pending list stays bounded.
//
// Delivery is at-least-once overall; a crash after the provider call but
// before the persist can repeat an external send.
//
// Thread safety: one Dispatcher serves one consumer identity. Run N worker
// processes with distinct consumer names in the same group for fan-out.
type Dispatcher struct {
	messages     MessageRepository
	associations AssociationRepository
	stream       Stream
	registry     *provider.Registry
	publisher    *DedupPublisher
	strategy     retry.Strategy
	logger       Logger
	notifier     NotificationService
	group        string
	consumer     string
	readCount    int
	blockTimeout time.Duration
	sendTimeout  time.Duration
}

// NewDispatcher creates a new Dispatcher with the provided options.
//
// Required options:
//   - WithStores: message and association repositories
//   - WithStream: the delivery stream
//   - WithRegistry: the provider adapter registry
//   - WithPublisher: the dedup publisher used for retry re-publishes
//   - WithLogger: logger instance
//   - WithConsumer: consumer group and unique consumer name
//
// Optional options:
//   - WithRetryStrategy: custom backoff policy (default retry.DefaultStrategy())
//   - WithReadBatch: batch count and block timeout (default 10 entries, 5s)
//   - WithSendTimeout: per-provider-call timeout (default 30s)
//   - WithNotifications: downstream status notification service
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		strategy:     retry.DefaultStrategy(),
		notifier:     &NoOpNotificationService{},
		readCount:    10,
		blockTimeout: 5 * time.Second,
		sendTimeout:  30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	if d.messages == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithStores)")
	}
	if d.associations == nil {
		return nil, NewError(ErrCodeConfiguration, "AssociationRepository is required (use WithStores)")
	}
	if d.stream == nil {
		return nil, NewError(ErrCodeConfiguration, "Stream is required (use WithStream)")
	}
	if d.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithRegistry)")
	}
	if d.publisher == nil {
		return nil, NewError(ErrCodeConfiguration, "DedupPublisher is required (use WithPublisher)")
	}
	if d.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}
	if d.group == "" || d.consumer == "" {
		return nil, NewError(ErrCodeConfiguration, "consumer group and consumer name are required (use WithConsumer)")
	}

	return d, nil
}

// Run executes the dispatch loop until the context is canceled. The stream
// read blocks at most the configured block timeout, so the loop wakes
// periodically to observe shutdown even when the stream is idle. The batch
// in flight is drained before Run returns.
//
// This method blocks and should typically be run in a goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Infof("Dispatcher started (group=%s, consumer=%s)", d.group, d.consumer)

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped")
			return
		default:
		}

		entries, err := d.stream.ReadGroup(ctx, d.group, d.consumer, d.readCount, d.blockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("Dispatcher stopped")
				return
			}
			d.logger.Errorf("Failed to read from stream: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(d.blockTimeout):
			}
			continue
		}

		for i := range entries {
			if err := d.Process(ctx, entries[i]); err != nil {
				d.logger.Errorf("Failed to process entry %s (message %s): %v",
					entries[i].ID, entries[i].MessageID, err)
			}
		}
	}
}

// Process runs one stream entry through the dispatch state machine. It is
// also the reprocessing path for entries reclaimed by the pending
// reclaimer.
//
// A panic out of the adapter or store is caught here: it is logged with
// context and the entry is acked so one poisonous message cannot wedge the
// consumer. The message is left in processing for the stuck-processing
// recoverer, which applies the usual retry-or-fail decision. The panic is
// thereby treated as retryable without re-entering the crashing code path
// immediately.
func (d *Dispatcher) Process(ctx context.Context, entry model.StreamEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("Panic while processing entry %s (message %s): %v", entry.ID, entry.MessageID, r)
			if ackErr := d.stream.Ack(ctx, d.group, entry.ID); ackErr != nil {
				d.logger.Errorf("Failed to ack entry %s after panic: %v", entry.ID, ackErr)
			}
			err = NewError(ErrCodeStream, "entry processing panicked")
		}
	}()

	msg, err := d.messages.Load(ctx, entry.MessageID)
	if err != nil {
		if IsNoData(err) {
			// Entry references a row that no longer exists; nothing to deliver.
			d.logger.Warnf("Entry %s references unknown message %s, acking", entry.ID, entry.MessageID)
			return d.ack(ctx, entry)
		}
		// Store unreachable: leave the entry pending so the reclaimer
		// redelivers it once the store is back.
		return NewErrorWithCause(ErrCodeDatabase, "failed to load message", err)
	}

	// Idempotency guard: duplicate or stale entries for settled messages
	// are acked without any provider call.
	if msg.IsTerminal() {
		d.logger.Debugf("Message %s already %s, acking entry %s", msg.ID, msg.Status, entry.ID)
		return d.ack(ctx, entry)
	}

	msg.BeginAttempt()
	if err := d.messages.Update(ctx, &msg); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to persist attempt start", err)
	}

	// A channel nothing serves fails as a provider miss, not a recipient
	// miss, even when the project has no association either.
	if !d.registry.HasChannel(msg.Channel) {
		return d.finish(ctx, &msg, entry, provider.Permanent(provider.CodeProviderNotFound,
			"no adapter serves channel %q", msg.Channel))
	}

	resolved, rerr := d.associations.Resolve(ctx, msg.ProjectID, msg.Channel)
	if rerr != nil {
		if IsNoData(rerr) {
			return d.finish(ctx, &msg, entry, provider.Permanent(provider.CodeRecipientNotFound,
				"no active provider association for project %d on channel %q", msg.ProjectID, msg.Channel))
		}
		return d.finish(ctx, &msg, entry, provider.Transient(provider.CodeUnknown,
			"association lookup failed: %v", rerr))
	}

	adapter, perr := d.registry.Resolve(resolved.Association.ProviderType, msg.Channel)
	if perr != nil {
		return d.finish(ctx, &msg, entry, perr)
	}

	sendCtx := ctx
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}

	result, serr := adapter.Send(sendCtx, provider.SendParams{
		Recipient:      msg.Recipient,
		Payload:        msg.Payload,
		Credentials:    resolved.Credential.EncryptedConfig,
		Identity:       resolved.Association.Identity,
		IdempotencyKey: msg.ID,
	})
	if serr != nil {
		return d.finish(ctx, &msg, entry, provider.Classify(serr))
	}

	if result != nil && result.Delivered {
		msg.MarkDelivered(result.ProviderRef)
	} else {
		ref := ""
		if result != nil {
			ref = result.ProviderRef
		}
		msg.MarkSent(ref)
	}
	if err := d.messages.Update(ctx, &msg); err != nil {
		// Not acked: the entry is redelivered and the next attempt repeats
		// the send. At-least-once.
		return NewErrorWithCause(ErrCodeDatabase, "failed to persist delivery result", err)
	}
	if err := d.ack(ctx, entry); err != nil {
		return err
	}

	d.logger.Infof("Message %s %s via %s (attempts=%d)", msg.ID, msg.Status,
		resolved.Association.ProviderType, msg.AttemptCount)
	d.notifyTerminal(ctx, &msg)
	return nil
}

// finish settles a failed attempt: schedule a retry when the error is
// retryable and the budget allows, otherwise park the message in its
// terminal failure status.
func (d *Dispatcher) finish(ctx context.Context, msg *model.Message, entry model.StreamEntry, perr *provider.Error) error {
	if perr.Retryable && d.strategy.CanRetry(msg.AttemptCount) {
		delay := d.strategy.Delay(msg.AttemptCount)
		msg.Requeue(perr.Code, perr.Message)
		if err := d.messages.Update(ctx, msg); err != nil {
			return NewErrorWithCause(ErrCodeDatabase, "failed to persist retry state", err)
		}

		// New delayed entry, then ack the original. If the publish is lost
		// the orphaned-event recoverer re-publishes: the message is queued
		// with no live entry.
		if _, err := d.publisher.Publish(ctx, msg.ID, delay); err != nil {
			d.logger.Warnf("Failed to schedule retry for message %s: %v", msg.ID, err)
		}
		if err := d.ack(ctx, entry); err != nil {
			return err
		}

		d.logger.Warnf("Message %s attempt %d failed (%s), retry in %v: %s",
			msg.ID, msg.AttemptCount, perr.Code, delay, perr.Message)
		return nil
	}

	// Unparseable payloads are malformed rather than failed: they were
	// never dispatchable and carry no retry history worth keeping open.
	if perr.Code == provider.CodeInvalidPayload {
		msg.MarkMalformed(perr.Code, perr.Message)
	} else {
		msg.MarkFailed(perr.Code, perr.Message)
	}
	if err := d.messages.Update(ctx, msg); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to persist failure", err)
	}
	if err := d.ack(ctx, entry); err != nil {
		return err
	}

	d.logger.Warnf("Message %s %s after %d attempt(s): %s: %s",
		msg.ID, msg.Status, msg.AttemptCount, perr.Code, perr.Message)
	d.notifyTerminal(ctx, msg)
	return nil
}

func (d *Dispatcher) ack(ctx context.Context, entry model.StreamEntry) error {
	if err := d.stream.Ack(ctx, d.group, entry.ID); err != nil {
		return NewErrorWithCause(ErrCodeStream, "failed to ack entry", err)
	}
	return nil
}

// notifyTerminal emits the downstream status event. Fire-and-forget: a
// notification failure never affects the already-persisted transition.
func (d *Dispatcher) notifyTerminal(ctx context.Context, msg *model.Message) {
	if !msg.IsTerminal() {
		return
	}
	event := model.NewStatusEvent(msg)
	var err error
	switch msg.Status {
	case model.StatusSent, model.StatusDelivered:
		err = d.notifier.NotifyDelivered(ctx, event)
	case model.StatusFailed, model.StatusMalformed:
		err = d.notifier.NotifyFailed(ctx, event)
	}
	if err != nil {
		d.logger.Warnf("Failed to send status notification for message %s: %v", msg.ID, err)
	}
}
