package relay

import (
	"fmt"
	"time"

	"github.com/coregx/relay/provider"
	"github.com/coregx/relay/retry"
)

// Option is a function that configures a Dispatcher.
//
// Example:
//
//	dispatcher, err := relay.NewDispatcher(
//	    relay.WithStores(messageRepo, associationRepo),
//	    relay.WithStream(stream),
//	    relay.WithRegistry(registry),
//	    relay.WithPublisher(publisher),
//	    relay.WithLogger(logger),
//	    relay.WithConsumer("relay-workers", "worker-1"),
//	)
type Option func(*Dispatcher) error

// WithStores sets the required repository dependencies for the dispatcher.
// Both repositories are required and must not be nil.
func WithStores(messageRepo MessageRepository, associationRepo AssociationRepository) Option {
	return func(d *Dispatcher) error {
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		if associationRepo == nil {
			return fmt.Errorf("associationRepo cannot be nil")
		}
		d.messages = messageRepo
		d.associations = associationRepo
		return nil
	}
}

// WithStream sets the delivery stream the dispatcher consumes.
func WithStream(stream Stream) Option {
	return func(d *Dispatcher) error {
		if stream == nil {
			return fmt.Errorf("stream cannot be nil")
		}
		d.stream = stream
		return nil
	}
}

// WithRegistry sets the provider adapter registry.
func WithRegistry(registry *provider.Registry) Option {
	return func(d *Dispatcher) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		d.registry = registry
		return nil
	}
}

// WithPublisher sets the dedup publisher used to schedule retry entries.
func WithPublisher(publisher *DedupPublisher) Option {
	return func(d *Dispatcher) error {
		if publisher == nil {
			return fmt.Errorf("publisher cannot be nil")
		}
		d.publisher = publisher
		return nil
	}
}

// WithLogger sets the logger instance for the dispatcher.
//
// Use NoopLogger for silent operation or implement Logger to integrate with
// your logging system.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// WithConsumer sets the consumer group name and the consumer identity.
// The consumer name must be unique per worker process instance; the broker
// enforces exclusive entry delivery within the group.
func WithConsumer(group, consumer string) Option {
	return func(d *Dispatcher) error {
		if group == "" {
			return fmt.Errorf("group cannot be empty")
		}
		if consumer == "" {
			return fmt.Errorf("consumer cannot be empty")
		}
		d.group = group
		d.consumer = consumer
		return nil
	}
}

// WithRetryStrategy sets a custom backoff policy.
// Default: retry.DefaultStrategy() (5 attempts, 30s base delay doubling up
// to 30m).
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(d *Dispatcher) error {
		if strategy.MaxAttempts <= 0 {
			return fmt.Errorf("max attempts must be > 0, got %d", strategy.MaxAttempts)
		}
		d.strategy = strategy
		return nil
	}
}

// WithReadBatch sets the stream read batch size and block timeout.
// The block timeout bounds how long an idle loop iteration sleeps, and
// therefore how quickly the dispatcher observes shutdown.
func WithReadBatch(count int, block time.Duration) Option {
	return func(d *Dispatcher) error {
		if count <= 0 {
			return fmt.Errorf("read count must be > 0, got %d", count)
		}
		if block <= 0 {
			return fmt.Errorf("block timeout must be > 0, got %v", block)
		}
		d.readCount = count
		d.blockTimeout = block
		return nil
	}
}

// WithSendTimeout bounds each provider adapter call. Zero disables the
// dispatcher-level timeout and leaves only the provider SDK's own.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout < 0 {
			return fmt.Errorf("send timeout cannot be negative")
		}
		d.sendTimeout = timeout
		return nil
	}
}

// WithNotifications sets the downstream status notification service.
// Default: NoOpNotificationService (no notifications).
func WithNotifications(service NotificationService) Option {
	return func(d *Dispatcher) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		d.notifier = service
		return nil
	}
}
