package relay

import (
	"context"

	"github.com/coregx/relay/model"
)

// NotificationService receives events when messages reach a terminal
// status. Implementations typically feed a webhook dispatcher or audit
// sink.
//
// Emission is fire-and-forget from the worker's perspective: a failed
// notification is logged and never rolls back the status transition.
type NotificationService interface {
	// NotifyDelivered is called when a message reaches sent or delivered.
	NotifyDelivered(ctx context.Context, event model.StatusEvent) error

	// NotifyFailed is called when a message reaches failed or malformed.
	NotifyFailed(ctx context.Context, event model.StatusEvent) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when downstream notifications are not needed.
type NoOpNotificationService struct{}

// NotifyDelivered does nothing.
func (n *NoOpNotificationService) NotifyDelivered(_ context.Context, _ model.StatusEvent) error {
	return nil
}

// NotifyFailed does nothing.
func (n *NoOpNotificationService) NotifyFailed(_ context.Context, _ model.StatusEvent) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs status
// events.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyDelivered logs the delivery.
func (n *LoggingNotificationService) NotifyDelivered(_ context.Context, event model.StatusEvent) error {
	n.logger.Infof("Message delivered: id=%s, project=%d, channel=%s, status=%s, attempts=%d",
		event.MessageID, event.ProjectID, event.Channel, event.Status, event.AttemptCount)
	return nil
}

// NotifyFailed logs the failure.
func (n *LoggingNotificationService) NotifyFailed(_ context.Context, event model.StatusEvent) error {
	n.logger.Warnf("Message failed: id=%s, project=%d, channel=%s, status=%s, attempts=%d, code=%s, error=%s",
		event.MessageID, event.ProjectID, event.Channel, event.Status, event.AttemptCount,
		event.ErrorCode, event.ErrorMessage)
	return nil
}
