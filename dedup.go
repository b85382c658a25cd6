package relay

import (
	"context"
	"time"
)

// DedupPublisher publishes delivery entries to the stream with windowed
// duplicate suppression. Before publishing it scans a bounded slice of
// recent entries (wall-clock window plus max count, with a fixed-count
// fallback) for a deliverable entry referencing the same message id; when
// one exists the publish is skipped and reported as success.
//
// This is best-effort: the scan window is bounded, so duplicates outside it
// slip through. The terminal-status idempotency guard in the dispatch loop
// is the correctness backstop; this check only keeps duplicate entries from
// piling up in the common case.
//
// Both the submission path and the worker's retry re-publishes go through
// here, so an API double-submit and a racing recovery sweep are suppressed
// the same way.
type DedupPublisher struct {
	stream        Stream
	logger        Logger
	window        time.Duration
	maxMessages   int
	fallbackLimit int
}

// DedupPublisherOption configures a DedupPublisher.
type DedupPublisherOption func(*DedupPublisher) error

// NewDedupPublisher creates a publisher over the given stream.
//
// Defaults: 5m scan window, 1000 scanned entries, 500 entry fallback scan.
func NewDedupPublisher(stream Stream, logger Logger, opts ...DedupPublisherOption) (*DedupPublisher, error) {
	if stream == nil {
		return nil, NewError(ErrCodeConfiguration, "Stream is required")
	}
	if logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}

	p := &DedupPublisher{
		stream:        stream,
		logger:        logger,
		window:        5 * time.Minute,
		maxMessages:   1000,
		fallbackLimit: 500,
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply dedup publisher option", err)
		}
	}

	return p, nil
}

// WithDedupWindow sets the wall-clock scan window. A non-positive window
// disables time-indexed scanning and always uses the fixed-count fallback.
func WithDedupWindow(window time.Duration) DedupPublisherOption {
	return func(p *DedupPublisher) error {
		p.window = window
		return nil
	}
}

// WithDedupLimits sets the entry-count bounds for the scan: maxMessages for
// the windowed scan and fallbackLimit for the fixed-count fallback.
func WithDedupLimits(maxMessages, fallbackLimit int) DedupPublisherOption {
	return func(p *DedupPublisher) error {
		if maxMessages <= 0 || fallbackLimit <= 0 {
			return NewError(ErrCodeConfiguration, "dedup scan limits must be > 0")
		}
		p.maxMessages = maxMessages
		p.fallbackLimit = fallbackLimit
		return nil
	}
}

// Publish appends a delivery entry for the message unless a deliverable
// duplicate already sits in the scan window. Returns the entry id (the
// existing one when suppressed).
func (p *DedupPublisher) Publish(ctx context.Context, messageID string, delay time.Duration) (string, error) {
	if existing, ok := p.findDuplicate(ctx, messageID); ok {
		p.logger.Debugf("Suppressed duplicate entry for message %s (existing entry %s)", messageID, existing)
		return existing, nil
	}

	entryID, err := p.stream.Publish(ctx, messageID, delay)
	if err != nil {
		return "", NewErrorWithCause(ErrCodeStream, "failed to publish entry", err)
	}
	return entryID, nil
}

// findDuplicate scans recent entries for a deliverable (unclaimed, unacked)
// entry referencing the message. Scan errors only disable suppression;
// losing dedup is preferable to losing the publish.
func (p *DedupPublisher) findDuplicate(ctx context.Context, messageID string) (string, bool) {
	entries, err := p.stream.ScanRecent(ctx, p.window, p.maxMessages)
	if err != nil && p.window > 0 {
		p.logger.Warnf("Windowed dedup scan failed, falling back to fixed-count scan: %v", err)
		entries, err = p.stream.ScanRecent(ctx, 0, p.fallbackLimit)
	}
	if err != nil {
		p.logger.Warnf("Dedup scan failed, publishing without suppression: %v", err)
		return "", false
	}

	for i := range entries {
		e := &entries[i]
		if e.MessageID != messageID {
			continue
		}
		// Claimed entries are in-flight (possibly the very attempt that is
		// re-publishing a retry); only a still-deliverable entry counts as
		// a duplicate.
		if e.AckedAt.Valid || e.ClaimedAt.Valid {
			continue
		}
		return e.ID, true
	}
	return "", false
}
