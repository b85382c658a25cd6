package relay

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/relay/model"
)

func TestDedupPublisher_SuppressesDeliverableDuplicate(t *testing.T) {
	stream := newMemoryStream()
	publisher, err := NewDedupPublisher(stream, &NoopLogger{})
	require.NoError(t, err)

	first, err := publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)

	second, err := publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)

	assert.Equal(t, first, second, "suppressed publish reports the existing entry")
	assert.Equal(t, 1, stream.liveCount("msg-1"))
}

func TestDedupPublisher_DifferentMessagesNotSuppressed(t *testing.T) {
	stream := newMemoryStream()
	publisher, err := NewDedupPublisher(stream, &NoopLogger{})
	require.NoError(t, err)

	_, err = publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)
	_, err = publisher.Publish(context.Background(), "msg-2", 0)
	require.NoError(t, err)

	assert.Equal(t, 1, stream.liveCount("msg-1"))
	assert.Equal(t, 1, stream.liveCount("msg-2"))
}

func TestDedupPublisher_ClaimedEntryDoesNotSuppress(t *testing.T) {
	stream := newMemoryStream()
	publisher, err := NewDedupPublisher(stream, &NoopLogger{})
	require.NoError(t, err)

	_, err = publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)
	entries, err := stream.ReadGroup(context.Background(), "g", "c", 1, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The claimed entry is the in-flight attempt; its own retry re-publish
	// must go through.
	second, err := publisher.Publish(context.Background(), "msg-1", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, entries[0].ID, second)
	assert.Equal(t, 2, stream.liveCount("msg-1"))
}

func TestDedupPublisher_AckedEntryDoesNotSuppress(t *testing.T) {
	stream := newMemoryStream()
	publisher, err := NewDedupPublisher(stream, &NoopLogger{})
	require.NoError(t, err)

	first, err := publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)
	_, err = stream.ReadGroup(context.Background(), "g", "c", 1, 0)
	require.NoError(t, err)
	require.NoError(t, stream.Ack(context.Background(), "g", first))

	second, err := publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

// scanFailingStream wraps the memory stream with a failing ScanRecent.
type scanFailingStream struct {
	*memoryStream
}

func (s *scanFailingStream) ScanRecent(_ context.Context, _ time.Duration, _ int) ([]model.StreamEntry, error) {
	return nil, fmt.Errorf("scan unavailable")
}

func TestDedupPublisher_ScanFailureStillPublishes(t *testing.T) {
	stream := &scanFailingStream{memoryStream: newMemoryStream()}
	publisher, err := NewDedupPublisher(stream, &NoopLogger{})
	require.NoError(t, err)

	_, err = publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)
	_, err = publisher.Publish(context.Background(), "msg-1", 0)
	require.NoError(t, err)

	assert.Equal(t, 2, stream.liveCount("msg-1"), "losing dedup must not lose the publish")
}

func TestDedupPublisher_PublishFailure(t *testing.T) {
	stream := newMemoryStream()
	stream.publishErr = fmt.Errorf("stream down")
	publisher, err := NewDedupPublisher(stream, &NoopLogger{})
	require.NoError(t, err)

	_, err = publisher.Publish(context.Background(), "msg-1", 0)
	require.Error(t, err)
}

func TestNewDedupPublisher_Validation(t *testing.T) {
	_, err := NewDedupPublisher(nil, &NoopLogger{})
	assert.Error(t, err)

	_, err = NewDedupPublisher(newMemoryStream(), nil)
	assert.Error(t, err)

	_, err = NewDedupPublisher(newMemoryStream(), &NoopLogger{}, WithDedupLimits(0, 10))
	assert.Error(t, err)

	_, err = NewDedupPublisher(newMemoryStream(), &NoopLogger{}, WithDedupWindow(time.Minute), WithDedupLimits(100, 50))
	assert.NoError(t, err)
}
