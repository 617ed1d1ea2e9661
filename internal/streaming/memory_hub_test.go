package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/netgraph/pkg/schema"
)

func receive(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func assertQuiet(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		SessionID: "s-1",
		RunID:     "r-1",
		EventType: schema.EventAnalysisCompleted,
		Payload:   map[string]any{"style": "sequential"},
	}
	require.NoError(t, hub.Publish(ctx, event))

	got := receive(t, ch)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, "r-1", got.RunID)
	assert.Equal(t, schema.EventAnalysisCompleted, got.EventType)
	assert.False(t, got.Timestamp.IsZero(), "publish stamps events")
}

func TestPublish_KeepsExplicitTimestamp(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s", EventType: "tick", Timestamp: ts}))
	assert.Equal(t, ts, receive(t, ch).Timestamp)
}

func TestFilterBySessionID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{SessionID: "s-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: schema.EventAnalysisStarted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-2", EventType: schema.EventAnalysisStarted}))

	assert.Equal(t, "s-1", receive(t, ch).SessionID)
	assertQuiet(t, ch)
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		EventTypes: []string{schema.EventAnalysisCompleted, schema.EventAnalysisFailed},
	})
	require.NoError(t, err)
	defer cancel()

	for _, typ := range []string{schema.EventAnalysisCompleted, schema.EventAnalysisStarted, schema.EventAnalysisFailed} {
		require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: typ}))
	}

	received := []string{receive(t, ch).EventType, receive(t, ch).EventType}
	assert.Equal(t, []string{schema.EventAnalysisCompleted, schema.EventAnalysisFailed}, received)
	assertQuiet(t, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()

	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{SessionID: "s-1"})
	require.NoError(t, err)
	defer cancel2()

	assert.Equal(t, 2, hub.Subscribers())
	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: schema.EventGraphUpdated}))

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		assert.Equal(t, schema.EventGraphUpdated, receive(t, ch).EventType)
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel() // idempotent

	require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: "tick"}))

	_, ok := <-ch
	assert.False(t, ok, "cancel closes the channel")
	assert.Zero(t, hub.Subscribers())
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub(WithBuffer(4))
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// None of these block.
	for range 10 {
		require.NoError(t, hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: "tick"}))
	}

	drained := 0
	for len(ch) > 0 {
		<-ch
		drained++
	}
	assert.Equal(t, 4, drained)
	assert.Equal(t, int64(6), hub.Dropped())
}

func TestWithBuffer_IgnoresNonPositive(t *testing.T) {
	hub := NewMemoryHub(WithBuffer(0))
	assert.Equal(t, defaultChannelBuffer, hub.buffer)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	cancels := make([]func(), goroutines)
	for i := range goroutines {
		_, cancel, err := hub.Subscribe(ctx, EventFilter{})
		require.NoError(t, err)
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				_ = hub.Publish(ctx, StreamEvent{SessionID: "s-concurrent", EventType: "tick"})
			}
		}()
	}

	// Subscribers come and go while publishers run.
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}

	wg.Wait()
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, StreamEvent{SessionID: "s-1", EventType: "tick"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
