package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/metrics"
)

func TestRelay_PublishesBufferedEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	relay := New(sink, WithRetryBaseDelay(0))

	require.NoError(t, relay.PublishSyncEvent(domain.SyncEvent{Type: domain.SyncEventSynced, UserID: "user-1"}))
	require.NoError(t, relay.PublishCartChange(domain.CartChange{OwnerID: "user-1", Operation: domain.OperationAdd, Revision: 1}))

	stop := runRelay(t, relay)
	require.Eventually(t, func() bool { return sink.total() == 2 }, time.Second, 5*time.Millisecond)
	stop()

	events, changes := sink.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, domain.SyncEventSynced, events[0].Type)
	require.Len(t, changes, 1)
	require.Equal(t, int64(1), changes[0].Revision)
}

func TestRelay_RetriesUntilSinkAccepts(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	sink := &recordingSink{failures: 2}
	relay := New(sink,
		WithMaxAttempts(3),
		WithRetryBaseDelay(time.Millisecond),
		WithMetrics(metrics.NewRelayMetricsWithRegisterer(registry)),
	)

	require.NoError(t, relay.PublishCartChange(domain.CartChange{OwnerID: "user-1"}))

	stop := runRelay(t, relay)
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	expected := `
# HELP cart_event_publish_attempts_total Total number of event publish attempts grouped by result.
# TYPE cart_event_publish_attempts_total counter
cart_event_publish_attempts_total{result="retry_error"} 2
cart_event_publish_attempts_total{result="sent"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "cart_event_publish_attempts_total"))
}

func TestRelay_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failures: 10}
	relay := New(sink, WithMaxAttempts(2), WithRetryBaseDelay(0))

	err := relay.publishWithRetry(context.Background(), envelope{cartChange: &domain.CartChange{OwnerID: "user-1"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 attempts")
	require.Equal(t, 2, sink.attemptCount())
}

func TestRelay_FullBufferDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	relay := New(&recordingSink{}, WithBufferSize(1), WithMetrics(metrics.NewRelayMetricsWithRegisterer(registry)))

	require.NoError(t, relay.PublishSyncEvent(domain.SyncEvent{Type: domain.SyncEventQueued}))
	err := relay.PublishSyncEvent(domain.SyncEvent{Type: domain.SyncEventQueued})
	require.ErrorIs(t, err, ErrBufferFull)
	require.Equal(t, 1, relay.Buffered())

	expected := `
# HELP cart_event_dropped_total Total number of events dropped before publishing grouped by reason.
# TYPE cart_event_dropped_total counter
cart_event_dropped_total{reason="buffer_full"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "cart_event_dropped_total"))
}

func TestRelay_DrainsBufferOnShutdown(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	relay := New(sink, WithRetryBaseDelay(0))

	for i := 0; i < 5; i++ {
		require.NoError(t, relay.PublishCartChange(domain.CartChange{OwnerID: "user-1", Revision: int64(i + 1)}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	relay.Run(ctx)

	require.Equal(t, 5, sink.total())
	require.Error(t, relay.PublishCartChange(domain.CartChange{OwnerID: "user-1"}), "closed relay must reject events")
}

func TestRelay_ShutdownDuringBackoffStillDeliversEvent(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failures: 1}
	relay := New(sink, WithRetryBaseDelay(time.Hour))
	stop := runRelay(t, relay)

	require.NoError(t, relay.PublishSyncEvent(domain.SyncEvent{Type: domain.SyncEventSynced, UserID: "user-1"}))
	require.Eventually(t, func() bool { return sink.attemptCount() == 1 }, time.Second, 5*time.Millisecond)

	stop()

	events, _ := sink.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "user-1", events[0].UserID)
	require.Equal(t, 2, sink.attemptCount())
}

func TestRelay_DrainTimeoutBoundsShutdownBackoff(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	sink := &recordingSink{failures: 100}
	relay := New(sink,
		WithRetryBaseDelay(time.Hour),
		WithDrainTimeout(20*time.Millisecond),
		WithMetrics(metrics.NewRelayMetricsWithRegisterer(registry)),
	)
	stop := runRelay(t, relay)

	require.NoError(t, relay.PublishCartChange(domain.CartChange{OwnerID: "user-1", Revision: 1}))
	require.Eventually(t, func() bool { return sink.attemptCount() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("relay shutdown must be bounded by drain timeout")
	}

	require.Zero(t, sink.total())
	expected := `
# HELP cart_event_dropped_total Total number of events dropped before publishing grouped by reason.
# TYPE cart_event_dropped_total counter
cart_event_dropped_total{reason="shutdown"} 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "cart_event_dropped_total"))
}

func TestRelay_RetryBackoffDoubles(t *testing.T) {
	t.Parallel()

	relay := New(nil, WithRetryBaseDelay(10*time.Millisecond))
	require.Equal(t, 10*time.Millisecond, relay.retryBackoff(1))
	require.Equal(t, 20*time.Millisecond, relay.retryBackoff(2))
	require.Equal(t, 40*time.Millisecond, relay.retryBackoff(3))
}

func TestRelay_NilSinkReturnsImmediately(t *testing.T) {
	t.Parallel()

	relay := New(nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay without sink must not block")
	}
}

func runRelay(t *testing.T, relay *Relay) func() {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	t.Cleanup(stop)
	return stop
}

type recordingSink struct {
	mu       sync.Mutex
	failures int
	attempts int
	events   []domain.SyncEvent
	changes  []domain.CartChange
}

func (s *recordingSink) PublishSyncEvent(event domain.SyncEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(); err != nil {
		return err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) PublishCartChange(change domain.CartChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failLocked(); err != nil {
		return err
	}
	s.changes = append(s.changes, change)
	return nil
}

func (s *recordingSink) failLocked() error {
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	return nil
}

func (s *recordingSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events) + len(s.changes)
}

func (s *recordingSink) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *recordingSink) snapshot() ([]domain.SyncEvent, []domain.CartChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SyncEvent(nil), s.events...), append([]domain.CartChange(nil), s.changes...)
}
