package visibility

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-proctor-service/internal/models"
)

type countingSink struct {
	mu     sync.Mutex
	events []models.SensorEvent
}

func (s *countingSink) Publish(ev models.SensorEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return true
}

func (s *countingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func startWatcher(t *testing.T) (*Watcher, *countingSink, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	sink := &countingSink{}
	w := NewWatcher(sink, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	return w, sink, cancel, done
}

func TestWatcher_OneEventPerTransition(t *testing.T) {
	w, sink, cancel, done := startWatcher(t)

	// hidden, still hidden, visible, hidden → two transitions
	for _, hidden := range []bool{true, true, true, false, true, false, false} {
		require.True(t, w.Notify(hidden))
	}
	cancel()
	<-done

	require.Equal(t, 2, sink.len())
	for _, ev := range sink.events {
		assert.Equal(t, models.KindTabSwitch, ev.Kind)
	}
}

func TestWatcher_VisibleNotificationsIgnored(t *testing.T) {
	w, sink, cancel, done := startWatcher(t)
	w.Notify(false)
	w.Notify(false)
	cancel()
	<-done

	assert.Equal(t, 0, sink.len())
}

func TestWatcher_NotifyAfterStop(t *testing.T) {
	w, sink, cancel, done := startWatcher(t)
	cancel()
	<-done

	result := make(chan bool, 1)
	go func() { result <- w.Notify(true) }()
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Notify blocked after watcher stopped")
	}
	assert.Equal(t, 0, sink.len())
}
