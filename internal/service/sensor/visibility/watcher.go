// Package visibility turns client foreground/background notifications into
// tab switch events.
package visibility

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/service/aggregator"
)

// Watcher edge-detects visible→hidden transitions. The exam window is assumed
// visible when the session starts.
type Watcher struct {
	sink   aggregator.Sink
	logger zerolog.Logger

	changes  chan bool
	stopped  chan struct{}
	stopOnce sync.Once

	// hidden is owned by Run.
	hidden bool
}

// NewWatcher creates a watcher publishing to sink.
func NewWatcher(sink aggregator.Sink, logger zerolog.Logger) *Watcher {
	return &Watcher{
		sink:    sink,
		logger:  logger,
		changes: make(chan bool),
		stopped: make(chan struct{}),
	}
}

// Notify reports the window's current visibility. Returns false once the
// watcher has stopped.
func (w *Watcher) Notify(hidden bool) bool {
	select {
	case <-w.stopped:
		return false
	default:
	}
	select {
	case w.changes <- hidden:
		return true
	case <-w.stopped:
		return false
	}
}

// Run consumes notifications until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stopOnce.Do(func() { close(w.stopped) })

	for {
		select {
		case <-ctx.Done():
			return
		case hidden := <-w.changes:
			if ctx.Err() != nil {
				return
			}
			if hidden && !w.hidden {
				w.logger.Debug().Msg("Exam window hidden")
				w.sink.Publish(models.TabSwitch())
			}
			w.hidden = hidden
		}
	}
}
