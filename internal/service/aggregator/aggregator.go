// Package aggregator provides the single-writer reducer that fuses sensor,
// text and transport events into counters and a warning timeline.
package aggregator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/metrics"
)

const defaultQueueSize = 256

// Sink accepts sensor events. Publish returns false when the event was
// discarded because intake is sealed.
type Sink interface {
	Publish(ev models.SensorEvent) bool
}

// WarningHook is invoked from the aggregator goroutine after a warning is
// appended. It must not block.
type WarningHook func(w models.Warning)

// Snapshot is a copy of the aggregated state.
type Snapshot struct {
	Counters           models.Counters
	Warnings           []models.Warning
	AIContentSuspected bool
}

// Options configures an Aggregator.
type Options struct {
	QueueSize int
	Clock     func() time.Time
	OnWarning WarningHook
	Logger    zerolog.Logger
	Metrics   *metrics.Metrics
}

// Aggregator is the only place anomaly state is written. Producers enqueue on
// a single ordered channel, one goroutine applies events in arrival order.
//
// Intake has two gates:
//
//	Publish() ──→ rejected after Seal()   (sensor sources)
//	Warn()    ──→ rejected after Close()  (controller notices)
type Aggregator struct {
	events chan models.SensorEvent
	done   chan struct{}

	// gate guards the send side of events against Seal/Close.
	gate   sync.RWMutex
	sealed bool
	closed bool

	// mu guards the reduced state below; written only by run().
	mu                 sync.RWMutex
	counters           models.Counters
	warnings           []models.Warning
	aiContentSuspected bool

	clock     func() time.Time
	onWarning WarningHook
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// New creates an Aggregator and starts its consumer goroutine.
func New(opts Options) *Aggregator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	a := &Aggregator{
		events:    make(chan models.SensorEvent, opts.QueueSize),
		done:      make(chan struct{}),
		clock:     opts.Clock,
		onWarning: opts.OnWarning,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	go a.run()
	return a
}

// Publish enqueues a sensor event. Events published after Seal are dropped.
func (a *Aggregator) Publish(ev models.SensorEvent) bool {
	a.gate.RLock()
	defer a.gate.RUnlock()
	if a.sealed || a.closed {
		a.logger.Debug().Str("kind", string(ev.Kind)).Msg("Event discarded: intake sealed")
		a.metrics.RecordEventDiscarded(string(ev.Kind))
		return false
	}
	a.events <- ev
	return true
}

// Warn enqueues a controller notice. Accepted until Close.
func (a *Aggregator) Warn(format string, args ...any) bool {
	a.gate.RLock()
	defer a.gate.RUnlock()
	if a.closed {
		return false
	}
	a.events <- models.Notice(format, args...)
	return true
}

// Seal stops sensor intake. Once Seal returns no further sensor event can be
// enqueued, including results of calls that were in flight. Idempotent.
func (a *Aggregator) Seal() {
	a.gate.Lock()
	a.sealed = true
	a.gate.Unlock()
}

// Sealed reports whether sensor intake is closed.
func (a *Aggregator) Sealed() bool {
	a.gate.RLock()
	defer a.gate.RUnlock()
	return a.sealed
}

// Close stops all intake, waits until every queued event is applied and
// returns the final state. Safe to call more than once.
func (a *Aggregator) Close() Snapshot {
	a.gate.Lock()
	if !a.closed {
		a.sealed = true
		a.closed = true
		close(a.events)
	}
	a.gate.Unlock()
	<-a.done
	return a.Snapshot()
}

// Snapshot returns a copy of the current state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	warnings := make([]models.Warning, len(a.warnings))
	copy(warnings, a.warnings)
	return Snapshot{
		Counters:           a.counters,
		Warnings:           warnings,
		AIContentSuspected: a.aiContentSuspected,
	}
}

func (a *Aggregator) run() {
	defer close(a.done)
	for ev := range a.events {
		a.apply(ev)
	}
}

func (a *Aggregator) apply(ev models.SensorEvent) {
	a.mu.Lock()
	switch ev.Kind {
	case models.KindTabSwitch:
		a.counters.TabSwitches++
	case models.KindFaceAbsent:
		a.counters.FaceAbsences++
	case models.KindPhoneGazeOut:
		a.counters.GazeOuts++
	case models.KindContentFlag:
		a.aiContentSuspected = true
	}
	w := models.Warning{
		Message:   ev.WarningMessage(),
		Timestamp: a.clock(),
		Kind:      ev.Kind,
	}
	a.warnings = append(a.warnings, w)
	a.mu.Unlock()

	a.metrics.RecordEvent(string(ev.Kind))
	a.logger.Info().
		Str("kind", string(ev.Kind)).
		Str("warning", w.Message).
		Msg("Warning recorded")

	if a.onWarning != nil {
		a.onWarning(w)
	}
}
