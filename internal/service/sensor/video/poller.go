// Package video provides the poller that samples the camera at a fixed
// interval and turns classifier output into face and gaze events.
package video

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/metrics"
	"exam-proctor-service/internal/service/aggregator"
	"exam-proctor-service/internal/service/detector"
	"exam-proctor-service/internal/service/resource"
)

// Presence is the poller's memory of the previous tick.
type Presence int

const (
	// Absent - no face seen on the last classified frame (initial).
	Absent Presence = iota
	// Present - a face was seen on the last classified frame.
	Present
)

// String returns the string representation of the presence.
func (p Presence) String() string {
	switch p {
	case Absent:
		return "ABSENT"
	case Present:
		return "PRESENT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// Options configures a Poller.
type Options struct {
	Camera     resource.Camera
	Classifier detector.VideoClassifier
	Sink       aggregator.Sink
	Interval   time.Duration
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// Poller classifies the current frame once per interval.
//
// Emission rules per classified frame:
//
//	multipleFaces            → MultipleFaces (every tick)
//	Present → no face        → FaceAbsent    (edge only)
//	phoneGazeOut             → PhoneGazeOut  (every tick)
type Poller struct {
	camera     resource.Camera
	classifier detector.VideoClassifier
	sink       aggregator.Sink
	interval   time.Duration
	logger     zerolog.Logger
	metrics    *metrics.Metrics

	// busy is set while a classification is in flight. A tick that finds
	// it set is skipped, never queued.
	busy atomic.Bool

	mu       sync.Mutex
	presence Presence
}

// NewPoller creates a video poller. Presence starts Absent.
func NewPoller(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	return &Poller{
		camera:     opts.Camera,
		classifier: opts.Classifier,
		sink:       opts.Sink,
		interval:   opts.Interval,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		presence:   Absent,
	}
}

// Run ticks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.camera == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Presence returns the presence recorded by the last classified frame.
func (p *Poller) Presence() Presence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presence
}

// Tick runs one sampling step. It does nothing without a frame or after
// cancellation. A tick that overlaps a running classification is skipped.
func (p *Poller) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug().Msg("Classification still in flight, tick skipped")
		return
	}
	defer p.busy.Store(false)

	frame, ok := p.camera.CurrentFrame()
	if !ok {
		return
	}

	start := time.Now()
	res, err := p.classifier.Classify(ctx, frame)
	p.metrics.RecordDetectorCall("video", err, time.Since(start).Seconds())

	// Results that arrive after cancellation are discarded.
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		p.logger.Warn().Err(err).Msg("Video classification failed")
		p.sink.Publish(models.Notice("Video monitoring: %v", fmt.Errorf("%w: %v", models.ErrDetector, err)))
		return
	}

	p.mu.Lock()
	events := p.transition(res)
	p.mu.Unlock()
	for _, ev := range events {
		p.sink.Publish(ev)
	}
}

// transition applies one classifier result to the presence state and
// returns the events it produces. Caller holds mu.
func (p *Poller) transition(res detector.VideoResult) []models.SensorEvent {
	var out []models.SensorEvent
	if res.MultipleFaces {
		out = append(out, models.MultipleFaces())
	}

	next := Absent
	if res.FaceDetected {
		next = Present
	}
	if p.presence == Present && next == Absent {
		out = append(out, models.FaceAbsent())
	}
	if next != p.presence {
		p.logger.Debug().Stringer("from", p.presence).Stringer("to", next).Msg("Presence changed")
	}
	p.presence = next

	if res.PhoneGazeOut {
		out = append(out, models.PhoneGazeOut())
	}
	return out
}
