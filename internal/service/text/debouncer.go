// Package text runs the content detectors over answers as they are edited.
package text

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/metrics"
	"exam-proctor-service/internal/service/aggregator"
	"exam-proctor-service/internal/service/detector"
)

// DefaultThreshold is the answer length, in characters, above which the
// content detectors run.
const DefaultThreshold = 100

// ErrStopped is returned by Edit after Stop.
var ErrStopped = errors.New("text debouncer stopped")

// AnswerStore persists answers. SetAnswer fails once answers are frozen.
type AnswerStore interface {
	SetAnswer(questionID, text string) error
}

// Options configures a Debouncer.
type Options struct {
	Answers      AnswerStore
	Authenticity detector.AuthenticityDetector
	Originality  detector.OriginalityDetector
	Sink         aggregator.Sink
	Threshold    int
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// Debouncer records answer edits and checks long answers.
//
// Checks for the same question are serialized. An edit arriving while a check
// is running replaces any edit still waiting, so only the latest text is
// checked next. Flags accumulate across checks.
type Debouncer struct {
	answers      AnswerStore
	authenticity detector.AuthenticityDetector
	originality  detector.OriginalityDetector
	sink         aggregator.Sink
	threshold    int
	logger       zerolog.Logger
	metrics      *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*worker
	stopped bool
}

type worker struct {
	running bool
	pending *string
}

// NewDebouncer creates a debouncer. Stop must be called to release workers.
func NewDebouncer(opts Options) *Debouncer {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Debouncer{
		answers:      opts.Answers,
		authenticity: opts.Authenticity,
		originality:  opts.Originality,
		sink:         opts.Sink,
		threshold:    opts.Threshold,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		ctx:          ctx,
		cancel:       cancel,
		workers:      make(map[string]*worker),
	}
}

// Edit stores the answer and schedules a check when it is long enough.
func (d *Debouncer) Edit(questionID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}
	if err := d.answers.SetAnswer(questionID, text); err != nil {
		return err
	}
	if utf8.RuneCountInString(text) <= d.threshold {
		return nil
	}

	w, ok := d.workers[questionID]
	if !ok {
		w = &worker{}
		d.workers[questionID] = w
	}
	if w.pending != nil {
		d.logger.Debug().Str("questionId", questionID).Msg("Superseded pending check")
	}
	w.pending = &text
	if !w.running {
		w.running = true
		d.wg.Add(1)
		go d.work(questionID, w)
	}
	return nil
}

func (d *Debouncer) work(questionID string, w *worker) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if w.pending == nil || d.ctx.Err() != nil {
			w.running = false
			w.pending = nil
			d.mu.Unlock()
			return
		}
		text := *w.pending
		w.pending = nil
		d.mu.Unlock()

		if err := d.Check(d.ctx, questionID, text); err != nil {
			if d.ctx.Err() != nil {
				continue
			}
			d.logger.Warn().Err(err).Str("questionId", questionID).Msg("Content check failed")
			d.sink.Publish(models.Notice("Content check failed for question %s: %v", questionID, err))
		}
	}
}

// Check runs both detectors concurrently on text and publishes a content
// flag for each positive result. Detector errors are returned wrapped in
// models.ErrDetector and are not converted to warnings here.
func (d *Debouncer) Check(ctx context.Context, questionID, text string) error {
	var g errgroup.Group

	g.Go(func() error {
		start := time.Now()
		flagged, err := d.authenticity.Check(ctx, text)
		d.metrics.RecordDetectorCall("authenticity", err, time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("%w: authenticity: %v", models.ErrDetector, err)
		}
		if flagged && ctx.Err() == nil {
			d.sink.Publish(models.AIContentFlag(questionID))
		}
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		res, err := d.originality.Check(ctx, text)
		d.metrics.RecordDetectorCall("originality", err, time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("%w: originality: %v", models.ErrDetector, err)
		}
		if res.Flagged && ctx.Err() == nil {
			d.sink.Publish(models.PlagiarismFlag(questionID, res.Similarity))
		}
		return nil
	})

	return g.Wait()
}

// Stop cancels in-flight checks and waits for every worker to exit.
// Idempotent.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
