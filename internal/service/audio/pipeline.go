// Package audio provides the capture pipeline that buffers microphone
// segments while a session is in progress and runs speech activity detection
// once over the whole recording at submission.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/metrics"
	"exam-proctor-service/internal/service/detector"
	"exam-proctor-service/internal/service/resource"
	"exam-proctor-service/internal/service/segment"
)

// NoAudioWarning is recorded when audio was granted but nothing was captured.
const NoAudioWarning = "Audio monitoring: no audio recorded during the session"

// ErrDrained is returned by a second Drain.
var ErrDrained = errors.New("audio buffer already drained")

// Limits defines safety guardrails for buffered audio.
type Limits struct {
	MaxAudioBytes int64 // Max buffered audio for the whole session
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 256 * 1024 * 1024, // 256MB (~4.6 hours at 8kHz 16-bit mono)
	}
}

// Warner records a warning on the session timeline.
type Warner interface {
	Warn(format string, args ...any) bool
}

// Pipeline owns the segment buffer from the first capture until the one-time
// drain at submission.
type Pipeline struct {
	mic      resource.Microphone
	detector detector.SpeechActivityDetector
	warner   Warner
	period   time.Duration
	limits   Limits
	segments *segment.Generator
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	buffer   [][]byte
	bytes    int64
	disabled bool
	drained  bool
}

// Options configures a Pipeline.
type Options struct {
	Microphone resource.Microphone
	Detector   detector.SpeechActivityDetector
	Warner     Warner
	Period     time.Duration
	Limits     Limits
	Segments   *segment.Generator
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

// NewPipeline creates a capture pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.Period <= 0 {
		opts.Period = 5 * time.Second
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.Segments == nil {
		opts.Segments = segment.New("session")
	}
	return &Pipeline{
		mic:      opts.Microphone,
		detector: opts.Detector,
		warner:   opts.Warner,
		period:   opts.Period,
		limits:   opts.Limits,
		segments: opts.Segments,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Run captures one segment per period until ctx is cancelled or capture is
// disabled by an error or the buffer limit.
func (p *Pipeline) Run(ctx context.Context) {
	if p.mic == nil {
		return
	}
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.capture(ctx) {
				return
			}
		}
	}
}

// capture reads one segment. Returns false when capture must stop.
func (p *Pipeline) capture(ctx context.Context) bool {
	chunk, err := p.mic.ReadSegment(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.disable()
		p.warner.Warn("Audio monitoring disabled: %v", fmt.Errorf("%w: %v", models.ErrCapture, err))
		p.logger.Error().Err(err).Msg("Microphone read failed, audio capture disabled")
		return false
	}
	if len(chunk) == 0 {
		return true
	}

	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		return false
	}
	if p.limits.MaxAudioBytes > 0 && p.bytes+int64(len(chunk)) > p.limits.MaxAudioBytes {
		p.disabled = true
		total := p.bytes
		p.mu.Unlock()
		p.metrics.RecordAudioLimitExceeded()
		p.warner.Warn("Audio monitoring disabled: %v", fmt.Errorf("%w: buffer limit reached (%d bytes)", models.ErrCapture, total))
		return false
	}
	p.buffer = append(p.buffer, chunk)
	p.bytes += int64(len(chunk))
	p.mu.Unlock()

	id := p.segments.Next()
	p.metrics.RecordAudioSegment(len(chunk))
	p.logger.Debug().Str("segmentId", id).Int("bytes", len(chunk)).Msg("Audio segment buffered")
	return true
}

func (p *Pipeline) disable() {
	p.mu.Lock()
	p.disabled = true
	p.mu.Unlock()
}

// Disabled reports whether capture stopped early.
func (p *Pipeline) Disabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled
}

// SegmentCount returns the number of buffered segments.
func (p *Pipeline) SegmentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Drain concatenates and discards the buffer and runs the speech detector
// once. Segments read after Drain are dropped. A nil analysis with a nil
// error means analysis was skipped because nothing was captured. Detector
// failures are recorded as a warning and returned.
func (p *Pipeline) Drain(ctx context.Context) (*models.AudioAnalysis, error) {
	p.mu.Lock()
	if p.drained {
		p.mu.Unlock()
		return nil, ErrDrained
	}
	p.drained = true
	segments := p.buffer
	p.buffer = nil
	p.bytes = 0
	p.mu.Unlock()

	if len(segments) == 0 {
		if p.mic != nil {
			p.warner.Warn(NoAudioWarning)
		}
		return nil, nil
	}

	sample := detector.Sample{
		PCM:          bytes.Join(segments, nil),
		SampleRateHz: p.mic.SampleRateHz(),
	}

	start := time.Now()
	res, err := p.detector.Analyze(ctx, sample)
	elapsed := time.Since(start)
	p.metrics.RecordDetectorCall("speech", err, elapsed.Seconds())
	if err != nil {
		err = fmt.Errorf("%w: speech analysis: %v", models.ErrDetector, err)
		p.warner.Warn("Audio analysis failed: %v", err)
		p.logger.Error().Err(err).Msg("Speech activity detection failed")
		return nil, err
	}

	likelihood, replaced := finiteLikelihood(res.LogLikelihood)
	if replaced > 0 {
		p.logger.Warn().Int("frames", replaced).Msg("Non-finite log-likelihood values clamped")
	}

	analysis := &models.AudioAnalysis{
		SpeechPercentage:   SpeechPercentage(res.SpeechFlags),
		DurationSeconds:    elapsed.Seconds(),
		SegmentCount:       len(segments),
		PerFrameLikelihood: likelihood,
		PerFrameSpeechFlag: res.SpeechFlags,
	}
	p.logger.Info().
		Int("segments", len(segments)).
		Dur("sampleDuration", sample.Duration()).
		Float64("speechPercentage", analysis.SpeechPercentage).
		Dur("analysisDuration", elapsed).
		Msg("Audio analysis completed")
	return analysis, nil
}

// Bounds applied to per-frame log-likelihoods. Results are stored as JSON,
// which has no encoding for NaN or infinities.
const (
	MinLogLikelihood = -1000.0
	MaxLogLikelihood = 1000.0
)

// finiteLikelihood returns a copy of values with -Inf and NaN set to
// MinLogLikelihood and +Inf set to MaxLogLikelihood, plus the number of
// frames it changed.
func finiteLikelihood(values []float64) ([]float64, int) {
	out := make([]float64, len(values))
	replaced := 0
	for i, v := range values {
		switch {
		case math.IsNaN(v), math.IsInf(v, -1):
			v = MinLogLikelihood
			replaced++
		case math.IsInf(v, 1):
			v = MaxLogLikelihood
			replaced++
		}
		out[i] = v
	}
	return out, replaced
}

// SpeechPercentage returns 100 × count(true) / len(flags), 0 for no frames.
func SpeechPercentage(flags []bool) float64 {
	if len(flags) == 0 {
		return 0
	}
	speech := 0
	for _, f := range flags {
		if f {
			speech++
		}
	}
	return 100 * float64(speech) / float64(len(flags))
}
