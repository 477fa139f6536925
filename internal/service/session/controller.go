package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/metrics"
	"exam-proctor-service/internal/service/aggregator"
	"exam-proctor-service/internal/service/audio"
	"exam-proctor-service/internal/service/detector"
	"exam-proctor-service/internal/service/report"
	"exam-proctor-service/internal/service/resource"
	"exam-proctor-service/internal/service/segment"
	"exam-proctor-service/internal/service/sensor/video"
	"exam-proctor-service/internal/service/sensor/visibility"
	"exam-proctor-service/internal/service/text"
)

const (
	alertQueueSize   = 64
	alertSendTimeout = 5 * time.Second
)

// AlertChannel carries notices to and from the proctoring backend.
// Delivery is best effort in both directions.
type AlertChannel interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, kind, message string) error
	OnInbound(handler func(message string))
	Disconnect() error
}

// ResultSink durably appends results.
type ResultSink interface {
	Append(ctx context.Context, result *models.ExamResult) error
}

// ResultValidator checks a compiled result before it is stored.
type ResultValidator interface {
	Validate(result *models.ExamResult) error
}

// Detectors groups the external classifiers a session consults.
type Detectors struct {
	Video        detector.VideoClassifier
	Authenticity detector.AuthenticityDetector
	Originality  detector.OriginalityDetector
	Speech       detector.SpeechActivityDetector
}

// Options configures a Controller.
type Options struct {
	SessionID     string
	ParticipantID string
	Questions     []models.Question

	Duration          time.Duration
	TickInterval      time.Duration
	VideoInterval     time.Duration
	AudioPeriod       time.Duration
	AudioDrainTimeout time.Duration
	TaskJoinTimeout   time.Duration
	AudioLimits       audio.Limits
	TextThreshold     int

	Devices   resource.Devices
	Detectors Detectors
	Alerts    AlertChannel
	Sink      ResultSink
	Validator ResultValidator

	Clock   func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID        string               `json:"sessionId"`
	ParticipantID    string               `json:"participantId"`
	State            models.SessionStatus `json:"state"`
	RemainingSeconds int                  `json:"remainingSeconds"`
	Counters         models.Counters      `json:"counters"`
	Warnings         []models.Warning     `json:"warnings"`
	Unanswered       []string             `json:"unanswered"`
	Questions        []models.Question    `json:"questions"`
}

// Controller owns one session from consent to result.
type Controller struct {
	opts      Options
	lifecycle *Lifecycle
	questions *Questions
	gate      *resource.Gate
	agg       *aggregator.Aggregator
	compiler  *report.Compiler
	alerts    AlertChannel
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	// startMu serializes consent attempts and shutdown of unstarted sessions.
	startMu   sync.Mutex
	discarded bool

	mu         sync.RWMutex
	remaining  time.Duration
	startedAt  time.Time
	unanswered []string
	result     *models.ExamResult
	watcher    *visibility.Watcher
	debouncer  *text.Debouncer
	capture    *audio.Pipeline

	cancelTasks context.CancelFunc
	tasks       sync.WaitGroup

	alertsOut   chan models.Warning
	forwardDone chan struct{}

	done     chan struct{}
	doneOnce sync.Once
}

// NewController creates a session in AWAITING_CONSENT.
func NewController(opts Options) (*Controller, error) {
	if opts.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if opts.Devices == nil {
		return nil, errors.New("devices are required")
	}
	d := opts.Detectors
	if d.Video == nil || d.Authenticity == nil || d.Originality == nil || d.Speech == nil {
		return nil, errors.New("all detectors are required")
	}
	questions, err := NewQuestions(opts.Questions)
	if err != nil {
		return nil, err
	}
	if opts.Duration <= 0 {
		return nil, errors.New("duration must be positive")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.AudioDrainTimeout <= 0 {
		opts.AudioDrainTimeout = 30 * time.Second
	}
	if opts.TaskJoinTimeout <= 0 {
		opts.TaskJoinTimeout = 5 * time.Second
	}
	if opts.AudioLimits.MaxAudioBytes == 0 {
		opts.AudioLimits = audio.DefaultLimits()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultMetrics
	}
	if opts.Alerts == nil {
		opts.Alerts = noopAlerts{}
	}

	c := &Controller{
		opts:      opts,
		lifecycle: NewLifecycle(opts.SessionID),
		questions: questions,
		gate:      resource.NewGate(opts.Devices),
		compiler:  report.NewCompiler(opts.Clock),
		alerts:    opts.Alerts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		remaining: opts.Duration,
		alertsOut: make(chan models.Warning, alertQueueSize),
		done:      make(chan struct{}),
	}
	c.agg = aggregator.New(aggregator.Options{
		Clock:     opts.Clock,
		OnWarning: c.onWarning,
		Logger:    c.componentLogger("aggregator"),
		Metrics:   opts.Metrics,
	})
	return c, nil
}

func (c *Controller) componentLogger(component string) zerolog.Logger {
	return c.logger.With().Str("component", component).Logger()
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.opts.SessionID }

// ParticipantID returns the participant the session belongs to.
func (c *Controller) ParticipantID() string { return c.opts.ParticipantID }

// Start requests camera and microphone access. With both granted the session
// moves to IN_PROGRESS and the sensors start. Otherwise it stays in
// AWAITING_CONSENT, one warning is recorded and the returned error wraps
// models.ErrPermissionDenied; Start may be invoked again.
func (c *Controller) Start(ctx context.Context) (resource.Grant, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.discarded {
		return resource.Grant{}, ErrCompleted
	}
	if st := c.lifecycle.State(); st != models.StatusAwaitingConsent {
		return resource.Grant{VideoGranted: true, AudioGranted: true}, c.lifecycle.Begin()
	}

	grant, err := c.gate.Acquire(ctx)
	if err != nil {
		if !grant.VideoGranted {
			c.metrics.RecordConsentDenied("camera")
		}
		if !grant.AudioGranted {
			c.metrics.RecordConsentDenied("microphone")
		}
		c.agg.Warn("Access denied: %s", strings.ReplaceAll(err.Error(), "\n", "; "))
		c.logger.Warn().Err(err).
			Bool("videoGranted", grant.VideoGranted).
			Bool("audioGranted", grant.AudioGranted).
			Msg("Device access denied")
		return grant, err
	}

	// Every component is in place before the state becomes visible, and no
	// sensor runs before it does.
	run := c.launch(ctx)
	if err := c.lifecycle.Begin(); err != nil {
		c.cancelTasks()
		run()
		return grant, err
	}
	run()
	c.metrics.RecordSessionStart()
	c.logger.Info().Dur("duration", c.opts.Duration).Msg("Session started")
	return grant, nil
}

// launch builds every recurring task and returns the function that starts
// them. Caller holds startMu.
func (c *Controller) launch(ctx context.Context) func() {
	taskCtx, cancel := context.WithCancel(context.Background())

	poller := video.NewPoller(video.Options{
		Camera:     c.gate.Camera(),
		Classifier: c.opts.Detectors.Video,
		Sink:       c.agg,
		Interval:   c.opts.VideoInterval,
		Logger:     c.componentLogger("video"),
		Metrics:    c.metrics,
	})
	watcher := visibility.NewWatcher(c.agg, c.componentLogger("visibility"))
	capture := audio.NewPipeline(audio.Options{
		Microphone: c.gate.Microphone(),
		Detector:   c.opts.Detectors.Speech,
		Warner:     c.agg,
		Period:     c.opts.AudioPeriod,
		Limits:     c.opts.AudioLimits,
		Segments:   segment.New(c.opts.SessionID),
		Logger:     c.componentLogger("audio"),
		Metrics:    c.metrics,
	})
	debouncer := text.NewDebouncer(text.Options{
		Answers:      c.questions,
		Authenticity: c.opts.Detectors.Authenticity,
		Originality:  c.opts.Detectors.Originality,
		Sink:         c.agg,
		Threshold:    c.opts.TextThreshold,
		Logger:       c.componentLogger("text"),
		Metrics:      c.metrics,
	})

	c.mu.Lock()
	c.startedAt = c.opts.Clock()
	c.cancelTasks = cancel
	c.watcher = watcher
	c.capture = capture
	c.debouncer = debouncer
	c.mu.Unlock()

	c.alerts.OnInbound(func(message string) {
		if !c.lifecycle.InProgress() {
			return
		}
		c.metrics.RecordInboundAlert()
		c.agg.Publish(models.ExternalAlert(message))
	})
	if err := c.alerts.Connect(ctx); err != nil {
		c.agg.Warn("Alert channel unavailable: %v", fmt.Errorf("%w: %v", models.ErrTransport, err))
		c.logger.Warn().Err(err).Msg("Alert channel connect failed")
	}
	c.forwardDone = make(chan struct{})
	go c.forwardAlerts()

	c.tasks.Add(3)
	return func() {
		go func() {
			defer c.tasks.Done()
			poller.Run(taskCtx)
		}()
		go func() {
			defer c.tasks.Done()
			watcher.Run(taskCtx)
		}()
		go func() {
			defer c.tasks.Done()
			capture.Run(taskCtx)
		}()

		// The countdown is not joined: it is the goroutine that runs a
		// timeout submission.
		go c.countdown(taskCtx)
	}
}

func (c *Controller) countdown(ctx context.Context) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.remaining -= c.opts.TickInterval
			if c.remaining < 0 {
				c.remaining = 0
			}
			expired := c.remaining == 0
			c.mu.Unlock()

			if expired {
				c.logger.Info().Msg("Time expired, forcing submission")
				c.submit(context.Background(), models.TriggerTimeout)
				return
			}
		}
	}
}

// onWarning runs on the aggregator goroutine and must not block.
func (c *Controller) onWarning(w models.Warning) {
	if !w.Kind.IsSensor() {
		return
	}
	select {
	case c.alertsOut <- w:
	default:
		c.logger.Warn().Str("kind", string(w.Kind)).Msg("Outbound alert queue full, dropping alert")
	}
}

func (c *Controller) forwardAlerts() {
	defer close(c.forwardDone)
	for w := range c.alertsOut {
		c.sendAlert(string(w.Kind), w.Message)
	}
}

func (c *Controller) sendAlert(kind, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), alertSendTimeout)
	defer cancel()
	if err := c.alerts.Send(ctx, kind, message); err != nil {
		c.logger.Warn().Err(err).Str("kind", kind).Msg("Alert delivery failed")
		c.agg.Warn("Alert delivery failed: %v", err)
	}
}

// EditAnswer records an answer edit. Long answers are checked by the content
// detectors in the background.
func (c *Controller) EditAnswer(ctx context.Context, questionID, answer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.requireInProgress(); err != nil {
		return err
	}
	c.mu.RLock()
	debouncer := c.debouncer
	c.mu.RUnlock()

	err := debouncer.Edit(questionID, answer)
	if errors.Is(err, text.ErrStopped) || errors.Is(err, ErrAnswersFrozen) {
		return c.requireInProgress()
	}
	return err
}

// Visibility reports the exam window's foreground state.
func (c *Controller) Visibility(hidden bool) {
	if !c.lifecycle.InProgress() {
		return
	}
	c.mu.RLock()
	watcher := c.watcher
	c.mu.RUnlock()
	if watcher != nil {
		watcher.Notify(hidden)
	}
}

// PushFrame hands a client-captured frame to the camera. Returns false when
// the session is not in progress.
func (c *Controller) PushFrame(data []byte) bool {
	if !c.lifecycle.InProgress() {
		return false
	}
	return c.gate.PushFrame(data)
}

func (c *Controller) requireInProgress() error {
	switch c.lifecycle.State() {
	case models.StatusInProgress:
		return nil
	case models.StatusSubmitting:
		return ErrAlreadySubmitting
	case models.StatusCompleted:
		return ErrCompleted
	default:
		return ErrNotInProgress
	}
}

// Submit is the manual submission. Unanswered questions block it with an
// error wrapping models.ErrValidation and leave the session in progress.
// While submitting or completed it is a no-op that returns the current
// result, which is nil until completion.
func (c *Controller) Submit(ctx context.Context) (*models.ExamResult, error) {
	switch c.lifecycle.State() {
	case models.StatusAwaitingConsent:
		return nil, ErrNotInProgress
	case models.StatusSubmitting, models.StatusCompleted:
		return c.Result(), nil
	}

	if missing := c.questions.Unanswered(); len(missing) > 0 {
		c.mu.Lock()
		c.unanswered = missing
		c.mu.Unlock()
		err := fmt.Errorf("%w: %d unanswered question(s): %s", models.ErrValidation, len(missing), strings.Join(missing, ", "))
		c.agg.Warn("Submission blocked: %v", err)
		c.metrics.RecordValidationReject()
		c.logger.Info().Strs("unanswered", missing).Msg("Manual submission rejected")
		return nil, err
	}

	c.mu.Lock()
	c.unanswered = nil
	c.mu.Unlock()
	return c.submit(ctx, models.TriggerManual)
}

// submit runs the submission pipeline once. Losing callers get the current
// result.
func (c *Controller) submit(ctx context.Context, trigger models.SubmitTrigger) (*models.ExamResult, error) {
	// Intake is sealed in the same step that leaves IN_PROGRESS.
	if err := c.lifecycle.BeginSubmit(c.agg.Seal); err != nil {
		return c.Result(), nil
	}
	ctx = context.WithoutCancel(ctx)
	log := c.logger.With().Str("trigger", string(trigger)).Logger()
	log.Info().Msg("Submitting session")

	c.mu.RLock()
	cancel, debouncer, capture, started := c.cancelTasks, c.debouncer, c.capture, c.startedAt
	c.mu.RUnlock()
	cancel()
	if !c.joinTasks(ctx, debouncer) {
		log.Warn().Dur("timeout", c.opts.TaskJoinTimeout).Msg("Detector calls still in flight, abandoning them")
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, c.opts.AudioDrainTimeout)
	analysis, err := capture.Drain(drainCtx)
	drainCancel()
	if err != nil {
		log.Warn().Err(err).Msg("Audio analysis skipped")
	}

	c.questions.Freeze()
	if err := c.lifecycle.Complete(); err != nil {
		log.Error().Err(err).Msg("Unexpected lifecycle state")
	}
	state := c.agg.Close()

	if err := c.gate.Release(); err != nil {
		log.Warn().Err(err).Msg("Device release failed")
	}

	res := c.compiler.Compile(report.Input{
		SessionID:     c.opts.SessionID,
		ParticipantID: c.opts.ParticipantID,
		Trigger:       trigger,
		State:         state,
		Audio:         analysis,
		Answers:       c.questions.Snapshot(),
	})

	if c.opts.Validator != nil {
		if err := c.opts.Validator.Validate(res); err != nil {
			log.Error().Err(err).Str("resultId", res.ID).Msg("Result failed schema validation")
		}
	}
	if c.opts.Sink != nil {
		err := c.opts.Sink.Append(ctx, res)
		c.metrics.RecordResultStored(err)
		if err != nil {
			log.Error().Err(err).Str("resultId", res.ID).Msg("Failed to store result")
		}
	}

	c.mu.Lock()
	c.result = res
	c.mu.Unlock()

	close(c.alertsOut)
	<-c.forwardDone
	c.sendAlert("session_completed", fmt.Sprintf("Session %s submitted (%s)", c.opts.SessionID, trigger))
	if err := c.alerts.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("Alert channel disconnect failed")
	}

	c.metrics.RecordSessionEnd(string(trigger), c.opts.Clock().Sub(started).Seconds())
	log.Info().
		Str("resultId", res.ID).
		Int("warnings", len(res.Warnings)).
		Int("anomalies", len(res.Anomalies)).
		Bool("audioAnalysed", res.AudioAnalysis != nil).
		Msg("Session completed")

	c.doneOnce.Do(func() { close(c.done) })
	return res, nil
}

// joinTasks waits for the sensors and pending text checks to stop. It gives
// up after TaskJoinTimeout and reports whether everything returned; calls
// still running then have nowhere to deliver their results.
func (c *Controller) joinTasks(ctx context.Context, debouncer *text.Debouncer) bool {
	joined := make(chan struct{})
	go func() {
		debouncer.Stop()
		c.tasks.Wait()
		close(joined)
	}()

	ctx, cancel := context.WithTimeout(ctx, c.opts.TaskJoinTimeout)
	defer cancel()
	select {
	case <-joined:
		return true
	case <-ctx.Done():
		return false
	}
}

// Shutdown forces submission of a running session and releases an unstarted
// one. Used on process exit.
func (c *Controller) Shutdown(ctx context.Context) {
	c.startMu.Lock()
	if c.lifecycle.State() == models.StatusAwaitingConsent && !c.discarded {
		c.discarded = true
		c.startMu.Unlock()
		c.agg.Close()
		c.gate.Release()
		c.doneOnce.Do(func() { close(c.done) })
		c.logger.Info().Msg("Unstarted session discarded")
		return
	}
	c.startMu.Unlock()

	if c.lifecycle.InProgress() {
		c.submit(ctx, models.TriggerShutdown)
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
}

// State returns the lifecycle state.
func (c *Controller) State() models.SessionStatus {
	return c.lifecycle.State()
}

// Remaining returns the time left on the countdown.
func (c *Controller) Remaining() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remaining
}

// Unanswered returns the questions highlighted by the last rejected manual
// submission.
func (c *Controller) Unanswered() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.unanswered...)
}

// Result returns the result once completed, nil before.
func (c *Controller) Result() *models.ExamResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.result
}

// Done is closed when the session has completed or was discarded.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Status returns a point-in-time view of the session.
func (c *Controller) Status() Status {
	snap := c.agg.Snapshot()
	c.mu.RLock()
	remaining := c.remaining
	unanswered := append([]string(nil), c.unanswered...)
	c.mu.RUnlock()

	return Status{
		SessionID:        c.opts.SessionID,
		ParticipantID:    c.opts.ParticipantID,
		State:            c.lifecycle.State(),
		RemainingSeconds: int(remaining.Round(time.Second) / time.Second),
		Counters:         snap.Counters,
		Warnings:         snap.Warnings,
		Unanswered:       unanswered,
		Questions:        c.questions.Snapshot(),
	}
}

type noopAlerts struct{}

func (noopAlerts) Connect(context.Context) error              { return nil }
func (noopAlerts) Send(context.Context, string, string) error { return nil }
func (noopAlerts) OnInbound(func(string))                     {}
func (noopAlerts) Disconnect() error                          { return nil }
