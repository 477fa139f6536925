package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"exam-proctor-service/internal/config"
	"exam-proctor-service/internal/events"
	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/logging"
	"exam-proctor-service/internal/observability/metrics"
	"exam-proctor-service/internal/schema"
	"exam-proctor-service/internal/service/audio"
	"exam-proctor-service/internal/service/detector"
	"exam-proctor-service/internal/service/detector/google"
	"exam-proctor-service/internal/service/detector/mock"
	"exam-proctor-service/internal/service/resource"
	"exam-proctor-service/internal/service/session"
	"exam-proctor-service/internal/store"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Sessions *session.Registry
	Results  *store.SQLiteSink

	validator    *schema.Validator
	authenticity detector.AuthenticityDetector
	originality  detector.OriginalityDetector
	speech       detector.SpeechActivityDetector
	speechCloser func() error
	ready        atomic.Bool
}

// New constructs a new Application from the provided configuration. The
// result store is opened and detectors are created; sessions are accepted
// once Start has been called.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	results, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	a.Results = results

	a.validator, err = schema.New()
	if err != nil {
		results.Close()
		return nil, err
	}

	if err := a.setupDetectors(ctx); err != nil {
		results.Close()
		return nil, err
	}

	a.Sessions = session.NewRegistry(a.sessionOptions, metrics.DefaultMetrics,
		session.WithRetention(cfg.Session.Retention),
		session.WithResultLookup(results),
	)

	appLogger.Info().
		Str("store", cfg.Store.Path).
		Str("speechProvider", cfg.Detectors.SpeechProvider).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Msg("Exam proctor service application created")
	return a, nil
}

// setupLogger configures zerolog for the service.
func (a *Application) setupLogger() {
	obs := a.Cfg.Observability
	format := obs.LogFormat
	if a.Cfg.Service.Environment == "dev" {
		format = "console"
	}
	levelErr := logging.Init(logging.Config{
		Level:      obs.LogLevel,
		Format:     format,
		TimeFormat: time.RFC3339,
		Service:    "exam-proctor-service",
	})

	a.Logger = logging.WithComponent("application")
	if levelErr != nil {
		a.Logger.Warn().Err(levelErr).Msg("Invalid log level")
	}

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Environment).
		Msg("Logger setup completed")
}

func (a *Application) setupDetectors(ctx context.Context) error {
	refs, err := loadReferences(a.Cfg.Detectors.ReferenceCorpusDir)
	if err != nil {
		return err
	}
	a.authenticity = mock.NewAuthenticityDetector()
	a.originality = mock.NewOriginalityDetector(refs, a.Cfg.Detectors.OriginalityThreshold)

	switch a.Cfg.Detectors.SpeechProvider {
	case "google":
		adapter, err := google.New(ctx, google.Config{
			LanguageCode: a.Cfg.Detectors.LanguageCode,
			SampleRateHz: a.Cfg.Devices.SampleRateHz,
		})
		if err != nil {
			return fmt.Errorf("create google speech client: %w", err)
		}
		a.speech = adapter
		a.speechCloser = adapter.Close
	default:
		a.speech = mock.NewSpeechDetector()
	}
	return nil
}

// loadReferences reads every .txt file in dir as one reference document.
func loadReferences(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read reference corpus: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	refs := make([]string, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read reference %s: %w", name, err)
		}
		refs = append(refs, string(data))
	}
	return refs, nil
}

// sessionOptions wires one session's devices, detectors and alert channel.
func (a *Application) sessionOptions(sessionID, participantID string, questions []models.Question, duration time.Duration) session.Options {
	cfg := a.Cfg
	if duration <= 0 {
		duration = cfg.Session.Duration
	}
	logger := logging.WithSession(sessionID, participantID)

	return session.Options{
		SessionID:         sessionID,
		ParticipantID:     participantID,
		Questions:         questions,
		Duration:          duration,
		TickInterval:      cfg.Session.TickInterval,
		VideoInterval:     cfg.Session.VideoInterval,
		AudioPeriod:       cfg.Session.AudioSegmentPeriod,
		AudioDrainTimeout: cfg.Session.AudioDrainTimeout,
		TaskJoinTimeout:   cfg.Session.TaskJoinTimeout,
		AudioLimits:       audio.Limits{MaxAudioBytes: cfg.Session.MaxAudioBytes},
		TextThreshold:     cfg.Session.TextThreshold,
		Devices: resource.NewHostDevices(resource.HostConfig{
			AllowPushedFrames:   cfg.Devices.AllowPushedFrames,
			FrameSpoolDir:       cfg.Devices.FrameSpoolDir,
			MicrophoneWAV:       cfg.Devices.MicrophoneWAV,
			SyntheticMicrophone: cfg.Devices.SyntheticMicrophone,
			SampleRateHz:        cfg.Devices.SampleRateHz,
			SegmentPeriod:       cfg.Session.AudioSegmentPeriod,
		}, sessionID, logger.With().Str("component", "devices").Logger()),
		Detectors: session.Detectors{
			// The scripted classifier keeps a cursor, so each session gets its own.
			Video:        mock.NewVideoClassifier(nil, cfg.Detectors.VideoLatency),
			Authenticity: a.authenticity,
			Originality:  a.originality,
			Speech:       a.speech,
		},
		Alerts: events.NewKafkaChannel(&events.Config{
			Enabled:       cfg.Kafka.Enabled,
			Brokers:       cfg.Kafka.Brokers,
			OutboundTopic: cfg.Kafka.OutboundTopic,
			InboundTopic:  cfg.Kafka.InboundTopic,
			Principal:     cfg.Kafka.Principal,
		}, sessionID, logger.With().Str("component", "alerts").Logger()),
		Sink:      a.Results,
		Validator: a.validator,
		Logger:    logger,
		Metrics:   metrics.DefaultMetrics,
	}
}

// Ready reports whether new sessions are accepted.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Exam proctor service starting")

	return nil
}

// Shutdown force-submits running sessions, then releases the store and
// detector clients.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().
		Int("activeSessions", a.Sessions.Active()).
		Msg("Exam proctor service shutting down")

	a.Sessions.Shutdown(ctx)

	if a.speechCloser != nil {
		if err := a.speechCloser(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Failed to close speech client")
		}
	}
	if err := a.Results.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Failed to close result store")
	}
}
