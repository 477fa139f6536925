// Package config loads service configuration from defaults, an optional TOML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFileEnv names the environment variable pointing at the TOML file.
const ConfigFileEnv = "PROCTOR_CONFIG_FILE"

// Config is the service configuration.
type Config struct {
	Service       ServiceConfig       `toml:"service"`
	Session       SessionConfig       `toml:"session"`
	Devices       DevicesConfig       `toml:"devices"`
	Detectors     DetectorsConfig     `toml:"detectors"`
	Kafka         KafkaConfig         `toml:"kafka"`
	Store         StoreConfig         `toml:"store"`
	Observability ObservabilityConfig `toml:"observability"`
}

// ServiceConfig holds process identity and listener ports.
type ServiceConfig struct {
	Principal   string `toml:"principal"`
	GRPCPort    string `toml:"grpc_port"`
	HTTPPort    string `toml:"http_port"`
	Environment string `toml:"environment"`
}

// SessionConfig holds per-session timing.
type SessionConfig struct {
	Duration           time.Duration `toml:"duration"`
	TickInterval       time.Duration `toml:"tick_interval"`
	VideoInterval      time.Duration `toml:"video_interval"`
	AudioSegmentPeriod time.Duration `toml:"audio_segment_period"`
	AudioDrainTimeout  time.Duration `toml:"audio_drain_timeout"`
	TaskJoinTimeout    time.Duration `toml:"task_join_timeout"`
	Retention          time.Duration `toml:"retention"`
	MaxAudioBytes      int64         `toml:"max_audio_bytes"`
	TextThreshold      int           `toml:"text_threshold"`
}

// DevicesConfig selects the camera and microphone sources.
type DevicesConfig struct {
	AllowPushedFrames   bool   `toml:"allow_pushed_frames"`
	FrameSpoolDir       string `toml:"frame_spool_dir"`
	MicrophoneWAV       string `toml:"microphone_wav"`
	SyntheticMicrophone bool   `toml:"synthetic_microphone"`
	SampleRateHz        int    `toml:"sample_rate_hz"`
}

// DetectorsConfig selects detector implementations.
type DetectorsConfig struct {
	SpeechProvider       string        `toml:"speech_provider"` // mock | google
	LanguageCode         string        `toml:"language_code"`
	VideoLatency         time.Duration `toml:"video_latency"`
	ReferenceCorpusDir   string        `toml:"reference_corpus_dir"`
	OriginalityThreshold float64       `toml:"originality_threshold"`
}

// KafkaConfig configures the alert channel.
type KafkaConfig struct {
	Enabled       bool     `toml:"enabled"`
	Brokers       []string `toml:"brokers"`
	OutboundTopic string   `toml:"outbound_topic"`
	InboundTopic  string   `toml:"inbound_topic"`
	Principal     string   `toml:"principal"`
}

// StoreConfig configures the result store.
type StoreConfig struct {
	Path string `toml:"path"`
}

// ObservabilityConfig configures logging and the ops server.
type ObservabilityConfig struct {
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal:   "svc-exam-proctor",
			GRPCPort:    "50051",
			HTTPPort:    "8080",
			Environment: "prod",
		},
		Session: SessionConfig{
			Duration:           60 * time.Minute,
			TickInterval:       time.Second,
			VideoInterval:      time.Second,
			AudioSegmentPeriod: 5 * time.Second,
			AudioDrainTimeout:  30 * time.Second,
			TaskJoinTimeout:    5 * time.Second,
			Retention:          15 * time.Minute,
			MaxAudioBytes:      256 * 1024 * 1024,
			TextThreshold:      100,
		},
		Devices: DevicesConfig{
			AllowPushedFrames:   true,
			SyntheticMicrophone: true,
			SampleRateHz:        16000,
		},
		Detectors: DetectorsConfig{
			SpeechProvider:       "mock",
			LanguageCode:         "en-US",
			OriginalityThreshold: 0.3,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			OutboundTopic: "proctor.session.alerts",
			InboundTopic:  "proctor.session.notices",
		},
		Store: StoreConfig{
			Path: "data/results.db",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9090",
		},
	}
}

// Load builds the configuration. The file named by PROCTOR_CONFIG_FILE, when
// set, overrides defaults; environment variables override both.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Service
	s.Principal = envOrDefault("SERVICE_PRINCIPAL", s.Principal)
	s.GRPCPort = envOrDefault("GRPC_PORT", s.GRPCPort)
	s.HTTPPort = envOrDefault("HTTP_PORT", s.HTTPPort)
	s.Environment = envOrDefault("ENV", s.Environment)

	se := &c.Session
	se.Duration = envOrDefaultDuration("SESSION_DURATION", se.Duration)
	se.TickInterval = envOrDefaultDuration("SESSION_TICK_INTERVAL", se.TickInterval)
	se.VideoInterval = envOrDefaultDuration("SESSION_VIDEO_INTERVAL", se.VideoInterval)
	se.AudioSegmentPeriod = envOrDefaultDuration("SESSION_AUDIO_SEGMENT_PERIOD", se.AudioSegmentPeriod)
	se.AudioDrainTimeout = envOrDefaultDuration("SESSION_AUDIO_DRAIN_TIMEOUT", se.AudioDrainTimeout)
	se.TaskJoinTimeout = envOrDefaultDuration("SESSION_TASK_JOIN_TIMEOUT", se.TaskJoinTimeout)
	se.Retention = envOrDefaultDuration("SESSION_RETENTION", se.Retention)
	se.MaxAudioBytes = int64(envOrDefaultInt("SESSION_MAX_AUDIO_BYTES", int(se.MaxAudioBytes)))
	se.TextThreshold = envOrDefaultInt("SESSION_TEXT_THRESHOLD", se.TextThreshold)

	d := &c.Devices
	d.AllowPushedFrames = envOrDefaultBool("DEVICES_ALLOW_PUSHED_FRAMES", d.AllowPushedFrames)
	d.FrameSpoolDir = envOrDefault("DEVICES_FRAME_SPOOL_DIR", d.FrameSpoolDir)
	d.MicrophoneWAV = envOrDefault("DEVICES_MICROPHONE_WAV", d.MicrophoneWAV)
	d.SyntheticMicrophone = envOrDefaultBool("DEVICES_SYNTHETIC_MICROPHONE", d.SyntheticMicrophone)
	d.SampleRateHz = envOrDefaultInt("DEVICES_SAMPLE_RATE_HZ", d.SampleRateHz)

	dt := &c.Detectors
	dt.SpeechProvider = envOrDefault("DETECTORS_SPEECH_PROVIDER", dt.SpeechProvider)
	dt.LanguageCode = envOrDefault("DETECTORS_LANGUAGE_CODE", dt.LanguageCode)
	dt.VideoLatency = envOrDefaultDuration("DETECTORS_VIDEO_LATENCY", dt.VideoLatency)
	dt.ReferenceCorpusDir = envOrDefault("DETECTORS_REFERENCE_CORPUS_DIR", dt.ReferenceCorpusDir)
	dt.OriginalityThreshold = envOrDefaultFloat("DETECTORS_ORIGINALITY_THRESHOLD", dt.OriginalityThreshold)

	k := &c.Kafka
	k.Enabled = envOrDefaultBool("KAFKA_ENABLED", k.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		k.Brokers = splitList(brokers)
	}
	k.OutboundTopic = envOrDefault("KAFKA_TOPIC_OUTBOUND", k.OutboundTopic)
	k.InboundTopic = envOrDefault("KAFKA_TOPIC_INBOUND", k.InboundTopic)
	k.Principal = envOrDefault("KAFKA_PRINCIPAL", k.Principal)
	if k.Principal == "" {
		k.Principal = s.Principal
	}

	c.Store.Path = envOrDefault("STORE_PATH", c.Store.Path)

	o := &c.Observability
	o.LogLevel = envOrDefault("LOG_LEVEL", o.LogLevel)
	o.LogFormat = envOrDefault("LOG_FORMAT", o.LogFormat)
	o.MetricsAddr = envOrDefault("METRICS_ADDR", o.MetricsAddr)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Session.Duration <= 0 {
		problems = append(problems, "session.duration must be positive")
	}
	if c.Session.TickInterval <= 0 {
		problems = append(problems, "session.tick_interval must be positive")
	}
	if c.Session.TextThreshold <= 0 {
		problems = append(problems, "session.text_threshold must be positive")
	}
	switch c.Detectors.SpeechProvider {
	case "mock", "google":
	default:
		problems = append(problems, fmt.Sprintf("detectors.speech_provider %q is not one of mock, google", c.Detectors.SpeechProvider))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required when kafka is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
