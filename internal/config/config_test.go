package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var managedEnv = []string{
	ConfigFileEnv,
	"SERVICE_PRINCIPAL", "GRPC_PORT", "HTTP_PORT", "ENV",
	"SESSION_DURATION", "SESSION_TICK_INTERVAL", "SESSION_VIDEO_INTERVAL",
	"SESSION_AUDIO_SEGMENT_PERIOD", "SESSION_AUDIO_DRAIN_TIMEOUT",
	"SESSION_TASK_JOIN_TIMEOUT", "SESSION_RETENTION",
	"SESSION_MAX_AUDIO_BYTES", "SESSION_TEXT_THRESHOLD",
	"DEVICES_ALLOW_PUSHED_FRAMES", "DEVICES_FRAME_SPOOL_DIR", "DEVICES_MICROPHONE_WAV",
	"DEVICES_SYNTHETIC_MICROPHONE", "DEVICES_SAMPLE_RATE_HZ",
	"DETECTORS_SPEECH_PROVIDER", "DETECTORS_LANGUAGE_CODE", "DETECTORS_VIDEO_LATENCY",
	"DETECTORS_REFERENCE_CORPUS_DIR", "DETECTORS_ORIGINALITY_THRESHOLD",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_OUTBOUND", "KAFKA_TOPIC_INBOUND", "KAFKA_PRINCIPAL",
	"STORE_PATH", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range managedEnv {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Principal != "svc-exam-proctor" {
		t.Errorf("expected default principal 'svc-exam-proctor', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default gRPC port '50051', got %s", cfg.Service.GRPCPort)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}

	if cfg.Session.Duration != 60*time.Minute {
		t.Errorf("expected default duration 60m, got %v", cfg.Session.Duration)
	}
	if cfg.Session.TickInterval != time.Second {
		t.Errorf("expected default tick 1s, got %v", cfg.Session.TickInterval)
	}
	if cfg.Session.AudioSegmentPeriod != 5*time.Second {
		t.Errorf("expected default audio segment period 5s, got %v", cfg.Session.AudioSegmentPeriod)
	}
	if cfg.Session.TextThreshold != 100 {
		t.Errorf("expected default text threshold 100, got %d", cfg.Session.TextThreshold)
	}
	if cfg.Session.MaxAudioBytes != 256*1024*1024 {
		t.Errorf("expected default max audio bytes 256MB, got %d", cfg.Session.MaxAudioBytes)
	}
	if cfg.Session.TaskJoinTimeout != 5*time.Second {
		t.Errorf("expected default task join timeout 5s, got %v", cfg.Session.TaskJoinTimeout)
	}
	if cfg.Session.Retention != 15*time.Minute {
		t.Errorf("expected default retention 15m, got %v", cfg.Session.Retention)
	}

	if !cfg.Devices.AllowPushedFrames {
		t.Error("expected pushed frames to be allowed by default")
	}
	if cfg.Devices.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.Devices.SampleRateHz)
	}

	if cfg.Detectors.SpeechProvider != "mock" {
		t.Errorf("expected default speech provider 'mock', got %s", cfg.Detectors.SpeechProvider)
	}
	if cfg.Detectors.OriginalityThreshold != 0.3 {
		t.Errorf("expected default originality threshold 0.3, got %v", cfg.Detectors.OriginalityThreshold)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected Kafka to be disabled by default")
	}
	if cfg.Kafka.OutboundTopic != "proctor.session.alerts" {
		t.Errorf("expected default outbound topic, got %s", cfg.Kafka.OutboundTopic)
	}
	if cfg.Kafka.InboundTopic != "proctor.session.notices" {
		t.Errorf("expected default inbound topic, got %s", cfg.Kafka.InboundTopic)
	}

	if cfg.Store.Path != "data/results.db" {
		t.Errorf("expected default store path, got %s", cfg.Store.Path)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Observability.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr ':9090', got %s", cfg.Observability.MetricsAddr)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("SESSION_DURATION", "90m")
	t.Setenv("SESSION_TEXT_THRESHOLD", "250")
	t.Setenv("SESSION_MAX_AUDIO_BYTES", "1048576")
	t.Setenv("SESSION_TASK_JOIN_TIMEOUT", "250ms")
	t.Setenv("SESSION_RETENTION", "2h")
	t.Setenv("DEVICES_ALLOW_PUSHED_FRAMES", "false")
	t.Setenv("DETECTORS_SPEECH_PROVIDER", "google")
	t.Setenv("DETECTORS_ORIGINALITY_THRESHOLD", "0.55")
	t.Setenv("KAFKA_ENABLED", "1")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected HTTP port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Session.Duration != 90*time.Minute {
		t.Errorf("expected duration 90m, got %v", cfg.Session.Duration)
	}
	if cfg.Session.TextThreshold != 250 {
		t.Errorf("expected text threshold 250, got %d", cfg.Session.TextThreshold)
	}
	if cfg.Session.MaxAudioBytes != 1048576 {
		t.Errorf("expected max audio bytes 1048576, got %d", cfg.Session.MaxAudioBytes)
	}
	if cfg.Session.TaskJoinTimeout != 250*time.Millisecond {
		t.Errorf("expected task join timeout 250ms, got %v", cfg.Session.TaskJoinTimeout)
	}
	if cfg.Session.Retention != 2*time.Hour {
		t.Errorf("expected retention 2h, got %v", cfg.Session.Retention)
	}
	if cfg.Devices.AllowPushedFrames {
		t.Error("expected pushed frames to be disabled")
	}
	if cfg.Detectors.SpeechProvider != "google" {
		t.Errorf("expected speech provider 'google', got %s", cfg.Detectors.SpeechProvider)
	}
	if cfg.Detectors.OriginalityThreshold != 0.55 {
		t.Errorf("expected originality threshold 0.55, got %v", cfg.Detectors.OriginalityThreshold)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka to be enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("expected two trimmed brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_DURATION", "forever")
	t.Setenv("SESSION_TEXT_THRESHOLD", "many")
	t.Setenv("DEVICES_SAMPLE_RATE_HZ", "not-a-number")
	t.Setenv("DEVICES_ALLOW_PUSHED_FRAMES", "invalid")
	t.Setenv("DETECTORS_ORIGINALITY_THRESHOLD", "high")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.Duration != 60*time.Minute {
		t.Errorf("expected default duration on invalid input, got %v", cfg.Session.Duration)
	}
	if cfg.Session.TextThreshold != 100 {
		t.Errorf("expected default text threshold on invalid input, got %d", cfg.Session.TextThreshold)
	}
	if cfg.Devices.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Devices.SampleRateHz)
	}
	if !cfg.Devices.AllowPushedFrames {
		t.Errorf("expected default pushed frames on invalid input, got %v", cfg.Devices.AllowPushedFrames)
	}
	if cfg.Detectors.OriginalityThreshold != 0.3 {
		t.Errorf("expected default threshold on invalid input, got %v", cfg.Detectors.OriginalityThreshold)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestLoad_RejectsInvalidConfiguration(t *testing.T) {
	clearEnv(t)
	t.Setenv("DETECTORS_SPEECH_PROVIDER", "azure")
	t.Setenv("SESSION_DURATION", "-1m")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error for an unknown provider and negative duration")
	}
	if !strings.Contains(err.Error(), "speech_provider") || !strings.Contains(err.Error(), "session.duration") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "proctor.toml")
	content := `
[session]
duration = "45m"
text_threshold = 80

[kafka]
enabled = true
brokers = ["broker:9092"]

[store]
path = "/var/lib/proctor/results.db"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigFileEnv, path)
	// Environment wins over the file.
	t.Setenv("SESSION_TEXT_THRESHOLD", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Session.Duration != 45*time.Minute {
		t.Errorf("expected duration from file 45m, got %v", cfg.Session.Duration)
	}
	if cfg.Session.TextThreshold != 120 {
		t.Errorf("expected env to override file threshold, got %d", cfg.Session.TextThreshold)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Brokers[0] != "broker:9092" {
		t.Errorf("expected Kafka from file, got %+v", cfg.Kafka)
	}
	if cfg.Store.Path != "/var/lib/proctor/results.db" {
		t.Errorf("expected store path from file, got %s", cfg.Store.Path)
	}
	if cfg.Session.TickInterval != time.Second {
		t.Errorf("expected untouched keys to keep defaults, got %v", cfg.Session.TickInterval)
	}
}

func TestLoad_FileUnknownKey(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "proctor.toml")
	if err := os.WriteFile(path, []byte("[session]\nlength = \"1h\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigFileEnv, path)

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "session.length") {
		t.Errorf("expected unknown key error, got %v", err)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			t.Setenv(key, tt.envValue)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}
