package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"WARN", zerolog.WarnLevel, false},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			_, got, err := New(Config{Level: tt.level, Output: &bytes.Buffer{}})
			if got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInit_SessionLoggerFields(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var buf bytes.Buffer
	if err := Init(Config{Level: "info", Format: "json", Service: "exam-proctor-service", Output: &buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	sessionLogger := WithSession("s-1", "p-1")
	sessionLogger.Info().Msg("hello")
	componentLogger := WithComponent("store")
	componentLogger.Debug().Msg("filtered")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 entry above debug, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	for key, want := range map[string]string{
		"sessionId":     "s-1",
		"participantId": "p-1",
		"service":       "exam-proctor-service",
		"message":       "hello",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected a timestamp")
	}
}
