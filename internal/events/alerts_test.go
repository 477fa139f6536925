package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewKafkaChannel_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := NewKafkaChannel(tt.cfg, "sess-1", zerolog.Nop())
			if ch == nil {
				t.Fatal("expected non-nil channel")
			}
			if ch.enabled {
				t.Error("expected channel to be disabled")
			}
		})
	}
}

func TestKafkaChannel_DisabledLifecycle(t *testing.T) {
	ch := NewKafkaChannel(&Config{Enabled: false, OutboundTopic: "proctor.alerts"}, "sess-1", zerolog.Nop())

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ch.writer != nil || ch.reader != nil {
		t.Error("expected no kafka clients when disabled")
	}
	if err := ch.Send(context.Background(), "tab_switch", "Tab switch detected"); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if err := ch.Disconnect(); err != nil {
		t.Errorf("disconnect: %v", err)
	}
	if err := ch.Disconnect(); err != nil {
		t.Errorf("second disconnect: %v", err)
	}
}

func TestKafkaChannel_InboundFiltering(t *testing.T) {
	ch := NewKafkaChannel(nil, "sess-1", zerolog.Nop())
	var got []string
	ch.OnInbound(func(msg string) { got = append(got, msg) })

	encode := func(a Alert) []byte {
		b, err := json.Marshal(a)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"addressed", encode(Alert{SessionID: "sess-1", Message: "Please face the camera"}), true},
		{"broadcast", encode(Alert{Message: "Exam ends in 5 minutes"}), true},
		{"other session", encode(Alert{SessionID: "sess-2", Message: "not for us"}), false},
		{"empty message", encode(Alert{SessionID: "sess-1"}), false},
		{"malformed", []byte("{not json"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if delivered := ch.handleInbound(tt.payload); delivered != tt.want {
				t.Errorf("handleInbound() = %v, want %v", delivered, tt.want)
			}
		})
	}

	if len(got) != 2 || got[0] != "Please face the camera" || got[1] != "Exam ends in 5 minutes" {
		t.Errorf("unexpected delivered messages: %v", got)
	}
}

func TestKafkaChannel_InboundWithoutHandler(t *testing.T) {
	ch := NewKafkaChannel(nil, "sess-1", zerolog.Nop())
	payload, _ := json.Marshal(Alert{Message: "hello"})
	if ch.handleInbound(payload) {
		t.Error("expected no delivery without handler")
	}
}

func TestAlert_WireFormat(t *testing.T) {
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	b, err := json.Marshal(Alert{SessionID: "s", Kind: "tab_switch", Message: "m", Timestamp: ts})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"sessionId":"s","kind":"tab_switch","message":"m","timestamp":"2026-05-01T10:00:00Z"}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}
