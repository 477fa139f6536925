package detector

import (
	"testing"
	"time"
)

func TestSample_Duration(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   time.Duration
	}{
		{"one second 8k", Sample{PCM: make([]byte, 16000), SampleRateHz: 8000}, time.Second},
		{"half second 16k", Sample{PCM: make([]byte, 16000), SampleRateHz: 16000}, 500 * time.Millisecond},
		{"no rate", Sample{PCM: make([]byte, 100)}, 0},
		{"empty", Sample{SampleRateHz: 8000}, 0},
	}
	for _, tt := range tests {
		if got := tt.sample.Duration(); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
