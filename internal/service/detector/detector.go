// Package detector defines the interfaces for the external classifiers the
// proctoring engine consults (face/gaze model, content authenticity,
// originality, speech activity).
package detector

import (
	"context"
	"time"
)

// Frame is one sampled video frame, encoded by the camera (JPEG/PNG).
type Frame struct {
	Data       []byte
	CapturedAt time.Time
}

// VideoResult is the face/gaze classifier output for one frame.
type VideoResult struct {
	FaceDetected  bool
	MultipleFaces bool
	PhoneGazeOut  bool
}

// VideoClassifier classifies a frame.
type VideoClassifier interface {
	Classify(ctx context.Context, frame Frame) (VideoResult, error)
}

// AuthenticityDetector reports whether text looks machine generated.
type AuthenticityDetector interface {
	Check(ctx context.Context, text string) (bool, error)
}

// OriginalityResult is the originality detector output.
type OriginalityResult struct {
	Flagged    bool
	Similarity float64 // 0..1
}

// OriginalityDetector reports whether text overlaps known material.
type OriginalityDetector interface {
	Check(ctx context.Context, text string) (OriginalityResult, error)
}

// Sample is a concatenated mono PCM16 little-endian recording.
type Sample struct {
	PCM          []byte
	SampleRateHz int
}

// Duration returns the playback length of the sample.
func (s Sample) Duration() time.Duration {
	if s.SampleRateHz <= 0 {
		return 0
	}
	samples := len(s.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(s.SampleRateHz)
}

// SpeechResult carries per-frame voice activity decisions.
type SpeechResult struct {
	SpeechFlags   []bool
	LogLikelihood []float64
}

// SpeechActivityDetector runs voice activity detection over a sample.
type SpeechActivityDetector interface {
	Analyze(ctx context.Context, sample Sample) (SpeechResult, error)
}
