package mock

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"exam-proctor-service/internal/service/detector"
)

const (
	defaultFrameDuration = 30 * time.Millisecond
	// Frames whose RMS is below this level (dBFS) count as silence.
	defaultThresholdDBFS = -40.0
	fullScale            = 32768.0
	minRMS               = 1.0 / fullScale
)

// SpeechDetector is an energy-based voice activity detector over PCM16.
type SpeechDetector struct {
	FrameDuration time.Duration
	ThresholdDBFS float64
}

// NewSpeechDetector returns a detector with 30ms frames at -40 dBFS.
func NewSpeechDetector() *SpeechDetector {
	return &SpeechDetector{
		FrameDuration: defaultFrameDuration,
		ThresholdDBFS: defaultThresholdDBFS,
	}
}

// Analyze implements detector.SpeechActivityDetector. LogLikelihood holds the
// natural log ratio of frame RMS to the threshold level, so positive values
// are speech.
func (d *SpeechDetector) Analyze(ctx context.Context, sample detector.Sample) (detector.SpeechResult, error) {
	rate := sample.SampleRateHz
	if rate <= 0 {
		rate = 8000
	}
	frameSamples := int(d.FrameDuration.Seconds() * float64(rate))
	if frameSamples <= 0 {
		frameSamples = 1
	}
	frameBytes := frameSamples * 2
	thresholdRMS := math.Pow(10, d.ThresholdDBFS/20)

	var res detector.SpeechResult
	for off := 0; off+frameBytes <= len(sample.PCM); off += frameBytes {
		if err := ctx.Err(); err != nil {
			return detector.SpeechResult{}, err
		}
		rms := frameRMS(sample.PCM[off : off+frameBytes])
		llr := math.Log(math.Max(rms, minRMS) / thresholdRMS)
		res.LogLikelihood = append(res.LogLikelihood, llr)
		res.SpeechFlags = append(res.SpeechFlags, llr > 0)
	}
	return res, nil
}

func frameRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / fullScale
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
