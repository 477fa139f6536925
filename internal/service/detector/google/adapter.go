// Package google provides a speech activity detector backed by Google Cloud
// Speech-to-Text. Voice activity is derived from recognised word time offsets.
package google

import (
	"context"
	"fmt"
	"math"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"

	"exam-proctor-service/internal/service/detector"
)

const (
	frameDuration = 30 * time.Millisecond
	// Likelihood floor for frames without a recognised word.
	silenceConfidence = 0.01
)

// Config holds recognition settings.
type Config struct {
	LanguageCode string
	SampleRateHz int
}

// Adapter implements detector.SpeechActivityDetector.
type Adapter struct {
	client *speech.Client
	cfg    Config
}

// New creates a new Google speech adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	return &Adapter{client: c, cfg: cfg}, nil
}

// Analyze submits the whole sample as one long running recognition and maps
// word spans onto fixed 30ms frames.
func (a *Adapter) Analyze(ctx context.Context, sample detector.Sample) (detector.SpeechResult, error) {
	rate := sample.SampleRateHz
	if rate <= 0 {
		rate = a.cfg.SampleRateHz
	}

	op, err := a.client.LongRunningRecognize(ctx, &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:              speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:       int32(rate),
			LanguageCode:          a.cfg.LanguageCode,
			EnableWordTimeOffsets: true,
			EnableWordConfidence:  true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: sample.PCM},
		},
	})
	if err != nil {
		return detector.SpeechResult{}, fmt.Errorf("start recognition: %w", err)
	}

	resp, err := op.Wait(ctx)
	if err != nil {
		return detector.SpeechResult{}, fmt.Errorf("await recognition: %w", err)
	}

	var words []*speechpb.WordInfo
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		words = append(words, r.GetAlternatives()[0].GetWords()...)
	}
	return framesFromWords(words, detector.Sample{PCM: sample.PCM, SampleRateHz: rate}.Duration()), nil
}

// Close releases the client connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// framesFromWords marks every frame overlapping a recognised word as speech.
// Speech frames carry the log of the word confidence, others a fixed floor.
func framesFromWords(words []*speechpb.WordInfo, total time.Duration) detector.SpeechResult {
	n := int(total / frameDuration)
	res := detector.SpeechResult{
		SpeechFlags:   make([]bool, n),
		LogLikelihood: make([]float64, n),
	}
	for i := range res.LogLikelihood {
		res.LogLikelihood[i] = math.Log(silenceConfidence)
	}

	for _, w := range words {
		start := w.GetStartTime().AsDuration()
		end := w.GetEndTime().AsDuration()
		conf := float64(w.GetConfidence())
		if conf <= silenceConfidence {
			conf = silenceConfidence * 2
		}
		first := int(start / frameDuration)
		last := int((end - 1) / frameDuration)
		for i := max(first, 0); i <= last && i < n; i++ {
			res.SpeechFlags[i] = true
			if l := math.Log(conf); l > res.LogLikelihood[i] {
				res.LogLikelihood[i] = l
			}
		}
	}
	return res
}
