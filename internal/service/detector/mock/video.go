// Package mock provides detector implementations for running the service
// without model endpoints or cloud credentials. The video classifier replays
// a script; the text and speech detectors use simple local heuristics.
package mock

import (
	"context"
	"sync"
	"time"

	"exam-proctor-service/internal/service/detector"
)

var (
	present = detector.VideoResult{FaceDetected: true}
	absent  = detector.VideoResult{}
	crowd   = detector.VideoResult{FaceDetected: true, MultipleFaces: true}
	gazeOut = detector.VideoResult{FaceDetected: true, PhoneGazeOut: true}
)

// DefaultVideoScript simulates a mostly attentive candidate with a short
// absence, one glance at a phone and a second person walking into view.
var DefaultVideoScript = []detector.VideoResult{
	present, present, present, present, present,
	absent, absent, present, present, gazeOut,
	present, present, crowd, present, present,
}

// VideoClassifier implements detector.VideoClassifier by cycling a script.
type VideoClassifier struct {
	mu      sync.Mutex
	script  []detector.VideoResult
	next    int
	latency time.Duration
}

// NewVideoClassifier creates a scripted classifier. A nil script uses
// DefaultVideoScript.
func NewVideoClassifier(script []detector.VideoResult, latency time.Duration) *VideoClassifier {
	if len(script) == 0 {
		script = DefaultVideoScript
	}
	return &VideoClassifier{script: script, latency: latency}
}

// Classify returns the next scripted result.
func (c *VideoClassifier) Classify(ctx context.Context, frame detector.Frame) (detector.VideoResult, error) {
	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return detector.VideoResult{}, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.script[c.next%len(c.script)]
	c.next++
	return r, nil
}
