package aggregator

import (
	"fmt"
	"time"

	"exam-proctor-service/internal/models"
)

// threshold is a two-step classification: count > high ⇒ high,
// count > medium ⇒ medium, otherwise low.
type threshold struct {
	high   int
	medium int
}

var (
	tabSwitchThreshold   = threshold{high: 5, medium: 2}
	faceAbsenceThreshold = threshold{high: 10, medium: 5}
	gazeOutThreshold     = threshold{high: 3, medium: 1}
)

func (t threshold) classify(count int) models.Severity {
	switch {
	case count > t.high:
		return models.SeverityHigh
	case count > t.medium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// TabSwitchSeverity classifies the final tab switch count.
func TabSwitchSeverity(count int) models.Severity { return tabSwitchThreshold.classify(count) }

// FaceAbsenceSeverity classifies the final face absence count.
func FaceAbsenceSeverity(count int) models.Severity { return faceAbsenceThreshold.classify(count) }

// GazeOutSeverity classifies the final gaze-out count.
func GazeOutSeverity(count int) models.Severity { return gazeOutThreshold.classify(count) }

// Anomalies derives the final anomaly list. Order is fixed:
// TabSwitching, FaceDetection, GazeOut, then AIContent when suspected.
func Anomalies(s Snapshot, at time.Time) []models.Anomaly {
	c := s.Counters
	out := []models.Anomaly{
		{
			Type:        models.AnomalyTabSwitching,
			Count:       c.TabSwitches,
			Severity:    TabSwitchSeverity(c.TabSwitches),
			Description: fmt.Sprintf("Exam window lost focus %d time(s)", c.TabSwitches),
			Timestamp:   at,
		},
		{
			Type:        models.AnomalyFaceDetection,
			Count:       c.FaceAbsences,
			Severity:    FaceAbsenceSeverity(c.FaceAbsences),
			Description: fmt.Sprintf("Face left the frame %d time(s)", c.FaceAbsences),
			Timestamp:   at,
		},
		{
			Type:        models.AnomalyGazeOut,
			Count:       c.GazeOuts,
			Severity:    GazeOutSeverity(c.GazeOuts),
			Description: fmt.Sprintf("Gaze directed away from screen %d time(s)", c.GazeOuts),
			Timestamp:   at,
		},
	}
	if s.AIContentSuspected {
		out = append(out, models.Anomaly{
			Type:        models.AnomalyAIContent,
			Count:       1,
			Severity:    models.SeverityHigh,
			Description: "Answer content flagged as AI-generated or plagiarised",
			Timestamp:   at,
		})
	}
	return out
}
