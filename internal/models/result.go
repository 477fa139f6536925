package models

import "time"

// Severity classifies an anomaly category.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyType names an anomaly category.
type AnomalyType string

const (
	AnomalyTabSwitching  AnomalyType = "TabSwitching"
	AnomalyFaceDetection AnomalyType = "FaceDetection"
	AnomalyGazeOut       AnomalyType = "GazeOut"
	AnomalyAIContent     AnomalyType = "AIContent"
)

// Warning is one timeline entry.
type Warning struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Kind      EventKind `json:"kind"`
}

// Anomaly is a severity-tagged summary of one category.
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Count       int         `json:"count"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Timestamp   time.Time   `json:"timestamp"`
}

// AudioAnalysis is produced once by the speech activity detector.
type AudioAnalysis struct {
	SpeechPercentage   float64   `json:"speechPercentage"`
	DurationSeconds    float64   `json:"durationSeconds"`
	SegmentCount       int       `json:"segmentCount"`
	PerFrameLikelihood []float64 `json:"perFrameLikelihood"`
	PerFrameSpeechFlag []bool    `json:"perFrameSpeechFlag"`
}

// SubmitTrigger records what caused submission.
type SubmitTrigger string

const (
	TriggerManual   SubmitTrigger = "manual"
	TriggerTimeout  SubmitTrigger = "timeout"
	TriggerShutdown SubmitTrigger = "shutdown"
)

// ExamResult is the terminal artifact of a session.
type ExamResult struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"sessionId"`
	ParticipantID string         `json:"participantId"`
	Timestamp     time.Time      `json:"timestamp"`
	Trigger       SubmitTrigger  `json:"trigger"`
	Anomalies     []Anomaly      `json:"anomalies"`
	Warnings      []Warning      `json:"warnings"`
	Counters      Counters       `json:"counters"`
	AudioAnalysis *AudioAnalysis `json:"audioAnalysis"`
	Answers       []Question     `json:"answers"`
}
