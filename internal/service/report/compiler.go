// Package report builds the terminal ExamResult from aggregated state.
package report

import (
	"time"

	"github.com/google/uuid"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/service/aggregator"
)

// Input is everything the compiler needs. It is consumed once.
type Input struct {
	SessionID     string
	ParticipantID string
	Trigger       models.SubmitTrigger
	State         aggregator.Snapshot
	Audio         *models.AudioAnalysis
	Answers       []models.Question
}

// Compiler assigns ids and timestamps to results.
type Compiler struct {
	clock func() time.Time
	newID func() string
}

// NewCompiler creates a compiler. A nil clock defaults to time.Now.
func NewCompiler(clock func() time.Time) *Compiler {
	if clock == nil {
		clock = time.Now
	}
	return &Compiler{
		clock: clock,
		newID: uuid.NewString,
	}
}

// Compile derives anomalies from the final counters and copies the warning
// timeline and answers into a fresh result.
func (c *Compiler) Compile(in Input) *models.ExamResult {
	now := c.clock().UTC()

	warnings := make([]models.Warning, len(in.State.Warnings))
	copy(warnings, in.State.Warnings)
	answers := make([]models.Question, len(in.Answers))
	copy(answers, in.Answers)

	return &models.ExamResult{
		ID:            c.newID(),
		SessionID:     in.SessionID,
		ParticipantID: in.ParticipantID,
		Timestamp:     now,
		Trigger:       in.Trigger,
		Anomalies:     aggregator.Anomalies(in.State, now),
		Warnings:      warnings,
		Counters:      in.State.Counters,
		AudioAnalysis: in.Audio,
		Answers:       answers,
	}
}
