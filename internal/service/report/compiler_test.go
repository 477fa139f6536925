package report

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/service/aggregator"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func TestCompile_ScenarioA(t *testing.T) {
	c := NewCompiler(fixedClock)
	res := c.Compile(Input{
		SessionID:     "sess-1",
		ParticipantID: "p-1",
		Trigger:       models.TriggerManual,
		State: aggregator.Snapshot{
			Counters:           models.Counters{TabSwitches: 6, FaceAbsences: 11, GazeOuts: 4},
			AIContentSuspected: true,
		},
	})

	require.Len(t, res.Anomalies, 4)
	want := []struct {
		typ   models.AnomalyType
		count int
	}{
		{models.AnomalyTabSwitching, 6},
		{models.AnomalyFaceDetection, 11},
		{models.AnomalyGazeOut, 4},
		{models.AnomalyAIContent, 1},
	}
	for i, w := range want {
		assert.Equal(t, w.typ, res.Anomalies[i].Type)
		assert.Equal(t, w.count, res.Anomalies[i].Count)
		assert.Equal(t, models.SeverityHigh, res.Anomalies[i].Severity)
		assert.Equal(t, fixedClock(), res.Anomalies[i].Timestamp)
	}
	assert.Equal(t, fixedClock(), res.Timestamp)
	assert.Equal(t, "sess-1", res.SessionID)
	assert.Equal(t, models.TriggerManual, res.Trigger)
}

func TestCompile_FreshIDs(t *testing.T) {
	c := NewCompiler(fixedClock)
	a := c.Compile(Input{SessionID: "s"})
	b := c.Compile(Input{SessionID: "s"})

	assert.NotEqual(t, a.ID, b.ID)
	_, err := uuid.Parse(a.ID)
	assert.NoError(t, err)
}

func TestCompile_CopiesInputs(t *testing.T) {
	warnings := []models.Warning{{Message: "Tab switch", Kind: models.KindTabSwitch}}
	answers := []models.Question{{ID: "q1", Answer: "42"}}
	c := NewCompiler(fixedClock)
	res := c.Compile(Input{
		State:   aggregator.Snapshot{Warnings: warnings},
		Answers: answers,
	})

	warnings[0].Message = "mutated"
	answers[0].Answer = "mutated"
	assert.Equal(t, "Tab switch", res.Warnings[0].Message)
	assert.Equal(t, "42", res.Answers[0].Answer)
}

func TestCompile_SkippedAudioStaysNil(t *testing.T) {
	res := NewCompiler(nil).Compile(Input{})
	assert.Nil(t, res.AudioAnalysis)
	assert.Len(t, res.Anomalies, 3)
	assert.NotNil(t, res.Warnings)
}
