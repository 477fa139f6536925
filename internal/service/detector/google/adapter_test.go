package google

import (
	"math"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

func word(start, end time.Duration, conf float32) *speechpb.WordInfo {
	return &speechpb.WordInfo{
		StartTime:  durationpb.New(start),
		EndTime:    durationpb.New(end),
		Confidence: conf,
	}
}

func TestFramesFromWords_MarksOverlappingFrames(t *testing.T) {
	words := []*speechpb.WordInfo{
		word(0, 60*time.Millisecond, 0.9),
		word(150*time.Millisecond, 180*time.Millisecond, 0.5),
	}

	res := framesFromWords(words, 300*time.Millisecond)

	want := []bool{true, true, false, false, false, true, false, false, false, false}
	if len(res.SpeechFlags) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(res.SpeechFlags))
	}
	for i := range want {
		if res.SpeechFlags[i] != want[i] {
			t.Errorf("frame %d: expected %v, got %v", i, want[i], res.SpeechFlags[i])
		}
	}

	if got := res.LogLikelihood[0]; math.Abs(got-math.Log(0.9)) > 1e-6 {
		t.Errorf("expected log(0.9) on first frame, got %v", got)
	}
	if got := res.LogLikelihood[2]; math.Abs(got-math.Log(silenceConfidence)) > 1e-9 {
		t.Errorf("expected silence floor on frame 2, got %v", got)
	}
}

func TestFramesFromWords_NoWords(t *testing.T) {
	res := framesFromWords(nil, time.Second)
	if len(res.SpeechFlags) != 33 {
		t.Fatalf("expected 33 frames, got %d", len(res.SpeechFlags))
	}
	for i, f := range res.SpeechFlags {
		if f {
			t.Errorf("frame %d: expected silence", i)
		}
	}
}

func TestFramesFromWords_ClampsToSampleLength(t *testing.T) {
	res := framesFromWords([]*speechpb.WordInfo{word(50*time.Millisecond, 5*time.Second, 0.8)}, 90*time.Millisecond)
	for i, f := range res.SpeechFlags {
		if i >= 1 && !f {
			t.Errorf("frame %d: expected speech", i)
		}
	}
	if res.SpeechFlags[0] {
		t.Error("frame 0: expected silence before first word")
	}
}
