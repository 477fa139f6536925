package models

import "fmt"

// EventKind discriminates the SensorEvent variant.
type EventKind string

const (
	KindFaceAbsent    EventKind = "face_absent"
	KindMultipleFaces EventKind = "multiple_faces"
	KindPhoneGazeOut  EventKind = "phone_gaze_out"
	KindTabSwitch     EventKind = "tab_switch"
	KindContentFlag   EventKind = "content_flag"
	KindExternalAlert EventKind = "external_alert"
	// KindNotice carries a non-fatal failure raised by a component
	// (detector error, capture error, access denied, validation).
	KindNotice EventKind = "notice"
)

// IsSensor reports whether the kind originates from a monitored signal.
func (k EventKind) IsSensor() bool {
	switch k {
	case KindFaceAbsent, KindMultipleFaces, KindPhoneGazeOut, KindTabSwitch, KindContentFlag:
		return true
	}
	return false
}

// ContentKind qualifies a content flag.
type ContentKind string

const (
	ContentAI         ContentKind = "ai"
	ContentPlagiarism ContentKind = "plagiarism"
)

// SensorEvent is a discrete signal consumed exactly once by the aggregator.
type SensorEvent struct {
	Kind EventKind

	// ContentFlag fields
	ContentKind ContentKind
	QuestionID  string
	Similarity  float64

	// ExternalAlert / Notice text
	Message string
}

func FaceAbsent() SensorEvent    { return SensorEvent{Kind: KindFaceAbsent} }
func MultipleFaces() SensorEvent { return SensorEvent{Kind: KindMultipleFaces} }
func PhoneGazeOut() SensorEvent  { return SensorEvent{Kind: KindPhoneGazeOut} }
func TabSwitch() SensorEvent     { return SensorEvent{Kind: KindTabSwitch} }

// AIContentFlag flags an answer as likely machine-generated.
func AIContentFlag(questionID string) SensorEvent {
	return SensorEvent{Kind: KindContentFlag, ContentKind: ContentAI, QuestionID: questionID}
}

// PlagiarismFlag flags an answer as overlapping existing material.
func PlagiarismFlag(questionID string, similarity float64) SensorEvent {
	return SensorEvent{Kind: KindContentFlag, ContentKind: ContentPlagiarism, QuestionID: questionID, Similarity: similarity}
}

// ExternalAlert wraps a message raised by the alert channel.
func ExternalAlert(message string) SensorEvent {
	return SensorEvent{Kind: KindExternalAlert, Message: message}
}

// Notice wraps a component failure message.
func Notice(format string, args ...any) SensorEvent {
	return SensorEvent{Kind: KindNotice, Message: fmt.Sprintf(format, args...)}
}

// WarningMessage renders the human readable timeline text for the event.
func (e SensorEvent) WarningMessage() string {
	switch e.Kind {
	case KindFaceAbsent:
		return "Face not detected in frame"
	case KindMultipleFaces:
		return "Multiple faces detected in frame"
	case KindPhoneGazeOut:
		return "Looking away from screen (possible phone use)"
	case KindTabSwitch:
		return "Tab switch detected: exam window lost focus"
	case KindContentFlag:
		if e.ContentKind == ContentPlagiarism {
			return fmt.Sprintf("Possible plagiarism in answer to question %s (similarity %.0f%%)",
				e.QuestionID, e.Similarity*100)
		}
		return fmt.Sprintf("AI-generated content suspected in answer to question %s", e.QuestionID)
	default:
		return e.Message
	}
}
