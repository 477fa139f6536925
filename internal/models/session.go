// Package models defines the data structures shared by the proctoring engine.
package models

import "fmt"

// SessionStatus is the lifecycle state of a proctored session.
type SessionStatus int

const (
	// StatusAwaitingConsent - devices not yet granted.
	StatusAwaitingConsent SessionStatus = iota
	// StatusInProgress - sensors running, countdown ticking.
	StatusInProgress
	// StatusSubmitting - sensors stopped, audio being drained.
	StatusSubmitting
	// StatusCompleted - result produced. Terminal.
	StatusCompleted
)

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	switch s {
	case StatusAwaitingConsent:
		return "AWAITING_CONSENT"
	case StatusInProgress:
		return "IN_PROGRESS"
	case StatusSubmitting:
		return "SUBMITTING"
	case StatusCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if no further transitions are possible.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted
}

// MarshalText lets the status render as its name in JSON payloads.
func (s SessionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name produced by MarshalText.
func (s *SessionStatus) UnmarshalText(text []byte) error {
	for st := StatusAwaitingConsent; st <= StatusCompleted; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", text)
}

// Question is one item of the assessment. Display order is slice order.
type Question struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Answer string `json:"answer"`
}

// Counters holds the running per-category anomaly counts.
type Counters struct {
	TabSwitches  int `json:"tabSwitches"`
	FaceAbsences int `json:"faceAbsences"`
	GazeOuts     int `json:"gazeOuts"`
}
