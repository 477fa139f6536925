// Package session provides the lifecycle controller that owns a proctored
// session from consent to result, and the registry of running sessions.
package session

import (
	"errors"
	"fmt"
	"sync"

	"exam-proctor-service/internal/models"
)

// Errors for invalid state transitions.
var (
	ErrAlreadyStarted    = errors.New("session already started")
	ErrNotInProgress     = errors.New("session is not in progress")
	ErrAlreadySubmitting = errors.New("session is already submitting")
	ErrCompleted         = errors.New("session is completed")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	AWAITING_CONSENT → IN_PROGRESS → SUBMITTING → COMPLETED
//	       │                │             │
//	       └── Begin()      │             └── Complete() ──→ terminal
//	                        │
//	                        └── BeginSubmit() ──→ only once
//
// Rules:
//   - AWAITING_CONSENT: Begin moves to IN_PROGRESS once both devices are granted
//   - IN_PROGRESS: BeginSubmit wins exactly once, whichever trigger calls it first
//   - SUBMITTING: sensors stopped, only Complete is allowed
//   - COMPLETED: terminal, never re-enters IN_PROGRESS
type Lifecycle struct {
	mu        sync.RWMutex
	sessionId string
	state     models.SessionStatus
}

// NewLifecycle creates a new session lifecycle in AWAITING_CONSENT state.
func NewLifecycle(sessionId string) *Lifecycle {
	return &Lifecycle{
		sessionId: sessionId,
		state:     models.StatusAwaitingConsent,
	}
}

// SessionId returns the session ID.
func (l *Lifecycle) SessionId() string {
	return l.sessionId
}

// State returns the current state.
func (l *Lifecycle) State() models.SessionStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// InProgress returns true while sensors may emit.
func (l *Lifecycle) InProgress() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == models.StatusInProgress
}

// IsCompleted returns true once the result has been produced.
func (l *Lifecycle) IsCompleted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Begin transitions AWAITING_CONSENT → IN_PROGRESS.
func (l *Lifecycle) Begin() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case models.StatusAwaitingConsent:
		l.state = models.StatusInProgress
		return nil
	case models.StatusInProgress:
		return ErrAlreadyStarted
	case models.StatusSubmitting:
		return ErrAlreadySubmitting
	case models.StatusCompleted:
		return ErrCompleted
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// BeginSubmit transitions IN_PROGRESS → SUBMITTING. Exactly one caller wins.
// onEnter, if non-nil, runs for the winner before the lock is released, so no
// observer sees SUBMITTING before it has returned.
func (l *Lifecycle) BeginSubmit(onEnter func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case models.StatusInProgress:
		l.state = models.StatusSubmitting
		if onEnter != nil {
			onEnter()
		}
		return nil
	case models.StatusAwaitingConsent:
		return ErrNotInProgress
	case models.StatusSubmitting:
		return ErrAlreadySubmitting
	case models.StatusCompleted:
		return ErrCompleted
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}

// Complete transitions SUBMITTING → COMPLETED.
func (l *Lifecycle) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch l.state {
	case models.StatusSubmitting:
		l.state = models.StatusCompleted
		return nil
	case models.StatusCompleted:
		return ErrCompleted
	default:
		return fmt.Errorf("%w: cannot complete from %v", ErrNotInProgress, l.state)
	}
}
