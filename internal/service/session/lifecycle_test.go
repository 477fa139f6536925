package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"exam-proctor-service/internal/models"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle("sess-1")

	if lc.State() != models.StatusAwaitingConsent {
		t.Errorf("expected StatusAwaitingConsent, got %v", lc.State())
	}
	if lc.SessionId() != "sess-1" {
		t.Errorf("expected sess-1, got %v", lc.SessionId())
	}
	if lc.InProgress() {
		t.Error("expected InProgress to be false")
	}
	if lc.IsCompleted() {
		t.Error("expected IsCompleted to be false")
	}
}

func TestLifecycle_FullCycle(t *testing.T) {
	lc := NewLifecycle("sess-1")

	if err := lc.Begin(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !lc.InProgress() {
		t.Error("expected InProgress after Begin")
	}
	if err := lc.BeginSubmit(nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if lc.State() != models.StatusSubmitting {
		t.Errorf("expected StatusSubmitting, got %v", lc.State())
	}
	if err := lc.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !lc.IsCompleted() {
		t.Error("expected IsCompleted after Complete")
	}
}

func TestLifecycle_BeginTwice(t *testing.T) {
	lc := NewLifecycle("sess-1")
	lc.Begin()

	if err := lc.Begin(); err != ErrAlreadyStarted {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestLifecycle_SubmitBeforeConsent(t *testing.T) {
	lc := NewLifecycle("sess-1")

	if err := lc.BeginSubmit(nil); err != ErrNotInProgress {
		t.Errorf("expected ErrNotInProgress, got %v", err)
	}
	if lc.State() != models.StatusAwaitingConsent {
		t.Errorf("state changed to %v", lc.State())
	}
}

func TestLifecycle_SubmitOnlyOnce(t *testing.T) {
	lc := NewLifecycle("sess-1")
	lc.Begin()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lc.BeginSubmit(nil) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if err := lc.BeginSubmit(nil); err != ErrAlreadySubmitting {
		t.Errorf("expected ErrAlreadySubmitting, got %v", err)
	}
}

func TestLifecycle_NoReentryAfterCompleted(t *testing.T) {
	lc := NewLifecycle("sess-1")
	lc.Begin()
	lc.BeginSubmit(nil)
	lc.Complete()

	if err := lc.Begin(); err != ErrCompleted {
		t.Errorf("begin: expected ErrCompleted, got %v", err)
	}
	if err := lc.BeginSubmit(nil); err != ErrCompleted {
		t.Errorf("submit: expected ErrCompleted, got %v", err)
	}
	if err := lc.Complete(); err != ErrCompleted {
		t.Errorf("complete: expected ErrCompleted, got %v", err)
	}
	if lc.State() != models.StatusCompleted {
		t.Errorf("expected StatusCompleted, got %v", lc.State())
	}
}

func TestLifecycle_CompleteRequiresSubmitting(t *testing.T) {
	lc := NewLifecycle("sess-1")
	lc.Begin()

	if err := lc.Complete(); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("expected ErrNotInProgress, got %v", err)
	}
	if !lc.InProgress() {
		t.Error("expected state unchanged")
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status   models.SessionStatus
		expected string
	}{
		{models.StatusAwaitingConsent, "AWAITING_CONSENT"},
		{models.StatusInProgress, "IN_PROGRESS"},
		{models.StatusSubmitting, "SUBMITTING"},
		{models.StatusCompleted, "COMPLETED"},
		{models.SessionStatus(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("%d.String() = %q, want %q", tt.status, got, tt.expected)
		}
	}
}

func TestLifecycle_BeginSubmitRunsCallbackUnderLock(t *testing.T) {
	lc := NewLifecycle("sess-1")
	lc.Begin()

	var seen []models.SessionStatus
	if err := lc.BeginSubmit(func() {
		// State is readable by other goroutines only once the callback returns.
		done := make(chan models.SessionStatus, 1)
		go func() { done <- lc.State() }()
		select {
		case st := <-done:
			seen = append(seen, st)
		case <-time.After(20 * time.Millisecond):
		}
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("state observed while callback held the lock: %v", seen)
	}

	calls := 0
	if err := lc.BeginSubmit(func() { calls++ }); err != ErrAlreadySubmitting {
		t.Errorf("expected ErrAlreadySubmitting, got %v", err)
	}
	if calls != 0 {
		t.Errorf("losing caller ran callback %d times", calls)
	}
}
