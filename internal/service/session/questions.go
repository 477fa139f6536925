package session

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"exam-proctor-service/internal/models"
)

var (
	ErrUnknownQuestion = errors.New("unknown question")
	ErrAnswersFrozen   = errors.New("answers are frozen")
)

// Questions is the ordered question set of a session. Answers are written
// only through the text debouncer and frozen at completion.
type Questions struct {
	mu     sync.RWMutex
	items  []models.Question
	index  map[string]int
	frozen bool
}

// NewQuestions copies qs. IDs must be non-empty and unique.
func NewQuestions(qs []models.Question) (*Questions, error) {
	q := &Questions{
		items: make([]models.Question, len(qs)),
		index: make(map[string]int, len(qs)),
	}
	for i, item := range qs {
		if item.ID == "" {
			return nil, fmt.Errorf("question %d: empty id", i)
		}
		if _, dup := q.index[item.ID]; dup {
			return nil, fmt.Errorf("question %q: duplicate id", item.ID)
		}
		q.items[i] = item
		q.index[item.ID] = i
	}
	return q, nil
}

// SetAnswer replaces the answer to questionID.
func (q *Questions) SetAnswer(questionID, text string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.frozen {
		return ErrAnswersFrozen
	}
	i, ok := q.index[questionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuestion, questionID)
	}
	q.items[i].Answer = text
	return nil
}

// Unanswered returns the IDs of blank answers in display order.
func (q *Questions) Unanswered() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []string
	for _, item := range q.items {
		if strings.TrimSpace(item.Answer) == "" {
			out = append(out, item.ID)
		}
	}
	return out
}

// Freeze rejects all further answer writes.
func (q *Questions) Freeze() {
	q.mu.Lock()
	q.frozen = true
	q.mu.Unlock()
}

// Snapshot returns a copy in display order.
func (q *Questions) Snapshot() []models.Question {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]models.Question, len(q.items))
	copy(out, q.items)
	return out
}
