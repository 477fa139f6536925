package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/metrics"
)

var (
	ErrParticipantActive = errors.New("participant already has an active session")
	ErrSessionNotFound   = errors.New("session not found")
)

// DefaultRetention is how long a completed session stays in memory.
const DefaultRetention = 15 * time.Minute

// ResultLookup reads results that are no longer held in memory.
type ResultLookup interface {
	Get(ctx context.Context, id string) (*models.ExamResult, error)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRetention sets how long completed sessions stay queryable in memory.
// Zero or negative keeps them until process exit.
func WithRetention(d time.Duration) RegistryOption {
	return func(r *Registry) { r.retention = d }
}

// WithResultLookup sets where Result looks once a session was evicted.
func WithResultLookup(l ResultLookup) RegistryOption {
	return func(r *Registry) { r.results = l }
}

// OptionsFunc builds controller options for a new session. Duration is zero
// when the caller did not override the configured default.
type OptionsFunc func(sessionID, participantID string, questions []models.Question, duration time.Duration) Options

// Registry tracks sessions. A participant has at most one session that is
// not completed.
type Registry struct {
	build     OptionsFunc
	metrics   *metrics.Metrics
	retention time.Duration
	results   ResultLookup

	mu       sync.RWMutex
	sessions map[string]*Controller
	active   map[string]string // participantID → sessionID
}

// NewRegistry creates an empty registry. Completed sessions are evicted
// after DefaultRetention unless WithRetention says otherwise.
func NewRegistry(build OptionsFunc, m *metrics.Metrics, opts ...RegistryOption) *Registry {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	r := &Registry{
		build:     build,
		metrics:   m,
		retention: DefaultRetention,
		sessions:  make(map[string]*Controller),
		active:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers a new session in AWAITING_CONSENT.
func (r *Registry) Create(participantID string, questions []models.Question, duration time.Duration) (*Controller, error) {
	if participantID == "" {
		return nil, errors.New("participant id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[participantID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrParticipantActive, id)
	}

	id := uuid.NewString()
	c, err := NewController(r.build(id, participantID, questions, duration))
	if err != nil {
		return nil, err
	}
	r.sessions[id] = c
	r.active[participantID] = id
	r.metrics.RecordSessionCreated()

	go func() {
		<-c.Done()
		r.mu.Lock()
		if r.active[participantID] == id {
			delete(r.active, participantID)
		}
		r.mu.Unlock()

		if r.retention > 0 {
			time.AfterFunc(r.retention, func() { r.evict(id) })
		}
	}()
	return c, nil
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of sessions held in memory.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return c, nil
}

// Result returns the result of a session. A session still in memory answers
// from its controller, with a nil result while it has not completed. An
// evicted session is read through the ResultLookup.
func (r *Registry) Result(ctx context.Context, id string) (*models.ExamResult, error) {
	if c, err := r.Get(id); err == nil {
		return c.Result(), nil
	}
	if r.results == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	res, err := r.results.Get(ctx, id)
	if errors.Is(err, models.ErrResultNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return res, err
}

// Active returns the number of sessions not yet completed.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Shutdown forces submission of every running session and waits until they
// complete or ctx expires.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	controllers := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		controllers = append(controllers, c)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range controllers {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			c.Shutdown(ctx)
		}(c)
	}
	wg.Wait()
}
