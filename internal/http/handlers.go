package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/service/session"
)

const maxFrameBytes = 8 << 20

type handlers struct {
	sessions Sessions
	ready    func() bool
	logger   zerolog.Logger
}

func (h *handlers) isReady() bool {
	return h.ready == nil || h.ready()
}

type createSessionRequest struct {
	ParticipantID   string `json:"participantId"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	Questions       []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"questions"`
}

type errorResponse struct {
	Error      string   `json:"error"`
	Unanswered []string `json:"unanswered,omitempty"`
}

// writeJSON encodes before writing the header so an encoding failure is
// reported as a 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"encode response"}` + "\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrParticipantActive),
		errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrNotInProgress),
		errors.Is(err, session.ErrAlreadySubmitting),
		errors.Is(err, session.ErrCompleted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return c, true
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	if !h.isReady() {
		writeError(w, http.StatusServiceUnavailable, errors.New("service is not accepting sessions"))
		return
	}
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DurationSeconds < 0 {
		writeError(w, http.StatusBadRequest, errors.New("durationSeconds must not be negative"))
		return
	}

	questions := make([]models.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = models.Question{ID: q.ID, Text: q.Text}
	}

	c, err := h.sessions.Create(req.ParticipantID, questions, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	h.logger.Info().
		Str("sessionId", c.ID()).
		Str("participantId", req.ParticipantID).
		Int("questions", len(questions)).
		Msg("Session created")
	writeJSON(w, http.StatusCreated, c.Status())
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Status())
}

func (h *handlers) consent(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	grant, err := c.Start(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), struct {
			Error string `json:"error"`
			Grant any    `json:"grant"`
		}{err.Error(), grant})
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *handlers) editAnswer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := c.EditAnswer(r.Context(), chi.URLParam(r, "questionID"), req.Answer); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) visibility(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if c.State() != models.StatusInProgress {
		writeError(w, http.StatusConflict, session.ErrNotInProgress)
		return
	}
	c.Visibility(req.Hidden)
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) frame(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("empty frame"))
		return
	}
	if !c.PushFrame(data) {
		writeError(w, http.StatusConflict, session.ErrNotInProgress)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookup(w, r)
	if !ok {
		return
	}
	result, err := c.Submit(r.Context())
	switch {
	case errors.Is(err, models.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Unanswered: c.Unanswered()})
	case err != nil:
		writeError(w, statusFor(err), err)
	case result == nil:
		writeJSON(w, http.StatusAccepted, c.Status())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *handlers) result(w http.ResponseWriter, r *http.Request) {
	result, err := h.sessions.Result(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, errors.New("result not available"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}
