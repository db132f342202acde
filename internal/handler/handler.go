package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/assessor/internal/apperr"
	"github.com/pavelanni/assessor/internal/catalog"
	"github.com/pavelanni/assessor/internal/leaderboard"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/session"
	"github.com/pavelanni/assessor/internal/stats"
)

const maxBodyBytes = 1 << 20

// ContentStore is the read side of the content store.
type ContentStore interface {
	// Questions returns a model's questions; an empty difficulty means every tier.
	Questions(ctx context.Context, modelID string, difficulty model.Difficulty) ([]model.Question, error)
	GetModel(ctx context.Context, id string) (model.LearningModel, error)
	ListSubjects(ctx context.Context) ([]model.Subject, error)
	QuestionCount(ctx context.Context) (int, error)
}

// EventCounter reports the size of the event log.
type EventCounter interface {
	EventCount(ctx context.Context) (int, error)
}

// Config holds HTTP-level settings.
type Config struct {
	LeaderboardLimit int  // default limit when the request gives none
	Admin            bool // mount /api/admin routes
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	sessions *session.Controller
	stats    *stats.Aggregator
	ranker   *leaderboard.Ranker
	content  ContentStore
	events   EventCounter
	importer *catalog.Importer
	config   Config
}

// New creates a new Handler.
func New(
	sessions *session.Controller,
	agg *stats.Aggregator,
	ranker *leaderboard.Ranker,
	content ContentStore,
	events EventCounter,
	importer *catalog.Importer,
	cfg Config,
) *Handler {
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = 10
	}
	return &Handler{
		sessions: sessions,
		stats:    agg,
		ranker:   ranker,
		content:  content,
		events:   events,
		importer: importer,
		config:   cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.handleStartSession)
		r.Get("/sessions/{sessionID}", h.handleGetSession)
		r.Post("/sessions/{sessionID}/answers", h.handleSubmitAnswer)
		r.Post("/sessions/{sessionID}/advance", h.handleAdvance)
		r.Delete("/sessions/{sessionID}", h.handleAbandon)

		r.Get("/students/{studentID}/performance", h.handlePerformance)
		r.Get("/leaderboard", h.handleLeaderboard)

		r.Get("/subjects", h.handleSubjects)
		r.Get("/models/{modelID}", h.handleModel)
		r.Get("/questions/{modelID}", h.handleQuestions)

		if h.config.Admin {
			r.Route("/admin", h.adminRoutes)
		}
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": h.sessions.Active(),
	})
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	started, err := h.sessions.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, started)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// answerRequest is the submit body. Pointer fields tell a missing value
// apart from zero.
type answerRequest struct {
	QuestionID       string `json:"question_id"`
	SubjectID        string `json:"subject_id,omitempty"`
	SelectedOption   *int   `json:"selected_option"`
	TimeSpentSeconds *int   `json:"time_spent_seconds"`
}

func (req answerRequest) answer() (session.Answer, error) {
	switch {
	case req.QuestionID == "":
		return session.Answer{}, apperr.New(apperr.CodeValidation, "question_id is required")
	case req.SelectedOption == nil:
		return session.Answer{}, apperr.New(apperr.CodeValidation, "selected_option is required")
	case req.TimeSpentSeconds == nil:
		return session.Answer{}, apperr.New(apperr.CodeValidation, "time_spent_seconds is required")
	}
	return session.Answer{
		QuestionID:       req.QuestionID,
		SubjectID:        req.SubjectID,
		SelectedOption:   *req.SelectedOption,
		TimeSpentSeconds: *req.TimeSpentSeconds,
	}, nil
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := req.answer()
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.sessions.Submit(r.Context(), chi.URLParam(r, "sessionID"), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	res, err := h.sessions.Advance(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Abandon(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	sum, err := h.stats.Summarize(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.config.LeaderboardLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, apperr.Newf(apperr.CodeValidation, "invalid limit %q", s))
			return
		}
		limit = n
	}
	entries, err := h.ranker.Rank(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.content.ListSubjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	m, err := h.content.GetModel(r.Context(), chi.URLParam(r, "modelID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	var difficulty model.Difficulty
	if s := r.URL.Query().Get("difficulty"); s != "" {
		d, err := model.ParseDifficulty(s)
		if err != nil {
			writeError(w, r, apperr.Wrap(apperr.CodeValidation, "invalid difficulty", err))
			return
		}
		difficulty = d
	}
	questions, err := h.content.Questions(r.Context(), chi.URLParam(r, "modelID"), difficulty)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]model.PublicQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Code     apperr.Code       `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError reports domain errors with their code; anything else is logged
// and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    apperr.CodeUnknown,
			Message: "internal error",
		})
		return
	}
	status := appErr.Code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Code:     appErr.Code,
		Message:  appErr.Message,
		Metadata: appErr.Metadata,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.CodeValidation, "request body is empty")
		}
		return apperr.Wrap(apperr.CodeValidation, "invalid request body", err)
	}
	return nil
}
