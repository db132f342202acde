// Package session runs adaptive assessment sessions. Session state lives in
// memory and is discarded at the end; every answer is persisted as an
// AnswerEvent the moment it is submitted.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/adapt"
	"github.com/pavelanni/assessor/internal/apperr"
	"github.com/pavelanni/assessor/internal/model"
)

// Feedback selection keys.
const (
	KeyCorrect   = "correct"
	KeyIncorrect = "incorrect"
)

// QuestionSource is the read-only content store.
type QuestionSource interface {
	Questions(ctx context.Context, modelID string, difficulty model.Difficulty) ([]model.Question, error)
}

// EventStore appends answer events atomically.
type EventStore interface {
	AppendEvent(ctx context.Context, e model.AnswerEvent) (model.AnswerEvent, error)
}

// Refresher is notified when a student's session completes.
type Refresher interface {
	Refresh(ctx context.Context, studentID string) error
}

// SummaryLookup provides prior performance used to seed the start tier.
// Cached is consulted first and holds the summary refreshed when the
// student's last session completed.
type SummaryLookup interface {
	Cached(studentID string) (model.PerformanceSummary, bool)
	Summarize(ctx context.Context, studentID string) (model.PerformanceSummary, error)
}

// FeedbackProvider renders the text shown to the student.
type FeedbackProvider interface {
	Feedback(ctx context.Context, q model.Question, selected int, correct bool) string
	Remaining(ctx context.Context, n int) string
	Completed(ctx context.Context, score model.Score) string
}

// Config holds session tunables.
type Config struct {
	NumQuestions int           // cap per session; 0 serves the whole set
	Shuffle      bool          // pick randomly within a tier instead of authoring order
	TTL          time.Duration // idle sessions expire after this; 0 disables
}

// Option configures a Controller.
type Option func(*Controller)

// WithRefresher sets the hook called on completion.
func WithRefresher(r Refresher) Option {
	return func(c *Controller) { c.refresher = r }
}

// WithSummaries enables start-tier seeding from prior performance.
func WithSummaries(s SummaryLookup) Option {
	return func(c *Controller) { c.summaries = s }
}

// WithFeedback sets the feedback text provider.
func WithFeedback(f FeedbackProvider) Option {
	return func(c *Controller) { c.feedback = f }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns all live sessions.
type Controller struct {
	questions QuestionSource
	events    EventStore
	cfg       Config
	refresher Refresher
	summaries SummaryLookup
	feedback  FeedbackProvider
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*state
}

// New creates a Controller.
func New(questions QuestionSource, events EventStore, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		questions: questions,
		events:    events,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*state),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// state is the private, per-session mutable state. All fields are guarded
// by mu.
type state struct {
	mu sync.Mutex

	id         string
	studentID  string
	subjectID  string
	modelID    string
	difficulty model.Difficulty
	status     model.SessionStatus

	pool     map[model.Difficulty][]model.Question
	served   []string
	seen     map[string]bool
	current  *model.Question
	awaiting bool

	index    int
	total    int
	correct  int
	answered int

	startedAt  time.Time
	lastActive time.Time
}

// StartRequest identifies what to assess. An empty InitialDifficulty lets the
// controller pick one.
type StartRequest struct {
	StudentID         string           `json:"student_id"`
	SubjectID         string           `json:"subject_id"`
	ModelID           string           `json:"model_id"`
	InitialDifficulty model.Difficulty `json:"initial_difficulty,omitempty"`
}

// Started is returned by Start.
type Started struct {
	SessionID  string               `json:"session_id"`
	Question   model.PublicQuestion `json:"question"`
	Progress   model.Progress       `json:"progress"`
	Difficulty model.Difficulty     `json:"difficulty"`
}

// Answer is a submitted answer. SubjectID is optional; when given it must
// match the served question.
type Answer struct {
	QuestionID       string `json:"question_id"`
	SubjectID        string `json:"subject_id,omitempty"`
	SelectedOption   int    `json:"selected_option"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// SubmitResult is returned by Submit.
type SubmitResult struct {
	IsCorrect      bool             `json:"is_correct"`
	CorrectOption  int              `json:"correct_option"`
	FeedbackKey    string           `json:"feedback_key"`
	Feedback       string           `json:"feedback"`
	NextDifficulty model.Difficulty `json:"next_difficulty"`
	Progress       model.Progress   `json:"progress"`
	Remaining      string           `json:"remaining,omitempty"`
}

// AdvanceResult is returned by Advance. Exactly one of Question and Score is
// set.
type AdvanceResult struct {
	Completed  bool                  `json:"completed"`
	Question   *model.PublicQuestion `json:"question,omitempty"`
	Progress   model.Progress        `json:"progress"`
	Difficulty model.Difficulty      `json:"difficulty"`
	Score      *model.Score          `json:"score,omitempty"`
	Message    string                `json:"message,omitempty"`
}

// View is a read-only snapshot of a session.
type View struct {
	SessionID      string                `json:"session_id"`
	StudentID      string                `json:"student_id"`
	SubjectID      string                `json:"subject_id"`
	ModelID        string                `json:"model_id"`
	Status         model.SessionStatus   `json:"status"`
	Difficulty     model.Difficulty      `json:"difficulty"`
	Question       *model.PublicQuestion `json:"question,omitempty"`
	AwaitingAnswer bool                  `json:"awaiting_answer"`
	Served         []string              `json:"served"`
	Progress       model.Progress        `json:"progress"`
	Score          model.Score           `json:"score"`
	StartedAt      time.Time             `json:"started_at"`
}

// Start opens a session and serves its first question.
func (c *Controller) Start(ctx context.Context, req StartRequest) (Started, error) {
	if req.StudentID == "" || req.SubjectID == "" || req.ModelID == "" {
		return Started{}, apperr.New(apperr.CodeValidation, "student_id, subject_id and model_id are required")
	}
	if req.InitialDifficulty != "" && !req.InitialDifficulty.Valid() {
		return Started{}, apperr.Newf(apperr.CodeValidation, "unknown difficulty %q", req.InitialDifficulty).
			With("difficulty", string(req.InitialDifficulty))
	}

	pool, total, err := c.loadPool(ctx, req.ModelID)
	if err != nil {
		return Started{}, err
	}
	if total == 0 {
		return Started{}, apperr.Newf(apperr.CodeContentUnavailable, "no questions for model %s", req.ModelID).
			With("model_id", req.ModelID)
	}
	if c.cfg.NumQuestions > 0 && c.cfg.NumQuestions < total {
		total = c.cfg.NumQuestions
	}

	difficulty := req.InitialDifficulty
	if difficulty == "" {
		difficulty = c.seedDifficulty(ctx, req.StudentID)
	}

	now := c.now()
	s := &state{
		id:         uuid.NewString(),
		studentID:  req.StudentID,
		subjectID:  req.SubjectID,
		modelID:    req.ModelID,
		difficulty: difficulty,
		status:     model.StatusActive,
		pool:       pool,
		seen:       make(map[string]bool),
		total:      total,
		startedAt:  now,
		lastActive: now,
	}
	q, ok := c.selectNext(s)
	if !ok {
		return Started{}, apperr.Newf(apperr.CodeContentUnavailable, "no questions for model %s", req.ModelID)
	}

	c.mu.Lock()
	c.pruneLocked(now)
	c.sessions[s.id] = s
	c.mu.Unlock()

	slog.Info("session started",
		"session_id", s.id,
		"student_id", s.studentID,
		"model_id", s.modelID,
		"difficulty", difficulty,
		"total", total,
	)
	return Started{
		SessionID:  s.id,
		Question:   q.Public(),
		Progress:   model.Progress{Index: s.index, Total: s.total},
		Difficulty: s.difficulty,
	}, nil
}

// Submit records an answer to the currently served question.
func (c *Controller) Submit(ctx context.Context, sessionID string, a Answer) (SubmitResult, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return SubmitResult{}, err
	}

	s.mu.Lock()
	if err := c.checkLive(s); err != nil {
		s.mu.Unlock()
		return SubmitResult{}, err
	}
	if s.status != model.StatusActive {
		s.mu.Unlock()
		return SubmitResult{}, apperr.New(apperr.CodeInvalidSession, "session is completed").
			With("session_id", sessionID)
	}
	if s.current == nil || !s.awaiting || s.current.ID != a.QuestionID {
		s.mu.Unlock()
		return SubmitResult{}, apperr.Newf(apperr.CodeQuestionMismatch, "question %s is not the one being served", a.QuestionID).
			With("question_id", a.QuestionID)
	}
	q := *s.current
	if a.SelectedOption < 0 || a.SelectedOption >= len(q.Options) {
		s.mu.Unlock()
		return SubmitResult{}, apperr.Newf(apperr.CodeValidation, "selected option %d out of range [0,%d)", a.SelectedOption, len(q.Options))
	}
	if a.TimeSpentSeconds < 0 {
		s.mu.Unlock()
		return SubmitResult{}, apperr.New(apperr.CodeValidation, "time spent must not be negative")
	}
	if a.SubjectID != "" && a.SubjectID != q.SubjectID {
		s.mu.Unlock()
		return SubmitResult{}, apperr.Newf(apperr.CodeValidation, "subject %s does not match question subject %s", a.SubjectID, q.SubjectID)
	}

	correct := a.SelectedOption == q.CorrectOption
	_, err = c.events.AppendEvent(ctx, model.AnswerEvent{
		ID:               uuid.NewString(),
		StudentID:        s.studentID,
		SessionID:        s.id,
		QuestionID:       q.ID,
		SubjectID:        q.SubjectID,
		ModelID:          q.ModelID,
		SelectedOption:   a.SelectedOption,
		Correct:          correct,
		Difficulty:       q.Difficulty,
		TimeSpentSeconds: a.TimeSpentSeconds,
		AnsweredAt:       c.now(),
	})
	if err != nil {
		s.mu.Unlock()
		slog.Error("failed to record answer", "session_id", s.id, "question_id", q.ID, "error", err)
		return SubmitResult{}, fmt.Errorf("record answer: %w", err)
	}

	s.answered++
	if correct {
		s.correct++
	}
	s.difficulty = adapt.Next(s.difficulty, correct)
	s.awaiting = false
	s.lastActive = c.now()
	res := SubmitResult{
		IsCorrect:      correct,
		CorrectOption:  q.CorrectOption,
		FeedbackKey:    KeyIncorrect,
		NextDifficulty: s.difficulty,
		Progress:       model.Progress{Index: s.index, Total: s.total},
	}
	s.mu.Unlock()

	if correct {
		res.FeedbackKey = KeyCorrect
	}
	if c.feedback != nil {
		res.Feedback = c.feedback.Feedback(ctx, q, a.SelectedOption, correct)
		res.Remaining = c.feedback.Remaining(ctx, res.Progress.Total-res.Progress.Index)
	}
	return res, nil
}

// Advance serves the next question, or completes the session when the set
// is exhausted.
func (c *Controller) Advance(ctx context.Context, sessionID string) (AdvanceResult, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return AdvanceResult{}, err
	}

	s.mu.Lock()
	if err := c.checkLive(s); err != nil {
		s.mu.Unlock()
		return AdvanceResult{}, err
	}
	if s.status == model.StatusCompleted {
		s.mu.Unlock()
		return AdvanceResult{}, apperr.New(apperr.CodeSessionCompleted, "session already completed").
			With("session_id", sessionID)
	}
	if s.awaiting {
		s.mu.Unlock()
		return AdvanceResult{}, apperr.New(apperr.CodeValidation, "current question has not been answered")
	}
	s.lastActive = c.now()

	if s.index < s.total {
		if q, ok := c.selectNext(s); ok {
			res := AdvanceResult{
				Question:   ptr(q.Public()),
				Progress:   model.Progress{Index: s.index, Total: s.total},
				Difficulty: s.difficulty,
			}
			s.mu.Unlock()
			return res, nil
		}
	}

	s.status = model.StatusCompleted
	s.current = nil
	score := model.NewScore(s.correct, s.answered)
	res := AdvanceResult{
		Completed:  true,
		Progress:   model.Progress{Index: s.index, Total: s.total},
		Difficulty: s.difficulty,
		Score:      &score,
	}
	studentID := s.studentID
	s.mu.Unlock()

	slog.Info("session completed",
		"session_id", sessionID,
		"student_id", studentID,
		"correct", score.Correct,
		"total", score.Total,
	)
	if c.refresher != nil {
		if err := c.refresher.Refresh(ctx, studentID); err != nil {
			slog.Warn("performance refresh failed", "student_id", studentID, "error", err)
		}
	}
	if c.feedback != nil {
		res.Message = c.feedback.Completed(ctx, score)
	}
	return res, nil
}

// Abandon discards a session. Recorded answers stay in the event log.
func (c *Controller) Abandon(_ context.Context, sessionID string) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	if !ok {
		return apperr.New(apperr.CodeInvalidSession, "unknown session").With("session_id", sessionID)
	}

	s.mu.Lock()
	s.status = model.StatusAbandoned
	answered := s.answered
	s.mu.Unlock()
	slog.Info("session abandoned", "session_id", sessionID, "answered", answered)
	return nil
}

// Get returns a snapshot of a session.
func (c *Controller) Get(_ context.Context, sessionID string) (View, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := c.checkLive(s); err != nil {
		return View{}, err
	}

	v := View{
		SessionID:      s.id,
		StudentID:      s.studentID,
		SubjectID:      s.subjectID,
		ModelID:        s.modelID,
		Status:         s.status,
		Difficulty:     s.difficulty,
		AwaitingAnswer: s.awaiting,
		Served:         append([]string(nil), s.served...),
		Progress:       model.Progress{Index: s.index, Total: s.total},
		Score:          model.NewScore(s.correct, s.answered),
		StartedAt:      s.startedAt,
	}
	if s.current != nil {
		v.Question = ptr(s.current.Public())
	}
	return v, nil
}

// Active returns the number of sessions held in memory.
func (c *Controller) Active() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

func (c *Controller) lookup(id string) (*state, error) {
	c.mu.RLock()
	s, ok := c.sessions[id]
	c.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.CodeInvalidSession, "unknown session").With("session_id", id)
	}
	return s, nil
}

// checkLive expires an idle session. Caller holds s.mu.
func (c *Controller) checkLive(s *state) error {
	if !c.expired(s, c.now()) {
		return nil
	}
	c.mu.Lock()
	delete(c.sessions, s.id)
	c.mu.Unlock()
	slog.Info("session expired", "session_id", s.id, "student_id", s.studentID)
	return apperr.New(apperr.CodeInvalidSession, "session expired").With("session_id", s.id)
}

func (c *Controller) expired(s *state, now time.Time) bool {
	return c.cfg.TTL > 0 && now.Sub(s.lastActive) > c.cfg.TTL
}

// pruneLocked drops idle sessions. Caller holds c.mu.
func (c *Controller) pruneLocked(now time.Time) {
	if c.cfg.TTL <= 0 {
		return
	}
	for id, s := range c.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if c.expired(s, now) {
			delete(c.sessions, id)
		}
		s.mu.Unlock()
	}
}

// loadPool snapshots the model's question set per tier and counts distinct
// questions.
func (c *Controller) loadPool(ctx context.Context, modelID string) (map[model.Difficulty][]model.Question, int, error) {
	pool := make(map[model.Difficulty][]model.Question, len(model.Difficulties))
	seen := make(map[string]bool)
	for _, d := range model.Difficulties {
		qs, err := c.questions.Questions(ctx, modelID, d)
		if err != nil {
			return nil, 0, fmt.Errorf("load %s questions for model %s: %w", d, modelID, err)
		}
		for _, q := range qs {
			if seen[q.ID] || len(q.Options) == 0 {
				continue
			}
			seen[q.ID] = true
			pool[d] = append(pool[d], q)
		}
	}
	return pool, len(seen), nil
}

func (c *Controller) seedDifficulty(ctx context.Context, studentID string) model.Difficulty {
	if c.summaries == nil {
		return adapt.Seed(0, false)
	}
	if sum, ok := c.summaries.Cached(studentID); ok {
		return adapt.Seed(sum.Accuracy, sum.TotalAssessments > 0)
	}
	sum, err := c.summaries.Summarize(ctx, studentID)
	if err != nil {
		slog.Warn("could not load prior performance", "student_id", studentID, "error", err)
		return adapt.Seed(0, false)
	}
	return adapt.Seed(sum.Accuracy, sum.TotalAssessments > 0)
}

// selectNext serves an unseen question at the session tier, falling back to
// the nearest tier that still has one. Caller holds s.mu or owns s.
func (c *Controller) selectNext(s *state) (model.Question, bool) {
	for _, d := range adapt.Nearest(s.difficulty) {
		var candidates []model.Question
		for _, q := range s.pool[d] {
			if !s.seen[q.ID] {
				candidates = append(candidates, q)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		q := candidates[0]
		if c.cfg.Shuffle {
			q = candidates[rand.IntN(len(candidates))]
		}
		s.seen[q.ID] = true
		s.served = append(s.served, q.ID)
		s.current = &q
		s.awaiting = true
		s.index++
		return q, true
	}
	return model.Question{}, false
}

func ptr[T any](v T) *T { return &v }
