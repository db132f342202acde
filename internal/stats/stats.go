// Package stats derives performance summaries from answer events.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pavelanni/assessor/internal/model"
)

// Policy holds the weak-topic cutoffs.
type Policy struct {
	WeakThreshold float64 // per-subject accuracy strictly below this is weak
	MinAttempts   int     // subjects with fewer attempts are never weak
}

// DefaultPolicy returns threshold 0.5 with at least 3 attempts.
func DefaultPolicy() Policy {
	return Policy{WeakThreshold: 0.5, MinAttempts: 3}
}

type subjectTally struct {
	total   int
	correct int
}

// Accumulator is a running aggregate over one student's events. Feeding it
// the full history gives the same result as Summarize.
type Accumulator struct {
	studentID string
	total     int
	correct   int
	timeSum   int64
	subjects  map[string]*subjectTally
}

// NewAccumulator returns an empty aggregate for a student.
func NewAccumulator(studentID string) *Accumulator {
	return &Accumulator{studentID: studentID, subjects: make(map[string]*subjectTally)}
}

// Add folds one event into the aggregate.
func (a *Accumulator) Add(e model.AnswerEvent) {
	a.total++
	a.timeSum += int64(e.TimeSpentSeconds)
	st := a.subjects[e.SubjectID]
	if st == nil {
		st = &subjectTally{}
		a.subjects[e.SubjectID] = st
	}
	st.total++
	if e.Correct {
		a.correct++
		st.correct++
	}
}

// Summary renders the aggregate. names maps subject IDs to display names
// and may be nil.
func (a *Accumulator) Summary(p Policy, names map[string]string) model.PerformanceSummary {
	sum := model.PerformanceSummary{
		StudentID:        a.studentID,
		TotalAssessments: a.total,
		CorrectAnswers:   a.correct,
		Subjects:         make(map[string]model.SubjectStats, len(a.subjects)),
		WeakTopics:       []model.WeakTopic{},
	}
	if a.total > 0 {
		sum.Accuracy = float64(a.correct) / float64(a.total)
		avg := float64(a.timeSum) / float64(a.total)
		sum.AvgTimeSpent = &avg
	}

	for id, st := range a.subjects {
		name := names[id]
		if name == "" {
			name = id
		}
		acc := float64(st.correct) / float64(st.total)
		sum.Subjects[id] = model.SubjectStats{
			SubjectID:   id,
			SubjectName: name,
			Total:       st.total,
			Correct:     st.correct,
			Accuracy:    acc,
		}
		if st.total >= p.MinAttempts && acc < p.WeakThreshold {
			sum.WeakTopics = append(sum.WeakTopics, model.WeakTopic{
				SubjectID:   id,
				SubjectName: name,
				Accuracy:    acc,
				Attempts:    st.total,
			})
		}
	}

	sort.Slice(sum.WeakTopics, func(i, j int) bool {
		wi, wj := sum.WeakTopics[i], sum.WeakTopics[j]
		if wi.Accuracy != wj.Accuracy {
			return wi.Accuracy < wj.Accuracy
		}
		return wi.SubjectID < wj.SubjectID
	})
	return sum
}

// Summarize replays a student's events into a summary.
func Summarize(studentID string, events []model.AnswerEvent, p Policy, names map[string]string) model.PerformanceSummary {
	acc := NewAccumulator(studentID)
	for _, e := range events {
		acc.Add(e)
	}
	return acc.Summary(p, names)
}

// EventSource reads the answer event log.
type EventSource interface {
	StudentEvents(ctx context.Context, studentID string) ([]model.AnswerEvent, error)
	AllEvents(ctx context.Context) ([]model.AnswerEvent, error)
}

// SubjectNamer resolves subject display names.
type SubjectNamer interface {
	SubjectNames(ctx context.Context) (map[string]string, error)
}

// Aggregator computes summaries from the event log and keeps the latest
// result per student. The cache is never authoritative; it only seeds the
// start tier of the student's next session.
type Aggregator struct {
	events EventSource
	names  SubjectNamer
	policy Policy

	mu    sync.RWMutex
	cache map[string]model.PerformanceSummary
}

// NewAggregator creates an Aggregator. names may be nil.
func NewAggregator(events EventSource, names SubjectNamer, p Policy) *Aggregator {
	return &Aggregator{
		events: events,
		names:  names,
		policy: p,
		cache:  make(map[string]model.PerformanceSummary),
	}
}

// Summarize recomputes a student's summary from the full event history.
func (a *Aggregator) Summarize(ctx context.Context, studentID string) (model.PerformanceSummary, error) {
	events, err := a.events.StudentEvents(ctx, studentID)
	if err != nil {
		return model.PerformanceSummary{}, fmt.Errorf("load events for %s: %w", studentID, err)
	}
	names, err := a.subjectNames(ctx)
	if err != nil {
		return model.PerformanceSummary{}, err
	}
	sum := Summarize(studentID, events, a.policy, names)
	a.store(sum)
	return sum, nil
}

// SummarizeAll recomputes summaries for every student with at least one
// event, ordered by student ID.
func (a *Aggregator) SummarizeAll(ctx context.Context) ([]model.PerformanceSummary, error) {
	events, err := a.events.AllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	names, err := a.subjectNames(ctx)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[string]*Accumulator)
	var ids []string
	for _, e := range events {
		acc := byStudent[e.StudentID]
		if acc == nil {
			acc = NewAccumulator(e.StudentID)
			byStudent[e.StudentID] = acc
			ids = append(ids, e.StudentID)
		}
		acc.Add(e)
	}
	sort.Strings(ids)

	out := make([]model.PerformanceSummary, 0, len(ids))
	for _, id := range ids {
		sum := byStudent[id].Summary(a.policy, names)
		a.store(sum)
		out = append(out, sum)
	}
	return out, nil
}

// Refresh recomputes and caches a student's summary. It is called when a
// session completes.
func (a *Aggregator) Refresh(ctx context.Context, studentID string) error {
	sum, err := a.Summarize(ctx, studentID)
	if err != nil {
		return err
	}
	slog.Debug("refreshed performance summary",
		"student_id", studentID,
		"total", sum.TotalAssessments,
		"accuracy", sum.Accuracy,
		"weak_topics", len(sum.WeakTopics),
	)
	return nil
}

// Cached returns the last computed summary for a student, if any.
func (a *Aggregator) Cached(studentID string) (model.PerformanceSummary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	sum, ok := a.cache[studentID]
	return sum, ok
}

func (a *Aggregator) store(sum model.PerformanceSummary) {
	a.mu.Lock()
	a.cache[sum.StudentID] = sum
	a.mu.Unlock()
}

func (a *Aggregator) subjectNames(ctx context.Context) (map[string]string, error) {
	if a.names == nil {
		return nil, nil
	}
	names, err := a.names.SubjectNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subject names: %w", err)
	}
	return names, nil
}
