package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/assessor/internal/apperr"
	"github.com/pavelanni/assessor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuestion(t *testing.T, s *Store, id, modelID, difficulty string) string {
	t.Helper()
	got, err := s.InsertQuestion(context.Background(), model.Question{
		ID:            id,
		SubjectID:     "anatomy",
		ModelID:       modelID,
		Text:          "text for " + id,
		Options:       []string{"a", "b", "c", "d"},
		CorrectOption: 2,
		Difficulty:    model.Difficulty(difficulty),
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return got
}

func TestQuestionCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.QuestionCount(ctx)
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	insertTestQuestion(t, s, "q1", "heart", "easy")
	q, err := s.GetQuestion(ctx, "q1")
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Text != "text for q1" {
		t.Errorf("expected text 'text for q1', got %q", q.Text)
	}
	if len(q.Options) != 4 || q.Options[3] != "d" {
		t.Errorf("options not round-tripped: %v", q.Options)
	}
	if q.CorrectOption != 2 {
		t.Errorf("expected correct option 2, got %d", q.CorrectOption)
	}

	_, err = s.GetQuestion(ctx, "missing")
	if err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	// Re-inserting the same ID keeps the original.
	_, err = s.InsertQuestion(ctx, model.Question{ID: "q1", ModelID: "heart", Text: "changed", Options: []string{"x"}, Difficulty: model.DifficultyHard})
	if err != nil {
		t.Fatalf("InsertQuestion duplicate: %v", err)
	}
	q, _ = s.GetQuestion(ctx, "q1")
	if q.Text != "text for q1" {
		t.Errorf("question was mutated to %q", q.Text)
	}

	id := insertTestQuestion(t, s, "", "heart", "hard")
	if id == "" {
		t.Error("expected generated ID")
	}
}

func TestQuestionsFiltered(t *testing.T) {
	s := newTestStore(t)
	insertTestQuestion(t, s, "q1", "heart", "easy")
	insertTestQuestion(t, s, "q2", "heart", "hard")
	insertTestQuestion(t, s, "q3", "heart", "easy")
	insertTestQuestion(t, s, "q4", "brain", "easy")

	tests := []struct {
		name       string
		modelID    string
		difficulty model.Difficulty
		want       []string
	}{
		{"all tiers", "heart", "", []string{"q1", "q2", "q3"}},
		{"easy only", "heart", model.DifficultyEasy, []string{"q1", "q3"}},
		{"hard only", "heart", model.DifficultyHard, []string{"q2"}},
		{"other model", "brain", "", []string{"q4"}},
		{"no match", "heart", model.DifficultyMedium, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := s.Questions(context.Background(), tt.modelID, tt.difficulty)
			if err != nil {
				t.Fatalf("Questions: %v", err)
			}
			if len(qs) != len(tt.want) {
				t.Fatalf("expected %d questions, got %d", len(tt.want), len(qs))
			}
			for i, q := range qs {
				if q.ID != tt.want[i] {
					t.Errorf("position %d: got %s, want %s", i, q.ID, tt.want[i])
				}
			}
		})
	}
}

func TestAppendEventOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first, err := s.AppendEvent(ctx, model.AnswerEvent{StudentID: "s1", QuestionID: "q1", SubjectID: "anatomy", Correct: true, Difficulty: model.DifficultyMedium, TimeSpentSeconds: 5, AnsweredAt: at})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if first.ID == "" {
		t.Error("expected generated event ID")
	}
	// Same timestamp: must be pushed forward.
	second, err := s.AppendEvent(ctx, model.AnswerEvent{StudentID: "s1", QuestionID: "q2", SubjectID: "anatomy", Difficulty: model.DifficultyHard, TimeSpentSeconds: 7, AnsweredAt: at})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if !second.AnsweredAt.After(first.AnsweredAt) {
		t.Errorf("second event %v not after first %v", second.AnsweredAt, first.AnsweredAt)
	}
	// Another student is independent.
	other, err := s.AppendEvent(ctx, model.AnswerEvent{StudentID: "s2", QuestionID: "q1", SubjectID: "anatomy", Difficulty: model.DifficultyEasy, AnsweredAt: at})
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if !other.AnsweredAt.Equal(at) {
		t.Errorf("other student's time changed to %v", other.AnsweredAt)
	}

	events, err := s.StudentEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("StudentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].QuestionID != "q1" || events[1].QuestionID != "q2" {
		t.Errorf("events out of order: %s, %s", events[0].QuestionID, events[1].QuestionID)
	}
	if !events[0].Correct || events[1].Correct {
		t.Error("correctness not round-tripped")
	}
	if events[1].TimeSpentSeconds != 7 || events[1].Difficulty != model.DifficultyHard {
		t.Errorf("fields not round-tripped: %+v", events[1])
	}

	all, err := s.AllEvents(ctx)
	if err != nil {
		t.Fatalf("AllEvents: %v", err)
	}
	if len(all) != 3 || all[0].StudentID != "s1" || all[2].StudentID != "s2" {
		t.Errorf("AllEvents not grouped by student: %+v", all)
	}
}

func TestAppendEventConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendEvent(ctx, model.AnswerEvent{
				StudentID:  "s1",
				SessionID:  fmt.Sprintf("sess-%d", i%2),
				QuestionID: fmt.Sprintf("q%d", i),
				Difficulty: model.DifficultyMedium,
				AnsweredAt: at,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	events, err := s.StudentEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("StudentEvents: %v", err)
	}
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	for i := 1; i < len(events); i++ {
		if !events[i].AnsweredAt.After(events[i-1].AnsweredAt) {
			t.Fatalf("event %d not strictly after event %d", i, i-1)
		}
	}
}

func TestContentTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertSubject(ctx, model.Subject{ID: "anatomy", Name: "Human Anatomy", Category: "anatomy"}); err != nil {
		t.Fatalf("UpsertSubject: %v", err)
	}
	if err := s.UpsertSubject(ctx, model.Subject{ID: "physics", Name: "Physics"}); err != nil {
		t.Fatalf("UpsertSubject: %v", err)
	}
	names, err := s.SubjectNames(ctx)
	if err != nil {
		t.Fatalf("SubjectNames: %v", err)
	}
	if names["anatomy"] != "Human Anatomy" || len(names) != 2 {
		t.Errorf("unexpected subject names %v", names)
	}

	m := model.LearningModel{ID: "heart", SubjectID: "anatomy", Title: "Human Heart", Labels: []string{"Heart", "Cardiovascular"}}
	if err := s.UpsertModel(ctx, m); err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}
	got, err := s.GetModel(ctx, "heart")
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if got.Title != "Human Heart" || len(got.Labels) != 2 {
		t.Errorf("unexpected model %+v", got)
	}
	if _, err := s.GetModel(ctx, "lungs"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("expected NOT_FOUND for missing model, got %v", err)
	}

	if err := s.UpsertStudent(ctx, model.Student{ID: "s1", Name: "Ada"}); err != nil {
		t.Fatalf("UpsertStudent: %v", err)
	}
	if err := s.UpsertStudent(ctx, model.Student{ID: "s1", Name: "Ada L."}); err != nil {
		t.Fatalf("UpsertStudent rename: %v", err)
	}
	st, err := s.GetStudent(ctx, "s1")
	if err != nil || st == nil {
		t.Fatalf("GetStudent: %v, %v", st, err)
	}
	if st.Name != "Ada L." {
		t.Errorf("expected renamed student, got %q", st.Name)
	}
	missing, err := s.GetStudent(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("expected nil student, got %v, %v", missing, err)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h, err := s.GetImportedFileHash(ctx, "questions.yaml")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if h != "" {
		t.Errorf("expected empty hash, got %q", h)
	}
	if err := s.SetImportedFileHash(ctx, "questions.yaml", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash(ctx, "questions.yaml", "def"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	h, _ = s.GetImportedFileHash(ctx, "questions.yaml")
	if h != "def" {
		t.Errorf("expected 'def', got %q", h)
	}
}
