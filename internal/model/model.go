package model

import (
	"fmt"
	"time"
)

// Difficulty represents question difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists every tier in ascending order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Rank returns the position of d in the tier order, or -1 for an unknown tier.
func (d Difficulty) Rank() int {
	switch d {
	case DifficultyEasy:
		return 0
	case DifficultyMedium:
		return 1
	case DifficultyHard:
		return 2
	default:
		return -1
	}
}

// Valid reports whether d is one of the known tiers.
func (d Difficulty) Valid() bool {
	return d.Rank() >= 0
}

// ParseDifficulty converts a string to a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// Subject groups models by field of study.
type Subject struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
}

// LearningModel is the instructional 3D model a question set belongs to.
// Only metadata is kept; rendering lives elsewhere.
type LearningModel struct {
	ID          string   `json:"id" yaml:"id"`
	SubjectID   string   `json:"subject_id" yaml:"subject_id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	ModelURL    string   `json:"model_url" yaml:"model_url"`
	Labels      []string `json:"labels" yaml:"labels"`
}

// Student is a learner that can appear on the leaderboard.
type Student struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Question is a multiple-choice question. Immutable once authored.
type Question struct {
	ID            string     `json:"id"`
	SubjectID     string     `json:"subject_id"`
	ModelID       string     `json:"model_id"`
	Text          string     `json:"text"`
	Options       []string   `json:"options"`
	CorrectOption int        `json:"correct_option"`
	Difficulty    Difficulty `json:"difficulty"`
}

// Public strips the correct option so the question can be shown to a student.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{
		ID:         q.ID,
		SubjectID:  q.SubjectID,
		ModelID:    q.ModelID,
		Text:       q.Text,
		Options:    q.Options,
		Difficulty: q.Difficulty,
	}
}

// PublicQuestion is a Question without its answer key.
type PublicQuestion struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	ModelID    string     `json:"model_id"`
	Text       string     `json:"text"`
	Options    []string   `json:"options"`
	Difficulty Difficulty `json:"difficulty"`
}

// AnswerEvent is the durable record of one submitted answer.
// Events are never mutated or deleted.
type AnswerEvent struct {
	ID               string     `json:"id"`
	StudentID        string     `json:"student_id"`
	SessionID        string     `json:"session_id"`
	QuestionID       string     `json:"question_id"`
	SubjectID        string     `json:"subject_id"`
	ModelID          string     `json:"model_id"`
	SelectedOption   int        `json:"selected_option"`
	Correct          bool       `json:"correct"`
	Difficulty       Difficulty `json:"difficulty"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	AnsweredAt       time.Time  `json:"answered_at"`
}

// NextEventTime returns the timestamp to record for a new event so that a
// student's events stay strictly increasing in time.
func NextEventTime(last, proposed time.Time) time.Time {
	if !last.IsZero() && !proposed.After(last) {
		return last.Add(time.Microsecond)
	}
	return proposed
}

// SessionStatus represents the state of an assessment session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusAbandoned SessionStatus = "abandoned"
)

// Progress is the position of the current question within a session.
type Progress struct {
	Index int `json:"index"`
	Total int `json:"total"`
}

// Score is the running or final result of a session.
type Score struct {
	Correct int     `json:"correct"`
	Total   int     `json:"total"`
	Ratio   float64 `json:"ratio"`
}

// NewScore builds a Score, with ratio 0 when nothing was answered.
func NewScore(correct, total int) Score {
	s := Score{Correct: correct, Total: total}
	if total > 0 {
		s.Ratio = float64(correct) / float64(total)
	}
	return s
}

// SubjectStats holds accuracy for one subject.
type SubjectStats struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Total       int     `json:"total"`
	Correct     int     `json:"correct"`
	Accuracy    float64 `json:"accuracy"`
}

// WeakTopic is a subject flagged for more practice.
type WeakTopic struct {
	SubjectID   string  `json:"subject_id"`
	SubjectName string  `json:"subject_name"`
	Accuracy    float64 `json:"accuracy"`
	Attempts    int     `json:"attempts"`
}

// PerformanceSummary is derived from a student's answer events and can
// always be rebuilt by replaying them.
type PerformanceSummary struct {
	StudentID        string                  `json:"student_id"`
	TotalAssessments int                     `json:"total_assessments"`
	CorrectAnswers   int                     `json:"correct_answers"`
	Accuracy         float64                 `json:"accuracy"`
	AvgTimeSpent     *float64                `json:"avg_time_spent"` // nil when there are no events
	Subjects         map[string]SubjectStats `json:"subject_wise_performance"`
	WeakTopics       []WeakTopic             `json:"weak_topics"`
}

// LeaderboardEntry is one ranked student.
type LeaderboardEntry struct {
	Rank             int     `json:"rank"`
	StudentID        string  `json:"student_id"`
	Name             string  `json:"name"`
	TotalAssessments int     `json:"total_assessments"`
	CorrectAnswers   int     `json:"correct_answers"`
	Accuracy         float64 `json:"accuracy"`
	AccuracyPercent  float64 `json:"accuracy_percent"`
}
