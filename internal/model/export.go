package model

import "time"

// EventExport is the top-level JSON structure written by the export command.
// Summaries and leaderboard are recomputed from Events at export time.
type EventExport struct {
	ExportedAt  time.Time            `json:"exported_at"`
	EventCount  int                  `json:"event_count"`
	Events      []AnswerEvent        `json:"events"`
	Summaries   []PerformanceSummary `json:"summaries"`
	Leaderboard []LeaderboardEntry   `json:"leaderboard"`
}

// QuestionImport is used for loading questions from JSON or YAML.
type QuestionImport struct {
	ID            string     `json:"id" yaml:"id"`
	SubjectID     string     `json:"subject_id" yaml:"subject_id"`
	ModelID       string     `json:"model_id" yaml:"model_id"`
	Text          string     `json:"text" yaml:"text"`
	Options       []string   `json:"options" yaml:"options"`
	CorrectOption int        `json:"correct_option" yaml:"correct_option"`
	Difficulty    Difficulty `json:"difficulty" yaml:"difficulty"`
}

// CatalogImport is a full content file: subjects, models and questions.
type CatalogImport struct {
	Subjects  []Subject        `json:"subjects" yaml:"subjects"`
	Models    []LearningModel  `json:"models" yaml:"models"`
	Students  []Student        `json:"students" yaml:"students"`
	Questions []QuestionImport `json:"questions" yaml:"questions"`
}
