// Package leaderboard ranks students by accuracy.
package leaderboard

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/pavelanni/assessor/internal/model"
)

// Rank orders summaries by accuracy descending, then attempts descending,
// then student ID. Students without events are left out. names may be nil;
// limit <= 0 means no limit.
func Rank(summaries []model.PerformanceSummary, names map[string]string, limit int) []model.LeaderboardEntry {
	ranked := make([]model.PerformanceSummary, 0, len(summaries))
	for _, s := range summaries {
		if s.TotalAssessments > 0 {
			ranked = append(ranked, s)
		}
	}

	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		// Cross-multiply so equal ratios compare equal regardless of float rounding.
		lhs := int64(a.CorrectAnswers) * int64(b.TotalAssessments)
		rhs := int64(b.CorrectAnswers) * int64(a.TotalAssessments)
		if lhs != rhs {
			return lhs > rhs
		}
		if a.TotalAssessments != b.TotalAssessments {
			return a.TotalAssessments > b.TotalAssessments
		}
		return a.StudentID < b.StudentID
	})

	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}

	entries := make([]model.LeaderboardEntry, 0, len(ranked))
	for i, s := range ranked {
		name := names[s.StudentID]
		if name == "" {
			name = s.StudentID
		}
		entries = append(entries, model.LeaderboardEntry{
			Rank:             i + 1,
			StudentID:        s.StudentID,
			Name:             name,
			TotalAssessments: s.TotalAssessments,
			CorrectAnswers:   s.CorrectAnswers,
			Accuracy:         s.Accuracy,
			AccuracyPercent:  math.Round(s.Accuracy*10000) / 100,
		})
	}
	return entries
}

// SummarySource provides summaries for every student.
type SummarySource interface {
	SummarizeAll(ctx context.Context) ([]model.PerformanceSummary, error)
}

// StudentNamer resolves student display names.
type StudentNamer interface {
	StudentNames(ctx context.Context) (map[string]string, error)
}

// Ranker builds the leaderboard from the current event log.
type Ranker struct {
	summaries SummarySource
	names     StudentNamer
}

// NewRanker creates a Ranker. names may be nil.
func NewRanker(summaries SummarySource, names StudentNamer) *Ranker {
	return &Ranker{summaries: summaries, names: names}
}

// Rank returns the top limit entries (all when limit <= 0).
func (r *Ranker) Rank(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	sums, err := r.summaries.SummarizeAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("summarize students: %w", err)
	}
	var names map[string]string
	if r.names != nil {
		names, err = r.names.StudentNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("load student names: %w", err)
		}
	}
	return Rank(sums, names, limit), nil
}
