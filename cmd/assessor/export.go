package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pavelanni/assessor/internal/leaderboard"
	"github.com/pavelanni/assessor/internal/model"
	"github.com/pavelanni/assessor/internal/stats"
)

// buildExport snapshots the event log and recomputes every read model from
// it.
func buildExport(
	ctx context.Context,
	events stats.EventSource,
	agg *stats.Aggregator,
	ranker *leaderboard.Ranker,
	now time.Time,
) (model.EventExport, error) {
	all, err := events.AllEvents(ctx)
	if err != nil {
		return model.EventExport{}, fmt.Errorf("list events: %w", err)
	}
	summaries, err := agg.SummarizeAll(ctx)
	if err != nil {
		return model.EventExport{}, fmt.Errorf("summarize: %w", err)
	}
	board, err := ranker.Rank(ctx, 0)
	if err != nil {
		return model.EventExport{}, fmt.Errorf("rank: %w", err)
	}
	if all == nil {
		all = []model.AnswerEvent{}
	}
	return model.EventExport{
		ExportedAt:  now,
		EventCount:  len(all),
		Events:      all,
		Summaries:   summaries,
		Leaderboard: board,
	}, nil
}

func writeJSONTo(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
