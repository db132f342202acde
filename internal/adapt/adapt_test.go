package adapt

import (
	"slices"
	"testing"

	"github.com/pavelanni/assessor/internal/model"
)

func TestNextTruthTable(t *testing.T) {
	tests := []struct {
		current model.Difficulty
		correct bool
		want    model.Difficulty
	}{
		{model.DifficultyEasy, true, model.DifficultyMedium},
		{model.DifficultyEasy, false, model.DifficultyEasy},
		{model.DifficultyMedium, true, model.DifficultyHard},
		{model.DifficultyMedium, false, model.DifficultyEasy},
		{model.DifficultyHard, true, model.DifficultyHard},
		{model.DifficultyHard, false, model.DifficultyMedium},
	}
	for _, tt := range tests {
		if got := Next(tt.current, tt.correct); got != tt.want {
			t.Errorf("Next(%s, %v) = %s, want %s", tt.current, tt.correct, got, tt.want)
		}
	}
}

func TestNextAbsorbs(t *testing.T) {
	d := model.DifficultyMedium
	for range 10 {
		d = Next(d, true)
	}
	if d != model.DifficultyHard {
		t.Errorf("repeated success ended at %s, want hard", d)
	}
	for range 10 {
		d = Next(d, false)
	}
	if d != model.DifficultyEasy {
		t.Errorf("repeated failure ended at %s, want easy", d)
	}
}

func TestNextScenario(t *testing.T) {
	seq := []model.Difficulty{model.DifficultyMedium}
	for _, correct := range []bool{true, true, false} {
		seq = append(seq, Next(seq[len(seq)-1], correct))
	}
	want := []model.Difficulty{model.DifficultyMedium, model.DifficultyHard, model.DifficultyHard, model.DifficultyMedium}
	if !slices.Equal(seq, want) {
		t.Errorf("sequence = %v, want %v", seq, want)
	}
}

func TestSeed(t *testing.T) {
	tests := []struct {
		name     string
		accuracy float64
		known    bool
		want     model.Difficulty
	}{
		{"no history", 0.95, false, model.DifficultyMedium},
		{"high", 0.8, true, model.DifficultyHard},
		{"perfect", 1, true, model.DifficultyHard},
		{"middle", 0.6, true, model.DifficultyMedium},
		{"just above floor", 0.41, true, model.DifficultyMedium},
		{"floor", 0.4, true, model.DifficultyEasy},
		{"zero", 0, true, model.DifficultyEasy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Seed(tt.accuracy, tt.known); got != tt.want {
				t.Errorf("Seed(%v, %v) = %s, want %s", tt.accuracy, tt.known, got, tt.want)
			}
		})
	}
}

func TestNearestTieBreaksHigher(t *testing.T) {
	tests := []struct {
		target model.Difficulty
		want   []model.Difficulty
	}{
		{model.DifficultyMedium, []model.Difficulty{model.DifficultyMedium, model.DifficultyHard, model.DifficultyEasy}},
		{model.DifficultyEasy, []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}},
		{model.DifficultyHard, []model.Difficulty{model.DifficultyHard, model.DifficultyMedium, model.DifficultyEasy}},
	}
	for _, tt := range tests {
		if got := Nearest(tt.target); !slices.Equal(got, tt.want) {
			t.Errorf("Nearest(%s) = %v, want %v", tt.target, got, tt.want)
		}
	}
}
