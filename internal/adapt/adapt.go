// Package adapt decides which difficulty tier to serve next.
package adapt

import "github.com/pavelanni/assessor/internal/model"

// Seeding thresholds for the start tier of a new session.
const (
	SeedHardAt = 0.8 // accuracy at or above starts hard
	SeedEasyAt = 0.4 // accuracy at or below starts easy
)

// Next returns the tier for the next question. A correct answer promotes
// one tier, an incorrect one demotes one tier; easy and hard absorb.
// Unknown tiers are returned unchanged.
func Next(current model.Difficulty, wasCorrect bool) model.Difficulty {
	r := current.Rank()
	if r < 0 {
		return current
	}
	if wasCorrect {
		r++
	} else {
		r--
	}
	r = max(0, min(r, len(model.Difficulties)-1))
	return model.Difficulties[r]
}

// Seed picks the start tier from a student's last known accuracy.
// Without history (known == false) the session starts at medium.
func Seed(accuracy float64, known bool) model.Difficulty {
	if !known {
		return model.DifficultyMedium
	}
	switch {
	case accuracy >= SeedHardAt:
		return model.DifficultyHard
	case accuracy <= SeedEasyAt:
		return model.DifficultyEasy
	default:
		return model.DifficultyMedium
	}
}

// Nearest orders tiers by distance from target, target first. At equal
// distance the higher tier comes first.
func Nearest(target model.Difficulty) []model.Difficulty {
	t := target.Rank()
	if t < 0 {
		t = model.DifficultyMedium.Rank()
	}
	out := make([]model.Difficulty, 0, len(model.Difficulties))
	out = append(out, model.Difficulties[t])
	for dist := 1; dist < len(model.Difficulties); dist++ {
		if hi := t + dist; hi < len(model.Difficulties) {
			out = append(out, model.Difficulties[hi])
		}
		if lo := t - dist; lo >= 0 {
			out = append(out, model.Difficulties[lo])
		}
	}
	return out
}
