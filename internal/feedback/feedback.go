// Package feedback renders the text shown to a student after an answer.
package feedback

import (
	"context"
	"log/slog"
	"time"

	"github.com/pavelanni/assessor/internal/i18n"
	"github.com/pavelanni/assessor/internal/model"
)

// Explainer produces an optional explanation for a wrong answer.
type Explainer interface {
	Explain(ctx context.Context, q model.Question, selected int) (string, error)
}

// Provider selects localized feedback by correctness.
type Provider struct {
	explainer Explainer
	timeout   time.Duration
}

// New creates a Provider. explainer may be nil; timeout bounds each
// explanation request and 0 leaves it to the caller's context.
func New(explainer Explainer, timeout time.Duration) *Provider {
	return &Provider{explainer: explainer, timeout: timeout}
}

// Feedback returns the affirming message on a correct answer, otherwise the
// corrective message naming the expected option, followed by an explanation
// when one is available.
func (p *Provider) Feedback(ctx context.Context, q model.Question, selected int, correct bool) string {
	if correct {
		return i18n.T(ctx, "FeedbackCorrect")
	}

	answer := ""
	if q.CorrectOption >= 0 && q.CorrectOption < len(q.Options) {
		answer = q.Options[q.CorrectOption]
	}
	text := i18n.Td(ctx, "FeedbackIncorrect", map[string]any{"Answer": answer})

	if p.explainer == nil {
		return text
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	explanation, err := p.explainer.Explain(ctx, q, selected)
	if err != nil {
		slog.Warn("explanation unavailable", "question_id", q.ID, "error", err)
		return text
	}
	if explanation == "" {
		return text
	}
	return text + " " + i18n.Td(ctx, "FeedbackExplanation", map[string]any{"Explanation": explanation})
}

// Remaining reports how many questions are left in the session.
func (p *Provider) Remaining(ctx context.Context, n int) string {
	return i18n.Tp(ctx, "QuestionsRemaining", n)
}

// Completed returns the closing message with the final score.
func (p *Provider) Completed(ctx context.Context, score model.Score) string {
	return i18n.Td(ctx, "SessionComplete", map[string]any{"Correct": score.Correct, "Total": score.Total})
}
