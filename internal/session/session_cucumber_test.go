package session

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/pavelanni/assessor/internal/apperr"
	"github.com/pavelanni/assessor/internal/model"
)

// TestAdaptiveSessionFeatures executes the session feature scenarios via godog.
func TestAdaptiveSessionFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "adaptive-session",
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{filepath.Join("features", "adaptive_session.feature")},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatalf("non-zero godog status")
	}
}

// InitializeScenario wires step definitions for the session feature tests.
func InitializeScenario(ctx *godog.ScenarioContext) {
	state := &sessionState{}
	ctx.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.Step(`^a question bank with (\d+) questions at each difficulty for model "([^"]+)"$`, state.givenBank)
	ctx.Step(`^student "([^"]+)" starts a session on model "([^"]+)" at "([^"]+)" difficulty$`, state.startSession)
	ctx.Step(`^the student answers correctly$`, func() error { return state.answer(true) })
	ctx.Step(`^the student answers incorrectly$`, func() error { return state.answer(false) })
	ctx.Step(`^the student advances$`, state.advance)
	ctx.Step(`^the student resubmits the last answer$`, state.resubmit)
	ctx.Step(`^the student selects option (\d+)$`, state.selectOption)
	ctx.Step(`^the student answers every question alternating correct and incorrect$`, state.answerAll)
	ctx.Step(`^the difficulty sequence is "([^"]+)"$`, state.difficultySequenceIs)
	ctx.Step(`^the next difficulty is "([^"]+)"$`, state.nextDifficultyIs)
	ctx.Step(`^the last error code is "([^"]+)"$`, state.lastErrorIs)
	ctx.Step(`^(\d+) events are recorded$`, state.eventsRecorded)
	ctx.Step(`^the session is completed with score (\d+) of (\d+)$`, state.completedWithScore)
}

// sessionState holds scenario state for the feature tests.
type sessionState struct {
	bank       *memBank
	events     *memEvents
	controller *Controller
	sessionID  string
	current    *model.PublicQuestion
	lastAnswer Answer
	sequence   []model.Difficulty
	next       model.Difficulty
	final      *model.Score
	lastErr    error
}

func (s *sessionState) reset() {
	*s = sessionState{events: &memEvents{}}
}

func (s *sessionState) givenBank(perTier int, modelID string) error {
	s.bank = newBank(modelID, perTier)
	s.controller = New(s.bank, s.events, Config{})
	return nil
}

func (s *sessionState) startSession(studentID, modelID, difficulty string) error {
	st, err := s.controller.Start(context.Background(), StartRequest{
		StudentID:         studentID,
		SubjectID:         "anatomy",
		ModelID:           modelID,
		InitialDifficulty: model.Difficulty(difficulty),
	})
	s.lastErr = err
	if err != nil {
		return nil
	}
	s.sessionID = st.SessionID
	s.current = &st.Question
	s.sequence = []model.Difficulty{st.Difficulty}
	return nil
}

func (s *sessionState) answer(correct bool) error {
	if s.current == nil {
		return fmt.Errorf("no question is being served")
	}
	opt := 1
	if !correct {
		opt = 0
	}
	s.lastAnswer = Answer{QuestionID: s.current.ID, SelectedOption: opt, TimeSpentSeconds: 4}
	res, err := s.controller.Submit(context.Background(), s.sessionID, s.lastAnswer)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if res.IsCorrect != correct {
		return fmt.Errorf("expected correct=%v, got %v", correct, res.IsCorrect)
	}
	s.next = res.NextDifficulty
	s.sequence = append(s.sequence, res.NextDifficulty)
	return nil
}

func (s *sessionState) advance() error {
	res, err := s.controller.Advance(context.Background(), s.sessionID)
	s.lastErr = err
	if err != nil {
		return nil
	}
	if res.Completed {
		s.current = nil
		s.final = res.Score
		return nil
	}
	s.current = res.Question
	return nil
}

func (s *sessionState) resubmit() error {
	_, s.lastErr = s.controller.Submit(context.Background(), s.sessionID, s.lastAnswer)
	return nil
}

func (s *sessionState) selectOption(opt int) error {
	if s.current == nil {
		return fmt.Errorf("no question is being served")
	}
	_, s.lastErr = s.controller.Submit(context.Background(), s.sessionID, Answer{QuestionID: s.current.ID, SelectedOption: opt})
	return nil
}

func (s *sessionState) answerAll() error {
	for correct := true; s.current != nil; correct = !correct {
		if err := s.answer(correct); err != nil {
			return err
		}
		if err := s.advance(); err != nil {
			return err
		}
		if s.lastErr != nil {
			return s.lastErr
		}
	}
	return nil
}

func (s *sessionState) difficultySequenceIs(want string) error {
	var got []string
	for _, d := range s.sequence {
		got = append(got, string(d))
	}
	if strings.Join(got, ", ") != want {
		return fmt.Errorf("difficulty sequence %q, want %q", strings.Join(got, ", "), want)
	}
	return nil
}

func (s *sessionState) nextDifficultyIs(want string) error {
	if string(s.next) != want {
		return fmt.Errorf("next difficulty %s, want %s", s.next, want)
	}
	return nil
}

func (s *sessionState) lastErrorIs(code string) error {
	if got := apperr.GetCode(s.lastErr); string(got) != code {
		return fmt.Errorf("last error code %s (%v), want %s", got, s.lastErr, code)
	}
	return nil
}

func (s *sessionState) eventsRecorded(n int) error {
	if got := s.events.count(); got != n {
		return fmt.Errorf("%d events recorded, want %d", got, n)
	}
	return nil
}

func (s *sessionState) completedWithScore(correct, total int) error {
	if s.final == nil {
		return fmt.Errorf("session is not completed")
	}
	if s.final.Correct != correct || s.final.Total != total {
		return fmt.Errorf("score %d/%d, want %d/%d", s.final.Correct, s.final.Total, correct, total)
	}
	return nil
}
