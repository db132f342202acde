package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "FeedbackCorrect"); got != "Great job!" {
		t.Errorf("T(FeedbackCorrect) = %q, want 'Great job!'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	if got := T(ctx, "FeedbackCorrect"); got != "Отлично!" {
		t.Errorf("T(FeedbackCorrect) = %q, want 'Отлично!'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "FeedbackIncorrect", map[string]any{"Answer": "Left Ventricle"})
	if got != "The correct answer was: Left Ventricle" {
		t.Errorf("Td(FeedbackIncorrect) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "QuestionsRemaining", 1); got != "1 question remaining." {
		t.Errorf("Tp(QuestionsRemaining, 1) = %q", got)
	}
	if got := Tp(ctx, "QuestionsRemaining", 5); got != "5 questions remaining." {
		t.Errorf("Tp(QuestionsRemaining, 5) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareUsesAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "FeedbackCorrect")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Отлично!" {
		t.Errorf("ru request got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "Great job!" {
		t.Errorf("default request got %q", got)
	}
}

func TestLanguages(t *testing.T) {
	initLang(t, "en")
	if n := len(Languages()); n < 2 {
		t.Errorf("expected at least 2 languages, got %d", n)
	}
}
