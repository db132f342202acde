package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetCodeThroughWrapping(t *testing.T) {
	base := New(CodeQuestionMismatch, "question q2 is not being served")
	wrapped := fmt.Errorf("submit: %w", base)

	if got := GetCode(wrapped); got != CodeQuestionMismatch {
		t.Errorf("GetCode = %q, want %q", got, CodeQuestionMismatch)
	}
	if !IsCode(wrapped, CodeQuestionMismatch) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if GetCode(errors.New("plain")) != CodeUnknown {
		t.Error("plain errors should map to CodeUnknown")
	}
	if GetCode(nil) != CodeUnknown {
		t.Error("nil should map to CodeUnknown")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidSession, http.StatusNotFound},
		{CodeNotFound, http.StatusNotFound},
		{CodeQuestionMismatch, http.StatusConflict},
		{CodeSessionCompleted, http.StatusConflict},
		{CodeContentUnavailable, http.StatusUnprocessableEntity},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWithCopiesMetadata(t *testing.T) {
	e := New(CodeValidation, "bad option")
	e1 := e.With("field", "selected_option")
	e2 := e1.With("max", "3")

	if e.Metadata != nil {
		t.Error("original error must not be modified")
	}
	if len(e1.Metadata) != 1 || len(e2.Metadata) != 2 {
		t.Errorf("unexpected metadata sizes %d, %d", len(e1.Metadata), len(e2.Metadata))
	}
	if GetMetadata(fmt.Errorf("x: %w", e2))["max"] != "3" {
		t.Error("metadata lost through wrapping")
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeUnknown, "append event", cause)
	if !errors.Is(err, cause) {
		t.Error("Wrap should keep the cause reachable")
	}
}
