package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/assessor/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Explanation is the LLM's account of why an answer was wrong.
type Explanation struct {
	Explanation string `json:"explanation"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	lang  string
}

// New creates a new LLM client. lang selects the reply language.
func New(baseURL, apiKey, modelName, lang string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		lang:  lang,
	}
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM list models: %w", err)
	}
	return nil
}

// Explain asks the LLM for a short explanation of why the selected option
// is wrong and the correct one is right.
func (c *Client) Explain(ctx context.Context, q model.Question, selected int) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildExplainSystemPrompt(c.lang)},
			{Role: openai.ChatMessageRoleUser, Content: buildExplainUserPrompt(q, selected)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseExplanation(raw)
}

func parseExplanation(raw string) (string, error) {
	var result Explanation
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	return strings.TrimSpace(result.Explanation), nil
}

func buildExplainSystemPrompt(lang string) string {
	var sb strings.Builder
	sb.WriteString("You are a tutor reviewing a multiple-choice answer.\n")
	sb.WriteString("Explain in one or two sentences why the correct option is right and the chosen option is not.\n")
	if lang != "" && lang != "en" {
		sb.WriteString(fmt.Sprintf("Reply in the language with code %q.\n", lang))
	}
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"explanation": "<short explanation>"}`)
	sb.WriteString("\n")
	return sb.String()
}

func buildExplainUserPrompt(q model.Question, selected int) string {
	var sb strings.Builder
	sb.WriteString("QUESTION: " + q.Text + "\n\n")
	sb.WriteString("OPTIONS:\n")
	for i, opt := range q.Options {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, opt))
	}
	if selected >= 0 && selected < len(q.Options) {
		sb.WriteString(fmt.Sprintf("\nSTUDENT CHOSE: %d. %s\n", selected+1, q.Options[selected]))
	}
	if q.CorrectOption >= 0 && q.CorrectOption < len(q.Options) {
		sb.WriteString(fmt.Sprintf("CORRECT ANSWER: %d. %s\n", q.CorrectOption+1, q.Options[q.CorrectOption]))
	}
	return sb.String()
}
