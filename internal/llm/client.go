// Package llm is the chat-completion gateway used by the classifier, the
// script-match analyzer and the feedback generator.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"callfeedback/internal/logger"
)

const defaultTimeout = 90 * time.Second

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("llm returned empty content")

type Request struct {
	Model       string
	System      string
	User        string
	JSON        bool
	Temperature float32
	MaxTokens   int
}

// Completer is the model surface the pipeline stages depend on.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client implements Completer with the OpenAI chat completions API.
type Client struct {
	api     *openai.Client
	timeout time.Duration
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{api: openai.NewClientWithConfig(oc), timeout: timeout}
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("llm complete: model required")
	}
	if strings.TrimSpace(req.User) == "" {
		return "", errors.New("llm complete: user prompt required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if s := strings.TrimSpace(req.System); s != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return "", fmt.Errorf("llm complete (%s): %w", req.Model, err)
	}
	logger.Component("llm").WithField("model", req.Model).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("total_tokens", resp.Usage.TotalTokens).Debug("chat completion finished")
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// DecodeJSON pulls the first JSON object out of a model reply and decodes it.
func DecodeJSON(content string, v any) error {
	raw := ExtractJSON(content)
	if raw == "" {
		return errors.New("no JSON object in llm output")
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode llm JSON: %w", err)
	}
	return nil
}

// ExtractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first.
func ExtractJSON(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```JSON", "```"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
