// Package summary condenses long bill summaries before they are posted.
package summary

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAISummarizer asks a chat model for a shorter summary. Without an API
// key it is disabled and returns text unchanged.
type OpenAISummarizer struct {
	client  *openai.Client
	prompt  string
	enabled bool
	mu      sync.Mutex
}

func NewOpenAISummarizer(apiKey, prompt string, log *logrus.Entry) *OpenAISummarizer {
	return newSummarizer(openai.DefaultConfig(apiKey), apiKey != "", prompt, log)
}

func newSummarizer(cfg openai.ClientConfig, enabled bool, prompt string, log *logrus.Entry) *OpenAISummarizer {
	log.WithField("enabled", enabled).Info("openai summarizer configured")

	return &OpenAISummarizer{
		client:  openai.NewClientWithConfig(cfg),
		prompt:  prompt,
		enabled: enabled,
	}
}

func (s *OpenAISummarizer) Enabled() bool {
	return s.enabled
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	if !s.enabled || strings.TrimSpace(text) == "" {
		return text, nil
	}

	// one request at a time keeps us under the account's rate limit
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: openai.GPT3Dot5Turbo,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: text + "\n\n" + s.prompt,
			},
		},
		MaxTokens:   256,
		Temperature: 0.7,
		TopP:        1,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	return completeSentences(resp.Choices[0].Message.Content), nil
}

// completeSentences drops a trailing sentence cut off by the token limit.
func completeSentences(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasSuffix(raw, ".") {
		return raw
	}

	last := strings.LastIndex(raw, ".")
	if last < 0 {
		return raw
	}
	return raw[:last+1]
}
