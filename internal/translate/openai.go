package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/briefs/internal/lang"
)

// OpenAI talks to any OpenAI-compatible chat endpoint (OpenAI, Perplexity, Groq).
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Summarize(ctx context.Context, text, targetLang string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the following news article in %s.
Write 3 to 5 sentences, at most 700 characters, in a neutral journalistic tone.
Return only the summary text without headings, markdown or comments.

Article:
%s`, lang.Name(targetLang), truncateRunes(text, maxInputChars))
	return o.complete(ctx, prompt, 600)
}

func (o *OpenAI) Translate(ctx context.Context, text, targetLang string) (string, error) {
	prompt := fmt.Sprintf(`Translate the following news text to %s.
Keep the meaning, tone and journalistic style of the original.
Translate only the text itself, without additional comments.

Text to translate:
%s`, lang.Name(targetLang), truncateRunes(text, maxInputChars))
	return o.complete(ctx, prompt, 1200)
}

func (o *OpenAI) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	out := SanitizeAIText(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrNoTranslation
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}
