package gemini

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/briefs/internal/lang"
)

// ErrEmptyResponse is returned when the model answers without text.
var ErrEmptyResponse = errors.New("no response from Gemini")

// generator is the single model call the client needs.
type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

type Client struct {
	client   *genai.Client
	gen      generator
	maxChars int
}

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	m := client.GenerativeModel(model)
	m.SetTemperature(0.3)
	return &Client{client: client, gen: &genaiModel{model: m}, maxChars: 6000}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Summarize writes a short news summary of text in the target language.
func (c *Client) Summarize(ctx context.Context, text, targetLang string) (string, error) {
	prompt := fmt.Sprintf(`Summarize the news article below for a general audience.

REQUIREMENTS:
- Write in %s only, 3 to 5 sentences, at most 700 characters.
- Keep names of people, brands and organizations as they are.
- No introductions like "The article says", no markdown, no HTML.

Answer strictly in this format:
SUMMARY: <summary>

ARTICLE:
%s
`, lang.Name(targetLang), clip(text, c.maxChars))

	resp, err := c.gen.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	summary := parseResponse(resp)
	if summary == "" {
		return "", ErrEmptyResponse
	}
	return summary, nil
}

var labelRe = regexp.MustCompile(`(?i)^\s*(SUMMARY|SHRNUTÍ|SUMMARY IN \w+)\s*:\s?`)

// parseResponse takes the text after the SUMMARY label, including
// continuation lines. Without a label the whole answer is used.
func parseResponse(response string) string {
	var b strings.Builder
	labelled := false
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if labelRe.MatchString(line) {
			labelled = true
			b.Reset()
			line = strings.TrimSpace(labelRe.ReplaceAllString(line, ""))
		}
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(line)
	}
	out := strings.TrimSpace(b.String())
	if !labelled {
		out = strings.Join(strings.Fields(response), " ")
	}
	return strings.Trim(out, `"*`)
}

// clip collapses whitespace and cuts long input, preferring a sentence end.
func clip(content string, maxChars int) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	trimmed := string([]rune(content)[:maxChars])
	if idx := strings.LastIndex(trimmed, ". "); idx > maxChars/5 { // keep some meaningful size
		trimmed = trimmed[:idx+1]
	}
	return trimmed + "\n[TRUNCATED]"
}

type genaiModel struct {
	model *genai.GenerativeModel
}

func (g *genaiModel) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}
