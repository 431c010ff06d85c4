package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deusflow/briefs/internal/summary"
)

// ErrNoTranslation is returned when a service answers with nothing new.
var ErrNoTranslation = errors.New("no translation produced")

const maxInputChars = 4000

// Google uses the free public Google Translate endpoint.
type Google struct {
	client  *http.Client
	baseURL string
}

func NewGoogle(timeout time.Duration) *Google {
	return &Google{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://translate.googleapis.com/translate_a/single",
	}
}

func (g *Google) Translate(ctx context.Context, text, targetLang string) (string, error) {
	text = cleanTextForTranslation(text)
	if text == "" {
		return "", ErrNoTranslation
	}
	if len([]rune(text)) > maxInputChars {
		text = string([]rune(text)[:maxInputChars])
	}

	params := url.Values{}
	params.Set("client", "gtx")
	params.Set("sl", "auto")
	params.Set("tl", targetLang)
	params.Set("dt", "t") // return translations
	params.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google Translate API returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}

	translation, err := parseGoogleTranslateResponse(body)
	if err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if translation == "" || translation == text {
		return "", ErrNoTranslation
	}
	return translation, nil
}

// parseGoogleTranslateResponse reads the nested array format of the endpoint.
func parseGoogleTranslateResponse(body []byte) (string, error) {
	var response []interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", err
	}
	if len(response) == 0 {
		return "", errors.New("empty response from Google Translate")
	}

	// First element contains translations
	translations, ok := response[0].([]interface{})
	if !ok {
		return "", errors.New("unexpected response format")
	}

	var result strings.Builder
	for _, translation := range translations {
		if parts, ok := translation.([]interface{}); ok && len(parts) > 0 {
			if translated, ok := parts[0].(string); ok {
				result.WriteString(translated)
			}
		}
	}
	return strings.TrimSpace(result.String()), nil
}

// cleanTextForTranslation joins lines and drops fragments too short to matter.
func cleanTextForTranslation(text string) string {
	var clean []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 5 {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, " ")
}

// Chain tries translators in order and returns the first usable result.
type Chain struct {
	translators []summary.Translator
	log         *slog.Logger
}

func NewChain(log *slog.Logger, ts ...summary.Translator) *Chain {
	if log == nil {
		log = slog.Default()
	}
	var kept []summary.Translator
	for _, t := range ts {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &Chain{translators: kept, log: log}
}

func (c *Chain) Len() int { return len(c.translators) }

func (c *Chain) Translate(ctx context.Context, text, targetLang string) (string, error) {
	var errs []error
	for i, t := range c.translators {
		out, err := t.Translate(ctx, text, targetLang)
		if err == nil {
			out = SanitizeAIText(out)
		}
		if err == nil && out != "" {
			return out, nil
		}
		if err == nil {
			err = ErrNoTranslation
		}
		c.log.Warn("translator failed", "index", i, "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoTranslation
	}
	return "", errors.Join(errs...)
}
