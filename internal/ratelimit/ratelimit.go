// Package ratelimit caps how many calls a single run may make to each
// paid AI provider.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deusflow/briefs/internal/logger"
	"github.com/deusflow/briefs/internal/retry"
	"github.com/deusflow/briefs/internal/summary"
)

// ErrBudgetExhausted is returned once a provider has used up its calls.
var ErrBudgetExhausted = errors.New("AI request budget exhausted")

// Budget counts calls per provider. A limit of 0 means unlimited.
type Budget struct {
	mu       sync.Mutex
	limits   map[string]int
	used     map[string]int
	maxTotal int
	total    int
	denied   int
}

func NewBudget(maxTotal int) *Budget {
	return &Budget{
		limits:   make(map[string]int),
		used:     make(map[string]int),
		maxTotal: maxTotal,
	}
}

// SetLimit sets the per-run cap for provider.
func (b *Budget) SetLimit(provider string, max int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[provider] = max
}

// Take reserves one call for provider, or fails if the budget is spent.
func (b *Budget) Take(provider string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if max := b.limits[provider]; max > 0 && b.used[provider] >= max {
		b.denied++
		logger.Warn("⚠️ AI rate limit reached", "provider", provider, "used", b.used[provider], "max", max)
		return fmt.Errorf("%s: %w", provider, ErrBudgetExhausted)
	}
	if b.maxTotal > 0 && b.total >= b.maxTotal {
		b.denied++
		logger.Warn("⚠️ Total AI rate limit reached", "used", b.total, "max", b.maxTotal)
		return fmt.Errorf("%s: %w", provider, ErrBudgetExhausted)
	}
	b.used[provider]++
	b.total++
	return nil
}

// Remaining returns calls left for provider, or -1 when unlimited.
func (b *Budget) Remaining(provider string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	max := b.limits[provider]
	if max <= 0 {
		return -1
	}
	if left := max - b.used[provider]; left > 0 {
		return left
	}
	return 0
}

// Reset clears usage, typically at the start of a run.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used = make(map[string]int)
	b.total = 0
	b.denied = 0
}

func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	used := make(map[string]int, len(b.used))
	for k, v := range b.used {
		used[k] = v
	}
	return map[string]interface{}{
		"used":      used,
		"total":     b.total,
		"max_total": b.maxTotal,
		"denied":    b.denied,
	}
}

// SummarizerGuard charges a Budget before delegating.
type SummarizerGuard struct {
	Provider string
	Budget   *Budget
	Next     summary.Summarizer
}

func (g SummarizerGuard) Summarize(ctx context.Context, text, targetLang string) (string, error) {
	if err := g.Budget.Take(g.Provider); err != nil {
		return "", retry.Permanent(err)
	}
	return g.Next.Summarize(ctx, text, targetLang)
}

// TranslatorGuard charges a Budget before delegating.
type TranslatorGuard struct {
	Provider string
	Budget   *Budget
	Next     summary.Translator
}

func (g TranslatorGuard) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if err := g.Budget.Take(g.Provider); err != nil {
		return "", retry.Permanent(err)
	}
	return g.Next.Translate(ctx, text, targetLang)
}

// FirstSummarizer tries summarizers in order until one succeeds.
type FirstSummarizer []summary.Summarizer

func (f FirstSummarizer) Summarize(ctx context.Context, text, targetLang string) (string, error) {
	var errs []error
	for _, s := range f {
		out, err := s.Summarize(ctx, text, targetLang)
		if err == nil && out != "" {
			return out, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return "", errors.New("no summarizer produced output")
	}
	return "", errors.Join(errs...)
}
