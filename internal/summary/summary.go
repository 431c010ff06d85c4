// Package summary obtains a publishable summary in the target language.
//
// Preference order: a usable precomputed summary, the summarizer's output,
// a translation of that output (or of the article's opening), and finally a
// sentence extract of the article, translated if needed. A result that never
// reaches the target language is withheld rather than published.
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/briefs/internal/cache"
	"github.com/deusflow/briefs/internal/lang"
	"github.com/deusflow/briefs/internal/retry"
)

var (
	// ErrWithheld: every path produced text outside the target language.
	ErrWithheld = errors.New("summary is not in the target language")
	// ErrUnavailable: nothing usable could be produced at all.
	ErrUnavailable = errors.New("summary unavailable")
)

type Summarizer interface {
	Summarize(ctx context.Context, text, targetLang string) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

type Source string

const (
	SourcePrecomputed Source = "precomputed"
	SourceLLM         Source = "llm"
	SourceTranslated  Source = "translated"
	SourceExtract     Source = "extract"
)

type Result struct {
	Text   string
	Source Source
}

type Options struct {
	TargetLang      string
	MinChars        int           // shortest acceptable summary
	FallbackBudget  int           // extract length cap
	TranslatePrefix int           // raw text prefix translated as a last resort
	CallTimeout     time.Duration // per outbound call
}

type Acquirer struct {
	summarizer Summarizer
	translator Translator
	opts       Options
	memo       *cache.Cache[Result]
	log        *slog.Logger

	// Retry bounds each outbound sub-step to one extra attempt.
	Retry retry.Policy
}

func NewAcquirer(s Summarizer, t Translator, opts Options, memo *cache.Cache[Result], log *slog.Logger) *Acquirer {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 20 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Acquirer{
		summarizer: s,
		translator: t,
		opts:       opts,
		memo:       memo,
		log:        log,
		Retry:      retry.Policy{MaxAttempts: 2, BaseDelay: time.Second},
	}
}

// Valid reports whether text can be published as is.
func (a *Acquirer) Valid(text string) bool {
	if lang.LooksHTML(text) {
		return false
	}
	if utf8.RuneCountInString(text) < a.opts.MinChars {
		return false
	}
	return lang.Is(a.opts.TargetLang, text)
}

// Ensure returns a summary for the article text. precomputed wins when Valid.
func (a *Acquirer) Ensure(ctx context.Context, precomputed, text string) (Result, error) {
	if a.Valid(precomputed) {
		return Result{Text: precomputed, Source: SourcePrecomputed}, nil
	}

	if lang.LooksHTML(text) {
		text = lang.StripHTML(text)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: no article text", ErrUnavailable)
	}

	key := cache.Key(a.opts.TargetLang, text)
	if a.memo != nil {
		if r, ok := a.memo.Get(key); ok {
			a.log.Debug("summary cache hit")
			return r, nil
		}
	}

	r, err := a.acquire(ctx, text)
	if err == nil && a.memo != nil {
		a.memo.Set(key, r)
	}
	return r, err
}

func (a *Acquirer) acquire(ctx context.Context, text string) (Result, error) {
	if a.summarizer != nil {
		out, err := a.call(ctx, func(ctx context.Context) (string, error) {
			return a.summarizer.Summarize(ctx, text, a.opts.TargetLang)
		})
		out = lang.StripHTML(out)
		switch {
		case err != nil:
			a.log.Warn("summarizer failed, using extract", "error", err)
		case utf8.RuneCountInString(out) < a.opts.MinChars:
			a.log.Warn("summarizer output too short, using extract", "chars", utf8.RuneCountInString(out))
		case lang.Is(a.opts.TargetLang, out):
			return Result{Text: out, Source: SourceLLM}, nil
		default:
			if t, ok := a.translate(ctx, out); ok {
				return Result{Text: t, Source: SourceTranslated}, nil
			}
			if t, ok := a.translate(ctx, prefix(text, a.opts.TranslatePrefix)); ok {
				return Result{Text: t, Source: SourceTranslated}, nil
			}
			return Result{Text: out, Source: SourceLLM}, ErrWithheld
		}
	}

	extract := Extract(text, a.opts.FallbackBudget)
	if extract == "" {
		return Result{}, ErrUnavailable
	}
	if lang.Is(a.opts.TargetLang, extract) {
		return Result{Text: extract, Source: SourceExtract}, nil
	}
	if t, ok := a.translate(ctx, extract); ok {
		return Result{Text: t, Source: SourceTranslated}, nil
	}
	return Result{Text: extract, Source: SourceExtract}, ErrWithheld
}

// translate returns the translation only when it lands in the target language.
func (a *Acquirer) translate(ctx context.Context, text string) (string, bool) {
	if a.translator == nil || text == "" {
		return "", false
	}
	out, err := a.call(ctx, func(ctx context.Context) (string, error) {
		return a.translator.Translate(ctx, text, a.opts.TargetLang)
	})
	if err != nil {
		a.log.Warn("translation failed", "error", err)
		return "", false
	}
	out = lang.StripHTML(out)
	if !lang.Is(a.opts.TargetLang, out) {
		return "", false
	}
	return out, true
}

func (a *Acquirer) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	var out string
	err := a.Retry.Do(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
		defer cancel()
		s, err := fn(cctx)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func prefix(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
