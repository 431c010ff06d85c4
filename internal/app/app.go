// Package app wires configured adapters into the decision engine and runs
// it once or on a schedule.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/deusflow/briefs/internal/api"
	"github.com/deusflow/briefs/internal/archive"
	"github.com/deusflow/briefs/internal/cache"
	"github.com/deusflow/briefs/internal/config"
	"github.com/deusflow/briefs/internal/dedup"
	"github.com/deusflow/briefs/internal/engine"
	"github.com/deusflow/briefs/internal/feed"
	"github.com/deusflow/briefs/internal/gemini"
	"github.com/deusflow/briefs/internal/kafka"
	"github.com/deusflow/briefs/internal/lock"
	"github.com/deusflow/briefs/internal/logger"
	"github.com/deusflow/briefs/internal/metrics"
	"github.com/deusflow/briefs/internal/ratelimit"
	"github.com/deusflow/briefs/internal/rss"
	"github.com/deusflow/briefs/internal/scheduler"
	"github.com/deusflow/briefs/internal/scraper"
	"github.com/deusflow/briefs/internal/sheets"
	"github.com/deusflow/briefs/internal/storage"
	"github.com/deusflow/briefs/internal/summary"
	"github.com/deusflow/briefs/internal/telegram"
	"github.com/deusflow/briefs/internal/translate"
)

const redisLockKey = "briefs:feed-lock"

type App struct {
	cfg     *config.Config
	engine  *engine.Engine
	store   feed.Store
	budget  *ratelimit.Budget
	memo    *cache.Cache[summary.Result]
	metrics *metrics.Metrics
	log     *slog.Logger
	closers []func() error
}

// New builds every adapter named by cfg. Close releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		cfg:     cfg,
		metrics: metrics.Global,
		log:     logger.With("app"),
	}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	locker, err := a.locker()
	if err != nil {
		return err
	}
	a.store = feed.NewFileStore(cfg.FeedPath, locker)

	source, err := a.source(ctx)
	if err != nil {
		return err
	}
	sink, prior, err := a.sink(ctx)
	if err != nil {
		return err
	}
	archiveStore, err := a.archive(ctx)
	if err != nil {
		return err
	}
	summaries, err := a.summaries(ctx)
	if err != nil {
		return err
	}
	notifiers, err := a.notifiers()
	if err != nil {
		return err
	}

	detector, err := dedup.New(dedup.Config{
		Strategy:    cfg.DedupStrategy,
		Threshold:   cfg.SimilarityThreshold,
		Window:      time.Duration(cfg.DedupWindowHours) * time.Hour,
		Buckets:     buckets(cfg.Policy),
		Aggregators: cfg.Policy.Aggregators,
		Preferred:   cfg.Policy.Preferred,
		StopWords:   cfg.Policy.StopWords,
	})
	if err != nil {
		return fmt.Errorf("failed to build duplicate detector: %w", err)
	}

	a.engine = engine.New(engine.Config{
		Policy: engine.Policy{
			BlockedDomains:  cfg.Policy.BlockedDomains,
			Aggregators:     cfg.Policy.Aggregators,
			Preferred:       cfg.Policy.Preferred,
			ManualGate:      cfg.ManualGate,
			MinArticleChars: cfg.MinArticleChars,
		},
		MaxPerDay:       cfg.MaxPerDay,
		FeedCap:         cfg.FeedCap,
		SummaryMaxRunes: cfg.SummaryMaxRunes,
		CallTimeout:     cfg.RequestTimeout,
	}, engine.Deps{
		Source:    source,
		Fetcher:   scraper.New(cfg.RequestTimeout, logger.With("scraper")),
		Summaries: summaries,
		Archive:   archiveStore,
		Store:     a.store,
		Detector:  detector,
		Sink:      sink,
		Prior:     prior,
		Notifiers: notifiers,
		Logger:    logger.With("engine"),
		Metrics:   a.metrics,
	})
	return nil
}

func buckets(p *config.Policy) []dedup.Bucket {
	out := make([]dedup.Bucket, 0, len(p.TopicBuckets))
	for _, b := range p.TopicBuckets {
		out = append(out, dedup.Bucket{Label: b.Label, Pattern: b.Pattern})
	}
	return out
}

func (a *App) locker() (feed.Locker, error) {
	if a.cfg.LockBackend == "redis" {
		l, err := lock.NewRedisLockerFromURL(a.cfg.RedisURL, redisLockKey, a.cfg.LockTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, l.Close)
		return l, nil
	}
	return lock.NewFileLocker(a.cfg.FeedPath+".lock", a.cfg.LockTTL), nil
}

func (a *App) sheetsClient(ctx context.Context) (*sheets.Client, error) {
	return sheets.NewClient(ctx, a.cfg.GoogleCredentialsFile, a.cfg.SheetID, a.cfg.SheetTab)
}

func (a *App) source(ctx context.Context) (engine.CandidateSource, error) {
	switch a.cfg.CandidateSource {
	case "sheets":
		c, err := a.sheetsClient(ctx)
		if err != nil {
			return nil, err
		}
		return c.Source(), nil
	case "rss":
		urls, err := rss.LoadFeeds(a.cfg.FeedsConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load feeds: %w", err)
		}
		return rss.NewSource(urls, a.cfg.RequestTimeout, logger.With("rss")), nil
	default:
		return engine.FileSource{Path: a.cfg.CandidatesFile}, nil
	}
}

func (a *App) sink(ctx context.Context) (engine.StatusSink, engine.PriorLookup, error) {
	switch a.cfg.StatusSink {
	case "sheets":
		c, err := a.sheetsClient(ctx)
		if err != nil {
			return nil, nil, err
		}
		return c.Sink(logger.With("sheets")).WithRetry(a.cfg.RetryAttempts, a.cfg.RetryDelay), nil, nil
	case "sql":
		l, err := storage.Open(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseURL, logger.With("ledger"))
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, l.Close)
		return l, l, nil
	default:
		return engine.NewLogSink(logger.With("status")), nil, nil
	}
}

func (a *App) archive(ctx context.Context) (engine.ArchiveStore, error) {
	log := logger.With("archive")
	switch a.cfg.ArchiveBackend {
	case "github":
		return archive.NewGitHub(ctx, a.cfg.GitHubToken, a.cfg.GitHubRepo, a.cfg.GitHubBranch, a.cfg.GitHubDir, a.cfg.RequestTimeout, log), nil
	case "s3":
		return archive.NewS3(ctx, a.cfg.S3Bucket, a.cfg.S3Region, a.cfg.S3Endpoint, a.cfg.S3Prefix, log)
	default:
		dir, err := filepath.Abs(a.cfg.ArchiveDir)
		if err != nil {
			return nil, err
		}
		return archive.NewDir(dir, "", log), nil
	}
}

// summaries assembles the summarizer and translator stacks, each LLM call
// charged to the per-run budget.
func (a *App) summaries(ctx context.Context) (*summary.Acquirer, error) {
	a.budget = ratelimit.NewBudget(0)
	a.budget.SetLimit("gemini", a.cfg.MaxGeminiRequests)
	a.budget.SetLimit("openai", a.cfg.MaxOpenAIRequests)

	var (
		summarizers ratelimit.FirstSummarizer
		translators []summary.Translator
	)
	if a.cfg.GeminiAPIKey != "" {
		g, err := gemini.NewClient(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		summarizers = append(summarizers, ratelimit.SummarizerGuard{Provider: "gemini", Budget: a.budget, Next: g})
	}
	if a.cfg.OpenAIAPIKey != "" {
		o := translate.NewOpenAI(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL, a.cfg.OpenAIModel)
		summarizers = append(summarizers, ratelimit.SummarizerGuard{Provider: "openai", Budget: a.budget, Next: o})
		translators = append(translators, ratelimit.TranslatorGuard{Provider: "openai", Budget: a.budget, Next: o})
	}
	if a.cfg.GoogleTranslate {
		translators = append(translators, translate.NewGoogle(a.cfg.RequestTimeout))
	}

	var s summary.Summarizer
	if len(summarizers) > 0 {
		s = summarizers
	}
	var t summary.Translator
	if len(translators) > 0 {
		t = translate.NewChain(logger.With("translate"), translators...)
	}

	if a.cfg.CacheTTLHours > 0 {
		a.memo = cache.New[summary.Result](time.Duration(a.cfg.CacheTTLHours) * time.Hour)
		a.closers = append(a.closers, func() error { a.memo.Close(); return nil })
	}

	return summary.NewAcquirer(s, t, summary.Options{
		TargetLang:      a.cfg.TargetLanguage,
		MinChars:        a.cfg.MinSummaryChars,
		FallbackBudget:  a.cfg.FallbackBudget,
		TranslatePrefix: a.cfg.TranslatePrefix,
		CallTimeout:     a.cfg.RequestTimeout,
	}, a.memo, logger.With("summary")), nil
}

func (a *App) notifiers() ([]engine.Notifier, error) {
	var out []engine.Notifier
	if a.cfg.TelegramToken != "" && a.cfg.TelegramChatID != "" {
		out = append(out, telegram.NewNotifier(a.cfg.TelegramToken, a.cfg.TelegramChatID, logger.With("telegram")))
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewPublisher(kafka.ProducerConfig{Brokers: a.cfg.KafkaBrokers, Topic: a.cfg.KafkaTopic}, logger.With("kafka"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		out = append(out, p)
	}
	return out, nil
}

// RunOnce processes the candidate list one time with a fresh AI budget.
func (a *App) RunOnce(ctx context.Context) (engine.Report, error) {
	a.budget.Reset()
	report, err := a.engine.Run(ctx)
	a.log.Debug("AI budget", "stats", a.budget.GetStats())
	return report, err
}

// Run executes once, or on cfg.Schedule until ctx ends. With HTTPAddr set,
// the read-only API is served for the lifetime of Run.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              a.cfg.HTTPAddr,
			Handler:           api.NewServer(a.store, a.metrics).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.log.Info("Starting monitoring server", "addr", a.cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("HTTP server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if a.cfg.Schedule == "" {
		_, err := a.RunOnce(ctx)
		return err
	}

	s := scheduler.New(logger.With("scheduler"))
	err := s.Add(ctx, a.cfg.Schedule, "publish", func(ctx context.Context) error {
		_, err := a.RunOnce(ctx)
		return err
	})
	if err != nil {
		return err
	}
	a.log.Info("scheduler started", "schedule", a.cfg.Schedule)
	s.Run(ctx)
	return nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
