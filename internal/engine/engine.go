package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/deusflow/briefs/internal/dedup"
	"github.com/deusflow/briefs/internal/feed"
	"github.com/deusflow/briefs/internal/metrics"
	"github.com/deusflow/briefs/internal/summary"
)

type Config struct {
	Policy          Policy
	MaxPerDay       int
	FeedCap         int
	SummaryMaxRunes int
	PublishAttempts int
	CallTimeout     time.Duration // fetch, archive and notify calls
}

type Deps struct {
	Source    CandidateSource
	Fetcher   ContentFetcher
	Summaries SummaryProvider
	Archive   ArchiveStore
	Store     feed.Store
	Detector  dedup.Detector
	Sink      StatusSink
	Prior     PriorLookup // optional
	Notifiers []Notifier  // optional
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

type Engine struct {
	cfg       Config
	source    CandidateSource
	fetcher   ContentFetcher
	summaries SummaryProvider
	archive   ArchiveStore
	store     feed.Store
	detector  dedup.Detector
	sink      StatusSink
	prior     PriorLookup
	notifiers []Notifier
	publisher *Publisher
	log       *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(cfg Config, d Deps) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 20 * time.Second
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Global
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sink == nil {
		d.Sink = NewLogSink(d.Logger)
	}
	return &Engine{
		cfg:       cfg,
		source:    d.Source,
		fetcher:   d.Fetcher,
		summaries: d.Summaries,
		archive:   d.Archive,
		store:     d.Store,
		detector:  d.Detector,
		sink:      d.Sink,
		prior:     d.Prior,
		notifiers: d.Notifiers,
		log:       d.Logger,
		metrics:   d.Metrics,
		now:       d.Now,
		publisher: &Publisher{
			Store:      d.Store,
			Detector:   d.Detector,
			MaxPerDay:  cfg.MaxPerDay,
			Cap:        cfg.FeedCap,
			SummaryMax: cfg.SummaryMaxRunes,
			Attempts:   cfg.PublishAttempts,
		},
	}
}

// Run processes every candidate once. Only ErrAbort conditions end it early.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	candidates, err := e.source.Candidates(ctx)
	if err != nil {
		e.metrics.SetError(err.Error())
		return report, fmt.Errorf("%w: reading candidates: %v", ErrAbort, err)
	}
	e.log.Info("candidates loaded", "count", len(candidates))

	candidates = e.withPrior(ctx, candidates)
	e.order(candidates)

	snap, err := e.store.Read(ctx)
	if err != nil {
		e.metrics.SetError(err.Error())
		return report, fmt.Errorf("%w: reading feed: %v", ErrAbort, err)
	}

	for _, c := range candidates {
		out, err := e.safeProcess(ctx, &snap, c)
		if err != nil {
			e.flush(ctx)
			e.metrics.SetError(err.Error())
			return report, err
		}
		report.add(out)
	}

	e.flush(ctx)
	e.metrics.RecordProcessingTime(time.Since(start))
	e.metrics.SetLastRun()
	e.log.Info("run finished",
		"total", report.Total,
		"published", report.Published,
		"review", report.Review,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"unchanged", report.NoOp,
		"duration", time.Since(start).Round(time.Millisecond))
	return report, nil
}

func (e *Engine) flush(ctx context.Context) {
	if err := e.sink.Flush(ctx); err != nil {
		e.log.Error("status flush failed", "error", err)
	}
}

func (e *Engine) withPrior(ctx context.Context, cs []Candidate) []Candidate {
	if e.prior == nil {
		return cs
	}
	refs := make([]string, 0, len(cs))
	for _, c := range cs {
		refs = append(refs, c.Ref)
	}
	prior, err := e.prior.Lookup(ctx, refs)
	if err != nil {
		e.log.Warn("prior status lookup failed", "error", err)
		return cs
	}
	for i, c := range cs {
		p, ok := prior[c.Ref]
		if !ok || c.PriorStatus != "" {
			continue
		}
		cs[i].PriorStatus = p.Status
		cs[i].PriorLocator = p.Locator
	}
	return cs
}

// order puts preferred sources first and aggregators last so that, within a
// run, the higher-trust report of a story claims the slot.
func (e *Engine) order(cs []Candidate) {
	rank := func(c Candidate) int {
		host := feed.HostOf(c.URL)
		switch {
		case feed.HostIn(host, e.cfg.Policy.Preferred):
			return 0
		case feed.HostIn(host, e.cfg.Policy.Aggregators):
			return 2
		}
		return 1
	}
	sort.SliceStable(cs, func(i, j int) bool { return rank(cs[i]) < rank(cs[j]) })
}

func (e *Engine) safeProcess(ctx context.Context, snap *feed.Snapshot, c Candidate) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("candidate panicked", "url", c.URL, "panic", r)
			out = e.finish(ctx, Record{
				Ref: c.Ref, URL: c.URL, Status: StatusError, Kind: KindServiceUnavailable,
				Note: fmt.Sprintf("internal error: %v", r),
			})
			err = nil
		}
	}()
	return e.Process(ctx, snap, c)
}

// Process runs one candidate through the decision steps and records the
// outcome. snap is the run's view of the feed and is refreshed after a publish.
func (e *Engine) Process(ctx context.Context, snap *feed.Snapshot, c Candidate) (Outcome, error) {
	if c.PriorStatus == StatusPublished && c.PriorLocator != "" {
		e.log.Debug("already published", "url", c.URL, "locator", c.PriorLocator)
		rec := Record{Ref: c.Ref, URL: c.URL, Status: StatusPublished, Locator: c.PriorLocator}
		return Outcome{Record: rec, NoOp: true}, nil
	}

	rec, added, err := e.decide(ctx, snap, c)
	if err != nil {
		return Outcome{}, err
	}
	out := e.finish(ctx, rec)
	out.Added = added
	return out, nil
}

func (e *Engine) decide(ctx context.Context, snap *feed.Snapshot, c Candidate) (Record, bool, error) {
	rec := Record{Ref: c.Ref, URL: c.URL}
	policy := e.cfg.Policy

	if v := checkURL(c.URL, policy); !v.Eligible {
		return verdictRecord(rec, v), false, nil
	}

	if card, ok := feed.FindBySourceURL(snap.Cards, c.URL); ok {
		return reconciled(rec, card), false, nil
	}

	if v := checkGate(c, policy); !v.Eligible {
		return e.review(ctx, rec, c, v), false, nil
	}

	at := c.CreatedAt
	if at.IsZero() {
		at = e.now()
	}
	at = at.UTC()

	precomputedOK := e.summaries.Valid(c.PrecomputedSummary)
	article, err := e.fetch(ctx, c.URL)
	if err != nil {
		if !precomputedOK {
			return errorRecord(rec, KindServiceUnavailable, "fetch: "+err.Error()), false, nil
		}
		e.log.Warn("fetch failed, using stored summary", "url", c.URL, "error", err)
	} else if !precomputedOK {
		if v := CheckLength(article.Text, policy.MinArticleChars); !v.Eligible {
			return verdictRecord(rec, v), false, nil
		}
	}
	title := firstNonEmpty(article.Title, c.Title, feed.HostOf(c.URL))
	rec.Title = title

	if e.detector != nil {
		m := e.detector.Detect(dedup.Subject{Title: title, Host: feed.HostOf(c.URL), At: at}, snap.Cards)
		if m.Duplicate {
			return duplicateRecord(rec, m), false, nil
		}
	}
	if !feed.HasDayCapacity(snap.Cards, at, e.cfg.MaxPerDay) {
		rec.Status, rec.Kind = StatusDayLimit, KindPolicyBlocked
		rec.Note = fmt.Sprintf("%d already published on %s", e.cfg.MaxPerDay, feed.DayKey(at))
		return rec, false, nil
	}

	res, err := e.summaries.Ensure(ctx, c.PrecomputedSummary, article.Text)
	switch {
	case errors.Is(err, summary.ErrWithheld):
		rec.Status, rec.Kind = StatusWaitLang, KindPolicyBlocked
		rec.Note = "summary not in target language"
		rec.Summary = res.Text
		return rec, false, nil
	case err != nil:
		return errorRecord(rec, KindServiceUnavailable, "summary: "+err.Error()), false, nil
	}
	e.metrics.RecordSummarySource(string(res.Source))
	rec.Summary = res.Text

	actx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	locator, err := e.archive.Save(actx, title, c.URL, res.Text)
	cancel()
	if err != nil {
		return errorRecord(rec, KindServiceUnavailable, "archive: "+err.Error()), false, nil
	}
	e.metrics.IncrementArchiveWrites()
	rec.Locator = locator

	pr, err := e.publisher.Publish(ctx, PublishInput{
		Title:     title,
		SourceURL: c.URL,
		Summary:   res.Text,
		Locator:   locator,
		At:        at,
	})
	switch {
	case errors.Is(err, ErrAbort):
		return rec, false, err
	case errors.Is(err, feed.ErrConflict):
		return errorRecord(rec, KindWriteConflict, err.Error()), false, nil
	case err != nil:
		return errorRecord(rec, KindServiceUnavailable, err.Error()), false, nil
	}
	*snap = pr.Snapshot

	switch pr.Reason {
	case "":
	case ReasonDayLimit, ReasonTooOld:
		rec.Status, rec.Kind = StatusDayLimit, KindPolicyBlocked
		rec.Note = "no slot left on " + feed.DayKey(at)
		if pr.Reason == ReasonTooOld {
			rec.Note = "older than every card in a full feed"
		}
		return rec, false, nil
	case ReasonExists:
		if pr.Existing.SourceURL == c.URL {
			return reconciled(rec, pr.Existing), false, nil
		}
		return errorRecord(rec, KindWriteConflict, "archive locator already used by "+pr.Existing.SourceURL), false, nil
	case ReasonDuplicate:
		return duplicateRecord(rec, pr.Match), false, nil
	}

	rec.Status = StatusPublished
	rec.CardID = pr.Card.ID
	rec.PublishedAt = pr.Card.PublishedAt
	rec.Summary = pr.Card.Summary
	e.notify(ctx, pr.Card)
	return rec, true, nil
}

// review parks a gated row. A row that already holds a usable summary is not
// touched again; otherwise the summary is prepared for the editor.
func (e *Engine) review(ctx context.Context, rec Record, c Candidate, v Verdict) Record {
	rec.Status, rec.Note = StatusReview, v.Note
	if e.summaries.Valid(c.PrecomputedSummary) {
		return rec
	}

	article, err := e.fetch(ctx, c.URL)
	if err != nil {
		return errorRecord(rec, KindServiceUnavailable, "fetch: "+err.Error())
	}
	if v := CheckLength(article.Text, e.cfg.Policy.MinArticleChars); !v.Eligible {
		return verdictRecord(rec, v)
	}
	rec.Title = firstNonEmpty(article.Title, c.Title)

	res, err := e.summaries.Ensure(ctx, c.PrecomputedSummary, article.Text)
	switch {
	case errors.Is(err, summary.ErrWithheld):
		rec.Status, rec.Kind = StatusWaitLang, KindPolicyBlocked
		rec.Note = "summary not in target language"
		rec.Summary = res.Text
		return rec
	case err != nil:
		return errorRecord(rec, KindServiceUnavailable, "summary: "+err.Error())
	}
	e.metrics.RecordSummarySource(string(res.Source))
	rec.Summary = res.Text
	return rec
}

func (e *Engine) fetch(ctx context.Context, url string) (Article, error) {
	if e.fetcher == nil {
		return Article{}, errors.New("no content fetcher configured")
	}
	fctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.fetcher.Fetch(fctx, url)
}

func (e *Engine) notify(ctx context.Context, card feed.Card) {
	for _, n := range e.notifiers {
		nctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		err := n.Notify(nctx, card)
		cancel()
		if err != nil {
			e.metrics.IncrementNotificationsFailed()
			e.log.Warn("notification failed", "card", card.ID, "error", err)
			continue
		}
		e.metrics.IncrementNotificationsSent()
	}
}

func (e *Engine) finish(ctx context.Context, rec Record) Outcome {
	if rec.Kind == KindNone && rec.Status != StatusError {
		rec.Kind = KindOf(rec.Status)
	}
	e.metrics.RecordOutcome(string(rec.Status))

	attrs := []any{"ref", rec.Ref, "url", rec.URL, "status", rec.Status}
	if rec.Kind != KindNone {
		attrs = append(attrs, "kind", rec.Kind)
	}
	if rec.Note != "" {
		attrs = append(attrs, "note", rec.Note)
	}
	if rec.Status == StatusError {
		e.log.Warn("candidate failed", attrs...)
	} else {
		e.log.Info("candidate decided", attrs...)
	}

	if err := e.sink.Record(ctx, rec); err != nil {
		e.log.Error("status record failed", "ref", rec.Ref, "error", err)
	}
	return Outcome{Record: rec}
}

func verdictRecord(rec Record, v Verdict) Record {
	rec.Status, rec.Kind, rec.Note = v.Status, v.Kind, v.Note
	return rec
}

func errorRecord(rec Record, kind Kind, note string) Record {
	rec.Status, rec.Kind, rec.Note = StatusError, kind, note
	return rec
}

func reconciled(rec Record, card feed.Card) Record {
	rec.Status = StatusPublished
	rec.Locator = card.ArchiveURL
	rec.CardID = card.ID
	rec.PublishedAt = card.PublishedAt
	rec.Note = "already in feed"
	return rec
}

func duplicateRecord(rec Record, m dedup.Match) Record {
	rec.Status, rec.Kind = StatusDupTopic, KindPolicyBlocked
	if m.Reason == dedup.AggregatorDup {
		rec.Status = StatusAggregatorDup
	}
	rec.Note = fmt.Sprintf("similar to %s (%.2f)", m.Card.SourceURL, m.Score)
	if m.Label != "" {
		rec.Note = fmt.Sprintf("same topic %q as %s", m.Label, m.Card.SourceURL)
	}
	return rec
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
