package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/briefs/internal/dedup"
	"github.com/deusflow/briefs/internal/feed"
)

const (
	ReasonDayLimit  = "DAY_LIMIT"
	ReasonExists    = "EXISTS"
	ReasonDuplicate = "DUPLICATE"
	ReasonTooOld    = "TOO_OLD" // older than every card of a full feed
)

type PublishInput struct {
	Title     string
	SourceURL string
	Summary   string
	Locator   string
	At        time.Time
}

type PublishResult struct {
	Added    bool
	Card     feed.Card
	Reason   string
	Existing feed.Card   // set for EXISTS
	Match    dedup.Match // set for DUPLICATE
	Evicted  []feed.Card
	Snapshot feed.Snapshot // feed state after the call
}

// Publisher performs the guarded read-modify-write of the feed. Every check
// runs against a fresh read; a concurrent change makes the write fail with
// feed.ErrConflict and the whole cycle is repeated.
type Publisher struct {
	Store      feed.Store
	Detector   dedup.Detector
	MaxPerDay  int
	Cap        int
	SummaryMax int
	Attempts   int
	LockWait   time.Duration
}

func (p *Publisher) Publish(ctx context.Context, in PublishInput) (PublishResult, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 5
	}
	lockWait := p.LockWait
	if lockWait <= 0 {
		lockWait = 30 * time.Second
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		snap, err := p.Store.Read(ctx)
		if err != nil {
			return PublishResult{}, fmt.Errorf("%w: %v", ErrAbort, err)
		}
		res := PublishResult{Snapshot: snap}

		if !feed.HasDayCapacity(snap.Cards, in.At, p.MaxPerDay) {
			res.Reason = ReasonDayLimit
			return res, nil
		}
		if c, ok := feed.FindBySourceURL(snap.Cards, in.SourceURL); ok {
			res.Reason, res.Existing = ReasonExists, c
			return res, nil
		}
		if c, ok := feed.FindByArchiveURL(snap.Cards, in.Locator); ok {
			res.Reason, res.Existing = ReasonExists, c
			return res, nil
		}
		if p.Detector != nil {
			host := feed.HostOf(in.SourceURL)
			if m := p.Detector.Detect(dedup.Subject{Title: in.Title, Host: host, At: in.At}, snap.Cards); m.Duplicate {
				res.Reason, res.Match = ReasonDuplicate, m
				return res, nil
			}
		}

		card := feed.Card{
			ID:          feed.NewCardID(in.At, snap.Cards),
			Title:       in.Title,
			SourceURL:   in.SourceURL,
			SourceHost:  feed.HostOf(in.SourceURL),
			ArchiveURL:  in.Locator,
			Summary:     feed.Truncate(in.Summary, p.SummaryMax),
			PublishedAt: in.At.UTC(),
		}
		cards, evicted := feed.Insert(snap.Cards, card, p.Cap)
		if containsID(evicted, card.ID) {
			res.Reason = ReasonTooOld
			return res, nil
		}

		wctx, cancel := context.WithTimeout(ctx, lockWait)
		err = p.Store.Write(wctx, cards, snap.Version)
		cancel()
		if errors.Is(err, feed.ErrConflict) {
			continue
		}
		if err != nil {
			return PublishResult{}, fmt.Errorf("%w: %v", ErrAbort, err)
		}

		res.Added = true
		res.Card = card
		res.Evicted = evicted
		res.Snapshot = feed.Snapshot{Cards: cards}
		if fresh, err := p.Store.Read(ctx); err == nil {
			res.Snapshot = fresh
		}
		return res, nil
	}

	return PublishResult{}, fmt.Errorf("feed write for %s: %w (gave up after %d attempts)", in.SourceURL, feed.ErrConflict, attempts)
}

func containsID(cards []feed.Card, id string) bool {
	for _, c := range cards {
		if c.ID == id {
			return true
		}
	}
	return false
}
