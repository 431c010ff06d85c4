// Package engine decides, candidate by candidate, whether an article is
// published. It owns eligibility, duplicate and quota checks, and the
// idempotent feed mutation. Everything that talks to the network sits behind
// the ports declared here.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/briefs/internal/feed"
	"github.com/deusflow/briefs/internal/summary"
)

// ErrAbort marks conditions that stop the whole run: the candidate list
// cannot be read or the feed storage is unusable.
var ErrAbort = errors.New("run aborted")

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusReview        Status = "REVIEW"
	StatusPublished     Status = "PUBLISHED"
	StatusError         Status = "ERROR"
	StatusBadURL        Status = "SKIP_BAD_URL"
	StatusBlockedDomain Status = "SKIP_BLOCKED_DOMAIN"
	StatusShort         Status = "SKIP_SHORT"
	StatusDupTopic      Status = "SKIP_DUP_TOPIC"
	StatusAggregatorDup Status = "SKIP_AGGREGATOR_DUP"
	StatusDayLimit      Status = "SKIP_DAY_LIMIT"
	StatusWaitLang      Status = "WAIT_LANG"
)

// Kind attributes a skip or error to one failure class.
type Kind string

const (
	KindNone               Kind = ""
	KindBadInput           Kind = "BadInput"
	KindPolicyBlocked      Kind = "PolicyBlocked"
	KindContentTooShort    Kind = "ContentTooShort"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindWriteConflict      Kind = "WriteConflict"
)

// KindOf returns the default kind for a status. ERROR rows carry their kind
// explicitly.
func KindOf(s Status) Kind {
	switch s {
	case StatusBadURL:
		return KindBadInput
	case StatusBlockedDomain, StatusDupTopic, StatusAggregatorDup, StatusDayLimit, StatusWaitLang:
		return KindPolicyBlocked
	case StatusShort:
		return KindContentTooShort
	case StatusError:
		return KindServiceUnavailable
	}
	return KindNone
}

// Candidate is one input row. It is never mutated; outcomes go to the sink.
type Candidate struct {
	Ref                string    `json:"ref"`
	URL                string    `json:"url"`
	CreatedAt          time.Time `json:"createdAt,omitzero"`
	Approved           bool      `json:"approved,omitempty"`
	PublishedAt        time.Time `json:"publishedAt,omitzero"`
	PrecomputedSummary string    `json:"summary,omitempty"`
	PriorStatus        Status    `json:"priorStatus,omitempty"`
	PriorLocator       string    `json:"priorLocator,omitempty"`
	Title              string    `json:"title,omitempty"`
	SourceHint         string    `json:"source,omitempty"`
}

// Record is what the sink stores for a row. Empty Summary and Title leave the
// stored values untouched.
type Record struct {
	Ref         string
	URL         string
	Status      Status
	Kind        Kind
	Locator     string
	Note        string
	Title       string
	Summary     string
	CardID      string
	PublishedAt time.Time
}

type Outcome struct {
	Record Record
	Added  bool
	NoOp   bool // already published on an earlier run
}

type Report struct {
	Total     int
	Published int
	Review    int
	Skipped   int
	Errors    int
	NoOp      int
	Outcomes  []Outcome
}

func (r *Report) add(o Outcome) {
	r.Total++
	r.Outcomes = append(r.Outcomes, o)
	switch {
	case o.NoOp:
		r.NoOp++
	case o.Record.Status == StatusPublished:
		r.Published++
	case o.Record.Status == StatusReview:
		r.Review++
	case o.Record.Status == StatusError:
		r.Errors++
	default:
		r.Skipped++
	}
}

type Article struct {
	Title string
	Text  string
}

type CandidateSource interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (Article, error)
}

type SummaryProvider interface {
	Ensure(ctx context.Context, precomputed, text string) (summary.Result, error)
	Valid(text string) bool
}

// ArchiveStore keeps one immutable document per article and returns its locator.
type ArchiveStore interface {
	Save(ctx context.Context, title, sourceURL, summary string) (string, error)
}

type StatusSink interface {
	Record(ctx context.Context, r Record) error
	Flush(ctx context.Context) error
}

type Prior struct {
	Status  Status
	Locator string
}

// PriorLookup supplies earlier outcomes when the source itself does not.
type PriorLookup interface {
	Lookup(ctx context.Context, refs []string) (map[string]Prior, error)
}

type Notifier interface {
	Notify(ctx context.Context, card feed.Card) error
}
