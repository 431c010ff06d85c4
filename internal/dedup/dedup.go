// Package dedup detects titles that report the same story as a card already
// in the feed.
package dedup

import (
	"fmt"
	"regexp"
	"time"

	"github.com/deusflow/briefs/internal/feed"
)

type Reason string

const (
	TopicDup      Reason = "TOPIC"
	AggregatorDup Reason = "AGGREGATOR"
)

// Subject is the candidate side of a comparison.
type Subject struct {
	Title string
	Host  string
	At    time.Time
}

type Match struct {
	Duplicate bool
	Reason    Reason
	Card      feed.Card
	Score     float64
	Label     string
}

type Detector interface {
	Detect(s Subject, cards []feed.Card) Match
}

// Bucket maps a regular expression over the normalized title to a topic label.
type Bucket struct {
	Label   string
	Pattern string
}

type bucketRule struct {
	label string
	re    *regexp.Regexp
}

// DefaultBucketWindow bounds bucket matches when no window is configured.
const DefaultBucketWindow = 72 * time.Hour

// BucketDetector treats two titles with the same recurring-story label as one
// story when they were published within Window of each other.
type BucketDetector struct {
	Window time.Duration
	rules  []bucketRule
}

func NewBucketDetector(buckets []Bucket, window time.Duration) (*BucketDetector, error) {
	d := &BucketDetector{Window: window}
	for _, b := range buckets {
		re, err := regexp.Compile(b.Pattern)
		if err != nil {
			return nil, fmt.Errorf("topic bucket %q: %w", b.Label, err)
		}
		d.rules = append(d.rules, bucketRule{label: b.Label, re: re})
	}
	return d, nil
}

// Label returns the first bucket the title falls into, or "".
func (d *BucketDetector) Label(title string) string {
	n := Normalize(title)
	for _, r := range d.rules {
		if r.re.MatchString(n) {
			return r.label
		}
	}
	return ""
}

func (d *BucketDetector) Detect(s Subject, cards []feed.Card) Match {
	label := d.Label(s.Title)
	if label == "" {
		return Match{}
	}
	for _, c := range cards {
		if d.Window > 0 && !s.At.IsZero() && absDuration(s.At.Sub(c.PublishedAt)) > d.Window {
			continue
		}
		if d.Label(c.Title) == label {
			return Match{Duplicate: true, Reason: TopicDup, Card: c, Score: 1, Label: label}
		}
	}
	return Match{}
}

// SimilarityDetector compares token sets. With a Window only cards published
// within that distance of the subject are considered.
type SimilarityDetector struct {
	Threshold float64
	Window    time.Duration
	Stop      map[string]bool
}

func (d *SimilarityDetector) Detect(s Subject, cards []feed.Card) Match {
	subject := Tokens(s.Title, d.Stop)
	if len(subject) == 0 {
		return Match{}
	}
	best := Match{}
	for _, c := range cards {
		if d.Window > 0 && !s.At.IsZero() && absDuration(s.At.Sub(c.PublishedAt)) > d.Window {
			continue
		}
		score := Jaccard(subject, Tokens(c.Title, d.Stop))
		if score >= d.Threshold && score > best.Score {
			best = Match{Duplicate: true, Reason: TopicDup, Card: c, Score: score}
		}
	}
	return best
}

// AggregatorDetector rejects an aggregator's story when a preferred source
// already carries a similar title, regardless of which was seen first.
type AggregatorDetector struct {
	Aggregators []string
	Preferred   []string
	Threshold   float64
	Stop        map[string]bool
}

func (d *AggregatorDetector) Detect(s Subject, cards []feed.Card) Match {
	if !feed.HostIn(s.Host, d.Aggregators) {
		return Match{}
	}
	subject := Tokens(s.Title, d.Stop)
	if len(subject) == 0 {
		return Match{}
	}
	for _, c := range cards {
		if !feed.HostIn(c.SourceHost, d.Preferred) {
			continue
		}
		if score := Jaccard(subject, Tokens(c.Title, d.Stop)); score >= d.Threshold {
			return Match{Duplicate: true, Reason: AggregatorDup, Card: c, Score: score}
		}
	}
	return Match{}
}

// Chain returns the first duplicate any of its detectors reports.
type Chain []Detector

func (ch Chain) Detect(s Subject, cards []feed.Card) Match {
	for _, d := range ch {
		if m := d.Detect(s, cards); m.Duplicate {
			return m
		}
	}
	return Match{}
}

type Config struct {
	Strategy    string // bucket | similarity | both
	Threshold   float64
	Window      time.Duration
	Buckets     []Bucket
	Aggregators []string
	Preferred   []string
	StopWords   []string
}

// New assembles the detector chain for a strategy. The aggregator rule is
// always active when aggregator hosts are configured.
func New(cfg Config) (Detector, error) {
	stop := StopSet(cfg.StopWords)
	var chain Chain

	if len(cfg.Aggregators) > 0 {
		chain = append(chain, &AggregatorDetector{
			Aggregators: cfg.Aggregators,
			Preferred:   cfg.Preferred,
			Threshold:   cfg.Threshold,
			Stop:        stop,
		})
	}

	switch cfg.Strategy {
	case "bucket", "similarity", "both", "":
	default:
		return nil, fmt.Errorf("unknown dedup strategy %q", cfg.Strategy)
	}

	if cfg.Strategy == "bucket" || cfg.Strategy == "both" {
		window := cfg.Window
		if window <= 0 && len(cfg.Buckets) > 0 {
			window = DefaultBucketWindow
		}
		b, err := NewBucketDetector(cfg.Buckets, window)
		if err != nil {
			return nil, err
		}
		chain = append(chain, b)
	}
	if cfg.Strategy != "bucket" {
		chain = append(chain, &SimilarityDetector{Threshold: cfg.Threshold, Window: cfg.Window, Stop: stop})
	}
	return chain, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
