// Package rss turns RSS/Atom feed items into candidates.
package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/briefs/internal/cache"
	"github.com/deusflow/briefs/internal/engine"
)

// FeedsConfig is YAML config structure
// feeds:
//   - https://...
type FeedsConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadFeeds reads the feed list from a YAML file.
func LoadFeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg FeedsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse feeds config: %w", err)
	}
	var urls []string
	for _, u := range cfg.Feeds {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// Source reads every configured feed on each call.
type Source struct {
	urls   []string
	parser *gofeed.Parser
	log    *slog.Logger

	// MaxAge drops items published longer ago than this. Zero keeps all.
	MaxAge time.Duration
	now    func() time.Time
}

func NewSource(urls []string, timeout time.Duration, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	p := gofeed.NewParser()
	p.UserAgent = "Mozilla/5.0 (compatible; briefs/1.0)"
	if timeout > 0 {
		p.Client = &http.Client{Timeout: timeout}
	}
	return &Source{urls: urls, parser: p, log: log, MaxAge: 48 * time.Hour, now: time.Now}
}

// ItemRef is a stable reference for a feed item, derived from its link.
func ItemRef(link string) string {
	return "rss:" + cache.Key(link)[:16]
}

func (s *Source) Candidates(ctx context.Context) ([]engine.Candidate, error) {
	var (
		out  []engine.Candidate
		seen = make(map[string]bool)
		ok   int
	)
	for _, url := range s.urls {
		f, err := s.parser.ParseURLWithContext(url, ctx)
		if err != nil {
			s.log.Warn("Error parsing RSS", "url", url, "error", err)
			continue
		}
		ok++
		n := 0
		for _, item := range f.Items {
			c, keep := s.candidate(f, item)
			if !keep || seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			out = append(out, c)
			n++
		}
		s.log.Debug("Loaded news", "count", n, "url", url)
	}

	s.log.Info("Processed RSS feeds", "ok", ok, "total", len(s.urls), "candidates", len(out))
	if ok == 0 && len(s.urls) > 0 {
		return nil, errors.New("no feed could be read")
	}
	return out, nil
}

func (s *Source) candidate(f *gofeed.Feed, item *gofeed.Item) (engine.Candidate, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return engine.Candidate{}, false
	}
	var at time.Time
	switch {
	case item.PublishedParsed != nil:
		at = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		at = item.UpdatedParsed.UTC()
	}
	if s.MaxAge > 0 && !at.IsZero() && s.now().Sub(at) > s.MaxAge {
		return engine.Candidate{}, false
	}
	return engine.Candidate{
		Ref:        ItemRef(link),
		URL:        link,
		CreatedAt:  at,
		Approved:   true,
		Title:      strings.TrimSpace(item.Title),
		SourceHint: f.Title,
	}, true
}
