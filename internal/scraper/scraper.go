package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/briefs/internal/engine"
	"github.com/deusflow/briefs/internal/feed"
)

// ErrNoContent means the page loaded but no article text could be found.
var ErrNoContent = errors.New("can't get content")

// HTTPError is a non-200 answer from the article host.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %d", e.StatusCode)
}

const maxPageBytes = 5 << 20

// Fetcher downloads an article page and extracts its title and text.
type Fetcher struct {
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

func New(timeout time.Duration, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0 (compatible; briefs/1.0; +https://github.com/deusflow/briefs)",
		log:       log,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (engine.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return engine.Article{}, fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "cs,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return engine.Article{}, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.Article{}, &HTTPError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return engine.Article{}, fmt.Errorf("error reading page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return engine.Article{}, fmt.Errorf("error parsing HTML: %w", err)
	}

	title := extractTitle(doc)
	content := cleanContent(extractBySelectors(doc, feed.HostOf(rawURL)))

	// Selector extraction misses on unknown layouts; readability usually copes.
	if len(content) < 600 {
		if art, ok := f.readability(body, rawURL); ok {
			text := cleanContent(art.TextContent)
			if len(text) > len(content) {
				content = text
			}
			if title == "" {
				title = strings.TrimSpace(art.Title)
			}
		}
	}

	if content == "" {
		return engine.Article{}, ErrNoContent
	}
	f.log.Debug("article extracted", "url", rawURL, "chars", len([]rune(content)))
	return engine.Article{Title: title, Text: content}, nil
}

func (f *Fetcher) readability(body []byte, rawURL string) (readability.Article, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return readability.Article{}, false
	}
	art, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		f.log.Debug("readability failed", "url", rawURL, "error", err)
		return readability.Article{}, false
	}
	return art, true
}

// siteSelectors lists paragraph selectors for hosts whose layout is known.
var siteSelectors = map[string][]string{
	"irozhlas.cz":           {".b-detail p", "article p"},
	"ct24.ceskatelevize.cz": {".article-body p", "article p"},
	"novinky.cz":            {"[data-dot='ogm-article-content'] p", "article p"},
	"idnes.cz":              {"#art-text p", ".bbtext p"},
	"seznamzpravy.cz":       {"[data-dot='article'] p", "article p"},
	"reuters.com":           {"[data-testid^='paragraph-']", "article p"},
	"bbc.com":               {"[data-component='text-block'] p", "article p"},
}

var genericSelectors = []string{
	"article p",
	".article-body p",
	".article p",
	".content p",
	".post-content p",
	".entry-content p",
	"main p",
	"#content p",
	"p",
}

func extractBySelectors(doc *goquery.Document, host string) string {
	selectors := genericSelectors
	for site, sel := range siteSelectors {
		if feed.HostIn(host, []string{site}) {
			selectors = append(append([]string{}, sel...), genericSelectors...)
			break
		}
	}

	var paragraphs []string
	for _, selector := range selectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 { // If we find 3 paragraphs, it's enough
			break
		}
	}

	return strings.Join(paragraphs, "\n\n")
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	selectors := []string{
		"h1",
		".article-title",
		".headline",
		".entry-title",
		"title",
	}

	for _, selector := range selectors {
		title := strings.TrimSpace(doc.Find(selector).First().Text())
		if title != "" {
			return title
		}
	}

	return ""
}

var junkIndicators = []string{
	"cookie", "gdpr", "reklama", "advertisement", "subscribe", "newsletter",
	"čtěte také", "přečtěte si", "sdílet", "sign up", "all rights reserved",
}

// cleanContent drops boilerplate lines, collapses whitespace and keeps
// paragraph breaks.
func cleanContent(content string) string {
	var kept []string
	for _, para := range strings.Split(content, "\n") {
		para = strings.Join(strings.Fields(para), " ")
		if len(para) < 30 {
			continue
		}
		lower := strings.ToLower(para)
		junk := false
		for _, indicator := range junkIndicators {
			// Long paragraphs can mention these words legitimately.
			if strings.Contains(lower, indicator) && len(para) < 200 {
				junk = true
				break
			}
		}
		if !junk {
			kept = append(kept, para)
		}
	}
	return strings.Join(kept, "\n\n")
}
