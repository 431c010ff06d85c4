// Package archive stores one immutable Markdown document per published
// article and returns a stable locator for it.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/briefs/internal/dedup"
	"github.com/deusflow/briefs/internal/feed"
)

// ErrCollision means the chosen name is already taken.
var ErrCollision = errors.New("archive name already exists")

const maxNameAttempts = 5

type Document struct {
	Title     string
	SourceURL string
	Summary   string
	CreatedAt time.Time
}

var docTemplate = template.Must(template.New("doc").Funcs(template.FuncMap{
	"quote": func(s string) string { return fmt.Sprintf("%q", s) },
	"date":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}).Parse(`---
title: {{ quote .Title }}
source: {{ quote .SourceURL }}
host: {{ quote .Host }}
date: {{ date .CreatedAt }}
---

# {{ .Title }}

{{ .Summary }}

Zdroj: [{{ .Host }}]({{ .SourceURL }})
`))

// Render produces the Markdown body with YAML front matter.
func Render(d Document) ([]byte, error) {
	var buf bytes.Buffer
	err := docTemplate.Execute(&buf, struct {
		Document
		Host string
	}{d, feed.HostOf(d.SourceURL)})
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}
	return buf.Bytes(), nil
}

var slugJunk = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a title into a lowercase ASCII path segment of at most 80 bytes.
func Slug(title string) string {
	s := slugJunk.ReplaceAllString(dedup.Fold(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > 80 {
		s = strings.TrimRight(s[:80], "-")
	}
	return s
}

var randomSuffix = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// Name builds the archive path: YYYY/MM/YYYY-MM-DD-slug-xxxxxx.md.
func Name(d Document) string {
	base := Slug(d.Title)
	if base == "" {
		base = Slug(feed.HostOf(d.SourceURL))
	}
	if base == "" {
		base = "post"
	}
	t := d.CreatedAt.UTC()
	return path.Join(t.Format("2006"), t.Format("01"), fmt.Sprintf("%s-%s-%s.md", t.Format("2006-01-02"), base, randomSuffix()))
}

// backend creates a new object at name and fails with ErrCollision if it exists.
type backend interface {
	put(ctx context.Context, name string, body []byte) (string, error)
}

// Saver renders documents and retries with a fresh name on collision.
type Saver struct {
	b   backend
	log *slog.Logger
	now func() time.Time
}

func newSaver(b backend, log *slog.Logger) *Saver {
	if log == nil {
		log = slog.Default()
	}
	return &Saver{b: b, log: log, now: time.Now}
}

func (s *Saver) Save(ctx context.Context, title, sourceURL, summary string) (string, error) {
	d := Document{Title: title, SourceURL: sourceURL, Summary: summary, CreatedAt: s.now()}
	body, err := Render(d)
	if err != nil {
		return "", err
	}
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := Name(d)
		loc, err := s.b.put(ctx, name, body)
		if err == nil {
			s.log.Info("📄 archived", "name", name, "locator", loc)
			return loc, nil
		}
		if !errors.Is(err, ErrCollision) {
			return "", err
		}
		s.log.Warn("archive name taken, retrying", "name", name, "attempt", attempt)
	}
	return "", fmt.Errorf("no free archive name after %d attempts: %w", maxNameAttempts, ErrCollision)
}
