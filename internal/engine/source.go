package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// FileSource reads candidates from a local JSON array. Dates may be in any
// format dateparse understands; unparseable dates are left empty.
type FileSource struct {
	Path string
}

type fileCandidate struct {
	Ref          string `json:"ref"`
	URL          string `json:"url"`
	CreatedAt    string `json:"createdAt"`
	Approved     any    `json:"approved"`
	PublishedAt  string `json:"publishedAt"`
	Summary      string `json:"summary"`
	PriorStatus  string `json:"priorStatus"`
	PriorLocator string `json:"priorLocator"`
	Title        string `json:"title"`
	Source       string `json:"source"`
}

func (s FileSource) Candidates(ctx context.Context) ([]Candidate, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates file: %w", err)
	}
	var raw []fileCandidate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse candidates file: %w", err)
	}

	out := make([]Candidate, 0, len(raw))
	for i, r := range raw {
		ref := r.Ref
		if ref == "" {
			ref = "item:" + strconv.Itoa(i+1)
		}
		out = append(out, Candidate{
			Ref:                ref,
			URL:                strings.TrimSpace(r.URL),
			CreatedAt:          ParseTime(r.CreatedAt),
			Approved:           flagValue(r.Approved),
			PublishedAt:        ParseTime(r.PublishedAt),
			PrecomputedSummary: strings.TrimSpace(r.Summary),
			PriorStatus:        Status(strings.ToUpper(strings.TrimSpace(r.PriorStatus))),
			PriorLocator:       strings.TrimSpace(r.PriorLocator),
			Title:              strings.TrimSpace(r.Title),
			SourceHint:         r.Source,
		})
	}
	return out, nil
}

// ParseTime accepts the loose date formats operators type into sheets.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseFlag reads an approval cell: TRUE, 1, yes, ok, ano, y.
func ParseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "ok", "ano", "y":
		return true
	}
	return false
}

func flagValue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return ParseFlag(x)
	case float64:
		return x == 1
	}
	return false
}

// LogSink only logs outcomes. Used when no status store is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, r Record) error {
	s.log.Debug("status", "ref", r.Ref, "status", r.Status, "locator", r.Locator)
	return nil
}

func (s *LogSink) Flush(ctx context.Context) error { return nil }
