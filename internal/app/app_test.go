package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/briefs/internal/config"
	"github.com/deusflow/briefs/internal/dedup"
	"github.com/deusflow/briefs/internal/feed"
)

var articles = map[string]struct{ title, body string }{
	"/council": {
		"City council approves new budget for schools",
		"The city council approved a new budget for public schools on Tuesday evening after a long debate. " +
			"The plan adds money for school staff and for the repair of old buildings in the northern districts. " +
			"Members of the opposition said that the increase was too small to make a real difference in the classrooms.",
	},
	"/storm": {
		"Storm closes mountain roads across northern region",
		"A strong storm closed several mountain roads across the northern region on Monday night. " +
			"Police asked drivers to stay at home and to avoid travel until the snow is cleared from the passes. " +
			"Power was cut to thousands of homes in the valley, and crews were working through the night to restore it.",
	},
}

func articleServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := articles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		var paras strings.Builder
		for _, s := range strings.SplitAfter(a.body, ". ") {
			fmt.Fprintf(&paras, "<p>%s</p>\n", s)
		}
		fmt.Fprintf(w, `<html><head><meta property="og:title" content="%s"></head>
<body><article><h1>%s</h1>%s</article></body></html>`, a.title, a.title, paras.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, dir, candidates string) *config.Config {
	t.Helper()
	path := filepath.Join(dir, "candidates.json")
	if err := os.WriteFile(path, []byte(candidates), 0o644); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		TargetLanguage:      "en",
		MaxPerDay:           3,
		FeedCap:             300,
		MinArticleChars:     200,
		MinSummaryChars:     100,
		SummaryMaxRunes:     800,
		FallbackBudget:      700,
		TranslatePrefix:     1500,
		DedupStrategy:       "both",
		SimilarityThreshold: 0.5,
		Policy:              config.DefaultPolicy(),
		FeedPath:            filepath.Join(dir, "public", "posts.json"),
		LockBackend:         "file",
		LockTTL:             time.Minute,
		CandidateSource:     "file",
		CandidatesFile:      path,
		StatusSink:          "log",
		ArchiveBackend:      "dir",
		ArchiveDir:          filepath.Join(dir, "articles"),
		RequestTimeout:      5 * time.Second,
	}
}

func readFeed(t *testing.T, path string) []feed.Card {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cards []feed.Card
	if err := json.Unmarshal(data, &cards); err != nil {
		t.Fatal(err)
	}
	return cards
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return nil
	})
	return n
}

func TestRunOnceEndToEnd(t *testing.T) {
	srv := articleServer(t)
	dir := t.TempDir()
	cfg := testConfig(t, dir, fmt.Sprintf(`[
		{"url": "%[1]s/council"},
		{"url": "%[1]s/storm"},
		{"url": "https://www.facebook.com/some/post"},
		{"url": "not a url"},
		{"url": "%[1]s/missing"}
	]`, srv.URL))

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	report, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Total != 5 || report.Published != 2 || report.Skipped != 2 || report.Errors != 1 {
		t.Fatalf("report = %+v", report)
	}

	cards := readFeed(t, cfg.FeedPath)
	if len(cards) != 2 {
		t.Fatalf("feed has %d cards", len(cards))
	}
	for _, c := range cards {
		if c.ArchiveURL == "" || c.Summary == "" || c.ID == "" {
			t.Fatalf("incomplete card %+v", c)
		}
	}
	if n := countFiles(t, cfg.ArchiveDir); n != 2 {
		t.Fatalf("archive has %d files", n)
	}

	// A second run reconciles against the feed without new writes.
	report, err = a.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Published != 2 {
		t.Fatalf("second report = %+v", report)
	}
	if len(readFeed(t, cfg.FeedPath)) != 2 || countFiles(t, cfg.ArchiveDir) != 2 {
		t.Fatalf("second run wrote again")
	}
}

func TestRunOnceAbortsOnMissingCandidates(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "[]")
	cfg.CandidatesFile = filepath.Join(dir, "nope.json")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if _, err := a.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected abort")
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, "[]")
	cfg.Schedule = "every now and then"

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("expected schedule error")
	}
}

func TestShippedPolicyKeepsDistinctStoriesApart(t *testing.T) {
	p, err := config.LoadPolicy(filepath.Join("..", "..", "configs", "policy.yaml"))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	d, err := dedup.New(dedup.Config{Strategy: "both", Threshold: 0.6, Buckets: buckets(p)})
	if err != nil {
		t.Fatalf("dedup.New: %v", err)
	}
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	cards := []feed.Card{
		{ID: "a", Title: "Mounjaro shortage eases in UK pharmacies", PublishedAt: at.Add(-2 * time.Hour)},
		{ID: "b", Title: "ECB president speaks at Davos", PublishedAt: at.Add(-time.Hour)},
	}
	for _, title := range []string{
		"FDA approves Mounjaro for sleep apnea in adolescents",
		"ECB holds rates steady in March",
	} {
		if m := d.Detect(dedup.Subject{Title: title, At: at}, cards); m.Duplicate {
			t.Errorf("%q matched %q (%s %.2f)", title, m.Card.Title, m.Label, m.Score)
		}
	}
}
