package feed

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var day = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func card(id string, at time.Time) Card {
	return Card{ID: id, SourceURL: "https://example.com/" + id, ArchiveURL: "https://archive/" + id, PublishedAt: at}
}

func TestDayCapacity(t *testing.T) {
	cards := []Card{card("a", day), card("b", day.Add(2*time.Hour)), card("c", day.Add(-24*time.Hour))}
	if got := CountOnDay(cards, day.Add(10*time.Hour)); got != 2 {
		t.Fatalf("CountOnDay = %d, want 2", got)
	}
	if !HasDayCapacity(cards, day, 3) {
		t.Fatalf("expected capacity with 2 of 3")
	}
	if HasDayCapacity(cards, day, 2) {
		t.Fatalf("expected no capacity with 2 of 2")
	}

	// Day keys are UTC: 00:30 on the 10th in Prague is still the 9th.
	prague := time.FixedZone("CET", 3600)
	late := time.Date(2026, 3, 10, 0, 30, 0, 0, prague)
	if DayKey(late) != "2026-03-09" {
		t.Fatalf("DayKey = %s", DayKey(late))
	}
}

func TestInsertOrdersAndEvicts(t *testing.T) {
	var cards []Card
	for i := 0; i < 5; i++ {
		c := card(string(rune('a'+i)), day.Add(time.Duration(i)*time.Hour))
		cards, _ = Insert(cards, c, 3)
	}
	if len(cards) != 3 {
		t.Fatalf("len = %d, want 3", len(cards))
	}
	if cards[0].ID != "e" || cards[2].ID != "c" {
		t.Fatalf("order = %s %s %s", cards[0].ID, cards[1].ID, cards[2].ID)
	}

	// An older card than everything in a full feed is evicted straight away.
	cards, evicted := Insert(cards, card("old", day.Add(-48*time.Hour)), 3)
	if len(evicted) != 1 || evicted[0].ID != "old" {
		t.Fatalf("evicted = %+v", evicted)
	}
	if len(cards) != 3 {
		t.Fatalf("len = %d after evicting", len(cards))
	}
}

func TestNewCardIDRedrawsOnCollision(t *testing.T) {
	suffixes := []string{"aaaa1111", "aaaa1111", "bbbb2222"}
	orig := newSuffix
	defer func() { newSuffix = orig }()
	newSuffix = func() string {
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	existing := []Card{{ID: "20260310-aaaa1111"}}
	if got := NewCardID(day, existing); got != "20260310-bbbb2222" {
		t.Fatalf("NewCardID = %s", got)
	}
}

func TestHostOfAndTruncate(t *testing.T) {
	if got := HostOf("https://WWW.Reuters.com/world/x"); got != "reuters.com" {
		t.Fatalf("HostOf = %q", got)
	}
	if got := Truncate("žluťoučký kůň", 5); got != "žluť…" {
		t.Fatalf("Truncate = %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("Truncate short = %q", got)
	}
}

func TestFileStoreOptimisticWrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "public", "posts.json")
	s := NewFileStore(path, nil)

	snap, err := s.Read(ctx)
	if err != nil || len(snap.Cards) != 0 || snap.Version != "" {
		t.Fatalf("empty read = %+v, %v", snap, err)
	}

	if err := s.Write(ctx, []Card{card("a", day)}, snap.Version); err != nil {
		t.Fatalf("first write: %v", err)
	}
	// Stale version loses.
	if err := s.Write(ctx, []Card{card("b", day)}, snap.Version); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale write err = %v, want ErrConflict", err)
	}

	snap, err = s.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Cards) != 1 || snap.Cards[0].ID != "a" {
		t.Fatalf("cards = %+v", snap.Cards)
	}
	if err := s.Write(ctx, append(snap.Cards, card("b", day)), snap.Version); err != nil {
		t.Fatalf("fresh write: %v", err)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestFileStoreRejectsCorruptFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path, nil).Read(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMemoryStoreConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(nil)
	snap, _ := m.Read(ctx)
	if err := m.Write(ctx, []Card{card("a", day)}, snap.Version); err != nil {
		t.Fatal(err)
	}
	if err := m.Write(ctx, nil, snap.Version); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v", err)
	}
}

func TestSearchHugePageIsEmpty(t *testing.T) {
	cards := []Card{{ID: "1", Title: "Only card", PublishedAt: day}}

	p := Search(cards, Query{Page: 800000000000000000, PageSize: 12})
	if len(p.Items) != 0 || p.Total != 1 || p.Pages != 1 {
		t.Fatalf("huge page = %+v", p)
	}
	p = Search(cards, Query{Page: 2, PageSize: math.MaxInt})
	if len(p.Items) != 0 || p.Pages != 1 {
		t.Fatalf("huge page size = %+v", p)
	}
	p = Search(cards, Query{Page: 1, PageSize: math.MaxInt})
	if len(p.Items) != 1 {
		t.Fatalf("first page with huge size = %+v", p)
	}
}

func TestSearch(t *testing.T) {
	cards := []Card{
		{ID: "1", Title: "Mounjaro milestone", Summary: "<p>Lilly</p>", SourceHost: "reuters.com", PublishedAt: day},
		{ID: "2", Title: "ECB holds rates", Summary: "Frankfurt", SourceHost: "bbc.com", PublishedAt: day.Add(time.Hour)},
		{ID: "3", Title: "Rates again", Summary: "Lilly", SourceHost: "reuters.com", PublishedAt: day.Add(2 * time.Hour)},
	}

	p := Search(cards, Query{Text: "lilly"})
	if p.Total != 2 || p.Items[0].ID != "3" {
		t.Fatalf("search = %+v", p)
	}
	p = Search(cards, Query{Host: "www.reuters.com", Oldest: true})
	if p.Total != 2 || p.Items[0].ID != "1" {
		t.Fatalf("host filter = %+v", p)
	}
	p = Search(cards, Query{PageSize: 2, Page: 2})
	if len(p.Items) != 1 || p.Pages != 2 || p.Items[0].ID != "1" {
		t.Fatalf("paging = %+v", p)
	}
	p = Search(cards, Query{PageSize: 2, Page: 9})
	if len(p.Items) != 0 {
		t.Fatalf("page past end = %+v", p)
	}
	if hosts := Hosts(cards); len(hosts) != 2 || hosts[0] != "bbc.com" {
		t.Fatalf("hosts = %v", hosts)
	}
}
