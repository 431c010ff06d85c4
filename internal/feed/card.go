// Package feed owns the published card list and its invariants: one card per
// source URL and per archive locator, a per-day quota, a size cap and
// newest-first ordering.
package feed

import (
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Card is one published entry. JSON names are read by the static front-end.
type Card struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	SourceURL   string    `json:"sourceUrl"`
	SourceHost  string    `json:"sourceHost"`
	ArchiveURL  string    `json:"archiveUrl"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"publishedAt"`
}

// DayKey is the UTC calendar day of t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func CountOnDay(cards []Card, day time.Time) int {
	key := DayKey(day)
	n := 0
	for _, c := range cards {
		if DayKey(c.PublishedAt) == key {
			n++
		}
	}
	return n
}

func HasDayCapacity(cards []Card, day time.Time, maxPerDay int) bool {
	return CountOnDay(cards, day) < maxPerDay
}

func FindBySourceURL(cards []Card, sourceURL string) (Card, bool) {
	if sourceURL == "" {
		return Card{}, false
	}
	for _, c := range cards {
		if c.SourceURL == sourceURL {
			return c, true
		}
	}
	return Card{}, false
}

func FindByArchiveURL(cards []Card, locator string) (Card, bool) {
	if locator == "" {
		return Card{}, false
	}
	for _, c := range cards {
		if c.ArchiveURL == locator {
			return c, true
		}
	}
	return Card{}, false
}

// Insert puts card at the front, restores newest-first order and evicts the
// oldest cards beyond limit. It returns the new list and the evicted cards.
func Insert(cards []Card, card Card, limit int) ([]Card, []Card) {
	out := make([]Card, 0, len(cards)+1)
	out = append(out, card)
	out = append(out, cards...)
	Sort(out)

	if limit <= 0 || len(out) <= limit {
		return out, nil
	}
	evicted := append([]Card(nil), out[limit:]...)
	return out[:limit], evicted
}

// Sort orders cards newest first. Ties keep their relative order.
func Sort(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].PublishedAt.After(cards[j].PublishedAt)
	})
}

var newSuffix = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewCardID derives an id from the publish day plus a random suffix, drawing
// again while the id is already taken.
func NewCardID(day time.Time, cards []Card) string {
	prefix := strings.ReplaceAll(DayKey(day), "-", "")
	taken := make(map[string]bool, len(cards))
	for _, c := range cards {
		taken[c.ID] = true
	}
	for {
		id := prefix + "-" + newSuffix()
		if !taken[id] {
			return id
		}
	}
}

// HostOf returns the lowercase host of rawURL without "www.".
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-1])) + "…"
}

// HostIn reports whether host equals one of domains or is a subdomain of one.
func HostIn(host string, domains []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
