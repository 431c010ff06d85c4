package feed

import (
	"sort"
	"strings"

	"github.com/deusflow/briefs/internal/lang"
)

// Query mirrors what the front-end offers: search, host filter, sort, paging.
type Query struct {
	Text     string
	Host     string
	Oldest   bool // ascending by publishedAt
	Page     int  // 1-based
	PageSize int
}

type Page struct {
	Items    []Card `json:"items"`
	Total    int    `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Pages    int    `json:"pages"`
}

const defaultPageSize = 12

func Search(cards []Card, q Query) Page {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	host := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(q.Host)), "www.")

	matched := make([]Card, 0, len(cards))
	for _, c := range cards {
		if host != "" && c.SourceHost != host {
			continue
		}
		if needle != "" {
			hay := strings.ToLower(c.Title + " " + lang.StripHTML(c.Summary))
			if !strings.Contains(hay, needle) {
				continue
			}
		}
		matched = append(matched, c)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if q.Oldest {
			return matched[i].PublishedAt.Before(matched[j].PublishedAt)
		}
		return matched[i].PublishedAt.After(matched[j].PublishedAt)
	})

	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	pages := len(matched) / size
	if len(matched)%size != 0 {
		pages++
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	// Pages past the end are empty; compare before multiplying so huge page
	// numbers cannot overflow.
	start, end := len(matched), len(matched)
	if page <= pages {
		start = (page - 1) * size
		end = start + min(size, len(matched)-start)
	}

	return Page{
		Items:    matched[start:end],
		Total:    len(matched),
		Page:     page,
		PageSize: size,
		Pages:    pages,
	}
}

// Hosts lists distinct source hosts, sorted, for the filter dropdown.
func Hosts(cards []Card) []string {
	seen := make(map[string]bool)
	var hosts []string
	for _, c := range cards {
		if c.SourceHost == "" || seen[c.SourceHost] {
			continue
		}
		seen[c.SourceHost] = true
		hosts = append(hosts, c.SourceHost)
	}
	sort.Strings(hosts)
	return hosts
}
