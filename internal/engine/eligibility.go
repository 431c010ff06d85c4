package engine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/briefs/internal/feed"
)

type Policy struct {
	BlockedDomains  []string
	Aggregators     []string
	Preferred       []string
	ManualGate      bool
	MinArticleChars int
}

type Verdict struct {
	Eligible bool
	Status   Status
	Kind     Kind
	Note     string
}

var eligible = Verdict{Eligible: true}

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// CheckEligibility applies the URL, blocklist and approval rules in order.
// The article length rule needs fetched text; see CheckLength.
func CheckEligibility(c Candidate, p Policy) Verdict {
	if v := checkURL(c.URL, p); !v.Eligible {
		return v
	}
	return checkGate(c, p)
}

func checkURL(raw string, p Policy) Verdict {
	raw = strings.TrimSpace(raw)
	if raw == "" || !schemeRe.MatchString(raw) {
		return Verdict{Status: StatusBadURL, Kind: KindBadInput, Note: "url must start with http(s)://"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Verdict{Status: StatusBadURL, Kind: KindBadInput, Note: "url has no host"}
	}
	if host := feed.HostOf(raw); feed.HostIn(host, p.BlockedDomains) {
		return Verdict{Status: StatusBlockedDomain, Kind: KindPolicyBlocked, Note: "blocked domain " + host}
	}
	return eligible
}

func checkGate(c Candidate, p Policy) Verdict {
	if !p.ManualGate {
		return eligible
	}
	switch {
	case !c.Approved:
		return Verdict{Status: StatusReview, Note: "awaiting approval"}
	case !c.PublishedAt.IsZero():
		return Verdict{Status: StatusReview, Note: "row already carries a publish timestamp"}
	}
	return eligible
}

// CheckLength enforces the minimum article length in characters.
func CheckLength(text string, min int) Verdict {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < min {
		return Verdict{Status: StatusShort, Kind: KindContentTooShort, Note: fmt.Sprintf("article has %d chars, need %d", n, min)}
	}
	return eligible
}
