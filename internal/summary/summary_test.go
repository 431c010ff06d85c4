package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/deusflow/briefs/internal/cache"
)

const (
	czSummary = "Společnost Eli Lilly oznámila, že její lék Mounjaro překonal další milník v počtu předepsaných receptů. " +
		"Analytici očekávají, že poptávka po léku poroste i v příštím roce."
	enSummary = "Eli Lilly said its drug Mounjaro passed another milestone in the number of prescriptions written in the US. " +
		"Analysts expect that demand for the drug will keep growing next year."
	enArticle = enSummary + "\n\nThe company did not comment on the pricing of the drug in the European market."
	czArticle = czSummary + "\n\nFirma se k cenám léku na evropském trhu zatím nevyjádřila a podrobnosti slíbila později."
)

type fakeSummarizer struct {
	out   string
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text, lang string) (string, error) {
	f.calls++
	return f.out, f.err
}

type fakeTranslator struct {
	out   string
	err   error
	calls int
}

func (f *fakeTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	f.calls++
	return f.out, f.err
}

func newAcquirer(s Summarizer, tr Translator, memo *cache.Cache[Result]) *Acquirer {
	a := NewAcquirer(s, tr, Options{
		TargetLang:      "cs",
		MinChars:        120,
		FallbackBudget:  700,
		TranslatePrefix: 1500,
		CallTimeout:     time.Second,
	}, memo, nil)
	a.Retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func TestPrecomputedSummaryWins(t *testing.T) {
	s := &fakeSummarizer{out: czSummary}
	a := newAcquirer(s, nil, nil)

	r, err := a.Ensure(context.Background(), czSummary, enArticle)
	if err != nil {
		t.Fatal(err)
	}
	if r.Source != SourcePrecomputed || s.calls != 0 {
		t.Fatalf("source = %s, summarizer calls = %d", r.Source, s.calls)
	}
}

func TestPrecomputedRejected(t *testing.T) {
	cases := map[string]string{
		"html":    "<p>" + czSummary + "</p>",
		"english": enSummary,
		"short":   "Krátké shrnutí.",
	}
	for name, pre := range cases {
		t.Run(name, func(t *testing.T) {
			s := &fakeSummarizer{out: czSummary}
			r, err := newAcquirer(s, nil, nil).Ensure(context.Background(), pre, enArticle)
			if err != nil {
				t.Fatal(err)
			}
			if r.Source != SourceLLM || s.calls != 1 {
				t.Fatalf("source = %s, calls = %d", r.Source, s.calls)
			}
		})
	}
}

func TestOffLanguageSummaryIsTranslated(t *testing.T) {
	s := &fakeSummarizer{out: enSummary}
	tr := &fakeTranslator{out: czSummary}

	r, err := newAcquirer(s, tr, nil).Ensure(context.Background(), "", enArticle)
	if err != nil {
		t.Fatal(err)
	}
	if r.Source != SourceTranslated || r.Text != czSummary || tr.calls != 1 {
		t.Fatalf("result = %+v, translator calls = %d", r, tr.calls)
	}
}

func TestOffLanguageWithoutTranslatorIsWithheld(t *testing.T) {
	s := &fakeSummarizer{out: enSummary}

	r, err := newAcquirer(s, nil, nil).Ensure(context.Background(), "", enArticle)
	if !errors.Is(err, ErrWithheld) {
		t.Fatalf("err = %v, want ErrWithheld", err)
	}
	if r.Text != enSummary {
		t.Fatalf("withheld text = %q", r.Text)
	}
}

func TestTranslatorStillEnglishIsWithheld(t *testing.T) {
	s := &fakeSummarizer{out: enSummary}
	tr := &fakeTranslator{out: enSummary}

	_, err := newAcquirer(s, tr, nil).Ensure(context.Background(), "", enArticle)
	if !errors.Is(err, ErrWithheld) {
		t.Fatalf("err = %v, want ErrWithheld", err)
	}
	// Output, then article prefix.
	if tr.calls != 2 {
		t.Fatalf("translator calls = %d, want 2", tr.calls)
	}
}

func TestSummarizerFailureFallsBackToExtract(t *testing.T) {
	s := &fakeSummarizer{err: errors.New("503")}

	r, err := newAcquirer(s, nil, nil).Ensure(context.Background(), "", czArticle)
	if err != nil {
		t.Fatal(err)
	}
	if r.Source != SourceExtract {
		t.Fatalf("source = %s", r.Source)
	}
	if s.calls != 2 {
		t.Fatalf("summarizer calls = %d, want one retry", s.calls)
	}
}

func TestExtractTranslatedOrWithheld(t *testing.T) {
	s := &fakeSummarizer{err: errors.New("down")}
	tr := &fakeTranslator{out: czSummary}
	r, err := newAcquirer(s, tr, nil).Ensure(context.Background(), "", enArticle)
	if err != nil || r.Source != SourceTranslated {
		t.Fatalf("result = %+v, err = %v", r, err)
	}

	tr = &fakeTranslator{err: errors.New("down")}
	if _, err := newAcquirer(s, tr, nil).Ensure(context.Background(), "", enArticle); !errors.Is(err, ErrWithheld) {
		t.Fatalf("err = %v, want ErrWithheld", err)
	}
}

func TestNoTextIsUnavailable(t *testing.T) {
	_, err := newAcquirer(&fakeSummarizer{}, nil, nil).Ensure(context.Background(), "", "   ")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestMemoSkipsRepeatCalls(t *testing.T) {
	memo := cache.New[Result](time.Hour)
	defer memo.Close()
	s := &fakeSummarizer{out: czSummary}
	a := newAcquirer(s, nil, memo)

	for i := 0; i < 3; i++ {
		if _, err := a.Ensure(context.Background(), "", enArticle); err != nil {
			t.Fatal(err)
		}
	}
	if s.calls != 1 {
		t.Fatalf("summarizer calls = %d, want 1", s.calls)
	}
}

func TestExtract(t *testing.T) {
	text := "First sentence is long enough here. Second sentence also long enough! " +
		"Third one is fine as well here? Fourth never shows up at all."
	got := Extract(text, 700)
	if strings.Contains(got, "Fourth") || !strings.HasPrefix(got, "First") || !strings.HasSuffix(got, "here?") {
		t.Fatalf("Extract = %q", got)
	}

	para := "menu\n" + strings.Repeat("slovo ", 20) + "\nfooter"
	if got := Extract(para, 700); !strings.HasPrefix(got, "slovo slovo") {
		t.Fatalf("paragraph fallback = %q", got)
	}

	long := strings.Repeat("Tato věta je dost dlouhá na to, aby se počítala. ", 40)
	got = Extract(long, 100)
	if utf8.RuneCountInString(got) > 100 || !strings.HasSuffix(got, "…") {
		t.Fatalf("budget not applied: %d runes", utf8.RuneCountInString(got))
	}
}
