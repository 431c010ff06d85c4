package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSanitizeAIText(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{
			"inline parenthesized note",
			"Ministerstvo vyzvalo občany.\n(Note: This translation is a machine translation and may contain errors.) V Marrákeši pokračují protesty.",
			"Ministerstvo vyzvalo občany.\nV Marrákeši pokračují protesty.",
		},
		{
			"full line note",
			"Note: This translation is a machine translation and may contain errors.\nV Marrákeši pokračují protesty.",
			"V Marrákeši pokračují protesty.",
		},
		{
			"bracketed note and label",
			"[Note: Machine translation] Překlad: Toto je testovací řádek.",
			"Toto je testovací řádek.",
		},
		{
			"preamble, citations and emphasis",
			"Here is the translation:\n**Vláda** schválila rozpočet.[1][2]",
			"Vláda schválila rozpočet.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeAIText(tc.in); got != tc.want {
				t.Fatalf("SanitizeAIText = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestGoogleTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tl") != "cs" || q.Get("sl") != "auto" || q.Get("client") != "gtx" {
			t.Errorf("unexpected query %v", q)
		}
		fmt.Fprint(w, `[[["Vláda schválila ","The government approved ",null],["rozpočet.","the budget.",null]],null,"en"]`)
	}))
	defer srv.Close()

	g := NewGoogle(5 * time.Second)
	g.baseURL = srv.URL

	got, err := g.Translate(context.Background(), "The government approved the budget.", "cs")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Vláda schválila rozpočet." {
		t.Fatalf("translation = %q", got)
	}
}

func TestGoogleTranslateErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGoogle(5 * time.Second)
	g.baseURL = srv.URL
	if _, err := g.Translate(context.Background(), "Some text to translate.", "cs"); err == nil {
		t.Fatalf("expected error on 429")
	}
	if _, err := g.Translate(context.Background(), "  ", "cs"); !errors.Is(err, ErrNoTranslation) {
		t.Fatalf("empty input err = %v", err)
	}
}

func chatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		if req["model"] != "sonar" {
			t.Errorf("model = %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "x",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAICompatible(t *testing.T) {
	srv := chatServer(t, "Translation: Vláda schválila rozpočet.")
	o := NewOpenAI("key", srv.URL, "sonar")

	got, err := o.Translate(context.Background(), "The government approved the budget.", "cs")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Vláda schválila rozpočet." {
		t.Fatalf("translation = %q", got)
	}

	got, err = o.Summarize(context.Background(), "Long article.", "cs")
	if err != nil || got == "" {
		t.Fatalf("summary = %q, %v", got, err)
	}
}

type stubTranslator struct {
	out string
	err error
}

func (s stubTranslator) Translate(context.Context, string, string) (string, error) {
	return s.out, s.err
}

func TestChain(t *testing.T) {
	c := NewChain(nil, stubTranslator{err: errors.New("down")}, nil, stubTranslator{out: "Note: machine\nDobrý den."})
	if c.Len() != 2 {
		t.Fatalf("nil translator kept")
	}
	got, err := c.Translate(context.Background(), "Hello.", "cs")
	if err != nil || got != "Dobrý den." {
		t.Fatalf("Translate = %q, %v", got, err)
	}

	c = NewChain(nil, stubTranslator{err: errors.New("a")}, stubTranslator{out: ""})
	if _, err := c.Translate(context.Background(), "Hello.", "cs"); err == nil {
		t.Fatalf("expected joined error")
	}
}
