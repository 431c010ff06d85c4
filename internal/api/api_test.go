package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/briefs/internal/feed"
	"github.com/deusflow/briefs/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testCards() []feed.Card {
	day := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return []feed.Card{
		{ID: "1", Title: "Mounjaro zdražuje", SourceHost: "ceskenoviny.cz", PublishedAt: day},
		{ID: "2", Title: "ECB drží sazby", SourceHost: "reuters.com", PublishedAt: day.Add(time.Hour)},
		{ID: "3", Title: "Sazby v Česku", SourceHost: "ceskenoviny.cz", PublishedAt: day.Add(2 * time.Hour)},
	}
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestCards(t *testing.T) {
	r := NewServer(feed.NewMemoryStore(testCards()), metrics.New()).Router()

	w := get(t, r, "/api/cards?q=sazby&sort=asc")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var page feed.Page
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || page.Items[0].ID != "2" || page.Items[1].ID != "3" {
		t.Fatalf("page = %+v", page)
	}

	w = get(t, r, "/api/cards?host=www.ceskenoviny.cz&pageSize=1&page=2")
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if page.Total != 2 || page.Pages != 2 || len(page.Items) != 1 || page.Items[0].ID != "1" {
		t.Fatalf("paged = %+v", page)
	}

	if w := get(t, r, "/api/cards?page=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad page status = %d", w.Code)
	}

	w = get(t, r, "/api/cards?page=800000000000000000&pageSize=12")
	if w.Code != http.StatusOK {
		t.Fatalf("huge page status = %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &page)
	if len(page.Items) != 0 || page.Total != 3 {
		t.Fatalf("huge page = %+v", page)
	}
}

func TestHosts(t *testing.T) {
	r := NewServer(feed.NewMemoryStore(testCards()), metrics.New()).Router()
	w := get(t, r, "/api/hosts")
	var body struct {
		Hosts []string `json:"hosts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Hosts) != 2 || body.Hosts[0] != "ceskenoviny.cz" {
		t.Fatalf("hosts = %v", body.Hosts)
	}

	empty := NewServer(feed.NewMemoryStore(nil), metrics.New()).Router()
	if w := get(t, empty, "/api/hosts"); w.Body.String() != `{"hosts":[]}` {
		t.Fatalf("empty hosts body = %s", w.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	r := NewServer(feed.NewMemoryStore(nil), m).Router()

	if w := get(t, r, "/health"); w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	m.SetError("feed unavailable")
	if w := get(t, r, "/health"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy = %d", w.Code)
	}

	w := get(t, r, "/metrics")
	var stats map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if _, ok := stats["outcomes"]; !ok {
		t.Fatalf("metrics = %v", stats)
	}
}

type failingStore struct{}

func (failingStore) Read(context.Context) (feed.Snapshot, error) {
	return feed.Snapshot{}, errors.New("disk gone")
}

func (failingStore) Write(context.Context, []feed.Card, feed.Version) error {
	return errors.New("disk gone")
}

func TestCardsStoreError(t *testing.T) {
	r := NewServer(failingStore{}, metrics.New()).Router()
	if w := get(t, r, "/api/cards"); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}
