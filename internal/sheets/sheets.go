// Package sheets reads candidate rows from a Google spreadsheet and writes
// their outcomes back.
//
// Column layout (1-based row numbers, header in row 1):
//
//	A created  B source  C title  D url  E -  F summary  G -
//	H status   I archive locator  J note  K approval  L published at  M card id
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/deusflow/briefs/internal/engine"
	"github.com/deusflow/briefs/internal/retry"
)

const (
	colCreated = iota
	colSource
	colTitle
	colURL
	_
	colSummary
	_
	colStatus
	colLocator
	colNote
	colApproval
	colPublishedAt
	colCardID
)

const batchSize = 25

// valuesAPI is the slice of the Sheets API this package needs.
type valuesAPI interface {
	Get(ctx context.Context, rng string) ([][]interface{}, error)
	BatchUpdate(ctx context.Context, data []*sheets.ValueRange) error
}

type serviceAPI struct {
	svc *sheets.Service
	id  string
}

func (s serviceAPI) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.id, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s serviceAPI) BatchUpdate(ctx context.Context, data []*sheets.ValueRange) error {
	req := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	_, err := s.svc.Spreadsheets.Values.BatchUpdate(s.id, req).Context(ctx).Do()
	return err
}

// Client binds one spreadsheet tab.
type Client struct {
	api valuesAPI
	tab string
}

func NewClient(ctx context.Context, credentialsFile, spreadsheetID, tab string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &Client{api: serviceAPI{svc: svc, id: spreadsheetID}, tab: tab}, nil
}

// Source lists candidate rows.
type Source struct {
	c *Client
}

func (c *Client) Source() *Source { return &Source{c: c} }

func (s *Source) Candidates(ctx context.Context) ([]engine.Candidate, error) {
	rows, err := s.c.api.Get(ctx, s.c.tab+"!A:M")
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	var out []engine.Candidate
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		url := cell(row, colURL)
		if url == "" {
			continue
		}
		out = append(out, engine.Candidate{
			Ref:                RowRef(i + 1),
			URL:                url,
			CreatedAt:          engine.ParseTime(cell(row, colCreated)),
			Approved:           engine.ParseFlag(cell(row, colApproval)),
			PublishedAt:        engine.ParseTime(cell(row, colPublishedAt)),
			PrecomputedSummary: cell(row, colSummary),
			PriorStatus:        engine.Status(strings.ToUpper(cell(row, colStatus))),
			PriorLocator:       cell(row, colLocator),
			Title:              cell(row, colTitle),
			SourceHint:         cell(row, colSource),
		})
	}
	return out, nil
}

func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}

// RowRef names a sheet row. Rows are 1-based.
func RowRef(row int) string { return "row:" + strconv.Itoa(row) }

// ParseRowRef is the inverse of RowRef.
func ParseRowRef(ref string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "row:"))
	if err != nil || !strings.HasPrefix(ref, "row:") || n < 2 {
		return 0, fmt.Errorf("invalid row reference %q", ref)
	}
	return n, nil
}

// Sink queues outcome cells and writes them in paced batches on Flush.
type Sink struct {
	c       *Client
	log     *slog.Logger
	limiter *rate.Limiter
	retry   retry.Policy

	mu      sync.Mutex
	pending []*sheets.ValueRange
}

func (c *Client) Sink(log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{
		c:       c,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		retry: retry.Policy{
			MaxAttempts: 6,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Jitter:      0.2,
			Retryable:   Retryable,
		},
	}
}

// Record queues the status columns for r. Empty title and summary leave
// the stored cells alone.
func (s *Sink) Record(ctx context.Context, r engine.Record) error {
	row, err := ParseRowRef(r.Ref)
	if err != nil {
		return err
	}
	n := strconv.Itoa(row)

	note := r.Note
	if r.Kind != engine.KindNone && !strings.HasPrefix(note, string(r.Kind)) {
		note = strings.TrimSpace(string(r.Kind) + ": " + note)
	}

	ranges := []*sheets.ValueRange{{
		Range:  fmt.Sprintf("%s!H%s:J%s", s.c.tab, n, n),
		Values: [][]interface{}{{string(r.Status), r.Locator, note}},
	}}
	if r.Title != "" {
		ranges = append(ranges, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!C%s", s.c.tab, n),
			Values: [][]interface{}{{r.Title}},
		})
	}
	if r.Summary != "" {
		ranges = append(ranges, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!F%s", s.c.tab, n),
			Values: [][]interface{}{{r.Summary}},
		})
	}
	if !r.PublishedAt.IsZero() || r.CardID != "" {
		published := ""
		if !r.PublishedAt.IsZero() {
			published = r.PublishedAt.UTC().Format(time.RFC3339)
		}
		ranges = append(ranges, &sheets.ValueRange{
			Range:  fmt.Sprintf("%s!L%s:M%s", s.c.tab, n, n),
			Values: [][]interface{}{{published, r.CardID}},
		})
	}

	s.mu.Lock()
	s.pending = append(s.pending, ranges...)
	s.mu.Unlock()
	return nil
}

// Flush writes queued ranges in batches of 25. A batch that still fails
// after retries is logged and dropped; the rest continue.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	var failed int
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]

		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		err := s.retry.Do(ctx, func() error {
			return withRetryAfter(s.c.api.BatchUpdate(ctx, batch))
		})
		if err != nil {
			failed++
			s.log.Error("sheet batch update failed", "ranges", len(batch), "error", err)
			continue
		}
		s.log.Debug("sheet batch written", "ranges", len(batch))
	}
	if failed > 0 {
		return fmt.Errorf("%d sheet batches failed", failed)
	}
	return nil
}

// Retryable reports whether a Sheets API error is worth another attempt.
func Retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return false
}

func withRetryAfter(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) || gerr.Header == nil {
		return err
	}
	secs, convErr := strconv.Atoi(gerr.Header.Get("Retry-After"))
	if convErr != nil || secs <= 0 {
		return err
	}
	return &retry.RetryAfterError{Err: err, After: time.Duration(secs) * time.Second}
}

// WithRetry overrides the attempt count and base delay for batch writes.
func (s *Sink) WithRetry(attempts int, delay time.Duration) *Sink {
	if attempts > 0 {
		s.retry.MaxAttempts = attempts
	}
	if delay > 0 {
		s.retry.BaseDelay = delay
	}
	return s
}
