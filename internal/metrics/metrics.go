package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	CandidatesProcessed int64
	Outcomes            map[string]int64 // by row status
	SummarySources      map[string]int64 // precomputed | llm | translated | extract
	ArchiveWrites       int64
	NotificationsSent   int64
	NotificationsFailed int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	return &Metrics{
		Outcomes:       make(map[string]int64),
		SummarySources: make(map[string]int64),
		IsHealthy:      true,
	}
}

func (m *Metrics) RecordOutcome(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesProcessed++
	m.Outcomes[status]++
}

func (m *Metrics) RecordSummarySource(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummarySources[source]++
}

func (m *Metrics) IncrementArchiveWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArchiveWrites++
}

func (m *Metrics) IncrementNotificationsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotificationsSent++
}

func (m *Metrics) IncrementNotificationsFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NotificationsFailed++
}

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.IsHealthy
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	outcomes := make(map[string]int64, len(m.Outcomes))
	for k, v := range m.Outcomes {
		outcomes[k] = v
	}
	sources := make(map[string]int64, len(m.SummarySources))
	for k, v := range m.SummarySources {
		sources[k] = v
	}

	stats := map[string]interface{}{
		"candidates_processed":       m.CandidatesProcessed,
		"outcomes":                   outcomes,
		"summary_sources":            sources,
		"archive_writes":             m.ArchiveWrites,
		"notifications_sent":         m.NotificationsSent,
		"notifications_failed":       m.NotificationsFailed,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime.Format(time.RFC3339)
	}
	if !m.LastErrorTime.IsZero() {
		stats["last_error_time"] = m.LastErrorTime.Format(time.RFC3339)
	}
	return stats
}
