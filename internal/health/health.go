// Package health probes the model backend and keeps the last result for the
// health endpoint and metrics.
package health

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-risk/internal/metrics"
)

const (
	StatusUp       = "up"
	StatusDown     = "down"
	StatusDisabled = "disabled"
	StatusUnknown  = "unknown"
)

type Status struct {
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type Prober interface {
	Probe(ctx context.Context) (Status, error)
}

// HTTPProber issues GET /health against a base URL. Any non-2xx answer
// counts as down.
type HTTPProber struct {
	client *resty.Client
	clock  clockwork.Clock
}

func NewHTTPProber(baseURL string, timeout time.Duration, clock clockwork.Clock) *HTTPProber {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	return &HTTPProber{client: client, clock: clock}
}

func (p *HTTPProber) Probe(ctx context.Context) (Status, error) {
	start := p.clock.Now()
	resp, err := p.client.R().SetContext(ctx).Get("/health")
	st := Status{
		LatencyMS: p.clock.Since(start).Milliseconds(),
		CheckedAt: p.clock.Now().UTC(),
	}
	if err != nil {
		st.Status = StatusDown
		st.Error = err.Error()
		return st, fmt.Errorf("probe model: %w", err)
	}
	if resp.IsError() {
		st.Status = StatusDown
		st.Error = resp.Status()
		return st, fmt.Errorf("probe model: status %d", resp.StatusCode())
	}
	st.Status = StatusUp
	return st, nil
}

// Monitor runs probes and remembers the latest status. A nil prober means no
// model is configured.
type Monitor struct {
	prober  Prober
	metrics *metrics.Metrics

	mu   sync.RWMutex
	last Status
}

func NewMonitor(prober Prober, m *metrics.Metrics) *Monitor {
	if m == nil {
		m = metrics.NewMetricsForTesting()
	}
	last := Status{Status: StatusUnknown}
	if prober == nil {
		last.Status = StatusDisabled
	}
	return &Monitor{prober: prober, metrics: m, last: last}
}

// Check probes once and records the outcome. The probe error is returned so
// callers can count failed runs.
func (m *Monitor) Check(ctx context.Context) error {
	if m.prober == nil {
		return nil
	}

	st, err := m.prober.Probe(ctx)
	if err != nil && st.Status == "" {
		st.Status = StatusDown
		st.Error = err.Error()
	}

	m.mu.Lock()
	m.last = st
	m.mu.Unlock()

	if st.Status == StatusUp {
		m.metrics.ModelUp.Set(1)
	} else {
		m.metrics.ModelUp.Set(0)
	}
	m.metrics.ModelLatency.Observe(float64(st.LatencyMS) / 1000)
	return err
}

func (m *Monitor) Last() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}
