// Package refresh runs periodic housekeeping: it recomputes dashboard
// counters and probes the model backend on a fixed interval.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-risk/internal/metrics"
)

const (
	MinInterval     = 15 * time.Second
	MaxInterval     = 5 * time.Minute
	DefaultInterval = 30 * time.Second
)

// Task is one unit of refresh work. A failing task is logged; the remaining
// tasks still run and the loop keeps ticking.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

type Options struct {
	Metrics *metrics.Metrics
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

type Manager struct {
	interval time.Duration
	tasks    []namedTask
	metrics  *metrics.Metrics
	clock    clockwork.Clock
	logger   *slog.Logger

	running atomic.Bool
	lastRun atomic.Int64
	wg      sync.WaitGroup
}

// NewManager clamps interval to [MinInterval, MaxInterval]; zero selects
// DefaultInterval.
func NewManager(interval time.Duration, opts Options) *Manager {
	switch {
	case interval == 0:
		interval = DefaultInterval
	case interval < MinInterval:
		interval = MinInterval
	case interval > MaxInterval:
		interval = MaxInterval
	}
	m := &Manager{
		interval: interval,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "refresh")
	}
	if m.metrics == nil {
		m.metrics = metrics.NewMetricsForTesting()
	}
	return m
}

// Add registers a task. Tasks run in registration order. Not safe to call
// after Start.
func (m *Manager) Add(name string, task Task) {
	m.tasks = append(m.tasks, namedTask{name: name, run: task})
}

func (m *Manager) Interval() time.Duration {
	return m.interval
}

// LastRun is the completion time of the last run, zero before the first.
func (m *Manager) LastRun() time.Time {
	n := m.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	m.logger.Info("starting refresh loop", "interval", m.interval, "tasks", len(m.tasks))

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	// Initial run
	m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("refresh loop shutting down")
			return
		case <-ticker.Chan():
			// A slow run must not delay the ticker; overlapping ticks are skipped.
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.RunOnce(ctx)
			}()
		}
	}
}

// RunOnce runs every task unless a run is already in progress, in which
// case it returns false immediately.
func (m *Manager) RunOnce(ctx context.Context) bool {
	if !m.running.CompareAndSwap(false, true) {
		m.metrics.RefreshRuns.WithLabelValues("skipped").Inc()
		m.logger.Debug("refresh already running, skipping tick")
		return false
	}
	defer m.running.Store(false)

	outcome := "ok"
	for _, t := range m.tasks {
		if ctx.Err() != nil {
			return true
		}
		if err := t.run(ctx); err != nil {
			outcome = "error"
			m.logger.Error("refresh task failed", "task", t.name, "error", err)
		}
	}
	m.metrics.RefreshRuns.WithLabelValues(outcome).Inc()
	m.lastRun.Store(m.clock.Now().UnixNano())
	return true
}

// Stop waits for the loop and any in-flight run to exit. Cancel the context
// passed to Start first.
func (m *Manager) Stop() {
	m.wg.Wait()
	m.logger.Info("refresh manager stopped")
}
