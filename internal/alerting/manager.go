// Package alerting owns the alert lifecycle: at most one active alert per
// region, a one-way active -> resolved transition, and optional cooldown and
// daily-limit throttling read from the live engine settings.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/history"
	"github.com/mr1hm/go-disaster-risk/internal/metrics"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/repository"
	"github.com/mr1hm/go-disaster-risk/internal/risk"
)

var (
	ErrDuplicateActiveAlert = errors.New("region already has an active alert")
	ErrAlertNotFound        = errors.New("alert not found")
	ErrAlertAlreadyResolved = errors.New("alert already resolved")
	ErrCooldownActive       = errors.New("alert cooldown has not elapsed for region")
	ErrDailyLimitReached    = errors.New("daily alert limit reached for region")
)

const (
	DefaultActiveLimit  = 50
	MaxActiveLimit      = 200
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

type Outcome string

const (
	OutcomeCreated    Outcome = "created"
	OutcomeUpdated    Outcome = "updated"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeThrottled  Outcome = "throttled"
	OutcomeIgnored    Outcome = "ignored"
)

type RaiseResult struct {
	Outcome Outcome       `json:"outcome"`
	Alert   *models.Alert `json:"alert,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

type Publisher interface {
	Publish(e *models.Event)
}

type Options struct {
	Activity  *history.Recorder
	Publisher Publisher
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

type Manager struct {
	repo      repository.AlertRepository
	settings  *config.Store
	activity  *history.Recorder
	publisher Publisher
	metrics   *metrics.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
	locks     *regionLocks
}

func NewManager(repo repository.AlertRepository, settings *config.Store, opts Options) *Manager {
	m := &Manager{
		repo:      repo,
		settings:  settings,
		activity:  opts.Activity,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
		logger:    opts.Logger,
		locks:     newRegionLocks(),
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "alerting")
	}
	if m.metrics == nil {
		m.metrics = metrics.NewMetricsForTesting()
	}
	return m
}

// Create opens a new active alert for the region. It never updates an
// existing alert: a region with an active alert yields ErrDuplicateActiveAlert.
func (m *Manager) Create(ctx context.Context, region *models.Region, a models.RiskAssessment) (*models.Alert, error) {
	unlock := m.locks.lock(region.ID)
	defer unlock()

	existing, err := m.repo.ActiveAlert(ctx, region.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.metrics.AlertOutcomes.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("create alert for %s: %w", region.ID, ErrDuplicateActiveAlert)
	}
	if err := m.checkThrottle(ctx, region.ID); err != nil {
		m.metrics.AlertOutcomes.WithLabelValues(string(OutcomeThrottled)).Inc()
		return nil, err
	}
	return m.createLocked(ctx, region, a)
}

// Raise applies the auto-alert policy for an assessment. A qualifying
// assessment opens an alert; if one is already active it is escalated in
// place when the new assessment is more severe and suppressed otherwise.
func (m *Manager) Raise(ctx context.Context, region *models.Region, a models.RiskAssessment) (RaiseResult, error) {
	if !risk.WarrantsAlert(a) {
		return RaiseResult{Outcome: OutcomeIgnored, Reason: "assessment does not warrant an alert"}, nil
	}

	unlock := m.locks.lock(region.ID)
	defer unlock()

	existing, err := m.repo.ActiveAlert(ctx, region.ID)
	if err != nil {
		return RaiseResult{}, err
	}
	if existing != nil {
		return m.escalateLocked(ctx, existing, region, a)
	}

	if err := m.checkThrottle(ctx, region.ID); err != nil {
		m.metrics.AlertOutcomes.WithLabelValues(string(OutcomeThrottled)).Inc()
		m.logger.Info("alert throttled", "region_id", region.ID, "reason", err)
		return RaiseResult{Outcome: OutcomeThrottled, Reason: err.Error()}, nil
	}

	alert, err := m.createLocked(ctx, region, a)
	if err != nil {
		return RaiseResult{}, err
	}
	return RaiseResult{Outcome: OutcomeCreated, Alert: alert}, nil
}

// Resolve moves an active alert to resolved and stamps the resolution time.
func (m *Manager) Resolve(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := m.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("resolve %s: %w", id, ErrAlertNotFound)
	}

	unlock := m.locks.lock(alert.RegionID)
	defer unlock()

	// Re-read under the region lock; a concurrent resolve may have won.
	alert, err = m.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("resolve %s: %w", id, ErrAlertNotFound)
	}
	if !alert.IsActive() {
		return nil, fmt.Errorf("resolve %s: %w", id, ErrAlertAlreadyResolved)
	}

	now := m.clock.Now().UTC()
	alert.Status = models.AlertStatusResolved
	alert.ResolvedAt = &now
	alert.UpdatedAt = now
	if err := m.repo.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	m.metrics.AlertsResolved.Inc()
	m.logger.Info("alert resolved", "alert_id", alert.ID, "region_id", alert.RegionID)
	m.record(ctx, alert.RegionID, fmt.Sprintf("Resolved alert: %s", alert.Title), alert)
	m.publish(models.EventAlertResolved, alert)
	return alert, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := m.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrAlertNotFound)
	}
	return alert, nil
}

// Active returns active alerts, newest first.
func (m *Manager) Active(ctx context.Context, limit int) ([]models.Alert, error) {
	status := models.AlertStatusActive
	return m.repo.ListAlerts(ctx, repository.AlertFilter{
		Status: &status,
		Limit:  clampLimit(limit, DefaultActiveLimit, MaxActiveLimit),
	})
}

// History returns alerts in any status, newest first, optionally for one region.
func (m *Manager) History(ctx context.Context, regionID string, limit int) ([]models.Alert, error) {
	return m.repo.ListAlerts(ctx, repository.AlertFilter{
		RegionID: regionID,
		Limit:    clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit),
	})
}

func (m *Manager) createLocked(ctx context.Context, region *models.Region, a models.RiskAssessment) (*models.Alert, error) {
	now := m.clock.Now().UTC()
	alert := &models.Alert{
		ID:                 uuid.NewString(),
		Title:              alertTitle(a, region.Name),
		Severity:           risk.Severity(a.Level),
		RegionID:           region.ID,
		RegionName:         region.Name,
		Message:            alertMessage(a),
		DisasterType:       a.DisasterType,
		RiskScore:          a.Score,
		RecommendedAction:  a.Action,
		Status:             models.AlertStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
		AffectedPopulation: region.Population,
	}

	if err := m.repo.AddAlert(ctx, alert); err != nil {
		if errors.Is(err, repository.ErrActiveAlertExists) {
			return nil, fmt.Errorf("create alert for %s: %w", region.ID, ErrDuplicateActiveAlert)
		}
		return nil, err
	}

	m.metrics.AlertOutcomes.WithLabelValues(string(OutcomeCreated)).Inc()
	m.logger.Info("alert created", "alert_id", alert.ID, "region_id", region.ID,
		"severity", alert.Severity, "type", alert.DisasterType, "score", alert.RiskScore)
	m.record(ctx, region.ID, fmt.Sprintf("Created alert: %s", alert.Title), alert)
	m.publish(models.EventAlertCreated, alert)
	return alert, nil
}

func (m *Manager) escalateLocked(ctx context.Context, existing *models.Alert, region *models.Region, a models.RiskAssessment) (RaiseResult, error) {
	severity := risk.Severity(a.Level)
	moreSevere := severity.Priority() < existing.Severity.Priority() ||
		(severity == existing.Severity && a.Score > existing.RiskScore)
	if !moreSevere {
		m.metrics.AlertOutcomes.WithLabelValues(string(OutcomeSuppressed)).Inc()
		return RaiseResult{
			Outcome: OutcomeSuppressed,
			Alert:   existing,
			Reason:  "region already has an active alert of equal or higher severity",
		}, nil
	}

	existing.Severity = severity
	existing.Title = alertTitle(a, region.Name)
	existing.Message = alertMessage(a)
	existing.DisasterType = a.DisasterType
	existing.RiskScore = a.Score
	existing.RecommendedAction = a.Action
	existing.AffectedPopulation = region.Population
	existing.UpdatedAt = m.clock.Now().UTC()
	if err := m.repo.UpdateAlert(ctx, existing); err != nil {
		return RaiseResult{}, err
	}

	m.metrics.AlertOutcomes.WithLabelValues(string(OutcomeUpdated)).Inc()
	m.logger.Info("alert escalated", "alert_id", existing.ID, "region_id", region.ID,
		"severity", existing.Severity, "score", existing.RiskScore)
	m.record(ctx, region.ID, fmt.Sprintf("Escalated alert: %s", existing.Title), existing)
	m.publish(models.EventAlertUpdated, existing)
	return RaiseResult{Outcome: OutcomeUpdated, Alert: existing}, nil
}

func (m *Manager) checkThrottle(ctx context.Context, regionID string) error {
	settings := m.settings.Current()
	now := m.clock.Now().UTC()

	if settings.CooldownEnforced && settings.Cooldown() > 0 {
		last, err := m.repo.LastAlertAt(ctx, regionID)
		if err != nil {
			return err
		}
		if last != nil && now.Sub(*last) < settings.Cooldown() {
			return fmt.Errorf("%w: %s (retry after %s)", ErrCooldownActive, regionID,
				last.Add(settings.Cooldown()).Format(time.RFC3339))
		}
	}

	if settings.MaxAlertsPerDay > 0 {
		n, err := m.repo.CountAlertsSince(ctx, regionID, now.Add(-24*time.Hour))
		if err != nil {
			return err
		}
		if n >= settings.MaxAlertsPerDay {
			return fmt.Errorf("%w: %s (%d in the last 24h)", ErrDailyLimitReached, regionID, n)
		}
	}
	return nil
}

func (m *Manager) record(ctx context.Context, regionID, summary string, alert *models.Alert) {
	if m.activity == nil {
		return
	}
	if err := m.activity.Record(ctx, regionID, summary, alert); err != nil {
		m.logger.Warn("failed to record alert activity", "region_id", regionID, "error", err)
	}
}

func (m *Manager) publish(t models.EventType, alert *models.Alert) {
	if m.publisher == nil {
		return
	}
	snapshot := *alert
	m.publisher.Publish(&models.Event{
		Type:     t,
		RegionID: alert.RegionID,
		Alert:    &snapshot,
		At:       m.clock.Now().UTC(),
	})
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
