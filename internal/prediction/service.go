// Package prediction produces risk assessments for sensor readings. It asks
// the model backend first and falls back to the local rule cascade when the
// backend is missing or failing, so a prediction is always returned.
package prediction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-disaster-risk/internal/alerting"
	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/history"
	"github.com/mr1hm/go-disaster-risk/internal/metrics"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/risk"
)

type RegionLookup interface {
	Get(ctx context.Context, id string) (*models.Region, error)
}

// AlertRaiser is the auto-alert hook; alerting.Manager satisfies it.
type AlertRaiser interface {
	Raise(ctx context.Context, region *models.Region, a models.RiskAssessment) (alerting.RaiseResult, error)
}

type Options struct {
	// Model may be nil, in which case every prediction uses the rule cascade.
	Model   ModelClient
	Regions RegionLookup
	Alerts  AlertRaiser
	Ledger  *history.Recorder
	Metrics *metrics.Metrics
	Clock   clockwork.Clock
	Logger  *slog.Logger
}

type Result struct {
	Assessment models.RiskAssessment `json:"assessment"`
	Alert      *alerting.RaiseResult `json:"alert,omitempty"`
}

type Service struct {
	settings *config.Store
	model    ModelClient
	regions  RegionLookup
	alerts   AlertRaiser
	ledger   *history.Recorder
	metrics  *metrics.Metrics
	clock    clockwork.Clock
	logger   *slog.Logger

	mu     sync.RWMutex
	latest map[string]models.RiskAssessment
}

func NewService(settings *config.Store, opts Options) *Service {
	s := &Service{
		settings: settings,
		model:    opts.Model,
		regions:  opts.Regions,
		alerts:   opts.Alerts,
		ledger:   opts.Ledger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		logger:   opts.Logger,
		latest:   make(map[string]models.RiskAssessment),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "prediction")
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetricsForTesting()
	}
	return s
}

// Predict fills in missing reading fields, scores the reading and, when the
// assessment warrants it, raises an alert for the region. A reading that
// fails validation is rejected with models.ErrInvalidReading.
func (s *Service) Predict(ctx context.Context, in models.SensorReadingInput) (Result, error) {
	reading := in.ApplyDefaults()
	if err := reading.Validate(); err != nil {
		return Result{}, err
	}
	settings := s.settings.Current()

	var region *models.Region
	if reading.RegionID != "" && s.regions != nil {
		r, err := s.regions.Get(ctx, reading.RegionID)
		if err != nil {
			return Result{}, err
		}
		region = r
	}
	bands := region.BandsOr(settings.Bands())

	assessment := s.assess(ctx, reading, bands, settings.ScoreBanding)
	assessment.AssessedAt = s.clock.Now().UTC()

	source := "model"
	if assessment.IsFallback() {
		source = "fallback"
	}
	s.metrics.Predictions.WithLabelValues(source, string(assessment.Level)).Inc()

	if reading.RegionID != "" {
		s.mu.Lock()
		s.latest[reading.RegionID] = assessment
		s.mu.Unlock()
	}
	s.record(ctx, assessment)

	result := Result{Assessment: assessment}
	if s.alerts == nil || reading.RegionID == "" || !risk.WarrantsAlert(assessment) {
		return result, nil
	}

	if region == nil {
		region = &models.Region{ID: reading.RegionID, Name: reading.RegionID}
	}
	raised, err := s.alerts.Raise(ctx, region, assessment)
	if err != nil {
		// The assessment stands even if alerting fails.
		s.logger.Error("auto-alert failed", "region_id", region.ID, "error", err)
		return result, nil
	}
	result.Alert = &raised
	return result, nil
}

// Latest returns the most recent assessment per region.
func (s *Service) Latest() map[string]models.RiskAssessment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.RiskAssessment, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Recent returns up to n prediction history entries, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]models.HistoryEntry, error) {
	if s.ledger == nil {
		return []models.HistoryEntry{}, nil
	}
	return s.ledger.Ledger().Recent(ctx, n)
}

// RecentForRegion returns up to n entries for one region, newest first. The
// ledger is bounded, so this scans the whole of it.
func (s *Service) RecentForRegion(ctx context.Context, regionID string, n int) ([]models.HistoryEntry, error) {
	all, err := s.Recent(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := []models.HistoryEntry{}
	for _, e := range all {
		if e.RegionID != regionID {
			continue
		}
		out = append(out, e)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *Service) assess(ctx context.Context, r models.SensorReading, bands models.RiskBands, scoreBanding bool) models.RiskAssessment {
	opts := risk.Options{ScoreBanding: scoreBanding}
	if s.model == nil {
		return risk.ClassifyWith(r, bands, opts)
	}

	a, err := s.model.Predict(ctx, r)
	if err != nil {
		s.logger.Warn("model unavailable, using rule fallback", "region_id", r.RegionID, "error", err)
		fallback := risk.ClassifyWith(r, bands, opts)
		fallback.Degraded = true
		return fallback
	}

	// Model scores are banded with the live thresholds so operator changes
	// apply to both paths.
	a.Level = risk.Bands(bands).LevelFor(a.Score)
	a.Action = risk.ActionFor(a.Level)
	return a
}

func (s *Service) record(ctx context.Context, a models.RiskAssessment) {
	if s.ledger == nil {
		return
	}
	summary := fmt.Sprintf("%s %s risk (%d/100)", a.DisasterType, a.Level, a.Score)
	if err := s.ledger.Record(ctx, a.RegionID, summary, a); err != nil {
		s.logger.Warn("failed to record prediction", "region_id", a.RegionID, "error", err)
	}
}
