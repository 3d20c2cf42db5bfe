// Package risk turns sensor readings into risk assessments using a fixed,
// ordered rule cascade. Everything here is pure and safe for concurrent use.
package risk

import (
	"math"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

const ExtremeConditionsAlert = "Extreme conditions detected"

// Options tweaks classification. The zero value reproduces the cascade exactly.
type Options struct {
	// ScoreBanding derives the risk level from the score and bands instead of
	// the matched rule. Off by default.
	ScoreBanding bool
}

type rule struct {
	match  func(r models.SensorReading) bool
	typ    models.DisasterType
	level  models.RiskLevel
	action models.Action
}

// Order matters: the first matching rule wins.
var cascade = []rule{
	{
		match:  func(r models.SensorReading) bool { return r.RainfallMM > 100 && r.RiverLevelM > 5 },
		typ:    models.DisasterTypeFlood,
		level:  models.RiskLevelHigh,
		action: models.ActionEvacuate,
	},
	{
		match:  func(r models.SensorReading) bool { return r.WindSpeedKMH > 80 },
		typ:    models.DisasterTypeCyclone,
		level:  models.RiskLevelHigh,
		action: models.ActionEvacuate,
	},
	{
		match:  func(r models.SensorReading) bool { return r.SeismicSignal > 2 },
		typ:    models.DisasterTypeEarthquake,
		level:  models.RiskLevelMedium,
		action: models.ActionPrepare,
	},
	{
		match:  func(r models.SensorReading) bool { return r.TemperatureC > 42 },
		typ:    models.DisasterTypeHeatwave,
		level:  models.RiskLevelMedium,
		action: models.ActionPrepare,
	},
	{
		match:  func(r models.SensorReading) bool { return r.RainfallMM > 60 },
		typ:    models.DisasterTypeFlood,
		level:  models.RiskLevelMedium,
		action: models.ActionPrepare,
	},
}

// Score computes the weighted-sum heuristic, floored and clamped to [0, 100].
// The sum is clamped before the integer conversion; NaN scores 0.
func Score(r models.SensorReading) int {
	s := 0.3*r.RainfallMM + 0.2*r.WindSpeedKMH
	if r.RiverLevelM > 5 {
		s += 30
	}
	if r.TemperatureC > 40 {
		s += 20
	}
	if r.SeismicSignal > 1.5 {
		s += 25
	}
	if math.IsNaN(s) {
		return 0
	}
	return int(math.Floor(math.Min(math.Max(s, 0), 100)))
}

// Classify runs the rule cascade with default options.
func Classify(r models.SensorReading, bands models.RiskBands) models.RiskAssessment {
	return ClassifyWith(r, bands, Options{})
}

// ClassifyWith runs the rule cascade. When no rule matches the level is Low
// regardless of score, unless opts.ScoreBanding is set.
func ClassifyWith(r models.SensorReading, bands models.RiskBands, opts Options) models.RiskAssessment {
	score := Score(r)

	typ, level, action := models.DisasterTypeNone, models.RiskLevelLow, models.ActionMonitor
	for _, rl := range cascade {
		if rl.match(r) {
			typ, level, action = rl.typ, rl.level, rl.action
			break
		}
	}
	if opts.ScoreBanding {
		level = Bands(bands).LevelFor(score)
		action = ActionFor(level)
	}

	alerts := []string{}
	if score > 70 {
		alerts = append(alerts, ExtremeConditionsAlert)
	}

	confidence := float64(score) / 100
	return models.RiskAssessment{
		RegionID:           r.RegionID,
		DisasterType:       typ,
		Score:              score,
		Level:              level,
		Action:             action,
		Confidence:         confidence,
		ModelVersion:       models.ModelVersionFallback,
		ClassProbabilities: map[string]float64{typ.String(): confidence},
		RuleAlerts:         alerts,
	}
}

func ActionFor(level models.RiskLevel) models.Action {
	switch level {
	case models.RiskLevelHigh:
		return models.ActionEvacuate
	case models.RiskLevelMedium:
		return models.ActionPrepare
	default:
		return models.ActionMonitor
	}
}

// Severity maps a risk level onto an alert severity.
func Severity(level models.RiskLevel) models.AlertSeverity {
	switch level {
	case models.RiskLevelHigh:
		return models.AlertSeverityCritical
	case models.RiskLevelMedium:
		return models.AlertSeverityWarning
	default:
		return models.AlertSeverityInfo
	}
}

// WarrantsAlert reports whether an assessment should open an alert.
func WarrantsAlert(a models.RiskAssessment) bool {
	return a.DisasterType != models.DisasterTypeNone && a.Level != models.RiskLevelLow
}
