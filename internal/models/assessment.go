package models

import (
	"fmt"
	"strings"
	"time"
)

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "Low"
	RiskLevelMedium RiskLevel = "Medium"
	RiskLevelHigh   RiskLevel = "High"
)

func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToLower(s) {
	case "low":
		return RiskLevelLow, nil
	case "medium":
		return RiskLevelMedium, nil
	case "high":
		return RiskLevelHigh, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", s)
	}
}

type Action string

const (
	ActionMonitor  Action = "Monitor"
	ActionPrepare  Action = "Prepare"
	ActionEvacuate Action = "Evacuate"
)

// ModelVersionFallback tags assessments computed by the local rule cascade
// instead of the model backend.
const ModelVersionFallback = "demo_fallback"

// RiskAssessment is the result of classifying one sensor reading. It is a
// value type; nothing mutates it after construction.
type RiskAssessment struct {
	RegionID           string             `json:"region_id,omitempty"`
	DisasterType       DisasterType       `json:"disaster_type"`
	Score              int                `json:"final_risk_score"`
	Level              RiskLevel          `json:"risk_level"`
	Action             Action             `json:"recommended_action"`
	Confidence         float64            `json:"confidence"`
	ModelVersion       string             `json:"model_version"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
	RuleAlerts         []string           `json:"rule_alerts"`
	Degraded           bool               `json:"degraded"`
	AssessedAt         time.Time          `json:"assessed_at"`
}

// IsFallback reports whether the assessment came from the local classifier.
func (a RiskAssessment) IsFallback() bool {
	return a.ModelVersion == ModelVersionFallback
}
