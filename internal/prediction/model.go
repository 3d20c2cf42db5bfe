package prediction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

var ErrModelUnavailable = errors.New("model backend unavailable")

// ModelClient scores a complete sensor reading.
type ModelClient interface {
	Predict(ctx context.Context, r models.SensorReading) (models.RiskAssessment, error)
}

// RemoteModel calls an HTTP model backend that speaks the predict-risk
// JSON contract.
type RemoteModel struct {
	client *resty.Client
}

func NewRemoteModel(baseURL string, timeout time.Duration) *RemoteModel {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &RemoteModel{client: client}
}

type modelResponse struct {
	DisasterType       string             `json:"disaster_type"`
	FinalRiskScore     *int               `json:"final_risk_score"`
	RiskScore          int                `json:"risk_score"`
	RiskLevel          string             `json:"risk_level"`
	RecommendedAction  string             `json:"recommended_action"`
	Confidence         *float64           `json:"confidence"`
	RiskProbability    float64            `json:"risk_probability"`
	ModelVersion       string             `json:"model_version"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
	RuleAlerts         []string           `json:"rule_alerts"`
}

func (m *RemoteModel) Predict(ctx context.Context, r models.SensorReading) (models.RiskAssessment, error) {
	var out modelResponse
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(r).
		SetResult(&out).
		Post("/predict")
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if resp.IsError() {
		return models.RiskAssessment{}, fmt.Errorf("%w: status %d", ErrModelUnavailable, resp.StatusCode())
	}
	return out.toAssessment(r.RegionID)
}

func (m modelResponse) toAssessment(regionID string) (models.RiskAssessment, error) {
	typ, err := models.ParseDisasterType(m.DisasterType)
	if err != nil {
		return models.RiskAssessment{}, fmt.Errorf("decode model response: %w", err)
	}

	score := m.RiskScore
	if m.FinalRiskScore != nil {
		score = *m.FinalRiskScore
	}
	if score < 0 || score > 100 {
		return models.RiskAssessment{}, fmt.Errorf("decode model response: score %d out of range", score)
	}

	a := models.RiskAssessment{
		RegionID:           regionID,
		DisasterType:       typ,
		Score:              score,
		Confidence:         m.RiskProbability,
		ModelVersion:       m.ModelVersion,
		ClassProbabilities: m.ClassProbabilities,
		RuleAlerts:         m.RuleAlerts,
	}
	if m.Confidence != nil {
		a.Confidence = *m.Confidence
	}
	if m.RiskLevel != "" {
		if a.Level, err = models.ParseRiskLevel(m.RiskLevel); err != nil {
			return models.RiskAssessment{}, fmt.Errorf("decode model response: %w", err)
		}
	}
	if m.RecommendedAction != "" {
		a.Action = models.Action(m.RecommendedAction)
	}
	if a.ModelVersion == "" {
		a.ModelVersion = "unknown"
	}
	if a.ClassProbabilities == nil {
		a.ClassProbabilities = map[string]float64{}
	}
	if _, ok := a.ClassProbabilities[typ.String()]; !ok {
		a.ClassProbabilities[typ.String()] = a.Confidence
	}
	if a.RuleAlerts == nil {
		a.RuleAlerts = []string{}
	}
	return a, nil
}
