package models

import (
	"fmt"
	"strings"
	"time"
)

type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityInfo     AlertSeverity = "info"
)

// Priority orders severities for sorting: critical sorts first.
func (s AlertSeverity) Priority() int {
	switch s {
	case AlertSeverityCritical:
		return 0
	case AlertSeverityWarning:
		return 1
	default:
		return 2
	}
}

func ParseAlertSeverity(s string) (AlertSeverity, error) {
	switch strings.ToLower(s) {
	case "critical":
		return AlertSeverityCritical, nil
	case "warning":
		return AlertSeverityWarning, nil
	case "info":
		return AlertSeverityInfo, nil
	default:
		return "", fmt.Errorf("unknown alert severity %q", s)
	}
}

type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

func ParseAlertStatus(s string) (AlertStatus, error) {
	switch strings.ToLower(s) {
	case "active":
		return AlertStatusActive, nil
	case "resolved":
		return AlertStatusResolved, nil
	default:
		return "", fmt.Errorf("unknown alert status %q", s)
	}
}

type Alert struct {
	ID                 string        `json:"id"`
	Title              string        `json:"title"`
	Severity           AlertSeverity `json:"severity"`
	RegionID           string        `json:"region_id"`
	RegionName         string        `json:"region_name"`
	Message            string        `json:"message"`
	DisasterType       DisasterType  `json:"disaster_type"`
	RiskScore          int           `json:"risk_score"`
	RecommendedAction  Action        `json:"recommended_action"`
	Status             AlertStatus   `json:"status"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	ResolvedAt         *time.Time    `json:"resolved_at,omitempty"`
	AffectedPopulation int64         `json:"affected_population"`
}

func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusActive
}
