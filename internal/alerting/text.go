package alerting

import (
	"fmt"

	"github.com/mr1hm/go-disaster-risk/internal/models"
)

func alertTitle(a models.RiskAssessment, regionName string) string {
	var title string
	switch a.Level {
	case models.RiskLevelHigh:
		title = fmt.Sprintf("[CRITICAL] HIGH RISK - %s Alert", a.DisasterType)
	case models.RiskLevelMedium:
		title = fmt.Sprintf("[WARNING] Medium Risk - %s Warning", a.DisasterType)
	default:
		title = fmt.Sprintf("Low Risk - %s", a.DisasterType)
	}
	if regionName != "" {
		title += " - " + regionName
	}
	return title
}

func alertMessage(a models.RiskAssessment) string {
	switch a.Level {
	case models.RiskLevelHigh:
		return fmt.Sprintf("Risk score: %d/100. IMMEDIATE ACTION REQUIRED. Follow evacuation procedures.", a.Score)
	case models.RiskLevelMedium:
		return fmt.Sprintf("Risk score: %d/100. Prepare emergency supplies and review evacuation routes.", a.Score)
	default:
		return fmt.Sprintf("Risk score: %d/100. No immediate action required.", a.Score)
	}
}
