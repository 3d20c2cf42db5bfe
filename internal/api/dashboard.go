package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-disaster-risk/internal/alerting"
	"github.com/mr1hm/go-disaster-risk/internal/models"
)

const (
	dashboardPredictions   = 100
	dashboardRecentPreds   = 20
	dashboardRecentAlerts  = 10
	dashboardAlertsHistory = alerting.MaxHistoryLimit
)

type regionRisk struct {
	RiskScore    int                 `json:"risk_score"`
	RiskLevel    models.RiskLevel    `json:"risk_level"`
	DisasterType models.DisasterType `json:"disaster_type"`
}

type dashboard struct {
	TotalRegions       int                   `json:"total_regions"`
	TotalPredictions   int                   `json:"total_predictions"`
	ActiveAlerts       int                   `json:"active_alerts"`
	TotalAlertsHistory int                   `json:"total_alerts_history"`
	RiskDistribution   map[string]int        `json:"risk_distribution"`
	DisasterTypeCounts map[string]int        `json:"disaster_type_counts"`
	RegionRisks        map[string]regionRisk `json:"region_risks"`
	Regions            []models.Region       `json:"regions"`
	RecentPredictions  []models.HistoryEntry `json:"recent_predictions"`
	RecentAlerts       []models.Alert        `json:"recent_alerts"`
	Timestamp          time.Time             `json:"timestamp"`
}

func (h *Handler) dashboardMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	regionList, err := h.regions.List(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	predictions, err := h.predictions.Recent(ctx, dashboardPredictions)
	if err != nil {
		writeError(c, err)
		return
	}
	active, err := h.alerts.Active(ctx, alerting.MaxActiveLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	all, err := h.alerts.History(ctx, "", dashboardAlertsHistory)
	if err != nil {
		writeError(c, err)
		return
	}

	d := dashboard{
		TotalRegions:       len(regionList),
		TotalPredictions:   len(predictions),
		ActiveAlerts:       len(active),
		TotalAlertsHistory: len(all),
		RiskDistribution: map[string]int{
			string(models.RiskLevelLow):    0,
			string(models.RiskLevelMedium): 0,
			string(models.RiskLevelHigh):   0,
		},
		DisasterTypeCounts: map[string]int{},
		RegionRisks:        map[string]regionRisk{},
		Regions:            regionList,
		RecentPredictions:  predictions[:min(len(predictions), dashboardRecentPreds)],
		RecentAlerts:       nonNil(active[:min(len(active), dashboardRecentAlerts)]),
		Timestamp:          time.Now().UTC(),
	}
	if d.Regions == nil {
		d.Regions = []models.Region{}
	}

	for _, a := range h.predictions.Latest() {
		d.RegionRisks[a.RegionID] = regionRisk{
			RiskScore:    a.Score,
			RiskLevel:    a.Level,
			DisasterType: a.DisasterType,
		}
	}
	for _, e := range predictions {
		var a models.RiskAssessment
		if err := decodePayload(e, &a); err != nil {
			continue
		}
		d.RiskDistribution[string(a.Level)]++
		d.DisasterTypeCounts[a.DisasterType.String()]++
	}

	c.JSON(http.StatusOK, d)
}

func decodePayload(e models.HistoryEntry, v any) error {
	if len(e.Payload) == 0 {
		return errors.New("history entry has no payload")
	}
	return json.Unmarshal(e.Payload, v)
}
