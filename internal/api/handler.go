package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-disaster-risk/internal/alerting"
	"github.com/mr1hm/go-disaster-risk/internal/broadcast"
	"github.com/mr1hm/go-disaster-risk/internal/config"
	internalgrpc "github.com/mr1hm/go-disaster-risk/internal/grpc"
	"github.com/mr1hm/go-disaster-risk/internal/health"
	"github.com/mr1hm/go-disaster-risk/internal/history"
	"github.com/mr1hm/go-disaster-risk/internal/ingestion"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/prediction"
	"github.com/mr1hm/go-disaster-risk/internal/refresh"
	"github.com/mr1hm/go-disaster-risk/internal/regions"
	"github.com/mr1hm/go-disaster-risk/internal/risk"
	"github.com/mr1hm/go-disaster-risk/internal/worker"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
	maxImportBytes   = 10 << 20
)

var errUnknownRegion = errors.New("unknown region")

// badRequest marks client input errors that have no sentinel of their own.
type badRequest struct{ error }

// Deps are the components the HTTP API fronts. Ingest, Hub, Health and
// Refresh are optional.
type Deps struct {
	Predictions *prediction.Service
	Ingest      *ingestion.Manager
	Alerts      *alerting.Manager
	Broadcasts  *broadcast.Dispatcher
	Regions     *regions.Directory
	Activity    history.Ledger
	Settings    *config.Store
	Health      *health.Monitor
	Refresh     *refresh.Manager
	Hub         *internalgrpc.EventHub
}

type Handler struct {
	predictions *prediction.Service
	ingest      *ingestion.Manager
	alerts      *alerting.Manager
	broadcasts  *broadcast.Dispatcher
	regions     *regions.Directory
	activity    history.Ledger
	settings    *config.Store
	health      *health.Monitor
	refresh     *refresh.Manager
	hub         *internalgrpc.EventHub
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		predictions: d.Predictions,
		ingest:      d.Ingest,
		alerts:      d.Alerts,
		broadcasts:  d.Broadcasts,
		regions:     d.Regions,
		activity:    d.Activity,
		settings:    d.Settings,
		health:      d.Health,
		refresh:     d.Refresh,
		hub:         d.Hub,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	r.POST("/predict-risk", h.predictRisk)
	r.GET("/predictions", h.listPredictions)
	if h.ingest != nil {
		r.POST("/ingest-data", h.ingestReading)
		r.POST("/ingest-data/bulk", h.ingestBulk)
	}

	r.GET("/alerts", h.listAlerts)
	r.GET("/alerts/active", h.activeAlerts)
	r.GET("/alerts/history", h.alertHistory)
	r.POST("/alerts", h.createAlert)
	r.GET("/alerts/:id", h.getAlert)
	r.POST("/alerts/:id/resolve", h.resolveAlert)

	r.POST("/broadcast", h.sendBroadcast)
	r.GET("/broadcasts", h.listBroadcasts)
	r.GET("/broadcasts/:id", h.getBroadcast)
	r.POST("/broadcasts/:id/abandon", h.abandonBroadcast)

	r.GET("/regions", h.listRegions)
	r.GET("/regions/geojson", h.regionsGeoJSON)

	r.GET("/activity", h.listActivity)
	r.GET("/dashboard/metrics", h.dashboardMetrics)

	r.GET("/settings", h.getSettings)
	r.PUT("/settings", h.updateSettings)
}

func (h *Handler) healthCheck(c *gin.Context) {
	resp := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if h.health != nil {
		resp["model"] = h.health.Last()
	}
	if h.hub != nil {
		resp["stream_subscribers"] = h.hub.SubscriberCount()
	}
	if h.refresh != nil {
		resp["last_refresh"] = h.refresh.LastRun()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) predictRisk(c *gin.Context) {
	var in models.SensorReadingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, badRequest{err})
		return
	}

	res, err := h.predictions.Predict(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ingestReading(c *gin.Context) {
	var in models.SensorReadingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, badRequest{err})
		return
	}
	if err := h.ingest.Ingest(c.Request.Context(), in); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "region_id": in.RegionID})
}

// ingestBulk takes a CSV import either as the raw body or as the "file" part
// of a multipart form.
func (h *Handler) ingestBulk(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

	var body io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			writeError(c, badRequest{err})
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer f.Close()
		body = f
	}

	res, err := h.ingest.IngestCSV(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *Handler) listPredictions(c *gin.Context) {
	ctx := c.Request.Context()
	limit := queryLimit(c, defaultFeedLimit, maxFeedLimit)

	var (
		entries []models.HistoryEntry
		err     error
	)
	if regionID := c.Query("region_id"); regionID != "" {
		entries, err = h.predictions.RecentForRegion(ctx, regionID, limit)
	} else {
		entries, err = h.predictions.Recent(ctx, limit)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": entries, "count": len(entries)})
}

func (h *Handler) listAlerts(c *gin.Context) {
	filter := alerting.ListFilter{
		RegionID: c.Query("region_id"),
		Search:   c.Query("search"),
		Desc:     c.Query("order") == "desc",
		Limit:    queryLimit(c, 0, alerting.MaxHistoryLimit),
	}
	if s := c.Query("status"); s != "" {
		status, err := models.ParseAlertStatus(s)
		if err != nil {
			writeError(c, badRequest{err})
			return
		}
		filter.Status = &status
	}
	if s := c.Query("severity"); s != "" {
		sev, err := models.ParseAlertSeverity(s)
		if err != nil {
			writeError(c, badRequest{err})
			return
		}
		filter.Severity = &sev
	}
	sortBy, err := alerting.ParseSortKey(c.Query("sort"))
	if err != nil {
		writeError(c, badRequest{err})
		return
	}
	filter.SortBy = sortBy

	alerts, err := h.alerts.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": nonNil(alerts), "count": len(alerts)})
}

func (h *Handler) activeAlerts(c *gin.Context) {
	alerts, err := h.alerts.Active(c.Request.Context(), queryLimit(c, alerting.DefaultActiveLimit, alerting.MaxActiveLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": nonNil(alerts), "count": len(alerts)})
}

func (h *Handler) alertHistory(c *gin.Context) {
	alerts, err := h.alerts.History(c.Request.Context(), c.Query("region_id"),
		queryLimit(c, alerting.DefaultHistoryLimit, alerting.MaxHistoryLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": nonNil(alerts), "count": len(alerts)})
}

type createAlertRequest struct {
	RegionID     string `json:"region_id" binding:"required"`
	DisasterType string `json:"disaster_type" binding:"required"`
	RiskLevel    string `json:"risk_level" binding:"required"`
	RiskScore    int    `json:"risk_score"`
}

func (h *Handler) createAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest{err})
		return
	}

	typ, err := models.ParseDisasterType(req.DisasterType)
	if err != nil {
		writeError(c, badRequest{err})
		return
	}
	level, err := models.ParseRiskLevel(req.RiskLevel)
	if err != nil {
		writeError(c, badRequest{err})
		return
	}
	if req.RiskScore < 0 || req.RiskScore > 100 {
		writeError(c, badRequest{errors.New("risk_score must be within 0-100")})
		return
	}

	ctx := c.Request.Context()
	region, err := h.lookupRegion(ctx, req.RegionID)
	if err != nil {
		writeError(c, err)
		return
	}

	alert, err := h.alerts.Create(ctx, region, models.RiskAssessment{
		RegionID:     region.ID,
		DisasterType: typ,
		Score:        req.RiskScore,
		Level:        level,
		Action:       risk.ActionFor(level),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

func (h *Handler) getAlert(c *gin.Context) {
	alert, err := h.alerts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *Handler) resolveAlert(c *gin.Context) {
	alert, err := h.alerts.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type broadcastRequest struct {
	RegionID string   `json:"region_id" binding:"required"`
	Message  string   `json:"message"`
	Channels []string `json:"channels"`
}

func (h *Handler) sendBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest{err})
		return
	}

	b, err := h.broadcasts.Dispatch(c.Request.Context(), req.RegionID, req.Message, req.Channels)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, b)
}

func (h *Handler) listBroadcasts(c *gin.Context) {
	list, err := h.broadcasts.List(c.Request.Context(), c.Query("region_id"),
		queryLimit(c, broadcast.DefaultListLimit, broadcast.MaxListLimit))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Broadcast{}
	}
	c.JSON(http.StatusOK, gin.H{"broadcasts": list, "count": len(list)})
}

func (h *Handler) getBroadcast(c *gin.Context) {
	b, err := h.broadcasts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) abandonBroadcast(c *gin.Context) {
	b, err := h.broadcasts.Abandon(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) listRegions(c *gin.Context) {
	list, err := h.regions.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Region{}
	}
	c.JSON(http.StatusOK, gin.H{"regions": list, "count": len(list)})
}

func (h *Handler) regionsGeoJSON(c *gin.Context) {
	ctx := c.Request.Context()
	list, err := h.regions.List(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	active, err := h.alerts.Active(ctx, alerting.MaxActiveLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	withAlert := make(map[string]bool, len(active))
	for _, a := range active {
		withAlert[a.RegionID] = true
	}

	fc := toGeoJSON(list, h.predictions.Latest(), withAlert)
	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, fc)
}

func (h *Handler) listActivity(c *gin.Context) {
	entries := []models.HistoryEntry{}
	if h.activity != nil {
		var err error
		entries, err = h.activity.Recent(c.Request.Context(), queryLimit(c, defaultFeedLimit, maxFeedLimit))
		if err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"activity": entries, "count": len(entries)})
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Current())
}

func (h *Handler) updateSettings(c *gin.Context) {
	next := h.settings.Current()
	if err := c.ShouldBindJSON(&next); err != nil {
		writeError(c, badRequest{err})
		return
	}
	if err := h.settings.Update(next); err != nil {
		writeError(c, badRequest{err})
		return
	}
	slog.Info("engine settings updated", "risk_low", next.RiskLow, "risk_high", next.RiskHigh,
		"cooldown_minutes", next.CooldownMinutes, "cooldown_enforced", next.CooldownEnforced,
		"max_alerts_per_day", next.MaxAlertsPerDay)
	c.JSON(http.StatusOK, h.settings.Current())
}

func (h *Handler) lookupRegion(ctx context.Context, id string) (*models.Region, error) {
	region, err := h.regions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, errUnknownRegion
	}
	return region, nil
}

func writeError(c *gin.Context, err error) {
	var (
		br     badRequest
		tooBig *http.MaxBytesError
	)
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &tooBig),
		errors.Is(err, ingestion.ErrTooManyRows):
		status = http.StatusRequestEntityTooLarge
	case errors.As(err, &br),
		errors.Is(err, models.ErrInvalidReading),
		errors.Is(err, ingestion.ErrMissingColumn),
		errors.Is(err, broadcast.ErrEmptyMessage),
		errors.Is(err, broadcast.ErrMessageTooLong),
		errors.Is(err, broadcast.ErrNoChannelSelected),
		errors.Is(err, broadcast.ErrInvalidChannel):
		status = http.StatusBadRequest
	case errors.Is(err, alerting.ErrAlertNotFound),
		errors.Is(err, broadcast.ErrBroadcastNotFound),
		errors.Is(err, broadcast.ErrUnknownRegion),
		errors.Is(err, errUnknownRegion):
		status = http.StatusNotFound
	case errors.Is(err, alerting.ErrDuplicateActiveAlert),
		errors.Is(err, alerting.ErrAlertAlreadyResolved),
		errors.Is(err, broadcast.ErrDuplicateBroadcast),
		errors.Is(err, broadcast.ErrBroadcastNotPending):
		status = http.StatusConflict
	case errors.Is(err, worker.ErrPoolStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, alerting.ErrCooldownActive),
		errors.Is(err, alerting.ErrDailyLimitReached):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context, def, max int) int {
	limit := def
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

func nonNil(alerts []models.Alert) []models.Alert {
	if alerts == nil {
		return []models.Alert{}
	}
	return alerts
}
