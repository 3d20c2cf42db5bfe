package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-disaster-risk/internal/alerting"
	"github.com/mr1hm/go-disaster-risk/internal/broadcast"
	"github.com/mr1hm/go-disaster-risk/internal/config"
	internalgrpc "github.com/mr1hm/go-disaster-risk/internal/grpc"
	"github.com/mr1hm/go-disaster-risk/internal/health"
	"github.com/mr1hm/go-disaster-risk/internal/history"
	"github.com/mr1hm/go-disaster-risk/internal/ingestion"
	"github.com/mr1hm/go-disaster-risk/internal/metrics"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/prediction"
	"github.com/mr1hm/go-disaster-risk/internal/regions"
	"github.com/mr1hm/go-disaster-risk/internal/repository"
)

type testEnv struct {
	router   *gin.Engine
	settings *config.Store
	hub      *internalgrpc.EventHub
	ingest   *ingestion.Manager
}

func setupTestRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repository.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	dir := regions.NewDirectory(db)
	for _, r := range []models.Region{
		{ID: "dhaka", Name: "Dhaka", Population: 120000, Latitude: 23.81, Longitude: 90.41},
		{ID: "khulna", Name: "Khulna", Population: 80000, Latitude: 22.85, Longitude: 89.54},
	} {
		r := r
		if err := dir.Upsert(ctx, &r); err != nil {
			t.Fatalf("failed to seed region: %v", err)
		}
	}

	m := metrics.NewMetricsForTesting()
	settings := config.NewStore(config.EngineSettings{RiskLow: 40, RiskHigh: 70, CooldownMinutes: 60})
	hub := internalgrpc.NewEventHub()
	activity := history.NewMemoryLedger(history.DefaultCap)
	activityRec := history.NewRecorder(activity, models.HistoryKindActivity, nil)

	alerts := alerting.NewManager(db, settings, alerting.Options{
		Activity:  activityRec,
		Publisher: hub,
		Metrics:   m,
	})
	dispatcher := broadcast.NewDispatcher(db, dir, broadcast.Options{
		Settings:  config.BroadcastConfig{Delay: time.Hour, DefaultPopulation: 50000},
		Workers:   config.WorkerConfig{Count: 1, BufferSize: 1},
		Activity:  activityRec,
		Publisher: hub,
		Metrics:   m,
	})
	runCtx, cancel := context.WithCancel(ctx)
	dispatcher.Start(runCtx)
	t.Cleanup(func() {
		cancel()
		dispatcher.Stop()
	})

	predictions := prediction.NewService(settings, prediction.Options{
		Regions: dir,
		Alerts:  alerts,
		Ledger:  history.NewRecorder(history.NewMemoryLedger(history.DefaultCap), models.HistoryKindPrediction, nil),
		Metrics: m,
	})

	ingest := ingestion.NewManager(predictions, ingestion.Options{
		Workers:     config.WorkerConfig{Count: 1, BufferSize: 10},
		MaxBulkRows: 5,
		Regions:     dir,
		Metrics:     m,
	})
	ingest.Start(runCtx)
	t.Cleanup(ingest.Stop)

	h := NewHandler(Deps{
		Predictions: predictions,
		Ingest:      ingest,
		Alerts:      alerts,
		Broadcasts:  dispatcher,
		Regions:     dir,
		Activity:    activity,
		Settings:    settings,
		Health:      health.NewMonitor(nil, m),
		Hub:         hub,
	})
	router := NewRouter(config.ServerConfig{AllowedOrigin: "*", RateLimitRPS: 1000}, h, m)
	return &testEnv{router: router, settings: settings, hub: hub, ingest: ingest}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", w.Body.String(), err)
	}
	return v
}

type alertList struct {
	Alerts []models.Alert `json:"alerts"`
	Count  int            `json:"count"`
}

type predictionList struct {
	Predictions []models.HistoryEntry `json:"predictions"`
	Count       int                   `json:"count"`
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	model, _ := resp["model"].(map[string]any)
	if model["status"] != health.StatusDisabled {
		t.Errorf("expected model status disabled, got %v", model["status"])
	}
}

func TestPredictRisk_RaisesAlert(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, "POST", "/predict-risk", map[string]any{
		"region_id":     "dhaka",
		"rainfall_mm":   160,
		"river_level_m": 6.5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	res := decode[prediction.Result](t, w)
	if res.Assessment.DisasterType != models.DisasterTypeFlood || res.Assessment.Score != 80 {
		t.Errorf("expected Flood/80, got %s/%d", res.Assessment.DisasterType, res.Assessment.Score)
	}
	if res.Alert == nil || res.Alert.Outcome != alerting.OutcomeCreated {
		t.Fatalf("expected an alert to be created, got %+v", res.Alert)
	}

	active := decode[alertList](t, env.do(t, "GET", "/alerts/active", nil))
	if active.Count != 1 || active.Alerts[0].RegionName != "Dhaka" {
		t.Errorf("expected one active alert for Dhaka, got %+v", active)
	}

	preds := decode[map[string]any](t, env.do(t, "GET", "/predictions?limit=5", nil))
	if preds["count"].(float64) != 1 {
		t.Errorf("expected 1 prediction, got %v", preds["count"])
	}
}

func TestPredictRisk_BadBody(t *testing.T) {
	env := setupTestRouter(t)

	req, _ := http.NewRequest("POST", "/predict-risk", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestPredictRisk_RejectsMalformedReading(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"negative magnitudes", map[string]any{"region_id": "dhaka", "rainfall_mm": -500, "humidity_pct": 900, "wind_speed_kmh": -20}},
		{"temperature out of range", map[string]any{"region_id": "dhaka", "temperature_c": 80}},
		{"negative river level", map[string]any{"region_id": "dhaka", "river_level_m": -3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, "POST", "/predict-risk", tt.body); w.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	active := decode[alertList](t, env.do(t, "GET", "/alerts/active", nil))
	if active.Count != 0 {
		t.Errorf("rejected readings must not open alerts, got %d", active.Count)
	}
}

func TestPredictRisk_HugeRainfallScoresFull(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, "POST", "/predict-risk", map[string]any{"region_id": "dhaka", "rainfall_mm": 1e20, "river_level_m": 7})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[prediction.Result](t, w)
	if res.Assessment.Score != 100 || res.Assessment.Level != models.RiskLevelHigh {
		t.Errorf("expected High/100, got %s/%d", res.Assessment.Level, res.Assessment.Score)
	}
	if res.Alert == nil || res.Alert.Alert == nil || !strings.Contains(res.Alert.Alert.Message, "100/100") {
		t.Errorf("expected alert message with full score, got %+v", res.Alert)
	}
}

func TestPredictions_RegionFilter(t *testing.T) {
	env := setupTestRouter(t)
	env.do(t, "POST", "/predict-risk", map[string]any{"region_id": "dhaka"})
	env.do(t, "POST", "/predict-risk", map[string]any{"region_id": "khulna"})
	env.do(t, "POST", "/predict-risk", map[string]any{"region_id": "dhaka"})

	resp := decode[predictionList](t, env.do(t, "GET", "/predictions?region_id=dhaka", nil))
	if resp.Count != 2 {
		t.Fatalf("expected 2 predictions for dhaka, got %d", resp.Count)
	}
	for _, p := range resp.Predictions {
		if p.RegionID != "dhaka" {
			t.Errorf("unexpected region %s in filtered feed", p.RegionID)
		}
	}
}

func TestIngestData_QueuesReading(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, "POST", "/ingest-data", map[string]any{
		"region_id":     "khulna",
		"temperature_c": 31,
		"rainfall_mm":   160,
		"river_level_m": 6.5,
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[map[string]any](t, w); resp["region_id"] != "khulna" {
		t.Errorf("expected region_id khulna, got %v", resp["region_id"])
	}

	env.ingest.Stop()
	preds := decode[predictionList](t, env.do(t, "GET", "/predictions?region_id=khulna", nil))
	if preds.Count != 1 {
		t.Fatalf("expected 1 prediction for khulna, got %d", preds.Count)
	}
	active := decode[alertList](t, env.do(t, "GET", "/alerts/active", nil))
	if active.Count != 1 {
		t.Errorf("expected the queued reading to raise an alert, got %d", active.Count)
	}
}

func TestIngestData_RejectsInvalid(t *testing.T) {
	env := setupTestRouter(t)

	for name, body := range map[string]map[string]any{
		"missing rainfall":  {"region_id": "dhaka", "temperature_c": 25},
		"missing region":    {"temperature_c": 25, "rainfall_mm": 10},
		"humidity over 100": {"region_id": "dhaka", "temperature_c": 25, "rainfall_mm": 10, "humidity_pct": 140},
	} {
		if w := env.do(t, "POST", "/ingest-data", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", name, w.Code)
		}
	}

	env.ingest.Stop()
	if w := env.do(t, "POST", "/ingest-data", map[string]any{
		"region_id": "dhaka", "temperature_c": 25, "rainfall_mm": 10,
	}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 after shutdown, got %d", w.Code)
	}
}

func (e *testEnv) postCSV(t *testing.T, csv string) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := http.NewRequest("POST", "/ingest-data/bulk", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestIngestBulk_CSV(t *testing.T) {
	env := setupTestRouter(t)

	w := env.postCSV(t, "region_id,temperature_c,rainfall_mm,humidity_pct\n"+
		"dhaka,30,12,80\n"+
		"khulna,29,,70\n"+
		"khulna,28,20,75\n")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	res := decode[ingestion.BulkResult](t, w)
	if res.Accepted != 2 || res.Rejected != 1 {
		t.Fatalf("expected 2 accepted and 1 rejected, got %+v", res)
	}
	if len(res.Errors) != 1 || res.Errors[0].Row != 3 {
		t.Errorf("expected the error on row 3, got %+v", res.Errors)
	}

	env.ingest.Stop()
	preds := decode[predictionList](t, env.do(t, "GET", "/predictions", nil))
	if preds.Count != 2 {
		t.Errorf("expected 2 predictions, got %d", preds.Count)
	}
}

func TestIngestBulk_Multipart(t *testing.T) {
	env := setupTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "readings.csv")
	fw.Write([]byte("region_id,temperature_c,rainfall_mm\ndhaka,30,12\n"))
	mw.Close()

	req, _ := http.NewRequest("POST", "/ingest-data/bulk", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if res := decode[ingestion.BulkResult](t, w); res.Accepted != 1 {
		t.Errorf("expected 1 accepted row, got %+v", res)
	}
}

func TestIngestBulk_Errors(t *testing.T) {
	env := setupTestRouter(t)

	if w := env.postCSV(t, "region_id,temperature_c\ndhaka,30\n"); w.Code != http.StatusBadRequest {
		t.Errorf("missing column: expected status 400, got %d", w.Code)
	}

	big := "region_id,temperature_c,rainfall_mm\n" + strings.Repeat("dhaka,30,12\n", 6)
	if w := env.postCSV(t, big); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("over the row limit: expected status 413, got %d", w.Code)
	}
}

func TestAlerts_CreateResolveLifecycle(t *testing.T) {
	env := setupTestRouter(t)

	body := map[string]any{"region_id": "khulna", "disaster_type": "cyclone", "risk_level": "high", "risk_score": 85}
	w := env.do(t, "POST", "/alerts", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	alert := decode[models.Alert](t, w)
	if alert.Severity != models.AlertSeverityCritical {
		t.Errorf("expected critical severity, got %s", alert.Severity)
	}

	if w := env.do(t, "POST", "/alerts", body); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 for duplicate, got %d", w.Code)
	}

	if w := env.do(t, "POST", "/alerts/"+alert.ID+"/resolve", nil); w.Code != http.StatusOK {
		t.Errorf("expected status 200 on resolve, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/alerts/"+alert.ID+"/resolve", nil); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 on second resolve, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/alerts/missing/resolve", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for missing alert, got %d", w.Code)
	}

	hist := decode[alertList](t, env.do(t, "GET", "/alerts/history?region_id=khulna", nil))
	if hist.Count != 1 || hist.Alerts[0].Status != models.AlertStatusResolved {
		t.Errorf("expected one resolved alert in history, got %+v", hist)
	}

	activity := decode[map[string]any](t, env.do(t, "GET", "/activity", nil))
	if activity["count"].(float64) != 2 {
		t.Errorf("expected 2 activity entries, got %v", activity["count"])
	}
}

func TestAlerts_CreateValidation(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing fields", map[string]any{"region_id": "dhaka"}, http.StatusBadRequest},
		{"bad type", map[string]any{"region_id": "dhaka", "disaster_type": "meteor", "risk_level": "high"}, http.StatusBadRequest},
		{"bad level", map[string]any{"region_id": "dhaka", "disaster_type": "flood", "risk_level": "extreme"}, http.StatusBadRequest},
		{"bad score", map[string]any{"region_id": "dhaka", "disaster_type": "flood", "risk_level": "high", "risk_score": 120}, http.StatusBadRequest},
		{"unknown region", map[string]any{"region_id": "atlantis", "disaster_type": "flood", "risk_level": "high"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, "POST", "/alerts", tt.body); w.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAlerts_CooldownReturns429(t *testing.T) {
	env := setupTestRouter(t)
	s := env.settings.Current()
	s.CooldownEnforced = true
	if err := env.settings.Update(s); err != nil {
		t.Fatalf("update settings: %v", err)
	}

	body := map[string]any{"region_id": "dhaka", "disaster_type": "flood", "risk_level": "medium", "risk_score": 50}
	alert := decode[models.Alert](t, env.do(t, "POST", "/alerts", body))
	env.do(t, "POST", "/alerts/"+alert.ID+"/resolve", nil)

	if w := env.do(t, "POST", "/alerts", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}

func TestAlerts_ListFilters(t *testing.T) {
	env := setupTestRouter(t)

	env.do(t, "POST", "/alerts", map[string]any{"region_id": "dhaka", "disaster_type": "flood", "risk_level": "medium", "risk_score": 50})
	env.do(t, "POST", "/alerts", map[string]any{"region_id": "khulna", "disaster_type": "cyclone", "risk_level": "high", "risk_score": 90})

	got := decode[alertList](t, env.do(t, "GET", "/alerts?severity=critical", nil))
	if got.Count != 1 || got.Alerts[0].RegionID != "khulna" {
		t.Errorf("expected only the khulna alert, got %+v", got)
	}

	got = decode[alertList](t, env.do(t, "GET", "/alerts?sort=region", nil))
	if got.Count != 2 || got.Alerts[0].RegionName != "Dhaka" {
		t.Errorf("expected Dhaka first, got %+v", got)
	}

	got = decode[alertList](t, env.do(t, "GET", "/alerts?search=flood", nil))
	if got.Count != 1 {
		t.Errorf("expected 1 search hit, got %d", got.Count)
	}

	for _, q := range []string{"status=open", "severity=loud", "sort=popularity"} {
		if w := env.do(t, "GET", "/alerts?"+q, nil); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", q, w.Code)
		}
	}
}

func TestBroadcast_Lifecycle(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, "POST", "/broadcast", map[string]any{
		"region_id": "dhaka",
		"message":   "Move to higher ground",
		"channels":  []string{"sms", "app", "sms"},
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	b := decode[models.Broadcast](t, w)
	if b.Status != models.DeliveryPending || len(b.Channels) != 2 || b.RecipientCount != 120000 {
		t.Errorf("unexpected broadcast: %+v", b)
	}

	got := decode[models.Broadcast](t, env.do(t, "GET", "/broadcasts/"+b.ID, nil))
	if got.ID != b.ID {
		t.Errorf("expected broadcast %s, got %s", b.ID, got.ID)
	}

	if w := env.do(t, "POST", "/broadcasts/"+b.ID+"/abandon", nil); w.Code != http.StatusOK {
		t.Errorf("expected status 200 on abandon, got %d", w.Code)
	}
	if w := env.do(t, "POST", "/broadcasts/"+b.ID+"/abandon", nil); w.Code != http.StatusConflict {
		t.Errorf("expected status 409 on second abandon, got %d", w.Code)
	}
	if w := env.do(t, "GET", "/broadcasts/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}

	list := decode[map[string]any](t, env.do(t, "GET", "/broadcasts?region_id=dhaka", nil))
	if list["count"].(float64) != 1 {
		t.Errorf("expected 1 broadcast, got %v", list["count"])
	}
}

func TestBroadcast_Validation(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"empty message", map[string]any{"region_id": "dhaka", "message": "", "channels": []string{"sms"}}, http.StatusBadRequest},
		{"too long", map[string]any{"region_id": "dhaka", "message": strings.Repeat("x", 501), "channels": []string{"sms"}}, http.StatusBadRequest},
		{"no channels", map[string]any{"region_id": "dhaka", "message": "hi"}, http.StatusBadRequest},
		{"bad channel", map[string]any{"region_id": "dhaka", "message": "hi", "channels": []string{"fax"}}, http.StatusBadRequest},
		{"unknown region", map[string]any{"region_id": "atlantis", "message": "hi", "channels": []string{"sms"}}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, "POST", "/broadcast", tt.body); w.Code != tt.want {
				t.Errorf("expected status %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestRegions_GeoJSON(t *testing.T) {
	env := setupTestRouter(t)
	env.do(t, "POST", "/predict-risk", map[string]any{"region_id": "khulna", "wind_speed_kmh": 120})

	w := env.do(t, "GET", "/regions/geojson", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("expected content-type application/geo+json, got %s", ct)
	}

	fc := decode[FeatureCollection](t, w)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 2 {
		t.Fatalf("expected 2 features, got %+v", fc)
	}

	byID := map[string]Feature{}
	for _, f := range fc.Features {
		byID[f.Properties["id"].(string)] = f
	}
	khulna := byID["khulna"]
	if khulna.Properties["disaster_type"] != "Cyclone" || khulna.Properties["has_active_alert"] != true {
		t.Errorf("unexpected khulna properties: %v", khulna.Properties)
	}
	if khulna.Geometry.Coordinates[0] != 89.54 {
		t.Errorf("expected longitude first, got %v", khulna.Geometry.Coordinates)
	}
	if byID["dhaka"].Properties["color"] != "green" {
		t.Errorf("expected calm region to be green, got %v", byID["dhaka"].Properties["color"])
	}
}

func TestDashboardMetrics(t *testing.T) {
	env := setupTestRouter(t)
	env.do(t, "POST", "/predict-risk", map[string]any{"region_id": "khulna", "wind_speed_kmh": 120})
	env.do(t, "POST", "/predict-risk", map[string]any{"region_id": "dhaka"})

	d := decode[dashboard](t, env.do(t, "GET", "/dashboard/metrics", nil))
	if d.TotalRegions != 2 || d.TotalPredictions != 2 || d.ActiveAlerts != 1 {
		t.Errorf("unexpected totals: %+v", d)
	}
	if d.RiskDistribution["High"] != 1 || d.RiskDistribution["Low"] != 1 {
		t.Errorf("unexpected risk distribution: %v", d.RiskDistribution)
	}
	if d.RegionRisks["khulna"].DisasterType != models.DisasterTypeCyclone {
		t.Errorf("unexpected region risks: %v", d.RegionRisks)
	}
}

func TestSettings(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, "PUT", "/settings", map[string]any{"risk_low": 30, "risk_high": 60})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := env.settings.Current(); got.RiskLow != 30 || got.RiskHigh != 60 || got.CooldownMinutes != 60 {
		t.Errorf("unexpected settings after update: %+v", got)
	}

	if w := env.do(t, "PUT", "/settings", map[string]any{"risk_low": 80, "risk_high": 60}); w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for inverted bands, got %d", w.Code)
	}
	if got := env.settings.Current(); got.RiskLow != 30 {
		t.Errorf("invalid update must not apply, got %+v", got)
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(2))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected third request to be limited, got %v", codes)
	}

	// A different client has its own bucket.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestRouter(t)
	if w := env.do(t, "GET", "/metrics", nil); w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}
