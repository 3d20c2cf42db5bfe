// Package ingestion takes sensor readings in from the API, CSV imports and a
// polled weather source, and feeds them to the prediction service through a
// worker pool.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/metrics"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/prediction"
	"github.com/mr1hm/go-disaster-risk/internal/worker"
)

const (
	SourceAPI     = "api"
	SourceCSV     = "csv"
	SourceWeather = "weather"
)

const (
	DefaultMaxBulkRows = 10000
	maxReportedErrors  = 20
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrTooManyRows   = errors.New("too many rows")
)

// Columns every CSV import must carry. Other known columns are optional and
// unknown ones are ignored.
var requiredColumns = []string{"region_id", "temperature_c", "rainfall_mm"}

type Predictor interface {
	Predict(ctx context.Context, in models.SensorReadingInput) (prediction.Result, error)
}

type RegionLister interface {
	List(ctx context.Context) ([]models.Region, error)
}

type WeatherSource interface {
	Fetch(ctx context.Context, region models.Region) (models.SensorReadingInput, error)
}

type Options struct {
	Workers     config.WorkerConfig
	MaxBulkRows int
	// Regions and Weather are only needed for PollWeather.
	Regions RegionLister
	Weather WeatherSource
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type job struct {
	source  string
	reading models.SensorReadingInput
}

type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// BulkResult reports a CSV import. Rows are numbered from 1 with the header
// as row 1; only the first few rejections are listed.
type BulkResult struct {
	Accepted int        `json:"accepted"`
	Rejected int        `json:"rejected"`
	Errors   []RowError `json:"errors"`
}

type Manager struct {
	predictor Predictor
	regions   RegionLister
	weather   WeatherSource
	maxRows   int
	pool      *worker.WorkerPool[job]
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewManager(predictor Predictor, opts Options) *Manager {
	m := &Manager{
		predictor: predictor,
		regions:   opts.Regions,
		weather:   opts.Weather,
		maxRows:   opts.MaxBulkRows,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if m.maxRows <= 0 {
		m.maxRows = DefaultMaxBulkRows
	}
	if m.metrics == nil {
		m.metrics = metrics.NewMetricsForTesting()
	}
	if m.logger == nil {
		m.logger = slog.Default().With("component", "ingestion")
	}
	m.pool = worker.NewWorkerPool(opts.Workers.Count, opts.Workers.BufferSize, m.process)
	return m
}

func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)
}

// Stop stops accepting readings and waits for queued ones to be assessed.
func (m *Manager) Stop() {
	m.pool.Stop()
	m.logger.Info("ingestion manager stopped")
}

// Ingest validates one reading and queues it for assessment. Validation
// failures are returned immediately and nothing is queued.
func (m *Manager) Ingest(ctx context.Context, in models.SensorReadingInput) error {
	if err := checkReading(in); err != nil {
		m.metrics.ReadingsIngested.WithLabelValues(SourceAPI, "rejected").Inc()
		return err
	}
	return m.submit(ctx, SourceAPI, in)
}

// IngestCSV reads a CSV import with a header row. Invalid rows are skipped
// and reported; valid rows are queued. An import over the row limit is
// rejected whole.
func (m *Manager) IngestCSV(ctx context.Context, r io.Reader) (BulkResult, error) {
	res := BulkResult{Errors: []RowError{}}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return res, fmt.Errorf("%w: empty import", ErrMissingColumn)
	}
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return res, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return res, fmt.Errorf("read row: %w", err)
			}
			// Keep the row so it is reported with its number.
			rec = nil
		}
		if len(records) == m.maxRows {
			return res, fmt.Errorf("%w: limit is %d", ErrTooManyRows, m.maxRows)
		}
		records = append(records, rec)
	}

	for i, rec := range records {
		row := i + 2
		if rec == nil {
			m.reject(&res, row, errors.New("malformed csv row"))
			continue
		}
		in, err := parseRow(rec, cols)
		if err == nil {
			err = checkReading(in)
		}
		if err != nil {
			m.reject(&res, row, err)
			continue
		}
		if err := m.submit(ctx, SourceCSV, in); err != nil {
			return res, err
		}
		res.Accepted++
	}

	m.logger.Info("csv import queued", "accepted", res.Accepted, "rejected", res.Rejected)
	return res, nil
}

// PollWeather fetches current conditions for every known region and queues
// them. A failing region does not stop the others; their errors are joined.
func (m *Manager) PollWeather(ctx context.Context) error {
	if m.weather == nil || m.regions == nil {
		return nil
	}
	regions, err := m.regions.List(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, r := range regions {
		in, err := m.weather.Fetch(ctx, r)
		if err != nil {
			m.metrics.ReadingsIngested.WithLabelValues(SourceWeather, "failed").Inc()
			errs = append(errs, fmt.Errorf("fetch %s: %w", r.ID, err))
			continue
		}
		in.RegionID = r.ID
		if err := in.ApplyDefaults().Validate(); err != nil {
			m.metrics.ReadingsIngested.WithLabelValues(SourceWeather, "rejected").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", r.ID, err))
			continue
		}
		if err := m.submit(ctx, SourceWeather, in); err != nil {
			errs = append(errs, fmt.Errorf("queue %s: %w", r.ID, err))
			break
		}
	}

	m.logger.Debug("weather poll complete", "regions", len(regions), "errors", len(errs))
	return errors.Join(errs...)
}

func (m *Manager) submit(ctx context.Context, source string, in models.SensorReadingInput) error {
	if err := m.pool.Submit(ctx, job{source: source, reading: in}); err != nil {
		m.metrics.ReadingsIngested.WithLabelValues(source, "failed").Inc()
		return err
	}
	m.metrics.ReadingsIngested.WithLabelValues(source, "accepted").Inc()
	return nil
}

func (m *Manager) reject(res *BulkResult, row int, err error) {
	m.metrics.ReadingsIngested.WithLabelValues(SourceCSV, "rejected").Inc()
	res.Rejected++
	if len(res.Errors) < maxReportedErrors {
		res.Errors = append(res.Errors, RowError{Row: row, Error: err.Error()})
	}
}

func (m *Manager) process(ctx context.Context, j job) error {
	res, err := m.predictor.Predict(ctx, j.reading)
	if err != nil {
		return fmt.Errorf("assess %s reading for %s: %w", j.source, j.reading.RegionID, err)
	}
	m.logger.Debug("reading assessed",
		"source", j.source,
		"region_id", j.reading.RegionID,
		"type", res.Assessment.DisasterType,
		"score", res.Assessment.Score,
	)
	return nil
}

// checkReading enforces the fields intake requires on top of the reading's
// own range checks.
func checkReading(in models.SensorReadingInput) error {
	switch {
	case strings.TrimSpace(in.RegionID) == "":
		return fmt.Errorf("%w: region_id is required", models.ErrInvalidReading)
	case in.TemperatureC == nil:
		return fmt.Errorf("%w: temperature_c is required", models.ErrInvalidReading)
	case in.RainfallMM == nil:
		return fmt.Errorf("%w: rainfall_mm is required", models.ErrInvalidReading)
	}
	return in.ApplyDefaults().Validate()
}

var floatColumns = map[string]func(in *models.SensorReadingInput, v float64){
	"temperature_c":  func(in *models.SensorReadingInput, v float64) { in.TemperatureC = &v },
	"rainfall_mm":    func(in *models.SensorReadingInput, v float64) { in.RainfallMM = &v },
	"humidity_pct":   func(in *models.SensorReadingInput, v float64) { in.HumidityPct = &v },
	"wind_speed_kmh": func(in *models.SensorReadingInput, v float64) { in.WindSpeedKMH = &v },
	"pressure_hpa":   func(in *models.SensorReadingInput, v float64) { in.PressureHPA = &v },
	"river_level_m":  func(in *models.SensorReadingInput, v float64) { in.RiverLevelM = &v },
	"seismic_signal": func(in *models.SensorReadingInput, v float64) { in.SeismicSignal = &v },
	"elevation":      func(in *models.SensorReadingInput, v float64) { in.Elevation = &v },
}

var intColumns = map[string]func(in *models.SensorReadingInput, v int){
	"flood_prone":     func(in *models.SensorReadingInput, v int) { in.FloodProne = &v },
	"cyclone_prone":   func(in *models.SensorReadingInput, v int) { in.CycloneProne = &v },
	"earthquake_zone": func(in *models.SensorReadingInput, v int) { in.EarthquakeZone = &v },
}

// parseRow maps a record onto a reading. Empty cells stay unset so the
// reading defaults apply.
func parseRow(rec []string, cols map[string]int) (models.SensorReadingInput, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	in := models.SensorReadingInput{RegionID: cell("region_id")}
	for name, set := range floatColumns {
		raw := cell(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return in, fmt.Errorf("%w: %s is not a number: %q", models.ErrInvalidReading, name, raw)
		}
		set(&in, v)
	}
	for name, set := range intColumns {
		raw := cell(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			b, berr := strconv.ParseBool(raw)
			if berr != nil {
				return in, fmt.Errorf("%w: %s is not an integer: %q", models.ErrInvalidReading, name, raw)
			}
			v = 0
			if b {
				v = 1
			}
		}
		set(&in, v)
	}
	return in, nil
}
