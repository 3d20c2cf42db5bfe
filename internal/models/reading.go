package models

import (
	"errors"
	"fmt"
	"math"
)

// Accepted temperature range, exclusive on both ends.
const (
	MinTemperatureC = -50.0
	MaxTemperatureC = 60.0
)

var ErrInvalidReading = errors.New("invalid sensor reading")

// Defaults substituted for fields missing from an inbound reading.
const (
	DefaultTemperatureC   = 25.0
	DefaultRainfallMM     = 0.0
	DefaultHumidityPct    = 50.0
	DefaultWindSpeedKMH   = 10.0
	DefaultPressureHPA    = 1013.0
	DefaultRiverLevelM    = 3.0
	DefaultSeismicSignal  = 0.1
	DefaultElevation      = 10.0
	DefaultFloodProne     = true
	DefaultCycloneProne   = false
	DefaultEarthquakeZone = 3
)

type SensorReading struct {
	RegionID       string  `json:"region_id"`
	TemperatureC   float64 `json:"temperature_c"`
	RainfallMM     float64 `json:"rainfall_mm"`
	HumidityPct    float64 `json:"humidity_pct"`
	WindSpeedKMH   float64 `json:"wind_speed_kmh"`
	PressureHPA    float64 `json:"pressure_hpa"`
	RiverLevelM    float64 `json:"river_level_m"`
	SeismicSignal  float64 `json:"seismic_signal"`
	Elevation      float64 `json:"elevation"`
	FloodProne     bool    `json:"flood_prone"`
	CycloneProne   bool    `json:"cyclone_prone"`
	EarthquakeZone int     `json:"earthquake_zone"`
}

// SensorReadingInput is the wire form of a reading. Pointer fields let
// ApplyDefaults tell a missing value apart from an explicit zero.
type SensorReadingInput struct {
	RegionID       string   `json:"region_id"`
	TemperatureC   *float64 `json:"temperature_c"`
	RainfallMM     *float64 `json:"rainfall_mm"`
	HumidityPct    *float64 `json:"humidity_pct"`
	WindSpeedKMH   *float64 `json:"wind_speed_kmh"`
	PressureHPA    *float64 `json:"pressure_hpa"`
	RiverLevelM    *float64 `json:"river_level_m"`
	SeismicSignal  *float64 `json:"seismic_signal"`
	Elevation      *float64 `json:"elevation"`
	FloodProne     *int     `json:"flood_prone"`
	CycloneProne   *int     `json:"cyclone_prone"`
	EarthquakeZone *int     `json:"earthquake_zone"`
}

// ApplyDefaults converts the input into a complete reading.
func (in SensorReadingInput) ApplyDefaults() SensorReading {
	r := SensorReading{
		RegionID:       in.RegionID,
		TemperatureC:   floatOr(in.TemperatureC, DefaultTemperatureC),
		RainfallMM:     floatOr(in.RainfallMM, DefaultRainfallMM),
		HumidityPct:    floatOr(in.HumidityPct, DefaultHumidityPct),
		WindSpeedKMH:   floatOr(in.WindSpeedKMH, DefaultWindSpeedKMH),
		PressureHPA:    floatOr(in.PressureHPA, DefaultPressureHPA),
		RiverLevelM:    floatOr(in.RiverLevelM, DefaultRiverLevelM),
		SeismicSignal:  floatOr(in.SeismicSignal, DefaultSeismicSignal),
		Elevation:      floatOr(in.Elevation, DefaultElevation),
		FloodProne:     DefaultFloodProne,
		CycloneProne:   DefaultCycloneProne,
		EarthquakeZone: DefaultEarthquakeZone,
	}
	if in.FloodProne != nil {
		r.FloodProne = *in.FloodProne != 0
	}
	if in.CycloneProne != nil {
		r.CycloneProne = *in.CycloneProne != 0
	}
	if in.EarthquakeZone != nil && *in.EarthquakeZone >= 1 && *in.EarthquakeZone <= 5 {
		r.EarthquakeZone = *in.EarthquakeZone
	}
	return r
}

// DefaultReading returns a reading with every field at its default.
func DefaultReading(regionID string) SensorReading {
	return SensorReadingInput{RegionID: regionID}.ApplyDefaults()
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

// Validate rejects readings the classifier must never see: non-finite
// values, negative magnitudes, humidity outside 0-100 and temperatures
// outside the sensor range.
func (r SensorReading) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"temperature_c", r.TemperatureC},
		{"rainfall_mm", r.RainfallMM},
		{"humidity_pct", r.HumidityPct},
		{"wind_speed_kmh", r.WindSpeedKMH},
		{"pressure_hpa", r.PressureHPA},
		{"river_level_m", r.RiverLevelM},
		{"seismic_signal", r.SeismicSignal},
		{"elevation", r.Elevation},
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidReading, f.name)
		}
		if f.name != "temperature_c" && f.v < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %g", ErrInvalidReading, f.name, f.v)
		}
	}

	if r.TemperatureC <= MinTemperatureC || r.TemperatureC >= MaxTemperatureC {
		return fmt.Errorf("%w: temperature_c must be between %g and %g, got %g",
			ErrInvalidReading, MinTemperatureC, MaxTemperatureC, r.TemperatureC)
	}
	if r.HumidityPct > 100 {
		return fmt.Errorf("%w: humidity_pct must be at most 100, got %g", ErrInvalidReading, r.HumidityPct)
	}
	if r.EarthquakeZone < 1 || r.EarthquakeZone > 5 {
		return fmt.Errorf("%w: earthquake_zone must be 1-5, got %d", ErrInvalidReading, r.EarthquakeZone)
	}
	return nil
}
