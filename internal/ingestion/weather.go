package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"

	"github.com/mr1hm/go-disaster-risk/internal/config"
	"github.com/mr1hm/go-disaster-risk/internal/models"
)

var ErrWeatherResponse = errors.New("unusable weather response")

// weatherResponse is the subset of an OpenWeatherMap-style current weather
// payload the engine reads.
type weatherResponse struct {
	Main *weatherMain `json:"main"`
	Wind weatherWind  `json:"wind"`
	Rain weatherRain  `json:"rain"`
}

type weatherMain struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
	Pressure float64 `json:"pressure"`
}

type weatherWind struct {
	Speed float64 `json:"speed"` // m/s
}

type weatherRain struct {
	OneHour float64 `json:"1h"`
}

// WeatherClient fetches current conditions for a region's coordinates.
type WeatherClient struct {
	client *resty.Client
	url    string
	apiKey string
}

func NewWeatherClient(cfg config.IngestConfig) *WeatherClient {
	client := resty.New().
		SetTimeout(cfg.WeatherTimeout).
		SetHeader("Accept", "application/json")
	return &WeatherClient{client: client, url: cfg.WeatherURL, apiKey: cfg.WeatherAPIKey}
}

func (c *WeatherClient) Fetch(ctx context.Context, region models.Region) (models.SensorReadingInput, error) {
	var data weatherResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   strconv.FormatFloat(region.Latitude, 'f', -1, 64),
			"lon":   strconv.FormatFloat(region.Longitude, 'f', -1, 64),
			"appid": c.apiKey,
			"units": "metric",
		}).
		SetResult(&data).
		Get(c.url)
	if err != nil {
		return models.SensorReadingInput{}, fmt.Errorf("error while doing request: %w", err)
	}
	if resp.IsError() {
		return models.SensorReadingInput{}, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode(), resp.Status())
	}
	if data.Main == nil {
		return models.SensorReadingInput{}, fmt.Errorf("%w: missing main block", ErrWeatherResponse)
	}

	wind := data.Wind.Speed * 3.6
	return models.SensorReadingInput{
		RegionID:     region.ID,
		TemperatureC: &data.Main.Temp,
		HumidityPct:  &data.Main.Humidity,
		PressureHPA:  &data.Main.Pressure,
		WindSpeedKMH: &wind,
		RainfallMM:   &data.Rain.OneHour,
	}, nil
}
