package weather

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/store"
)

const OpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

type openMeteoResponse struct {
	Hourly struct {
		Time                     []string   `json:"time"`
		Temperature2m            []*float64 `json:"temperature_2m"`
		Precipitation            []*float64 `json:"precipitation"`
		PrecipitationProbability []*float64 `json:"precipitation_probability"`
		WindSpeed10m             []*float64 `json:"wind_speed_10m"`
		WeatherCode              []*float64 `json:"weather_code"`
	} `json:"hourly"`
}

// OpenMeteo fetches hourly forecasts from Open-Meteo, which needs no key and
// covers the whole globe.
type OpenMeteo struct {
	baseURL string
	http    *fetch.Client
}

func NewOpenMeteo(baseURL string, httpClient *fetch.Client) *OpenMeteo {
	if baseURL == "" {
		baseURL = OpenMeteoURL
	}
	if httpClient == nil {
		httpClient = fetch.New("open_meteo")
	}
	return &OpenMeteo{baseURL: baseURL, http: httpClient}
}

func (o *OpenMeteo) Name() string { return "open-meteo" }

func (o *OpenMeteo) Covers(lat, lon float64) bool { return true }

// Forecast returns the hour nearest to at.
func (o *OpenMeteo) Forecast(ctx context.Context, lat, lon float64, at time.Time) (*store.Weather, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("hourly", "temperature_2m,precipitation,precipitation_probability,wind_speed_10m,weather_code")
	q.Set("temperature_unit", "fahrenheit")
	q.Set("wind_speed_unit", "mph")
	q.Set("timezone", "UTC")
	q.Set("forecast_days", "16")

	var resp openMeteoResponse
	if _, err := o.http.GetJSON(ctx, o.baseURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("open-meteo: %w", err)
	}

	h := resp.Hourly
	i, ts, ok := nearestHour(h.Time, at)
	if !ok {
		return nil, ErrOutOfRange
	}

	w := &store.Weather{
		Source:       o.Name(),
		TempF:        at64(h.Temperature2m, i),
		WindMph:      at64(h.WindSpeed10m, i),
		PrecipPct:    at64(h.PrecipitationProbability, i),
		PrecipMm:     at64(h.Precipitation, i),
		ForecastTime: timePtr(ts),
	}
	if code := at64(h.WeatherCode, i); code != nil {
		w.Summary = DescribeCode(int(*code))
	}
	return w, nil
}

// nearestHour finds the hourly slot closest to at; slots are UTC
// "2006-01-02T15:04" strings.
func nearestHour(times []string, at time.Time) (int, time.Time, bool) {
	best, bestDiff := -1, time.Duration(0)
	var bestTime time.Time
	for i, s := range times {
		t, err := time.Parse("2006-01-02T15:04", s)
		if err != nil {
			continue
		}
		diff := t.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff, bestTime = i, diff, t
		}
	}
	if best < 0 || bestDiff > maxPeriodGap {
		return 0, time.Time{}, false
	}
	return best, bestTime, true
}

func at64(values []*float64, i int) *float64 {
	if i < 0 || i >= len(values) {
		return nil
	}
	return values[i]
}

// DescribeCode maps a WMO weather code to a short summary.
func DescribeCode(code int) string {
	switch {
	case code == 0:
		return "Clear"
	case code <= 2:
		return "Partly Cloudy"
	case code == 3:
		return "Overcast"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain Showers"
	case code == 85 || code == 86:
		return "Snow Showers"
	case code >= 95:
		return "Thunderstorms"
	}
	return "Unknown"
}
