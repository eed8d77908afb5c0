package weather

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/pythia/internal/cache"
	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/store"
)

const (
	NWSBaseURL = "https://api.weather.gov"

	pointsTTL = 24 * time.Hour
	// a period further than this from kickoff means the forecast does not reach it
	maxPeriodGap = 3 * time.Hour
)

// ErrOutOfRange marks a kickoff beyond the provider's forecast horizon.
var ErrOutOfRange = errors.New("weather: kickoff outside forecast range")

// ErrNotCovered marks coordinates the provider has no grid for.
var ErrNotCovered = errors.New("weather: location not covered")

// cached in place of the hourly URL when NWS has no grid point
const pointsMissing = "-"

type bbox struct{ minLat, maxLat, minLon, maxLon float64 }

// nwsRegions are the US areas with NWS gridpoints. Border cities inside a
// box (Toronto, Monterrey) are caught by the points 404.
var nwsRegions = []bbox{
	{24.4, 49.0, -125.0, -66.9},  // contiguous states
	{51.0, 71.5, -170.0, -129.5}, // Alaska
	{18.5, 22.5, -160.5, -154.5}, // Hawaii
	{17.8, 18.6, -67.4, -65.2},   // Puerto Rico
}

var windNumber = regexp.MustCompile(`\d+(\.\d+)?`)

type nwsPoints struct {
	Properties struct {
		ForecastHourly string `json:"forecastHourly"`
	} `json:"properties"`
}

type nwsForecast struct {
	Properties struct {
		Periods []nwsPeriod `json:"periods"`
	} `json:"properties"`
}

type nwsPeriod struct {
	StartTime                  time.Time `json:"startTime"`
	EndTime                    time.Time `json:"endTime"`
	Temperature                *float64  `json:"temperature"`
	TemperatureUnit            string    `json:"temperatureUnit"`
	WindSpeed                  string    `json:"windSpeed"`
	ShortForecast              string    `json:"shortForecast"`
	ProbabilityOfPrecipitation struct {
		Value *float64 `json:"value"`
	} `json:"probabilityOfPrecipitation"`
}

// NWS fetches hourly forecasts from the National Weather Service. It only
// covers US coordinates.
type NWS struct {
	baseURL string
	http    *fetch.Client
	cache   cache.Store
}

// NewNWS creates an NWS provider; the points lookup is cached for a day.
func NewNWS(baseURL string, httpClient *fetch.Client, c cache.Store) *NWS {
	if baseURL == "" {
		baseURL = NWSBaseURL
	}
	if httpClient == nil {
		httpClient = fetch.New("nws")
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &NWS{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, cache: c}
}

func (n *NWS) Name() string { return "nws" }

// Covers reports whether the coordinates fall inside NWS territory.
func (n *NWS) Covers(lat, lon float64) bool {
	for _, b := range nwsRegions {
		if lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon {
			return true
		}
	}
	return false
}

// Forecast returns conditions for the hourly period containing at, else the
// nearest period within maxPeriodGap.
func (n *NWS) Forecast(ctx context.Context, lat, lon float64, at time.Time) (*store.Weather, error) {
	hourlyURL, err := n.hourlyURL(ctx, lat, lon)
	if err != nil {
		return nil, err
	}

	var fc nwsForecast
	if _, err := n.http.GetJSON(ctx, hourlyURL, &fc); err != nil {
		return nil, fmt.Errorf("nws forecast: %w", err)
	}

	p, ok := pickPeriod(fc.Properties.Periods, at)
	if !ok {
		return nil, ErrOutOfRange
	}

	w := &store.Weather{
		Source:       n.Name(),
		WindMph:      parseWindMph(p.WindSpeed),
		PrecipPct:    p.ProbabilityOfPrecipitation.Value,
		Summary:      p.ShortForecast,
		ForecastTime: timePtr(p.StartTime.UTC()),
	}
	if p.Temperature != nil {
		t := *p.Temperature
		if strings.EqualFold(p.TemperatureUnit, "C") {
			t = t*9/5 + 32
		}
		w.TempF = store.Float(t)
	}
	return w, nil
}

func (n *NWS) hourlyURL(ctx context.Context, lat, lon float64) (string, error) {
	key := fmt.Sprintf("nws:points:%.4f,%.4f", lat, lon)
	if u, err := n.cache.Get(ctx, key); err == nil && u != "" {
		if u == pointsMissing {
			return "", ErrNotCovered
		}
		return u, nil
	}

	var pts nwsPoints
	if _, err := n.http.GetJSON(ctx, fmt.Sprintf("%s/points/%.4f,%.4f", n.baseURL, lat, lon), &pts); err != nil {
		if errors.Is(err, fetch.ErrNotFound) {
			_ = n.cache.Set(ctx, key, pointsMissing, pointsTTL)
			return "", ErrNotCovered
		}
		return "", fmt.Errorf("nws points: %w", err)
	}
	u := pts.Properties.ForecastHourly
	if u == "" {
		return "", errors.New("nws points: no forecastHourly link")
	}
	_ = n.cache.Set(ctx, key, u, pointsTTL)
	return u, nil
}

func pickPeriod(periods []nwsPeriod, at time.Time) (nwsPeriod, bool) {
	var (
		best    nwsPeriod
		bestGap time.Duration = -1
	)
	for _, p := range periods {
		if !at.Before(p.StartTime) && at.Before(p.EndTime) {
			return p, true
		}
		gap := p.StartTime.Sub(at)
		if gap < 0 {
			gap = at.Sub(p.EndTime)
		}
		if bestGap < 0 || gap < bestGap {
			best, bestGap = p, gap
		}
	}
	if bestGap < 0 || bestGap > maxPeriodGap {
		return nwsPeriod{}, false
	}
	return best, true
}

// parseWindMph reads "10 mph" or "10 to 15 mph", taking the upper bound.
// km/h values are converted.
func parseWindMph(s string) *float64 {
	nums := windNumber.FindAllString(s, -1)
	if len(nums) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(nums[len(nums)-1], 64)
	if err != nil {
		return nil
	}
	if strings.Contains(strings.ToLower(s), "km") {
		v *= 0.621371
	}
	return store.Float(v)
}

func timePtr(t time.Time) *time.Time { return &t }
