package venue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/cache"
	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

const (
	NominatimURL = "https://nominatim.openstreetmap.org/search"

	geocodeTTL = 30 * 24 * time.Hour
)

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Point is a cached geocode answer. Found is false for queries Nominatim
// could not place, so they are not retried every run.
type Point struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Found bool    `json:"found"`
}

// Geocoder looks up venue coordinates through Nominatim.
type Geocoder struct {
	baseURL string
	http    *fetch.Client
	cache   cache.Store
	logger  *zap.SugaredLogger
}

// NewGeocoder builds a geocoder. httpClient should carry a contact
// User-Agent and a 1 request/second limit; nil builds one with userAgent.
func NewGeocoder(httpClient *fetch.Client, c cache.Store, userAgent string, logger *zap.Logger) *Geocoder {
	if httpClient == nil {
		httpClient = fetch.New("nominatim",
			fetch.WithUserAgent(userAgent),
			fetch.WithRateLimit(time.Second, 1),
		)
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &Geocoder{
		baseURL: NominatimURL,
		http:    httpClient,
		cache:   c,
		logger:  logging.OrNop(logger).Named("geocode").Sugar(),
	}
}

// WithBaseURL points the geocoder at another Nominatim instance.
func (g *Geocoder) WithBaseURL(u string) *Geocoder {
	g.baseURL = u
	return g
}

// Geocode resolves "name, city, state", falling back to "city, state".
func (g *Geocoder) Geocode(ctx context.Context, v store.Venue) (Point, error) {
	queries := []string{joinNonEmpty(v.Name, v.City, v.State)}
	if v.City != "" {
		queries = append(queries, joinNonEmpty(v.City, v.State))
	}

	var lastErr error
	for _, q := range queries {
		if q == "" {
			continue
		}
		p, err := g.lookup(ctx, q)
		if err != nil {
			lastErr = err
			continue
		}
		if p.Found {
			return p, nil
		}
	}
	return Point{}, lastErr
}

func (g *Geocoder) lookup(ctx context.Context, q string) (Point, error) {
	key := "geo:" + strings.ToLower(q)
	var cached Point
	if hit, err := cache.GetJSON(ctx, g.cache, key, &cached); err == nil && hit {
		return cached, nil
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", q)

	var places []nominatimPlace
	if _, err := g.http.GetJSON(ctx, g.baseURL+"?"+params.Encode(), &places); err != nil {
		return Point{}, fmt.Errorf("geocode %q: %w", q, err)
	}

	p := Point{}
	if len(places) > 0 {
		lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
		lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
		if errLat == nil && errLon == nil {
			p = Point{Lat: lat, Lon: lon, Found: true}
		}
	}
	if err := cache.SetJSON(ctx, g.cache, key, p, geocodeTTL); err != nil {
		g.logger.Warnf("⚠️  cache geocode %q: %v", q, err)
	}
	return p, nil
}

// Enrich fills coordinates for outdoor venues that lack them. Venues shared
// by several games are looked up once. It returns how many games were filled.
func (g *Geocoder) Enrich(ctx context.Context, games []*store.Game) (int, error) {
	seen := make(map[string]*Point)
	filled := 0
	var lastErr error

	for _, game := range games {
		if game.Venue.HasCoords() || game.Venue.IsIndoor() || (game.Venue.Name == "" && game.Venue.City == "") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return filled, err
		}

		key := joinNonEmpty(game.Venue.Name, game.Venue.City, game.Venue.State)
		p, ok := seen[key]
		if !ok {
			point, err := g.Geocode(ctx, game.Venue)
			if err != nil {
				g.logger.Warnf("[%s] ⚠️  %s: %v", game.Sport, key, err)
				lastErr = err
			}
			p = &point
			seen[key] = p
		}
		if p.Found {
			game.Venue.Lat, game.Venue.Lon = store.Float(p.Lat), store.Float(p.Lon)
			filled++
		}
	}

	g.logger.Infof("✓ geocoded %d games (%d distinct venues)", filled, len(seen))
	return filled, lastErr
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
