package odds

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
)

const BaseURL = "https://api.the-odds-api.com/v4/sports"

// Client fetches lines from The Odds API.
type Client struct {
	baseURL string
	apiKey  string
	http    *fetch.Client
	logger  *zap.SugaredLogger
	now     func() time.Time
}

// NewClient creates an Odds API client. baseURL may be empty for the public API.
func NewClient(apiKey, baseURL string, httpClient *fetch.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	if httpClient == nil {
		httpClient = fetch.New("odds_api", fetch.WithSecretParams("apiKey"))
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
		logger:  logging.OrNop(logger).Named("odds").Sugar(),
		now:     time.Now,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// FetchSport fetches raw events for one sport key.
func (c *Client) FetchSport(ctx context.Context, sportKey string) ([]Event, Quota, error) {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("regions", "us")
	q.Set("markets", "h2h,spreads,totals")
	q.Set("oddsFormat", "american")
	q.Set("dateFormat", "iso")
	u := fmt.Sprintf("%s/%s/odds?%s", c.baseURL, url.PathEscape(sportKey), q.Encode())

	var events []Event
	header, err := c.http.GetJSON(ctx, u, &events)
	quota := Quota{}
	if header != nil {
		quota.Remaining = header.Get("X-Requests-Remaining")
		quota.Used = header.Get("X-Requests-Used")
	}
	if err != nil {
		return nil, quota, fmt.Errorf("odds %s: %w", sportKey, err)
	}

	c.logger.Infof("[%s] → %d events", sportKey, len(events))
	if quota.Remaining != "" {
		c.logger.Infof("[%s] ↪ requests remaining: %s", sportKey, quota.Remaining)
	}
	return events, quota, nil
}

// FetchLines fetches and normalizes lines for every league with an Odds API
// key. Per-league failures are returned alongside whatever succeeded.
func (c *Client) FetchLines(ctx context.Context, leagues []league.League) ([]Line, map[string]error) {
	errs := make(map[string]error)
	var lines []Line
	if !c.Enabled() {
		return nil, errs
	}

	for _, lg := range leagues {
		if lg.OddsKey == "" {
			continue
		}
		events, _, err := c.FetchSport(ctx, lg.OddsKey)
		if err != nil {
			c.logger.Errorf("[%s] ❌ %v", lg.Key, err)
			errs[lg.Key] = err
			continue
		}
		fetchedAt := c.now().UTC()
		for _, ev := range events {
			line, ok := BuildLine(ev, fetchedAt)
			if !ok {
				continue
			}
			line.League = lg.Key
			lines = append(lines, line)
		}
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].CommenceTime.Before(lines[j].CommenceTime) })
	return lines, errs
}
