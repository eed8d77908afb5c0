package espn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
)

const (
	CoreBaseURL = "https://sports.core.api.espn.com/v2/sports"
	SiteBaseURL = "https://site.api.espn.com/apis/site/v2/sports"
)

// Client handles ESPN core and site API requests.
// ESPN rejects non-browser fingerprints, so the shared fetch client is
// expected to carry the browser User-Agent.
type Client struct {
	coreBase string
	siteBase string
	http     *fetch.Client
	logger   *zap.SugaredLogger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURLs overrides the core and site roots (tests point these at httptest).
func WithBaseURLs(core, site string) ClientOption {
	return func(c *Client) {
		if core != "" {
			c.coreBase = strings.TrimRight(core, "/")
		}
		if site != "" {
			c.siteBase = strings.TrimRight(site, "/")
		}
	}
}

// NewClient creates an ESPN client on top of a shared fetch client.
func NewClient(httpClient *fetch.Client, logger *zap.Logger, opts ...ClientOption) *Client {
	if httpClient == nil {
		httpClient = fetch.New("espn")
	}
	c := &Client{
		coreBase: CoreBaseURL,
		siteBase: SiteBaseURL,
		http:     httpClient,
		logger:   logging.OrNop(logger).Named("espn-client").Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON fetches any ESPN URL, including $ref links, as a generic map.
func (c *Client) GetJSON(ctx context.Context, rawURL string) (map[string]interface{}, error) {
	return c.http.GetMap(ctx, secureRef(rawURL))
}

// FetchWhitelist returns the league calendar whitelist.
func (c *Client) FetchWhitelist(ctx context.Context, lg league.League) (map[string]interface{}, error) {
	return c.GetJSON(ctx, fmt.Sprintf("%s/%s/calendar/whitelist", c.coreBase, lg.CorePath))
}

// FetchEventIndex lists event $refs for one date, or for an inclusive range when end is after start.
func (c *Client) FetchEventIndex(ctx context.Context, lg league.League, start, end time.Time) (map[string]interface{}, error) {
	dates := start.Format("20060102")
	if end.After(start) && end.Format("20060102") != dates {
		dates += "-" + end.Format("20060102")
	}
	return c.GetJSON(ctx, fmt.Sprintf("%s/%s/events?dates=%s&limit=1000&lang=en&region=us", c.coreBase, lg.CorePath, dates))
}

// FetchScoreboard fetches the site scoreboard for a specific date.
// If date is zero, fetches ESPN's "today".
func (c *Client) FetchScoreboard(ctx context.Context, lg league.League, date time.Time) (map[string]interface{}, error) {
	u := fmt.Sprintf("%s/%s/scoreboard", c.siteBase, lg.SitePath)
	if !date.IsZero() {
		u += "?limit=1000&dates=" + date.Format("20060102")
		if lg.Key == "ncaaf" || lg.Key == "ncaab" {
			// college scoreboards default to ranked/featured games only
			u += "&groups=" + collegeGroup(lg)
		}
	}
	return c.GetJSON(ctx, u)
}

// FetchSummary fetches the site game summary (officials, header status, scores).
func (c *Client) FetchSummary(ctx context.Context, lg league.League, eventID string) (map[string]interface{}, error) {
	return c.GetJSON(ctx, fmt.Sprintf("%s/%s/summary?event=%s", c.siteBase, lg.SitePath, url.QueryEscape(eventID)))
}

// FetchTeams lists a league's teams from the site API.
func (c *Client) FetchTeams(ctx context.Context, lg league.League) (map[string]interface{}, error) {
	return c.GetJSON(ctx, fmt.Sprintf("%s/%s/teams?limit=1000", c.siteBase, lg.SitePath))
}

// FetchTeam fetches one team, including its franchise venue.
func (c *Client) FetchTeam(ctx context.Context, lg league.League, teamID string) (map[string]interface{}, error) {
	return c.GetJSON(ctx, fmt.Sprintf("%s/%s/teams/%s", c.siteBase, lg.SitePath, url.PathEscape(teamID)))
}

// FetchInjuries fetches the site injuries feed.
func (c *Client) FetchInjuries(ctx context.Context, lg league.League) (map[string]interface{}, error) {
	return c.GetJSON(ctx, fmt.Sprintf("%s/%s/injuries", c.siteBase, lg.SitePath))
}

func collegeGroup(lg league.League) string {
	if lg.Sport == league.Football {
		return "80" // FBS
	}
	return "50" // Division I
}

// secureRef upgrades ESPN $ref links, which the core API emits as http://.
func secureRef(raw string) string {
	if !strings.HasPrefix(raw, "http://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(u.Hostname(), "espn.com") {
		u.Scheme = "https"
		return u.String()
	}
	return raw
}
