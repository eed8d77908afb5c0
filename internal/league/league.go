package league

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sport groups leagues that share scoring scale and weather sensitivity.
type Sport string

const (
	Football   Sport = "football"
	Basketball Sport = "basketball"
	Hockey     Sport = "hockey"
	Baseball   Sport = "baseball"
	MMA        Sport = "mma"
)

// League describes one competition across every upstream source.
type League struct {
	Key      string
	Sport    Sport
	CorePath string // ESPN core/site path, e.g. football/leagues/nfl
	SitePath string // ESPN site API path, e.g. football/nfl
	WebSlug  string // espn.com page slug, e.g. college-football
	OddsKey  string // The Odds API sport key
	// OddstraderURL is empty when the league has no injuries page there.
	OddstraderURL string

	AlwaysIndoor  bool
	HomeAdvantage float64
	BaselineTotal float64
	MarginSigma   float64
	TotalSigma    float64
}

var registry = map[string]League{
	"nfl": {
		Key: "nfl", Sport: Football,
		CorePath: "football/leagues/nfl", SitePath: "football/nfl", WebSlug: "nfl",
		OddsKey:       "americanfootball_nfl",
		OddstraderURL: "https://www.oddstrader.com/nfl/injuries/",
		HomeAdvantage: 2.0, BaselineTotal: 44, MarginSigma: 13.5, TotalSigma: 10,
	},
	"ncaaf": {
		Key: "ncaaf", Sport: Football,
		CorePath: "football/leagues/college-football", SitePath: "football/college-football", WebSlug: "college-football",
		OddsKey:       "americanfootball_ncaaf",
		OddstraderURL: "https://www.oddstrader.com/ncaa-college-football/injuries/",
		HomeAdvantage: 2.0, BaselineTotal: 52, MarginSigma: 15.5, TotalSigma: 12,
	},
	"nba": {
		Key: "nba", Sport: Basketball,
		CorePath: "basketball/leagues/nba", SitePath: "basketball/nba", WebSlug: "nba",
		OddsKey:       "basketball_nba",
		OddstraderURL: "https://www.oddstrader.com/nba/injuries/",
		AlwaysIndoor:  true,
		HomeAdvantage: 1.5, BaselineTotal: 226, MarginSigma: 12, TotalSigma: 18,
	},
	"ncaab": {
		Key: "ncaab", Sport: Basketball,
		CorePath: "basketball/leagues/mens-college-basketball", SitePath: "basketball/mens-college-basketball", WebSlug: "mens-college-basketball",
		OddsKey:       "basketball_ncaab",
		OddstraderURL: "https://www.oddstrader.com/ncaa-college-basketball/injuries/",
		AlwaysIndoor:  true,
		HomeAdvantage: 1.5, BaselineTotal: 141, MarginSigma: 11, TotalSigma: 14,
	},
	"nhl": {
		Key: "nhl", Sport: Hockey,
		CorePath: "hockey/leagues/nhl", SitePath: "hockey/nhl", WebSlug: "nhl",
		OddsKey:       "icehockey_nhl",
		OddstraderURL: "https://www.oddstrader.com/nhl/injuries/",
		AlwaysIndoor:  true,
		HomeAdvantage: 0.3, BaselineTotal: 6.3, MarginSigma: 2.4, TotalSigma: 2.2,
	},
	"mlb": {
		Key: "mlb", Sport: Baseball,
		CorePath: "baseball/leagues/mlb", SitePath: "baseball/mlb", WebSlug: "mlb",
		OddsKey:       "baseball_mlb",
		OddstraderURL: "https://www.oddstrader.com/mlb/injuries/",
		HomeAdvantage: 0.3, BaselineTotal: 8.6, MarginSigma: 4.2, TotalSigma: 3.1,
	},
	"ufc": {
		Key: "ufc", Sport: MMA,
		CorePath: "mma/leagues/ufc", SitePath: "mma/ufc", WebSlug: "mma",
		OddsKey:      "mma_mixed_martial_arts",
		AlwaysIndoor: true,
	},
}

// Lookup returns the league registered under key.
func Lookup(key string) (League, bool) {
	l, ok := registry[strings.ToLower(strings.TrimSpace(key))]
	return l, ok
}

// MustLookup is Lookup for keys already validated by config.
func MustLookup(key string) League {
	l, ok := Lookup(key)
	if !ok {
		panic(fmt.Sprintf("unknown league %q", key))
	}
	return l
}

// Keys lists every registered league key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ByOddsKey maps a The Odds API sport key back to the league.
func ByOddsKey(oddsKey string) (League, bool) {
	for _, l := range registry {
		if l.OddsKey == oddsKey {
			return l, true
		}
	}
	return League{}, false
}

// HasMarkets reports whether spreads and totals make sense for the league.
func (l League) HasMarkets() bool {
	return l.Sport != MMA
}

// SeasonWindow returns the approximate regular+post season span that starts in startYear.
func (l League) SeasonWindow(startYear int) (time.Time, time.Time) {
	switch l.Sport {
	case Football:
		return time.Date(startYear, time.August, 1, 0, 0, 0, 0, time.UTC),
			time.Date(startYear+1, time.February, 15, 0, 0, 0, 0, time.UTC)
	case Hockey:
		return time.Date(startYear, time.October, 1, 0, 0, 0, 0, time.UTC),
			time.Date(startYear+1, time.June, 30, 0, 0, 0, 0, time.UTC)
	case Baseball:
		return time.Date(startYear, time.March, 15, 0, 0, 0, 0, time.UTC),
			time.Date(startYear, time.November, 15, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(startYear, time.October, 1, 0, 0, 0, 0, time.UTC),
			time.Date(startYear+1, time.July, 1, 0, 0, 0, 0, time.UTC)
	}
}
