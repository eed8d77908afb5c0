package espn

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

// Scoreboard fetches and parses the site scoreboard for one date.
func (i *Ingester) Scoreboard(ctx context.Context, lg league.League, date time.Time) ([]*store.Game, error) {
	data, err := i.client.FetchScoreboard(ctx, lg, date)
	if err != nil {
		return nil, fmt.Errorf("fetch scoreboard: %w", err)
	}
	games := ParseScoreboard(data, lg, i.now().UTC())
	i.logger.Debugf("[%s] scoreboard %s: %d games", lg.Key, date.Format("2006-01-02"), len(games))
	return games, nil
}

// ParseScoreboard extracts games from a site API scoreboard. Competitors,
// scores, odds and officials are inline there.
func ParseScoreboard(data map[string]interface{}, lg league.League, fetchedAt time.Time) []*store.Game {
	events := extractArray(data, "events")
	games := make([]*store.Game, 0, len(events))
	for _, raw := range events {
		event, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if g := parseSiteEvent(event, lg, fetchedAt); g != nil {
			games = append(games, g)
		}
	}
	sortGames(games)
	return games
}

func parseSiteEvent(event map[string]interface{}, lg league.League, fetchedAt time.Time) *store.Game {
	start, ok := parseESPNTime(extractString(event, "date"))
	if !ok {
		return nil
	}
	competitions := extractArray(event, "competitions")
	if len(competitions) == 0 {
		return nil
	}
	comp, ok := competitions[0].(map[string]interface{})
	if !ok {
		return nil
	}

	game := &store.Game{
		ID:        extractString(event, "id"),
		Sport:     lg.Key,
		Name:      extractString(event, "name"),
		ShortName: extractString(event, "shortName"),
		StartTime: start,
		UpdatedAt: fetchedAt,
	}

	status := extractMap(event, "status")
	if len(status) == 0 {
		status = extractMap(comp, "status")
	}
	game.Status = parseGameStatus(status)

	var haveHome, haveAway bool
	for _, raw := range extractArray(comp, "competitors") {
		competitor, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		team := teamFromObject(extractMap(competitor, "team"))
		score := scoreValue(competitor["score"])
		switch extractString(competitor, "homeAway") {
		case "home":
			game.Home, game.HomeScore, haveHome = team, score, true
		case "away":
			game.Away, game.AwayScore, haveAway = team, score, true
		}
	}
	if !haveHome || !haveAway {
		return nil
	}
	if game.Status == store.StatusScheduled {
		game.HomeScore, game.AwayScore = nil, nil
	}

	if v := extractMap(comp, "venue"); len(v) > 0 {
		game.Venue = venueFromObject(v)
	}

	for _, raw := range extractArray(comp, "odds") {
		if o, ok := raw.(map[string]interface{}); ok {
			if odds := oddsFromObject(o); odds != nil {
				at := fetchedAt
				odds.FetchedAt = &at
				game.Odds = odds
				break
			}
		}
	}

	for _, raw := range extractArray(comp, "officials") {
		if o, ok := raw.(map[string]interface{}); ok {
			if official, ok := officialFromObject(o); ok {
				game.Officials = append(game.Officials, official)
			}
		}
	}
	return game
}

// SummaryInfo is the part of a game summary the results collector needs.
type SummaryInfo struct {
	Status    string
	HomeScore *int
	AwayScore *int
	Officials []store.Official
	Odds      *store.Odds
}

// Summary fetches one game's summary.
func (i *Ingester) Summary(ctx context.Context, lg league.League, eventID string) (*SummaryInfo, error) {
	data, err := i.client.FetchSummary(ctx, lg, eventID)
	if err != nil {
		return nil, fmt.Errorf("fetch summary %s: %w", eventID, err)
	}
	return ParseSummary(data), nil
}

// ParseSummary reads officials from gameInfo and status/scores from the header.
func ParseSummary(data map[string]interface{}) *SummaryInfo {
	info := &SummaryInfo{Status: store.StatusScheduled}

	header := extractMap(data, "header")
	if comps := extractArray(header, "competitions"); len(comps) > 0 {
		if comp, ok := comps[0].(map[string]interface{}); ok {
			info.Status = parseGameStatus(extractMap(comp, "status"))
			for _, raw := range extractArray(comp, "competitors") {
				c, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				switch extractString(c, "homeAway") {
				case "home":
					info.HomeScore = scoreValue(c["score"])
				case "away":
					info.AwayScore = scoreValue(c["score"])
				}
			}
		}
	}

	for _, raw := range extractArray(extractMap(data, "gameInfo"), "officials") {
		if o, ok := raw.(map[string]interface{}); ok {
			if official, ok := officialFromObject(o); ok {
				info.Officials = append(info.Officials, official)
			}
		}
	}

	for _, key := range []string{"pickcenter", "odds"} {
		for _, raw := range extractArray(data, key) {
			if o, ok := raw.(map[string]interface{}); ok {
				if odds := oddsFromObject(o); odds != nil {
					info.Odds = odds
					return info
				}
			}
		}
	}
	return info
}
