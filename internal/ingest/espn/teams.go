package espn

import (
	"context"
	"fmt"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

// TeamVenues lists every team in a league with its franchise venue. One
// team detail request is made per team; failures skip that team.
func (i *Ingester) TeamVenues(ctx context.Context, lg league.League) ([]TeamVenue, error) {
	data, err := i.client.FetchTeams(ctx, lg)
	if err != nil {
		return nil, fmt.Errorf("fetch teams: %w", err)
	}

	teams := parseTeamList(data)
	out := make([]TeamVenue, 0, len(teams))
	for _, team := range teams {
		detail, err := i.client.FetchTeam(ctx, lg, team.ID)
		if err != nil {
			i.logger.Warnf("[%s] ⚠️  team %s (%s): %v", lg.Key, team.ID, team.Name, err)
			continue
		}
		tv := TeamVenue{League: lg.Key, Team: team}
		t := extractMap(detail, "team")
		venue := extractMap(extractMap(t, "franchise"), "venue")
		if len(venue) == 0 {
			venue = extractMap(t, "venue")
		}
		if len(venue) > 0 {
			tv.Venue = venueFromObject(venue)
		}
		out = append(out, tv)
	}
	i.logger.Infof("[%s] ✓ %d team venues", lg.Key, len(out))
	return out, nil
}

// parseTeamList reads sports[].leagues[].teams[].team from the site teams endpoint.
func parseTeamList(data map[string]interface{}) []store.Team {
	var teams []store.Team
	for _, s := range extractArray(data, "sports") {
		sport, _ := s.(map[string]interface{})
		for _, l := range extractArray(sport, "leagues") {
			lg, _ := l.(map[string]interface{})
			for _, raw := range extractArray(lg, "teams") {
				entry, _ := raw.(map[string]interface{})
				team := teamFromObject(extractMap(entry, "team"))
				if team.ID != "" {
					teams = append(teams, team)
				}
			}
		}
	}
	return teams
}
