// Package injuries collects injury reports from several sources and
// condenses them into weighted per-team summaries.
package injuries

import (
	"context"
	"fmt"
	"strings"

	"github.com/fortuna/pythia/internal/ingest/espn"
	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

// Source is one injury feed.
type Source interface {
	Name() string
	Fetch(ctx context.Context, lg league.League) ([]store.InjuryReport, error)
}

// ESPN reads the site API injuries feed.
type ESPN struct {
	client *espn.Client
}

func NewESPN(client *espn.Client) *ESPN { return &ESPN{client: client} }

func (e *ESPN) Name() string { return "espn" }

func (e *ESPN) Fetch(ctx context.Context, lg league.League) ([]store.InjuryReport, error) {
	data, err := e.client.FetchInjuries(ctx, lg)
	if err != nil {
		return nil, fmt.Errorf("espn injuries %s: %w", lg.Key, err)
	}
	return ParseESPN(data), nil
}

// ParseESPN reads both feed shapes ESPN has served: team groups under
// "injuries" with nested "injuries", and "items" with "athletes".
func ParseESPN(data map[string]interface{}) []store.InjuryReport {
	groups := asSlice(data["injuries"])
	if len(groups) == 0 {
		groups = asSlice(data["items"])
	}

	var out []store.InjuryReport
	for _, raw := range groups {
		group, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		team := firstString(group, "displayName", "teamName")
		if t := asMap(group["team"]); team == "" && t != nil {
			team = firstString(t, "displayName", "name")
		}

		entries := asSlice(group["injuries"])
		if len(entries) == 0 {
			entries = asSlice(group["athletes"])
		}
		if len(entries) == 0 {
			entries = asSlice(group["entries"])
		}
		for _, rawEntry := range entries {
			entry, ok := rawEntry.(map[string]interface{})
			if !ok {
				continue
			}
			athlete := asMap(entry["athlete"])
			if athlete == nil {
				athlete = entry
			}
			player := firstString(athlete, "displayName", "fullName", "name")
			if player == "" {
				continue
			}
			position := ""
			if pos := asMap(athlete["position"]); pos != nil {
				position = firstString(pos, "abbreviation", "name")
			}
			status := firstString(entry, "status")
			if s := asMap(entry["type"]); status == "" && s != nil {
				status = firstString(s, "description", "name")
			}
			detail := firstString(entry, "shortComment", "description", "injuryDescription", "longComment")
			if d := asMap(entry["details"]); detail == "" && d != nil {
				detail = strings.TrimSpace(firstString(d, "type") + " " + firstString(d, "detail"))
			}

			out = append(out, store.InjuryReport{
				Team:     team,
				Player:   player,
				Position: position,
				Status:   status,
				Detail:   detail,
				Updated:  firstString(entry, "date", "lastModified"),
				Source:   "espn",
			})
		}
	}
	return out
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
