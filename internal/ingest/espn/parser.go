package espn

import (
	"strconv"
	"strings"
	"time"

	"github.com/fortuna/pythia/internal/store"
)

// teamFromObject maps an ESPN team object. Team name fields drift between
// endpoints, so the display name falls back through every known key.
func teamFromObject(t map[string]interface{}) store.Team {
	team := store.Team{
		ID: fallbackString(extractString(t, "id"), extractString(t, "uid")),
		Name: fallbackString(
			extractString(t, "displayName"),
			extractString(t, "name"),
			extractString(t, "shortDisplayName"),
			extractString(t, "abbreviation"),
		),
		Abbreviation: strings.ToUpper(extractString(t, "abbreviation")),
		Slug:         extractString(t, "slug"),
		Logo:         extractString(t, "logo"),
	}
	if logos := extractArray(t, "logos"); len(logos) > 0 {
		if first, ok := logos[0].(map[string]interface{}); ok {
			team.Logo = fallbackString(extractString(first, "href"), team.Logo)
		}
	}
	return team
}

func venueFromObject(v map[string]interface{}) store.Venue {
	addr := extractMap(v, "address")
	loc := extractMap(v, "location")
	return store.Venue{
		ID:     extractString(v, "id"),
		Name:   fallbackString(extractString(v, "fullName"), extractString(v, "name"), extractString(v, "shortName")),
		City:   extractString(addr, "city"),
		State:  extractString(addr, "state"),
		Lat:    extractFloat(loc, "latitude"),
		Lon:    extractFloat(loc, "longitude"),
		Indoor: extractBool(v, "indoor"),
		Grass:  extractBool(v, "grass"),
	}
}

// oddsFromObject maps one ESPN odds item. ESPN's spread is quoted from the
// home team's perspective.
func oddsFromObject(o map[string]interface{}) *store.Odds {
	if len(o) == 0 {
		return nil
	}
	odds := &store.Odds{
		Provider:      extractString(extractMap(o, "provider"), "name"),
		Details:       strings.TrimSpace(extractString(o, "details")),
		Spread:        extractFloat(o, "spread"),
		Total:         extractFloat(o, "overUnder"),
		HomeMoneyline: extractFloat(extractMap(o, "homeTeamOdds"), "moneyLine"),
		AwayMoneyline: extractFloat(extractMap(o, "awayTeamOdds"), "moneyLine"),
		Source:        "espn",
	}
	if odds.Details == "" && odds.Spread == nil && odds.Total == nil &&
		odds.HomeMoneyline == nil && odds.AwayMoneyline == nil {
		return nil
	}
	return odds
}

// officialFromObject maps a crew member; names and roles appear under several keys.
func officialFromObject(o map[string]interface{}) (store.Official, bool) {
	name := fallbackString(
		extractString(o, "displayName"),
		extractString(o, "fullName"),
		extractString(extractMap(o, "person"), "fullName"),
		extractString(extractMap(o, "person"), "displayName"),
	)
	if name == "" {
		return store.Official{}, false
	}
	role := extractString(o, "role")
	if pos, ok := o["position"]; ok {
		switch p := pos.(type) {
		case string:
			role = p
		case map[string]interface{}:
			role = fallbackString(extractString(p, "displayName"), extractString(p, "name"), role)
		}
	}
	return store.Official{Name: strings.TrimSpace(name), Role: role}, true
}

// scoreValue reads a competitor score given inline as a number, a string or
// a {value, displayValue} object.
func scoreValue(v interface{}) *int {
	switch s := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		if f := extractFloat(s, "value"); f != nil {
			return store.Int(int(*f))
		}
		return scoreValue(s["displayValue"])
	default:
		if f := parseFloat(s); f != nil {
			return store.Int(int(*f))
		}
	}
	return nil
}

// parseESPNTime accepts RFC3339 and ESPN's shortened "2025-11-15T01:00Z".
func parseESPNTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04Z", "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseGameStatus(status map[string]interface{}) string {
	statusType := extractMap(status, "type")

	if completed, ok := statusType["completed"].(bool); ok && completed {
		return store.StatusFinal
	}
	name := strings.ToUpper(extractString(statusType, "name"))
	if strings.Contains(name, "POSTPONED") || strings.Contains(name, "CANCELED") {
		return store.StatusPostponed
	}

	if state, ok := statusType["state"].(string); ok {
		switch state {
		case "in":
			return store.StatusInProgress
		case "pre":
			return store.StatusScheduled
		case "post":
			return store.StatusFinal
		}
	}

	return store.StatusScheduled
}

func extractString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		switch s := v.(type) {
		case string:
			return s
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		}
	}
	return ""
}

func fallbackString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func extractInt(m map[string]interface{}, key string) int {
	if v, ok := m[key]; ok {
		return parseInt(v)
	}
	return 0
}

func extractFloat(m map[string]interface{}, key string) *float64 {
	if v, ok := m[key]; ok {
		return parseFloat(v)
	}
	return nil
}

func extractBool(m map[string]interface{}, key string) *bool {
	if v, ok := m[key].(bool); ok {
		return store.Bool(v)
	}
	return nil
}

func extractMap(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key]; ok {
		if mapVal, ok := v.(map[string]interface{}); ok {
			return mapVal
		}
	}
	return map[string]interface{}{}
}

func extractArray(m map[string]interface{}, key string) []interface{} {
	if v, ok := m[key]; ok {
		if arrVal, ok := v.([]interface{}); ok {
			return arrVal
		}
	}
	return []interface{}{}
}

func parseInt(v interface{}) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(val))
		return i
	case int:
		return val
	default:
		return 0
	}
}

func parseFloat(v interface{}) *float64 {
	switch val := v.(type) {
	case float64:
		return store.Float(val)
	case int:
		return store.Float(float64(val))
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if f, err := strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64); err == nil {
			return store.Float(f)
		}
	}
	return nil
}
