package reconciliation

import (
	"regexp"
	"strings"
	"time"

	"github.com/fortuna/pythia/internal/ingest/odds"
	"github.com/fortuna/pythia/internal/store"
)

// DefaultWindow is the largest kickoff difference two feeds may disagree by
// and still describe the same game.
const DefaultWindow = 6 * time.Hour

var (
	rankPrefix  = regexp.MustCompile(`^\s*(#\s*\d+|\(\d+\))\s+`)
	nonWordRune = regexp.MustCompile(`[^a-z0-9 ]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

// Matcher handles matching games across ESPN and The Odds API
type Matcher struct {
	window time.Duration
}

// NewMatcher creates a matcher; window <= 0 uses DefaultWindow.
func NewMatcher(window time.Duration) *Matcher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Matcher{window: window}
}

// NormalizeTeam lowercases a team name and strips ranking prefixes
// ("#10 Georgia"), punctuation and parentheses.
func NormalizeTeam(name string) string {
	s := rankPrefix.ReplaceAllString(name, "")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "'", "")
	s = nonWordRune.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// TeamsMatch reports whether two team names refer to the same team: equal
// after normalization, or one is a leading or trailing run of the other's
// words ("Chiefs" vs "Kansas City Chiefs").
func TeamsMatch(a, b string) bool {
	na, nb := NormalizeTeam(a), NormalizeTeam(b)
	if na == "" || nb == "" {
		return false
	}
	if na == nb {
		return true
	}
	ta, tb := strings.Fields(na), strings.Fields(nb)
	if len(ta) > len(tb) {
		ta, tb = tb, ta
	}
	return hasPrefix(tb, ta) || hasPrefix(reverse(tb), reverse(ta))
}

func hasPrefix(words, prefix []string) bool {
	if len(prefix) == 0 || len(prefix) > len(words) {
		return false
	}
	for i := range prefix {
		if words[i] != prefix[i] {
			return false
		}
	}
	return true
}

func reverse(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[len(words)-1-i] = w
	}
	return out
}

// Matches reports whether a line describes the game. Neutral-site games may
// list home and away the other way round.
func (m *Matcher) Matches(g *store.Game, l *odds.Line) bool {
	if l.League != "" && g.Sport != "" && l.League != g.Sport {
		return false
	}
	if diff := g.StartTime.Sub(l.CommenceTime); diff > m.window || diff < -m.window {
		return false
	}
	home, away := teamName(g.Home), teamName(g.Away)
	if TeamsMatch(home, l.HomeTeam) && TeamsMatch(away, l.AwayTeam) {
		return true
	}
	return TeamsMatch(home, l.AwayTeam) && TeamsMatch(away, l.HomeTeam)
}

// FindLine returns the index of the first unused line matching the game, or -1.
func (m *Matcher) FindLine(g *store.Game, lines []odds.Line, used map[int]bool) int {
	for i := range lines {
		if used[i] {
			continue
		}
		if m.Matches(g, &lines[i]) {
			return i
		}
	}
	return -1
}

func teamName(t store.Team) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Abbreviation
}
