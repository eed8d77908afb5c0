// Package venue decides whether a game is played indoors and fills in venue
// coordinates.
package venue

import (
	"strings"
	"unicode"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/store"
)

// Indoor sources, in precedence order.
const (
	SourceESPN     = "espn"
	SourceOverride = "override"
	SourceDomeList = "dome_list"
	SourceSport    = "sport"
	SourceKeyword  = "keyword"
	SourceDefault  = "default"
)

var indoorKeywords = map[string]bool{
	"indoor":     true,
	"arena":      true,
	"center":     true,
	"centre":     true,
	"fieldhouse": true,
	"pavilion":   true,
}

// Resolver applies the indoor precedence chain.
type Resolver struct {
	overrides map[string]bool
	domes     map[string]bool
}

// NewResolver builds a resolver from per-team overrides (keyed by team
// display name or "league:team") and extra dome names.
func NewResolver(overrides map[string]bool, extraDomes []string) *Resolver {
	r := &Resolver{
		overrides: make(map[string]bool, len(overrides)),
		domes:     make(map[string]bool, len(knownDomes)+len(extraDomes)),
	}
	for k, v := range overrides {
		r.overrides[strings.ToLower(strings.TrimSpace(k))] = v
	}
	for _, name := range append(append([]string{}, knownDomes...), extraDomes...) {
		r.domes[normalize(name)] = true
	}
	return r
}

// Resolve sets game.Venue.Indoor and IndoorSource and returns the source.
func (r *Resolver) Resolve(g *store.Game) string {
	indoor, source := r.decide(g)
	g.Venue.Indoor = store.Bool(indoor)
	g.Venue.IndoorSource = source
	return source
}

// ResolveAll resolves every game and counts decisions per source.
func (r *Resolver) ResolveAll(games []*store.Game) map[string]int {
	counts := make(map[string]int)
	for _, g := range games {
		counts[r.Resolve(g)]++
	}
	return counts
}

func (r *Resolver) decide(g *store.Game) (bool, string) {
	// a previous run's decision is not an ESPN flag
	if g.Venue.Indoor != nil && (g.Venue.IndoorSource == "" || g.Venue.IndoorSource == SourceESPN) {
		return *g.Venue.Indoor, SourceESPN
	}

	team := strings.ToLower(strings.TrimSpace(g.Home.Name))
	if v, ok := r.overrides[strings.ToLower(g.Sport)+":"+team]; ok && team != "" {
		return v, SourceOverride
	}
	if v, ok := r.overrides[team]; ok && team != "" {
		return v, SourceOverride
	}

	name := normalize(g.Venue.Name)
	if name != "" && r.domes[name] {
		return true, SourceDomeList
	}

	if lg, ok := league.Lookup(g.Sport); ok && lg.AlwaysIndoor {
		return true, SourceSport
	}

	if hasIndoorKeyword(g.Venue.Name) {
		return true, SourceKeyword
	}
	return false, SourceDefault
}

func hasIndoorKeyword(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "dome") {
		return true
	}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if indoorKeywords[w] {
			return true
		}
	}
	return false
}

func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
