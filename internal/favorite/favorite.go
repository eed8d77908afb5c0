// Package favorite derives the favorite, underdog and favorite spread of a
// game from one sign convention: spreads are quoted for the favorite and are
// never positive.
package favorite

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/fortuna/pythia/internal/store"
)

var detailsPattern = regexp.MustCompile(`^\s*(.+?)\s+([+-]?\d+(?:\.\d+)?)\s*$`)

var pickemDetails = map[string]bool{
	"EVEN":    true,
	"PK":      true,
	"PICK":    true,
	"PICKEM":  true,
	"PICK'EM": true,
}

// Derive returns the game's line using, in order: the ESPN details string,
// the home-perspective spread, the moneylines. Games with none of those get
// BasisNone.
func Derive(g *store.Game) store.Line {
	if g == nil || g.Odds == nil {
		return store.Line{Basis: store.BasisNone}
	}
	o := g.Odds

	if line, ok := fromDetails(g, o.Details); ok {
		return line
	}
	if o.Spread != nil {
		return fromHomeSpread(g, *o.Spread)
	}
	if line, ok := fromMoneylines(g, o.HomeMoneyline, o.AwayMoneyline); ok {
		return line
	}
	return store.Line{Basis: store.BasisNone}
}

// FromHomeSpread builds a line from a spread quoted for the home team
// (negative when home is favored).
func FromHomeSpread(g *store.Game, homeSpread float64) store.Line {
	return fromHomeSpread(g, homeSpread)
}

func fromDetails(g *store.Game, details string) (store.Line, bool) {
	details = strings.TrimSpace(details)
	if details == "" {
		return store.Line{}, false
	}
	if pickemDetails[strings.ToUpper(strings.ReplaceAll(details, " ", ""))] {
		return pickem(store.BasisDetails), true
	}

	m := detailsPattern.FindStringSubmatch(details)
	if m == nil {
		return store.Line{}, false
	}
	points, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return store.Line{}, false
	}

	var favIsHome bool
	switch who := strings.TrimSpace(m[1]); {
	case matchesTeam(who, g.Home):
		favIsHome = true
	case matchesTeam(who, g.Away):
		favIsHome = false
	default:
		return store.Line{}, false
	}
	if math.Abs(points) < 1e-6 {
		return pickem(store.BasisDetails), true
	}
	return sided(g, favIsHome, math.Abs(points), store.BasisDetails), true
}

func fromHomeSpread(g *store.Game, homeSpread float64) store.Line {
	if math.Abs(homeSpread) < 1e-6 {
		return pickem(store.BasisSpread)
	}
	return sided(g, homeSpread < 0, math.Abs(homeSpread), store.BasisSpread)
}

func fromMoneylines(g *store.Game, home, away *float64) (store.Line, bool) {
	if home == nil || away == nil {
		return store.Line{}, false
	}
	if *home == *away {
		return pickem(store.BasisMoneyline), true
	}
	favIsHome := *home < *away
	line := store.Line{Basis: store.BasisMoneyline, FavIsHome: favIsHome}
	fav, dog := g.Away, g.Home
	if favIsHome {
		fav, dog = g.Home, g.Away
	}
	line.FavTeamID, line.FavTeam, line.DogTeam = fav.ID, fav.Name, dog.Name
	return line, true
}

func sided(g *store.Game, favIsHome bool, magnitude float64, basis string) store.Line {
	fav, dog := g.Away, g.Home
	if favIsHome {
		fav, dog = g.Home, g.Away
	}
	return store.Line{
		FavTeamID: fav.ID,
		FavTeam:   fav.Name,
		DogTeam:   dog.Name,
		FavSpread: store.Float(-magnitude),
		DogSpread: store.Float(magnitude),
		FavIsHome: favIsHome,
		Basis:     basis,
	}
}

func pickem(basis string) store.Line {
	return store.Line{
		FavSpread: store.Float(0),
		DogSpread: store.Float(0),
		Pickem:    true,
		Basis:     basis,
	}
}

func matchesTeam(token string, t store.Team) bool {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return false
	}
	for _, candidate := range []string{t.Abbreviation, t.Name} {
		if candidate != "" && strings.ToUpper(candidate) == token {
			return true
		}
	}
	return false
}
