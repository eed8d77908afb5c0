package espn

import (
	"github.com/fortuna/pythia/internal/store"
)

// Slate is the result of one schedule sweep across leagues.
type Slate struct {
	Games    []*store.Game
	ByLeague map[string][]*store.Game
	Errors   map[string]error
}

// TeamVenue pairs a team with its home venue.
type TeamVenue struct {
	League string      `json:"league"`
	Team   store.Team  `json:"team"`
	Venue  store.Venue `json:"venue"`
}
