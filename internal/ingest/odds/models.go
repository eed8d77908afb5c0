package odds

import (
	"time"
)

// Event is one game as returned by The Odds API /v4/sports/{key}/odds.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	SportTitle   string      `json:"sport_title"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []Bookmaker `json:"bookmakers"`
}

type Bookmaker struct {
	Key        string   `json:"key"`
	Title      string   `json:"title"`
	LastUpdate string   `json:"last_update"`
	Markets    []Market `json:"markets"`
}

type Market struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

type Outcome struct {
	Name  string   `json:"name"`
	Price *float64 `json:"price,omitempty"`
	Point *float64 `json:"point,omitempty"`
}

// Line is the normalized market for one event from a single bookmaker.
// FavSpread is never positive.
type Line struct {
	EventID      string    `json:"event_id"`
	SportKey     string    `json:"sport_key"`
	League       string    `json:"league"`
	HomeTeam     string    `json:"home_team"`
	AwayTeam     string    `json:"away_team"`
	CommenceTime time.Time `json:"commence_time"`
	Book         string    `json:"book"`
	Favorite     string    `json:"favorite,omitempty"`
	Underdog     string    `json:"underdog,omitempty"`
	FavTeam      string    `json:"fav_team,omitempty"`
	DogTeam      string    `json:"dog_team,omitempty"`
	FavSpread    *float64  `json:"fav_spread,omitempty"`
	DogSpread    *float64  `json:"dog_spread,omitempty"`
	Total        *float64  `json:"total,omitempty"`
	FavPrice     *float64  `json:"fav_price,omitempty"`
	DogPrice     *float64  `json:"dog_price,omitempty"`
	HomePrice    *float64  `json:"home_price,omitempty"`
	AwayPrice    *float64  `json:"away_price,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Matchup renders "Away@Home".
func (l *Line) Matchup() string { return l.AwayTeam + "@" + l.HomeTeam }

// HomeSpread converts the favorite spread to the home team's perspective
// (negative when home is favored). It is nil without a spread.
func (l *Line) HomeSpread() *float64 {
	if l.FavSpread == nil || l.FavTeam == "" {
		return nil
	}
	v := *l.FavSpread
	if l.FavTeam != l.HomeTeam {
		v = -v
	}
	if v == 0 {
		v = 0 // normalize -0
	}
	return &v
}

// Quota is the request allowance reported by the API.
type Quota struct {
	Remaining string
	Used      string
}
