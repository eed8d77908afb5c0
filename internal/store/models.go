package store

import (
	"time"
)

// SchemaVersion is stamped on every snapshot envelope.
const SchemaVersion = 1

// Game status values normalized from ESPN status types.
const (
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusFinal      = "final"
	StatusPostponed  = "postponed"
)

// Line basis values: how the favorite was determined.
const (
	BasisDetails   = "details"
	BasisSpread    = "spread"
	BasisMoneyline = "moneyline"
	BasisNone      = "none"
)

// Market keys.
const (
	MarketSU  = "su"
	MarketATS = "ats"
	MarketOU  = "ou"
)

// Pick sides.
const (
	SideHome  = "home"
	SideAway  = "away"
	SideOver  = "over"
	SideUnder = "under"
)

// Team is one side of a game. Name is always the display name.
type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
	Slug         string `json:"slug,omitempty"`
	Logo         string `json:"logo,omitempty"`
}

// Venue carries the resolved indoor flag and its single source.
type Venue struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	Indoor       *bool    `json:"indoor,omitempty"`
	Grass        *bool    `json:"grass,omitempty"`
	IndoorSource string   `json:"indoor_source,omitempty"`
}

// HasCoords reports whether both coordinates are known.
func (v Venue) HasCoords() bool { return v.Lat != nil && v.Lon != nil }

// IsIndoor treats an unresolved flag as outdoor.
func (v Venue) IsIndoor() bool { return v.Indoor != nil && *v.Indoor }

// Odds is a market quote. Spread is from the home team's perspective:
// negative means the home team is favored.
type Odds struct {
	Provider      string     `json:"provider,omitempty"`
	Details       string     `json:"details,omitempty"`
	Spread        *float64   `json:"spread,omitempty"`
	Total         *float64   `json:"total,omitempty"`
	HomeMoneyline *float64   `json:"home_moneyline,omitempty"`
	AwayMoneyline *float64   `json:"away_moneyline,omitempty"`
	Source        string     `json:"source,omitempty"`
	FetchedAt     *time.Time `json:"fetched_at,omitempty"`
}

// Line is the derived favorite/underdog view of Odds. FavSpread is never positive.
type Line struct {
	FavTeamID string   `json:"fav_team_id,omitempty"`
	FavTeam   string   `json:"fav_team,omitempty"`
	DogTeam   string   `json:"dog_team,omitempty"`
	FavSpread *float64 `json:"fav_spread,omitempty"`
	DogSpread *float64 `json:"dog_spread,omitempty"`
	FavIsHome bool     `json:"fav_is_home"`
	Pickem    bool     `json:"pickem"`
	Basis     string   `json:"basis"`
}

// HasFavorite reports whether a side was chosen.
func (l Line) HasFavorite() bool { return l.Basis != "" && l.Basis != BasisNone && !l.Pickem }

type Official struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// WeatherRisk is the scored view of a forecast.
type WeatherRisk struct {
	Score  float64  `json:"score"`
	Level  string   `json:"level"`
	Tags   []string `json:"tags,omitempty"`
	Points int      `json:"points"`
}

// Weather error codes recorded per game.
const (
	WeatherErrNoCoords = "no_coords"
	WeatherErrProvider = "provider_error"
	WeatherErrIndoor   = "indoor"
)

type Weather struct {
	Source       string       `json:"source,omitempty"`
	TempF        *float64     `json:"temp_f,omitempty"`
	WindMph      *float64     `json:"wind_mph,omitempty"`
	PrecipPct    *float64     `json:"precip_pct,omitempty"`
	PrecipMm     *float64     `json:"precip_mm,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	ForecastTime *time.Time   `json:"forecast_time,omitempty"`
	Risk         *WeatherRisk `json:"risk,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// OK reports whether the forecast carries usable conditions.
func (w *Weather) OK() bool { return w != nil && w.Error == "" }

type InjuryReport struct {
	Team     string `json:"team"`
	Player   string `json:"player"`
	Position string `json:"position,omitempty"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Updated  string `json:"updated,omitempty"`
	Source   string `json:"source"`
}

// InjurySummary is the weighted count for one team.
type InjurySummary struct {
	Out          int     `json:"out"`
	Doubtful     int     `json:"doubtful"`
	Questionable int     `json:"questionable"`
	Probable     int     `json:"probable"`
	Weighted     float64 `json:"weighted"`
}

// Game is the single record every stage reads and enriches.
type Game struct {
	ID        string    `json:"id"`
	Sport     string    `json:"sport"`
	Name      string    `json:"name,omitempty"`
	ShortName string    `json:"short_name,omitempty"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"`
	Home      Team      `json:"home"`
	Away      Team      `json:"away"`
	HomeScore *int      `json:"home_score,omitempty"`
	AwayScore *int      `json:"away_score,omitempty"`

	Odds *Odds `json:"odds,omitempty"`
	Line Line  `json:"line"`

	Venue   Venue    `json:"venue"`
	Weather *Weather `json:"weather,omitempty"`

	Officials    []Official     `json:"officials,omitempty"`
	HomeInjuries *InjurySummary `json:"home_injuries,omitempty"`
	AwayInjuries *InjurySummary `json:"away_injuries,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Matchup renders "Away@Home" using abbreviations when present.
func (g *Game) Matchup() string {
	away, home := g.Away.Abbreviation, g.Home.Abbreviation
	if away == "" {
		away = g.Away.Name
	}
	if home == "" {
		home = g.Home.Name
	}
	return away + "@" + home
}

// Total returns the combined score, or false when either score is missing.
func (g *Game) Total() (int, bool) {
	if g.HomeScore == nil || g.AwayScore == nil {
		return 0, false
	}
	return *g.HomeScore + *g.AwayScore, true
}

func (g *Game) IsFinal() bool { return g.Status == StatusFinal }

// Started reports whether the game is under way or over at now. A postponed
// game has not started; a scheduled game past its start time has.
func (g *Game) Started(now time.Time) bool {
	switch g.Status {
	case StatusInProgress, StatusFinal:
		return true
	case StatusPostponed:
		return false
	}
	return !g.StartTime.IsZero() && !now.Before(g.StartTime)
}

// Referees returns official names in listed order.
func (g *Game) Referees() []string {
	names := make([]string, 0, len(g.Officials))
	for _, o := range g.Officials {
		if o.Name != "" {
			names = append(names, o.Name)
		}
	}
	return names
}

// Pick is one market's recommendation. Confidence, Rule and Model are
// percentages on the selected side; Probability is the blended
// probability of the favorite (SU/ATS) or the over (OU).
type Pick struct {
	Market      string   `json:"market"`
	Selection   string   `json:"selection"`
	Side        string   `json:"side"`
	Confidence  float64  `json:"confidence"`
	Rule        float64  `json:"rule"`
	Model       *float64 `json:"model,omitempty"`
	Probability float64  `json:"probability"`
}

type Prediction struct {
	GameID         string     `json:"game_id"`
	Sport          string     `json:"sport"`
	Matchup        string     `json:"matchup"`
	StartTime      time.Time  `json:"start_time"`
	HomeTeam       string     `json:"home_team"`
	AwayTeam       string     `json:"away_team"`
	Favorite       string     `json:"favorite,omitempty"`
	Underdog       string     `json:"underdog,omitempty"`
	FavoriteIsHome bool       `json:"favorite_is_home"`
	Spread         *float64   `json:"spread,omitempty"`
	Total          *float64   `json:"total,omitempty"`
	SU             *Pick      `json:"su,omitempty"`
	ATS            *Pick      `json:"ats,omitempty"`
	OU             *Pick      `json:"ou,omitempty"`
	ProjectedHome  float64    `json:"projected_home"`
	ProjectedAway  float64    `json:"projected_away"`
	Source         string     `json:"source"`
	ModelVersion   string     `json:"model_version,omitempty"`
	MissingInputs  []string   `json:"missing_inputs"`
	GeneratedAt    time.Time  `json:"generated_at"`
	GradedAt       *time.Time `json:"graded_at,omitempty"`
}

// Picks returns the non-nil picks in SU, ATS, OU order.
func (p *Prediction) Picks() []*Pick {
	var out []*Pick
	for _, pk := range []*Pick{p.SU, p.ATS, p.OU} {
		if pk != nil {
			out = append(out, pk)
		}
	}
	return out
}

// MaxConfidence is the highest pick confidence, 0 when there are none.
func (p *Prediction) MaxConfidence() float64 {
	best := 0.0
	for _, pk := range p.Picks() {
		if pk.Confidence > best {
			best = pk.Confidence
		}
	}
	return best
}

// Result is a completed game joined with the line it closed at.
type Result struct {
	GameID      string    `json:"game_id"`
	Sport       string    `json:"sport"`
	StartTime   time.Time `json:"start_time"`
	HomeTeam    string    `json:"home_team"`
	AwayTeam    string    `json:"away_team"`
	FavTeam     string    `json:"fav_team,omitempty"`
	DogTeam     string    `json:"dog_team,omitempty"`
	FavIsHome   bool      `json:"fav_is_home"`
	FavSpread   *float64  `json:"fav_spread,omitempty"`
	TotalLine   *float64  `json:"total_line,omitempty"`
	HomeScore   int       `json:"home_score"`
	AwayScore   int       `json:"away_score"`
	Referees    []string  `json:"referees,omitempty"`
	HomeWin     bool      `json:"home_win"`
	FavCover    *bool     `json:"fav_cover,omitempty"`
	Over        *bool     `json:"over,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// FavMargin is the favorite's score minus the underdog's.
func (r *Result) FavMargin() int {
	if r.FavIsHome {
		return r.HomeScore - r.AwayScore
	}
	return r.AwayScore - r.HomeScore
}

func (r *Result) Total() int { return r.HomeScore + r.AwayScore }

// Label fills HomeWin, FavCover and Over. Pushes leave the label nil.
func (r *Result) Label() {
	r.HomeWin = r.HomeScore > r.AwayScore
	r.FavCover, r.Over = nil, nil
	if r.FavTeam != "" && r.FavSpread != nil {
		margin := float64(r.FavMargin())
		line := abs(*r.FavSpread)
		if margin != line {
			r.FavCover = Bool(margin > line)
		}
	}
	if r.TotalLine != nil {
		total := float64(r.Total())
		if total != *r.TotalLine {
			r.Over = Bool(total > *r.TotalLine)
		}
	}
}

type RefereeTrend struct {
	Name        string  `json:"name"`
	Games       int     `json:"games"`
	HomeWins    int     `json:"home_wins"`
	FavCovers   int     `json:"fav_covers"`
	FavGraded   int     `json:"fav_graded"`
	Overs       int     `json:"overs"`
	OUGraded    int     `json:"ou_graded"`
	Pushes      int     `json:"pushes"`
	HomeWinPct  float64 `json:"home_win_pct"`
	FavCoverPct float64 `json:"fav_cover_pct"`
	OverPct     float64 `json:"over_pct"`
}

// MarketRecord is a graded tally for one market.
type MarketRecord struct {
	Correct int     `json:"correct" csv:"correct"`
	Total   int     `json:"total" csv:"total"`
	Pct     float64 `json:"pct" csv:"pct"`
}

type PerformanceEntry struct {
	Timestamp time.Time                          `json:"timestamp"`
	Graded    int                                `json:"graded"`
	SU        MarketRecord                       `json:"su"`
	ATS       MarketRecord                       `json:"ats"`
	OU        MarketRecord                       `json:"ou"`
	BySport   map[string]map[string]MarketRecord `json:"by_sport,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
