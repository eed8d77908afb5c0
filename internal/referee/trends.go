// Package referee aggregates historical results per official.
package referee

import (
	"math"
	"sort"
	"strings"

	"github.com/fortuna/pythia/internal/store"
)

// DefaultMinGames is the sample size an official needs before their
// trends count toward a crew bias.
const DefaultMinGames = 10

// Bias is the averaged tendency of a game's qualifying officials.
type Bias struct {
	OverPct     float64  `json:"over_pct"`
	FavCoverPct float64  `json:"fav_cover_pct"`
	Officials   []string `json:"officials"`
}

// BuildTrends aggregates results per official name. Pushes are excluded from
// the cover and over percentages but counted in Pushes.
func BuildTrends(results []*store.Result) []store.RefereeTrend {
	byName := make(map[string]*store.RefereeTrend)
	for _, r := range results {
		seen := make(map[string]bool, len(r.Referees))
		for _, raw := range r.Referees {
			name := strings.TrimSpace(raw)
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true

			t, ok := byName[key]
			if !ok {
				t = &store.RefereeTrend{Name: name}
				byName[key] = t
			}
			t.Games++
			if r.HomeWin {
				t.HomeWins++
			}
			if r.FavTeam != "" && r.FavSpread != nil {
				if r.FavCover == nil {
					t.Pushes++
				} else {
					t.FavGraded++
					if *r.FavCover {
						t.FavCovers++
					}
				}
			}
			if r.TotalLine != nil {
				if r.Over == nil {
					t.Pushes++
				} else {
					t.OUGraded++
					if *r.Over {
						t.Overs++
					}
				}
			}
		}
	}

	trends := make([]store.RefereeTrend, 0, len(byName))
	for _, t := range byName {
		t.HomeWinPct = pct(t.HomeWins, t.Games)
		t.FavCoverPct = pct(t.FavCovers, t.FavGraded)
		t.OverPct = pct(t.Overs, t.OUGraded)
		trends = append(trends, *t)
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Games != trends[j].Games {
			return trends[i].Games > trends[j].Games
		}
		return trends[i].Name < trends[j].Name
	})
	return trends
}

// Filter keeps trends with at least minGames games.
func Filter(trends []store.RefereeTrend, minGames int) []store.RefereeTrend {
	out := make([]store.RefereeTrend, 0, len(trends))
	for _, t := range trends {
		if t.Games >= minGames {
			out = append(out, t)
		}
	}
	return out
}

// CrewBias averages the over and favorite-cover percentages of the listed
// officials that have at least minGames games. It returns nil when none
// qualify.
func CrewBias(trends []store.RefereeTrend, officials []string, minGames int) *Bias {
	index := make(map[string]store.RefereeTrend, len(trends))
	for _, t := range trends {
		index[strings.ToLower(t.Name)] = t
	}

	var (
		bias     Bias
		overN    int
		coverN   int
		overSum  float64
		coverSum float64
	)
	for _, name := range officials {
		t, ok := index[strings.ToLower(strings.TrimSpace(name))]
		if !ok || t.Games < minGames {
			continue
		}
		bias.Officials = append(bias.Officials, t.Name)
		if t.OUGraded > 0 {
			overSum += t.OverPct
			overN++
		}
		if t.FavGraded > 0 {
			coverSum += t.FavCoverPct
			coverN++
		}
	}
	if len(bias.Officials) == 0 {
		return nil
	}
	bias.OverPct, bias.FavCoverPct = 50, 50
	if overN > 0 {
		bias.OverPct = round2(overSum / float64(overN))
	}
	if coverN > 0 {
		bias.FavCoverPct = round2(coverSum / float64(coverN))
	}
	return &bias
}

func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d) * 100)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
