// Package accuracy grades stored predictions against final results and keeps
// a running performance log.
package accuracy

import (
	"math"
	"time"

	"github.com/fortuna/pythia/internal/store"
)

// Outcome records whether each market's pick was correct. Nil means the
// market was not picked or pushed.
type Outcome struct {
	SU  *bool `json:"su,omitempty"`
	ATS *bool `json:"ats,omitempty"`
	OU  *bool `json:"ou,omitempty"`
}

// Grade scores a prediction against the final result. The prediction's own
// spread and total are the lines graded against, so a later line move does
// not change the outcome.
func Grade(p *store.Prediction, r *store.Result) Outcome {
	var g Outcome
	if p == nil || r == nil {
		return g
	}

	if p.SU != nil && r.HomeScore != r.AwayScore {
		homeWon := r.HomeScore > r.AwayScore
		g.SU = store.Bool(homeWon == (p.SU.Side == store.SideHome))
	}

	if p.ATS != nil && p.Spread != nil {
		margin := r.HomeScore - r.AwayScore
		if !p.FavoriteIsHome {
			margin = -margin
		}
		line := math.Abs(*p.Spread)
		if float64(margin) != line {
			favCovered := float64(margin) > line
			pickedFav := (p.ATS.Side == store.SideHome) == p.FavoriteIsHome
			g.ATS = store.Bool(favCovered == pickedFav)
		}
	}

	if p.OU != nil && p.Total != nil {
		total := float64(r.HomeScore + r.AwayScore)
		if total != *p.Total {
			wentOver := total > *p.Total
			g.OU = store.Bool(wentOver == (p.OU.Side == store.SideOver))
		}
	}
	return g
}

// Tally accumulates grades into market records, overall and per sport.
type Tally struct {
	graded  int
	overall map[string]*store.MarketRecord
	bySport map[string]map[string]*store.MarketRecord
}

func NewTally() *Tally {
	return &Tally{
		overall: newRecords(),
		bySport: make(map[string]map[string]*store.MarketRecord),
	}
}

func newRecords() map[string]*store.MarketRecord {
	return map[string]*store.MarketRecord{
		store.MarketSU:  {},
		store.MarketATS: {},
		store.MarketOU:  {},
	}
}

// Add records one graded prediction.
func (t *Tally) Add(sport string, g Outcome) {
	t.graded++
	sportRecords, ok := t.bySport[sport]
	if !ok {
		sportRecords = newRecords()
		t.bySport[sport] = sportRecords
	}
	for market, outcome := range map[string]*bool{
		store.MarketSU:  g.SU,
		store.MarketATS: g.ATS,
		store.MarketOU:  g.OU,
	} {
		if outcome == nil {
			continue
		}
		for _, rec := range []*store.MarketRecord{t.overall[market], sportRecords[market]} {
			rec.Total++
			if *outcome {
				rec.Correct++
			}
		}
	}
}

// Graded is the number of predictions added.
func (t *Tally) Graded() int { return t.graded }

// Entry builds the performance log entry. Percentages have two decimals.
func (t *Tally) Entry(at time.Time) *store.PerformanceEntry {
	entry := store.PerformanceEntry{Timestamp: at}
	entry.Graded = t.graded
	entry.SU = finish(t.overall[store.MarketSU])
	entry.ATS = finish(t.overall[store.MarketATS])
	entry.OU = finish(t.overall[store.MarketOU])
	if len(t.bySport) > 0 {
		entry.BySport = make(map[string]map[string]store.MarketRecord, len(t.bySport))
		for sport, records := range t.bySport {
			entry.BySport[sport] = map[string]store.MarketRecord{
				store.MarketSU:  finish(records[store.MarketSU]),
				store.MarketATS: finish(records[store.MarketATS]),
				store.MarketOU:  finish(records[store.MarketOU]),
			}
		}
	}
	return &entry
}

func finish(r *store.MarketRecord) store.MarketRecord {
	out := *r
	if out.Total > 0 {
		out.Pct = math.Round(float64(out.Correct)/float64(out.Total)*10000) / 100
	}
	return out
}
