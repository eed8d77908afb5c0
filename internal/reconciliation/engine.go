package reconciliation

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/ingest/odds"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

// Engine reconciles ESPN odds with The Odds API lines
type Engine struct {
	strategy Strategy
	matcher  *Matcher
	metrics  *Metrics
	logger   *zap.SugaredLogger
}

// Strategy defines how to merge conflicting data
type Strategy string

const (
	// PreferESPN only fills odds ESPN does not carry
	PreferESPN Strategy = "prefer_espn"

	// PreferMarket lets The Odds API override spread and total
	PreferMarket Strategy = "prefer_market"

	// SmartMerge overrides when ESPN odds are missing or older than the market fetch (default)
	SmartMerge Strategy = "smart_merge"
)

// Disagreements beyond these are conflicts rather than line movement.
const (
	spreadConflict = 3.0
	totalConflict  = 6.0
)

// ParseStrategy validates a strategy name; empty selects SmartMerge.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return SmartMerge, nil
	case PreferESPN, PreferMarket, SmartMerge:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("reconciliation: unknown strategy %q", s)
}

// Metrics tracks reconciliation statistics
type Metrics struct {
	Matched            int       `json:"matched"`
	Unmatched          int       `json:"unmatched"`
	UnmatchedLines     int       `json:"unmatched_lines"`
	Overrides          int       `json:"overrides"`
	Conflicts          int       `json:"conflicts"`
	LastReconciliation time.Time `json:"last_reconciliation"`
}

// NewEngine creates a new reconciliation engine
func NewEngine(strategy Strategy, logger *zap.Logger) *Engine {
	if strategy == "" {
		strategy = SmartMerge
	}
	return &Engine{
		strategy: strategy,
		matcher:  NewMatcher(DefaultWindow),
		metrics:  &Metrics{},
		logger:   logging.OrNop(logger).Named("reconcile").Sugar(),
	}
}

// Reconcile matches lines to games and merges them in place according to the
// strategy. Each line is used at most once.
func (e *Engine) Reconcile(games []*store.Game, lines []odds.Line) *Metrics {
	used := make(map[int]bool, len(lines))
	for _, g := range games {
		idx := e.matcher.FindLine(g, lines, used)
		if idx < 0 {
			e.metrics.Unmatched++
			continue
		}
		used[idx] = true
		e.metrics.Matched++
		e.ReconcileGame(g, &lines[idx])
	}
	e.metrics.UnmatchedLines += len(lines) - len(used)
	e.metrics.LastReconciliation = time.Now()

	e.logger.Infof("✓ reconciled %d games (matched: %d, unmatched: %d, overrides: %d, conflicts: %d)",
		len(games), e.metrics.Matched, e.metrics.Unmatched, e.metrics.Overrides, e.metrics.Conflicts)
	return e.GetMetrics()
}

// ReconcileGame merges one matched line into the game's odds.
func (e *Engine) ReconcileGame(g *store.Game, l *odds.Line) {
	market := marketOdds(g, l)
	if g.Odds == nil {
		g.Odds = market
		e.metrics.Overrides++
		return
	}

	conflict := hasConflict(g.Odds, market)
	if conflict {
		e.metrics.Conflicts++
		e.logger.Warnf("[%s] ⚠️  %s: ESPN %s vs %s %s",
			g.Sport, g.Matchup(), describe(g.Odds), l.Book, describe(market))
	}

	switch e.strategy {
	case PreferMarket:
		e.override(g, market)
	case PreferESPN:
		e.fillMissing(g.Odds, market)
	default:
		// a conflicting market falls back to ESPN
		if !conflict && (isStale(g.Odds, market) || missingCore(g.Odds)) {
			e.override(g, market)
			return
		}
		e.fillMissing(g.Odds, market)
	}
}

func (e *Engine) override(g *store.Game, market *store.Odds) {
	e.metrics.Overrides++
	g.Odds = market
}

func (e *Engine) fillMissing(dst, src *store.Odds) {
	filled := false
	if dst.Spread == nil && dst.Details == "" && src.Spread != nil {
		dst.Spread = src.Spread
		filled = true
	}
	if dst.Total == nil && src.Total != nil {
		dst.Total = src.Total
		filled = true
	}
	if dst.HomeMoneyline == nil && dst.AwayMoneyline == nil {
		if src.HomeMoneyline != nil || src.AwayMoneyline != nil {
			dst.HomeMoneyline, dst.AwayMoneyline = src.HomeMoneyline, src.AwayMoneyline
			filled = true
		}
	}
	if filled {
		e.metrics.Overrides++
	}
}

// marketOdds converts a line to home-perspective odds for the ESPN game.
// Details is left empty so favorite derivation reads the signed spread.
func marketOdds(g *store.Game, l *odds.Line) *store.Odds {
	fetched := l.FetchedAt
	o := &store.Odds{
		Provider:  l.Book,
		Total:     l.Total,
		Source:    "odds_api",
		FetchedAt: &fetched,
	}

	home := teamName(g.Home)
	swapped := !TeamsMatch(home, l.HomeTeam)
	if l.FavSpread != nil && l.FavTeam != "" {
		v := *l.FavSpread
		if !TeamsMatch(home, l.FavTeam) {
			v = -v
		}
		if v == 0 {
			v = 0
		}
		o.Spread = &v
	}
	o.HomeMoneyline, o.AwayMoneyline = l.HomePrice, l.AwayPrice
	if swapped {
		o.HomeMoneyline, o.AwayMoneyline = l.AwayPrice, l.HomePrice
	}
	return o
}

func hasConflict(espn, market *store.Odds) bool {
	if espn.Spread != nil && market.Spread != nil {
		a, b := *espn.Spread, *market.Spread
		if math.Abs(a-b) > spreadConflict {
			return true
		}
		// favorites on opposite sides
		if a*b < 0 && math.Abs(a) >= 1 && math.Abs(b) >= 1 {
			return true
		}
	}
	if espn.Total != nil && market.Total != nil && math.Abs(*espn.Total-*market.Total) > totalConflict {
		return true
	}
	return false
}

func isStale(espn, market *store.Odds) bool {
	if espn.FetchedAt == nil || market.FetchedAt == nil {
		return espn.FetchedAt == nil
	}
	return espn.FetchedAt.Before(*market.FetchedAt)
}

func missingCore(o *store.Odds) bool {
	return (o.Spread == nil && o.Details == "") || o.Total == nil
}

func describe(o *store.Odds) string {
	s := "spread=n/a"
	if o.Spread != nil {
		s = fmt.Sprintf("spread=%+g", *o.Spread)
	}
	if o.Total != nil {
		s += fmt.Sprintf(" total=%g", *o.Total)
	}
	return s
}

// GetMetrics returns a copy of the current reconciliation metrics
func (e *Engine) GetMetrics() *Metrics {
	m := *e.metrics
	return &m
}

// ResetMetrics clears all metrics
func (e *Engine) ResetMetrics() {
	e.metrics = &Metrics{}
}
