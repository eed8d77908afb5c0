package injuries

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/league"
	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/reconciliation"
	"github.com/fortuna/pythia/internal/store"
)

// Status weights for the weighted injury count.
const (
	WeightOut          = 1.0
	WeightDoubtful     = 0.75
	WeightQuestionable = 0.5
	WeightProbable     = 0.25
)

// Service collects injuries from sources in priority order.
type Service struct {
	sources []Source
	logger  *zap.SugaredLogger
}

func NewService(logger *zap.Logger, sources ...Source) *Service {
	return &Service{
		sources: sources,
		logger:  logging.OrNop(logger).Named("injuries").Sugar(),
	}
}

// Collect returns reports per league key. For each league the first source
// that returns any reports wins. A league where every source failed is
// reported in the error map; an empty but successful league is not.
func (s *Service) Collect(ctx context.Context, leagues []league.League) (map[string][]store.InjuryReport, map[string]error) {
	out := make(map[string][]store.InjuryReport)
	errs := make(map[string]error)

	for _, lg := range leagues {
		if ctx.Err() != nil {
			errs[lg.Key] = ctx.Err()
			continue
		}
		var (
			lastErr   error
			succeeded bool
		)
		for _, src := range s.sources {
			reports, err := src.Fetch(ctx, lg)
			if err != nil {
				s.logger.Warnf("[%s] ⚠️  %s: %v", lg.Key, src.Name(), err)
				lastErr = err
				continue
			}
			succeeded = true
			if len(reports) > 0 {
				out[lg.Key] = reports
				s.logger.Infof("[%s] ✓ %d injuries from %s", lg.Key, len(reports), src.Name())
				break
			}
		}
		if _, ok := out[lg.Key]; !ok && !succeeded && lastErr != nil {
			errs[lg.Key] = lastErr
		}
	}
	return out, errs
}

// Classify maps a free-text status to its weight bucket. Unknown statuses
// (including "active") return "".
func Classify(status string) string {
	s := strings.ToLower(strings.TrimSpace(status))
	switch {
	case s == "":
		return ""
	case s == "o", s == "ir", s == "ofs", strings.HasPrefix(s, "out"),
		strings.Contains(s, "injured reserve"), strings.Contains(s, "suspen"), strings.Contains(s, "pup"):
		return "out"
	case s == "d" || strings.Contains(s, "doubt"):
		return "doubtful"
	case s == "q" || strings.Contains(s, "question"):
		return "questionable"
	case s == "p" || strings.Contains(s, "probable") || strings.Contains(s, "day-to-day") || s == "dtd":
		return "probable"
	}
	return ""
}

// Summarize aggregates reports per normalized team name. Every team that
// appears gets an entry, zero when none of its statuses count.
func Summarize(reports []store.InjuryReport) map[string]store.InjurySummary {
	out := make(map[string]store.InjurySummary)
	for _, r := range reports {
		key := reconciliation.NormalizeTeam(r.Team)
		if key == "" {
			continue
		}
		sum, seen := out[key]
		switch Classify(r.Status) {
		case "out":
			sum.Out++
			sum.Weighted += WeightOut
		case "doubtful":
			sum.Doubtful++
			sum.Weighted += WeightDoubtful
		case "questionable":
			sum.Questionable++
			sum.Weighted += WeightQuestionable
		case "probable":
			sum.Probable++
			sum.Weighted += WeightProbable
		default:
			if !seen {
				out[key] = sum
			}
			continue
		}
		out[key] = sum
	}
	return out
}

// Attach sets HomeInjuries and AwayInjuries from per-league summaries and
// returns how many teams were matched. Teams without reports stay nil, which
// downstream reads as a missing input.
func Attach(games []*store.Game, byLeague map[string]map[string]store.InjurySummary) int {
	matched := 0
	for _, g := range games {
		summaries, ok := byLeague[g.Sport]
		if !ok {
			continue
		}
		if s, ok := lookup(summaries, g.Home.Name); ok {
			g.HomeInjuries = &s
			matched++
		}
		if s, ok := lookup(summaries, g.Away.Name); ok {
			g.AwayInjuries = &s
			matched++
		}
	}
	return matched
}

func lookup(summaries map[string]store.InjurySummary, team string) (store.InjurySummary, bool) {
	key := reconciliation.NormalizeTeam(team)
	if key == "" {
		return store.InjurySummary{}, false
	}
	if s, ok := summaries[key]; ok {
		return s, true
	}
	// deterministic fallback for short names ("Alabama" vs "Alabama Crimson Tide")
	keys := make([]string, 0, len(summaries))
	for k := range summaries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if reconciliation.TeamsMatch(k, key) {
			return summaries[k], true
		}
	}
	return store.InjurySummary{}, false
}
