package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/ingest/fetch"
	"github.com/fortuna/pythia/internal/store"
)

func TestResolverPrecedence(t *testing.T) {
	r := NewResolver(map[string]bool{
		"nfl:Buffalo Bills": true,
		"Texas Longhorns":   false,
	}, []string{"Our Lady Dome Field"})

	tests := []struct {
		name   string
		game   store.Game
		indoor bool
		source string
	}{
		{
			name:   "espn flag wins over everything",
			game:   store.Game{Sport: "nba", Venue: store.Venue{Name: "Crypto.com Arena", Indoor: store.Bool(false)}},
			indoor: false,
			source: SourceESPN,
		},
		{
			name:   "league scoped override",
			game:   store.Game{Sport: "nfl", Home: store.Team{Name: "Buffalo Bills"}, Venue: store.Venue{Name: "Highmark Stadium"}},
			indoor: true,
			source: SourceOverride,
		},
		{
			name:   "team override",
			game:   store.Game{Sport: "ncaab", Home: store.Team{Name: "Texas Longhorns"}, Venue: store.Venue{Name: "Moody Center"}},
			indoor: false,
			source: SourceOverride,
		},
		{
			name:   "known dome",
			game:   store.Game{Sport: "nfl", Venue: store.Venue{Name: "Caesars Superdome"}},
			indoor: true,
			source: SourceDomeList,
		},
		{
			name:   "configured dome",
			game:   store.Game{Sport: "ncaaf", Venue: store.Venue{Name: "Our Lady Dome-Field"}},
			indoor: true,
			source: SourceDomeList,
		},
		{
			name:   "indoor sport",
			game:   store.Game{Sport: "nhl", Venue: store.Venue{Name: "TD Garden"}},
			indoor: true,
			source: SourceSport,
		},
		{
			name:   "keyword",
			game:   store.Game{Sport: "ncaaf", Venue: store.Venue{Name: "Tacoma Dome"}},
			indoor: true,
			source: SourceKeyword,
		},
		{
			name:   "default outdoor",
			game:   store.Game{Sport: "ncaaf", Venue: store.Venue{Name: "Michigan Stadium"}},
			indoor: false,
			source: SourceDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := tt.game
			assert.Equal(t, tt.source, r.Resolve(&g))
			require.NotNil(t, g.Venue.Indoor)
			assert.Equal(t, tt.indoor, *g.Venue.Indoor)
			assert.Equal(t, tt.source, g.Venue.IndoorSource)
		})
	}
}

func TestResolveIsStableAcrossRuns(t *testing.T) {
	r := NewResolver(nil, nil)
	g := &store.Game{Sport: "ncaaf", Venue: store.Venue{Name: "Michigan Stadium"}}
	r.Resolve(g)
	assert.Equal(t, SourceDefault, r.Resolve(g))
}

func TestHasIndoorKeyword(t *testing.T) {
	assert.True(t, hasIndoorKeyword("Alamodome"))
	assert.True(t, hasIndoorKeyword("Ball Arena"))
	assert.True(t, hasIndoorKeyword("Jon M. Huntsman Center"))
	assert.False(t, hasIndoorKeyword("Arenaville Field"))
	assert.False(t, hasIndoorKeyword("Lambeau Field"))
}

func TestGeocoderFallsBackAndCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Contains(t, r.Header.Get("User-Agent"), "ops@example.com")
		switch r.URL.Query().Get("q") {
		case "Ann Arbor, MI":
			w.Write([]byte(`[{"lat":"42.2658","lon":"-83.7487","display_name":"Ann Arbor"}]`))
		default:
			w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	httpClient := fetch.New("nominatim", fetch.WithUserAgent("pythia/1.0 (ops@example.com)"), fetch.WithBackoff(time.Millisecond))
	g := NewGeocoder(httpClient, nil, "", nil).WithBaseURL(srv.URL)

	games := []*store.Game{
		{Sport: "ncaaf", Venue: store.Venue{Name: "Michigan Stadium", City: "Ann Arbor", State: "MI"}},
		{Sport: "ncaaf", Venue: store.Venue{Name: "Michigan Stadium", City: "Ann Arbor", State: "MI"}},
		{Sport: "nba", Venue: store.Venue{Name: "Little Caesars Arena", Indoor: store.Bool(true)}},
	}

	filled, err := g.Enrich(context.Background(), games)
	require.NoError(t, err)
	assert.Equal(t, 2, filled)
	assert.Equal(t, 42.2658, *games[0].Venue.Lat)
	assert.Equal(t, -83.7487, *games[1].Venue.Lon)
	assert.Nil(t, games[2].Venue.Lat)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	// both queries are cached, including the miss
	p, err := g.Geocode(context.Background(), games[0].Venue)
	require.NoError(t, err)
	assert.True(t, p.Found)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
