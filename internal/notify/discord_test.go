package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/pythia/internal/store"
)

type fakeWebhook struct {
	params []*discordgo.WebhookParams
	id     string
	err    error
}

func (f *fakeWebhook) WebhookExecute(id, _ string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.id = id
	f.params = append(f.params, data)
	return &discordgo.Message{}, f.err
}

func slate() []*store.Prediction {
	kickoff := time.Date(2025, 11, 16, 18, 0, 0, 0, time.UTC)
	return []*store.Prediction{
		{
			Sport:     "nfl",
			Matchup:   "CIN @ KC",
			StartTime: kickoff,
			SU:        &store.Pick{Market: store.MarketSU, Selection: "Kansas City Chiefs ML", Confidence: 74.5},
			ATS:       &store.Pick{Market: store.MarketATS, Selection: "Kansas City Chiefs -6.5", Confidence: 53},
		},
		{
			Sport:     "nba",
			Matchup:   "DEN @ LAL",
			StartTime: kickoff.Add(-time.Hour),
			OU:        &store.Pick{Market: store.MarketOU, Selection: "Under 231.5", Confidence: 74.5},
		},
		{
			Sport:     "nhl",
			Matchup:   "BOS @ TOR",
			StartTime: kickoff,
			SU:        &store.Pick{Market: store.MarketSU, Selection: "Toronto Maple Leafs ML", Confidence: 81},
		},
	}
}

func TestFormatPicks(t *testing.T) {
	lines := FormatPicks(slate(), 70)
	assert.Equal(t, []string{
		"**Toronto Maple Leafs ML** SU 81.0% · NHL BOS @ TOR",
		"**Under 231.5** OU 74.5% · NBA DEN @ LAL",
		"**Kansas City Chiefs ML** SU 74.5% · NFL CIN @ KC",
	}, lines)

	assert.Empty(t, FormatPicks(slate(), 90))
}

func TestNotifyPostsEmbed(t *testing.T) {
	hook := &fakeWebhook{}
	d, err := NewDiscord("123", "secret", 0, nil)
	require.NoError(t, err)
	d.exec = hook

	require.NoError(t, d.Notify(context.Background(), "run-1", slate()))
	require.Len(t, hook.params, 1)
	assert.Equal(t, "123", hook.id)

	embed := hook.params[0].Embeds[0]
	assert.Equal(t, "🔮 Picks ≥ 70%", embed.Title)
	assert.Equal(t, 3, strings.Count(embed.Description, "\n")+1)
	assert.Equal(t, "run run-1", embed.Footer.Text)
}

func TestNotifySkipsWhenNothingQualifies(t *testing.T) {
	hook := &fakeWebhook{}
	d, err := NewDiscord("123", "secret", 95, nil)
	require.NoError(t, err)
	d.exec = hook

	require.NoError(t, d.Notify(context.Background(), "run-1", slate()))
	assert.Empty(t, hook.params)
}

func TestNotifyDisabledAndErrors(t *testing.T) {
	d, err := NewDiscord("", "", 70, nil)
	require.NoError(t, err)
	assert.False(t, d.Enabled())
	assert.NoError(t, d.Notify(context.Background(), "run-1", slate()))

	d, err = NewDiscord("123", "secret", 70, nil)
	require.NoError(t, err)
	d.exec = &fakeWebhook{err: errors.New("HTTP 401 Unauthorized")}
	assert.ErrorContains(t, d.Notify(context.Background(), "run-1", slate()), "discord webhook")
}

func TestEmbedTruncates(t *testing.T) {
	lines := make([]string, maxLines+3)
	for i := range lines {
		lines[i] = "pick"
	}
	e := embed("r", lines, 70)
	assert.True(t, strings.HasSuffix(e.Description, "…and 3 more"))
}
