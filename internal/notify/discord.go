// Package notify posts high-confidence picks to a Discord webhook.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/fortuna/pythia/internal/logging"
	"github.com/fortuna/pythia/internal/store"
)

const (
	// DefaultMinConfidence is the pick threshold when none is configured.
	DefaultMinConfidence = 70

	maxLines    = 20
	embedColor  = 0x1f8b4c
	webhookName = "pythia"
)

// WebhookExecutor is the discordgo session surface used to post.
type WebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts one embed per run. A Discord without credentials does nothing.
type Discord struct {
	exec          WebhookExecutor
	webhookID     string
	token         string
	minConfidence float64
	logger        *zap.SugaredLogger
}

// NewDiscord creates a notifier. Empty credentials yield a disabled notifier.
func NewDiscord(webhookID, token string, minConfidence float64, logger *zap.Logger) (*Discord, error) {
	d := &Discord{
		webhookID:     webhookID,
		token:         token,
		minConfidence: minConfidence,
		logger:        logging.OrNop(logger).Named("notify").Sugar(),
	}
	if d.minConfidence <= 0 {
		d.minConfidence = DefaultMinConfidence
	}
	if webhookID == "" || token == "" {
		return d, nil
	}

	session, err := discordgo.New("")
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	d.exec = session
	return d, nil
}

// Enabled reports whether the notifier will post.
func (d *Discord) Enabled() bool { return d != nil && d.exec != nil }

// Notify posts the picks at or above the threshold. Nothing is sent when no
// pick qualifies.
func (d *Discord) Notify(ctx context.Context, runID string, preds []*store.Prediction) error {
	if !d.Enabled() {
		return nil
	}
	lines := FormatPicks(preds, d.minConfidence)
	if len(lines) == 0 {
		d.logger.Debugf("no picks at or above %.0f%%", d.minConfidence)
		return nil
	}

	params := &discordgo.WebhookParams{
		Username: webhookName,
		Embeds:   []*discordgo.MessageEmbed{embed(runID, lines, d.minConfidence)},
	}
	if _, err := d.exec.WebhookExecute(d.webhookID, d.token, false, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	d.logger.Infof("✓ posted %d picks to Discord", len(lines))
	return nil
}

type ranked struct {
	pred *store.Prediction
	pick *store.Pick
}

// FormatPicks renders every pick with confidence >= min, highest first. Ties
// keep game start order.
func FormatPicks(preds []*store.Prediction, min float64) []string {
	var picks []ranked
	for _, p := range preds {
		for _, pick := range p.Picks() {
			if pick.Confidence >= min {
				picks = append(picks, ranked{pred: p, pick: pick})
			}
		}
	}
	sort.SliceStable(picks, func(i, j int) bool {
		if picks[i].pick.Confidence != picks[j].pick.Confidence {
			return picks[i].pick.Confidence > picks[j].pick.Confidence
		}
		return picks[i].pred.StartTime.Before(picks[j].pred.StartTime)
	})

	out := make([]string, 0, len(picks))
	for _, r := range picks {
		out = append(out, fmt.Sprintf("**%s** %s %.1f%% · %s %s",
			r.pick.Selection,
			strings.ToUpper(r.pick.Market),
			r.pick.Confidence,
			strings.ToUpper(r.pred.Sport),
			r.pred.Matchup,
		))
	}
	return out
}

func embed(runID string, lines []string, min float64) *discordgo.MessageEmbed {
	extra := 0
	if len(lines) > maxLines {
		extra = len(lines) - maxLines
		lines = lines[:maxLines]
	}
	desc := strings.Join(lines, "\n")
	if extra > 0 {
		desc += fmt.Sprintf("\n…and %d more", extra)
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🔮 Picks ≥ %.0f%%", min),
		Description: desc,
		Color:       embedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: "run " + runID},
	}
}
