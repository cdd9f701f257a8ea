// Package notify sends operator alerts when a KOL or source falls below
// the reliability floor.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/oracle-alpha-go/internal/models"
)

// Sender is the part of *bot.Bot the notifier uses.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// StatsSource supplies reliability stats and the ignore rule.
type StatsSource interface {
	AllStats(kind models.EntityKind) []models.ReliabilityStats
	ShouldIgnore(stats *models.ReliabilityStats) bool
}

// Gauge receives the number of currently ignored entities.
type Gauge interface {
	SetIgnoredEntities(n int)
}

// Notifier alerts once per entity each time it becomes ignorable. An
// entity that recovers and relapses is alerted again.
type Notifier struct {
	sender Sender
	chatID int64
	stats  StatsSource
	gauge  Gauge
	logger *logrus.Logger

	mu      sync.Mutex
	alerted map[string]struct{}
}

// NewTelegramNotifier creates a notifier backed by the Telegram bot API. An
// empty token yields a notifier that only logs.
func NewTelegramNotifier(token string, chatID int64, stats StatsSource, gauge Gauge, logger *logrus.Logger) (*Notifier, error) {
	var sender Sender
	if token != "" {
		b, err := bot.New(token, bot.WithSkipGetMe())
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		sender = b
	}
	return NewNotifier(sender, chatID, stats, gauge, logger), nil
}

// NewNotifier creates a notifier with an explicit sender.
func NewNotifier(sender Sender, chatID int64, stats StatsSource, gauge Gauge, logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Notifier{
		sender:  sender,
		chatID:  chatID,
		stats:   stats,
		gauge:   gauge,
		logger:  logger,
		alerted: make(map[string]struct{}),
	}
}

// CheckIgnored scans every entity and alerts those that newly satisfy the
// ignore rule. It returns the handles alerted in this call.
func (n *Notifier) CheckIgnored(ctx context.Context) ([]string, error) {
	var ignored []models.ReliabilityStats
	for _, kind := range []models.EntityKind{models.EntityKindKOL, models.EntityKindSource} {
		for _, stats := range n.stats.AllStats(kind) {
			if n.stats.ShouldIgnore(&stats) {
				ignored = append(ignored, stats)
			}
		}
	}
	if n.gauge != nil {
		n.gauge.SetIgnoredEntities(len(ignored))
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	current := make(map[string]struct{}, len(ignored))
	var fresh []models.ReliabilityStats
	for _, stats := range ignored {
		key := alertKey(stats)
		current[key] = struct{}{}
		if _, done := n.alerted[key]; !done {
			fresh = append(fresh, stats)
		}
	}
	// Forget recovered entities so a relapse alerts again.
	for key := range n.alerted {
		if _, still := current[key]; !still {
			delete(n.alerted, key)
		}
	}

	var sent []string
	var errs []error
	for _, stats := range fresh {
		if err := n.send(ctx, stats); err != nil {
			errs = append(errs, err)
			continue
		}
		n.alerted[alertKey(stats)] = struct{}{}
		sent = append(sent, stats.Handle)
	}
	return sent, errors.Join(errs...)
}

func alertKey(stats models.ReliabilityStats) string {
	return string(stats.Kind) + ":" + stats.Handle
}

func (n *Notifier) send(ctx context.Context, stats models.ReliabilityStats) error {
	fields := logrus.Fields{
		"handle":            stats.Handle,
		"kind":              stats.Kind,
		"reliability_score": stats.ReliabilityScore,
		"pump_and_dump":     stats.IsPumpAndDump,
	}
	if n.sender == nil || n.chatID == 0 {
		n.logger.WithFields(fields).Warn("Entity is now ignored (telegram disabled)")
		return nil
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      FormatIgnoredMessage(stats),
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		n.logger.WithFields(fields).WithError(err).Error("Failed to send ignore alert")
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	n.logger.WithFields(fields).Info("Sent ignore alert")
	return nil
}

// FormatIgnoredMessage renders the alert in Telegram MarkdownV2.
func FormatIgnoredMessage(stats models.ReliabilityStats) string {
	label := "KOL"
	if stats.Kind == models.EntityKindSource {
		label = "Source"
	}

	var b strings.Builder
	b.WriteString("⚠️ *Unreliable ")
	b.WriteString(label)
	b.WriteString("*\n\n")
	b.WriteString(fmt.Sprintf("*%s* is now ignored\n", bot.EscapeMarkdown(stats.Handle)))
	b.WriteString(bot.EscapeMarkdown(fmt.Sprintf("Score: %.1f/100", stats.ReliabilityScore)))
	b.WriteString("\n")
	b.WriteString(bot.EscapeMarkdown(fmt.Sprintf("Win rate: %.1f%% over %d calls", stats.WinRate, stats.TotalCalls)))
	b.WriteString("\n")
	b.WriteString(bot.EscapeMarkdown(fmt.Sprintf("Avg ROI: %.1f%%", stats.AvgROI)))
	if stats.IsPumpAndDump {
		b.WriteString("\n")
		b.WriteString(bot.EscapeMarkdown(fmt.Sprintf("Pump & dump pattern (score %.0f)", stats.PumpScore)))
	}
	return b.String()
}
