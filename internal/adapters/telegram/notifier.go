package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/ports"
)

// notifier pushes operational notices to the platform admin chat.
type notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

var _ ports.Notifier = (*notifier)(nil) // Ensure compliance

// NewNotifier creates a Telegram-backed notifier.
func NewNotifier(token string, chatID int64, baseLogger *zerolog.Logger) (ports.Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	log := baseLogger.With().Str("component", "tg_notifier").Logger()
	log.Info().Str("bot", api.Self.UserName).Msg("Telegram notifier initialized")
	return &notifier{api: api, chatID: chatID, log: log}, nil
}

// Notify sends one plain-text message to the admin chat.
func (n *notifier) Notify(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error().Err(err).Int64("chat_id", n.chatID).Msg("Failed to send notification")
		return err
	}
	return nil
}

// Attach subscribes the notifier to the decisions operators care about.
func Attach(bus ports.EventBus, n ports.Notifier, log *zerolog.Logger) {
	bus.Subscribe(ports.TopicProposalFinalized, func(ctx context.Context, event ports.Event) error {
		p, ok := event.Data.(*domain.Proposal)
		if !ok {
			return nil
		}
		text := fmt.Sprintf("Proposal %q finalized: %s (for %d / against %d / abstain %d, quorum %d)",
			p.Title, p.Status, p.VotesFor, p.VotesAgainst, p.VotesAbstain, p.Quorum)
		return n.Notify(ctx, text)
	})

	bus.Subscribe(ports.TopicVerificationFinal, func(ctx context.Context, event ports.Event) error {
		id, ok := event.Data.(string)
		if !ok {
			return nil
		}
		return n.Notify(ctx, fmt.Sprintf("KYC verification %s reached a final decision", id))
	})
}
