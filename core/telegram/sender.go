package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/flowbot/core/flow/engine"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/telegram/keyboard"
)

var errSenderUnbound = errors.New("telegram: sender not bound to a bot")

// Sender delivers engine messages through the Telegram bot API. It is the
// engine's delivery port; Bind attaches the bot once it exists.
type Sender struct {
	bot     *tele.Bot
	metrics *engine.Metrics
}

// NewSender builds an unbound sender. Deliveries before Bind fail.
func NewSender(metrics *engine.Metrics) *Sender {
	return &Sender{metrics: metrics}
}

// Bind attaches the bot. Must happen before updates start flowing.
func (s *Sender) Bind(bot *tele.Bot) {
	s.bot = bot
}

// Deliver sends or edits one message. An edit that the API rejects falls
// back to a fresh send so the user always gets the content.
func (s *Sender) Deliver(ctx context.Context, userID int64, msg engine.Message) (int, error) {
	if s.bot == nil {
		return 0, errSenderUnbound
	}

	markup := keyboard.Build(msg.Keyboard)
	var opts []interface{}
	if markup != nil {
		opts = append(opts, markup)
	}

	if msg.EditMessageID != 0 && !msg.ForceNew {
		stored := tele.StoredMessage{
			MessageID: strconv.Itoa(msg.EditMessageID),
			ChatID:    userID,
		}
		edited, err := s.bot.Edit(stored, msg.Text, opts...)
		if err == nil {
			return edited.ID, nil
		}
		if s.metrics != nil {
			s.metrics.DeliveryFallbacks.Inc()
		}
		logger.Warn(ctx, "tg", "send.edit_fallback",
			slog.Int64("user_id", userID),
			slog.Int("message_id", msg.EditMessageID),
			slog.String("err", err.Error()),
		)
	}

	sent, err := s.bot.Send(tele.ChatID(userID), msg.Text, opts...)
	if err != nil {
		return 0, err
	}
	return sent.ID, nil
}
