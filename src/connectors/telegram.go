package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"fibexecutor/src/model"
)

// FormatText renders an outbox payload as a plain chat message.
func FormatText(kind string, payload []byte) (string, error) {
	switch kind {
	case model.EventPendingOrder:
		var p model.PendingOrder
		if err := json.Unmarshal(payload, &p); err != nil {
			return "", fmt.Errorf("decode %s: %w", kind, err)
		}
		return fmt.Sprintf("Pending %s order (%s) at %s, ratio %s, tp %s, sl %s",
			p.Side, p.Instrument, p.Price, formatRatio(p.FibRatio), p.TakeProfit, p.StopLoss), nil

	case model.EventPositionClose:
		var c model.ClosedPosition
		if err := json.Unmarshal(payload, &c); err != nil {
			return "", fmt.Errorf("decode %s: %w", kind, err)
		}
		return fmt.Sprintf("%s position closed (%s): %s %s, entry %s, exit %s",
			c.Position.Side, c.Position.Instrument, c.Outcome, c.Net, c.Position.EntryPrice, c.ExitPrice), nil

	case model.EventKickoff:
		var k model.Kickoff
		if err := json.Unmarshal(payload, &k); err != nil {
			return "", fmt.Errorf("decode %s: %w", kind, err)
		}
		return fmt.Sprintf("Kickoff %s: point A %s, point B %s, %d levels", k.Instrument, k.PointA, k.PointB, len(k.Levels)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, kind)
}

// TelegramNotifier mirrors events to one chat.
type TelegramNotifier struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *logrus.Entry
}

func NewTelegramNotifier(token string, chatID int64, log *logrus.Entry) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithEndpoint(token, chatID, tgbot.APIEndpoint, http.DefaultClient, log)
}

// NewTelegramNotifierWithEndpoint lets the bot API endpoint be replaced.
func NewTelegramNotifierWithEndpoint(token string, chatID int64, endpoint string, client *http.Client, log *logrus.Entry) (*TelegramNotifier, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if strings.TrimSpace(token) == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	bot, err := tgbot.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID, log: log.WithField("component", "telegram")}, nil
}

func (t *TelegramNotifier) Notify(_ context.Context, kind string, payload []byte) error {
	text, err := FormatText(kind, payload)
	if err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	t.log.WithField("kind", kind).Debug("telegram notification sent")
	return nil
}
