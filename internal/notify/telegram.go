// Package notify sends optional Telegram notifications for order activity.
// With no token configured every call is a no-op.
package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/predikt/tradeclient/internal/types"
)

// Notifier posts trade notifications to a Telegram chat.
type Notifier struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	enabled bool
}

// New creates a notifier. An empty token disables it without error.
func New(token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return &Notifier{}, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram init: %w", err)
	}

	log.Info().Str("bot", api.Self.UserName).Msg("📱 Telegram notifications enabled")
	return &Notifier{api: api, chatID: chatID, enabled: true}, nil
}

// Enabled reports whether notifications will actually be sent.
func (n *Notifier) Enabled() bool { return n.enabled }

// OrderPlaced announces a successful submission.
func (n *Notifier) OrderPlaced(req types.OrderRequest, placed *types.Order) {
	price := req.Price
	if req.OrderType == types.OrderTypeMarket && placed != nil {
		price = placed.Price
	}
	msg := fmt.Sprintf(
		"✅ *Order placed*\n%s %s x%d @ %s\nmarket %d / %s",
		strings.ToUpper(string(req.Outcome)),
		req.OrderType,
		req.Quantity,
		formatPrice(price),
		req.MarketID,
		req.OutcomeName,
	)
	n.send(msg)
}

// OrderFailed announces a rejected submission.
func (n *Notifier) OrderFailed(req types.OrderRequest, submitErr error) {
	msg := fmt.Sprintf(
		"❌ *Order failed*\nmarket %d / %s\n%s",
		req.MarketID,
		req.OutcomeName,
		submitErr.Error(),
	)
	n.send(msg)
}

// ChannelDown announces a terminally disconnected realtime channel.
func (n *Notifier) ChannelDown(marketID int64) {
	n.send(fmt.Sprintf("⚠️ Realtime channel for market %d is down, reconnects exhausted", marketID))
}

func (n *Notifier) send(text string) {
	if !n.enabled {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("Telegram send failed")
	}
}

func formatPrice(p decimal.Decimal) string {
	if p.IsZero() {
		return "market"
	}
	return p.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
