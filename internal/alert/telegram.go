package alert

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"sync"
	"time"

	"futuresscreener/internal/binance/crossing"
	"futuresscreener/pkg/binance"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSink posts alerts to one chat. The bot is created on first use so a
// bad token or an unreachable API only fails deliveries, never startup.
type TelegramSink struct {
	token    string
	chatID   int64
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramSink returns a sink for chatID. An empty endpoint uses the public
// Bot API; a custom one keeps the "%s" placeholders for token and method.
func NewTelegramSink(token string, chatID int64, endpoint string, timeout time.Duration) (*TelegramSink, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TelegramSink{
		token:    token,
		chatID:   chatID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (*TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, ev crossing.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := s.botAPI()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(s.chatID, FormatHTML(ev))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (s *TelegramSink) botAPI() (*tgbotapi.BotAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil {
		return s.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(s.token, s.endpoint, s.client)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	s.bot = bot
	return bot, nil
}

// FormatHTML renders an alert for Telegram's HTML parse mode.
func FormatHTML(ev crossing.Event) string {
	glyph, sign := "🟢", ""
	if ev.Direction == crossing.Below {
		glyph, sign = "🔴", "-"
	}
	return fmt.Sprintf("%s <b>%s</b> crossed %s %s%s%% on <b>%s</b> timeframe (%s%%)",
		glyph, html.EscapeString(ev.Symbol), ev.Direction, sign, ev.Threshold.String(),
		html.EscapeString(string(ev.Interval)), binance.FormatChange(ev.Change))
}
