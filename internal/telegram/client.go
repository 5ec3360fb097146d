// Package telegram forwards triggered bot alerts to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"marketmover/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and
// answers bot commands. It returns immediately; the goroutine stops when ctx
// is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
}

// SendAlert notifies the chat that a watch trigger fired. Every poll that
// still satisfies the condition re-sends; collapsing repeats is the chat
// consumer's concern, not this client's.
func (c *Client) SendAlert(cfg *models.WatchConfig, res models.AlertResult) error {
	return c.sendMarkdownV2(formatAlert(cfg, res))
}

// formatAlert renders one triggered evaluation as a MarkdownV2 message.
func formatAlert(cfg *models.WatchConfig, res models.AlertResult) string {
	var b strings.Builder
	b.WriteString("🎯 *Market Mover alert*\n\n")
	b.WriteString(fmt.Sprintf("*%s*\n", escapeMarkdownV2(cfg.MarketName)))
	b.WriteString(fmt.Sprintf("%s\n", escapeMarkdownV2(res.Message)))
	b.WriteString(fmt.Sprintf("YES %s / NO %s\n",
		escapeMarkdownV2(fmt.Sprintf("%.3f", res.PriceYes)),
		escapeMarkdownV2(fmt.Sprintf("%.3f", res.PriceNo)),
	))
	if cfg.TargetYes != nil {
		b.WriteString(fmt.Sprintf("Target YES: %s\n", escapeMarkdownV2(fmt.Sprintf("%.3f", *cfg.TargetYes))))
	}
	if cfg.TargetNo != nil {
		b.WriteString(fmt.Sprintf("Target NO: %s\n", escapeMarkdownV2(fmt.Sprintf("%.3f", *cfg.TargetNo))))
	}
	b.WriteString(fmt.Sprintf("🕒 %s", escapeMarkdownV2(res.Timestamp.Format("2006-01-02 15:04:05"))))
	return b.String()
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
