package alarm

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jmllr/alertchain/internal/config"
	"github.com/jmllr/alertchain/internal/logger"
	"github.com/jmllr/alertchain/internal/metrics"
)

// Dispatcher delivers run notifications. dry_run mode logs the rendered
// messages instead of sending them, so rule changes can be rehearsed against
// live data without spamming a channel.
type Dispatcher struct {
	mode           string
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewDispatcher builds a dispatcher for the configured mode. The Telegram
// bot is only contacted in telegram mode.
func NewDispatcher(cfg config.DispatchConfig) (*Dispatcher, error) {
	d := &Dispatcher{
		mode:           cfg.Mode,
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
	if d.maxRetries <= 0 {
		d.maxRetries = 3
	}
	if d.retryDelayBase <= 0 {
		d.retryDelayBase = time.Second
	}
	if cfg.Mode != "telegram" {
		return d, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	d.bot = bot
	d.chatID = chatID
	return d, nil
}

// Dispatch delivers all notifications of one run and returns the sent and
// failed counts. One failing message never blocks the rest.
func (d *Dispatcher) Dispatch(notifications []Notification) (sent, failed int) {
	for _, n := range notifications {
		if err := d.send(n); err != nil {
			failed++
			metrics.DispatchTotal.WithLabelValues(d.mode, "fail").Inc()
			logger.Error("dispatch failed: key=%s kind=%s err=%v", n.Key, n.Kind, err)
			continue
		}
		sent++
		metrics.DispatchTotal.WithLabelValues(d.mode, "ok").Inc()
	}
	return sent, failed
}

func (d *Dispatcher) send(n Notification) error {
	if d.mode != "telegram" {
		logger.Info("dry_run notification:\n%s", FormatText(n))
		return nil
	}
	return d.sendMarkdownV2(FormatMarkdownV2(n))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (d *Dispatcher) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(d.chatID, text)
	msg.ParseMode = "MarkdownV2"
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < d.maxRetries; i++ {
		if _, err := d.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(d.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", d.maxRetries, lastErr)
}

// SendError reports a run failure. Call only on the first occurrence of a
// consecutive failure sequence.
func (d *Dispatcher) SendError(runErr error) error {
	if d.mode != "telegram" {
		logger.Warn("dry_run error notification: %v", runErr)
		return nil
	}
	text := fmt.Sprintf("⚠️ *Evaluator error*\n`%s`", escapeMarkdownV2(runErr.Error()))
	return d.sendMarkdownV2(text)
}

// SendRecovery reports recovery after consecutive run failures.
func (d *Dispatcher) SendRecovery(failureCount int) error {
	if d.mode != "telegram" {
		logger.Info("dry_run recovery notification after %d failure(s)", failureCount)
		return nil
	}
	text := fmt.Sprintf("✅ *Evaluator recovered* after %d consecutive failure\\(s\\)", failureCount)
	return d.sendMarkdownV2(text)
}
