// Package alerting announces stored syntheses to operators.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"skywatch/internal/synthesis"
)

// TelegramNotifier pushes completions through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *resty.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		logger: logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type telegramResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Publish calls sendMessage with a rendered completion.
func (n *TelegramNotifier) Publish(ctx context.Context, c synthesis.Completion) error {
	var result telegramResult
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"chat_id": n.chatID, "text": renderMessage(c)}).
		SetResult(&result).
		Post(fmt.Sprintf("/bot%s/sendMessage", n.botToken))
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode())
	}
	if !result.OK {
		if result.Description != "" {
			return fmt.Errorf("telegram returned ok=false: %s", result.Description)
		}
		return errors.New("telegram returned ok=false")
	}

	n.logger.Info().Str("user_id", c.UserID).
		Str("trigger", c.Trigger.String()).
		Msg("synthesis completion sent (Telegram)")
	return nil
}

// LogNotifier writes completions to the log only.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Publish logs the completion.
func (n *LogNotifier) Publish(_ context.Context, c synthesis.Completion) error {
	n.logger.Info().
		Str("user_id", c.UserID).
		Str("trigger", c.Trigger.String()).
		Str("job_id", c.JobID).
		Time("generated_at", c.GeneratedAt).
		Msg("synthesis ready")
	return nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []synthesis.Publisher

// Publish implements synthesis.Publisher.
func (f Fanout) Publish(ctx context.Context, c synthesis.Completion) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func renderMessage(c synthesis.Completion) string {
	builder := strings.Builder{}
	builder.WriteString("[skywatch synthesis]\n")
	builder.WriteString(fmt.Sprintf("User: %s\n", c.UserID))
	builder.WriteString(fmt.Sprintf("Trigger: %s\n", c.Trigger))
	builder.WriteString(fmt.Sprintf("Generated: %s UTC\n", c.GeneratedAt.UTC().Format(time.RFC3339)))
	if c.JobID != "" {
		builder.WriteString(fmt.Sprintf("Job: %s\n", c.JobID))
	}
	return builder.String()
}

var (
	_ synthesis.Publisher = (*TelegramNotifier)(nil)
	_ synthesis.Publisher = (*LogNotifier)(nil)
	_ synthesis.Publisher = Fanout(nil)
)
