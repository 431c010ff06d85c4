// Package telegram announces newly published cards in a Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/briefs/internal/feed"
	"github.com/deusflow/briefs/internal/retry"
)

// Notifier posts one message per published card.
type Notifier struct {
	token   string
	chatID  string
	client  *http.Client
	apiURL  string
	retry   retry.RetryConfig
	log     *slog.Logger
	preview bool
}

func NewNotifier(token, chatID string, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 30 * time.Second},
		apiURL: "https://api.telegram.org",
		retry:  retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
		log:    log,
	}
}

// WithPreview enables link previews in sent messages.
func (n *Notifier) WithPreview(on bool) *Notifier {
	n.preview = on
	return n
}

func (n *Notifier) Notify(ctx context.Context, card feed.Card) error {
	text := FormatCard(card)
	attempt := 0
	err := retry.WithRetry(ctx, n.retry, func() error {
		attempt++
		err := n.sendMessageOnce(ctx, text)
		if err != nil {
			n.log.Warn("Error send to Telegram", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("can't send message: %w", err)
	}
	n.log.Info("Message sent to Telegram", "card", card.ID, "attempt", attempt)
	return nil
}

// FormatCard renders a card as Telegram HTML.
func FormatCard(c feed.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(c.Title))
	if c.Summary != "" {
		b.WriteString(html.EscapeString(c.Summary))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">%s</a>", html.EscapeString(c.SourceURL), html.EscapeString(c.SourceHost))
	if c.ArchiveURL != "" {
		fmt.Fprintf(&b, " · <a href=\"%s\">archiv</a>", html.EscapeString(c.ArchiveURL))
	}
	return b.String()
}

func (n *Notifier) sendMessageOnce(ctx context.Context, text string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.token)

	payload := map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": !n.preview,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
