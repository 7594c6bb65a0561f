package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/database"
)

const (
	MaxMessageLength = 3500

	maxSections        = 5
	maxItemsPerSection = 5
)

// Telegram posts digests to a chat through the Bot API.
type Telegram struct {
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegram(c cfg.Telegram, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Telegram{
		apiURL:   strings.TrimRight(c.APIURL, "/"),
		botToken: c.BotToken,
		chatID:   c.ChatID,
		client:   client,
	}
}

func (n *Telegram) Enabled() bool {
	return n.botToken != "" && n.chatID != ""
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Notify sends the rendered digest. Failures are logged, never returned.
func (n *Telegram) Notify(ctx context.Context, digest *database.Digest) {
	if !n.Enabled() || digest == nil {
		return
	}

	if err := n.Send(ctx, Render(digest)); err != nil {
		slog.Error("Failed to deliver digest", "date", digest.Date, "error", err)
		return
	}

	slog.Info("Digest delivered", "date", digest.Date, "sections", len(digest.Sections))
}

// Send posts text to the configured chat.
func (n *Telegram) Send(ctx context.Context, text string) error {
	blob, err := json.Marshal(sendMessageRequest{
		ChatID:                n.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// Render formats a digest as a plain-text chat message of at most
// MaxMessageLength characters.
func Render(digest *database.Digest) string {
	lines := []string{digest.Title, digest.Summary, ""}

	sections := digest.Sections
	if len(sections) > maxSections {
		sections = sections[:maxSections]
	}

	for _, section := range sections {
		lines = append(lines, section.Title)

		items := section.Items
		if len(items) > maxItemsPerSection {
			items = items[:maxItemsPerSection]
		}
		for _, item := range items {
			switch {
			case item.Title == "" || item.URL == "":
				continue
			case item.SourceName != "":
				lines = append(lines, fmt.Sprintf("- %s (%s)\n  %s", item.Title, item.SourceName, item.URL))
			default:
				lines = append(lines, fmt.Sprintf("- %s\n  %s", item.Title, item.URL))
			}
		}

		lines = append(lines, "")
	}

	return truncate(strings.Join(lines, "\n"), MaxMessageLength)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
