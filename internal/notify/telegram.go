package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSender posts through the Bot API sendMessage method.
type TelegramSender struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender. An empty apiBase selects
// DefaultTelegramAPI.
func NewTelegramSender(apiBase, token, chatID string) *TelegramSender {
	if apiBase == "" {
		apiBase = DefaultTelegramAPI
	}
	return &TelegramSender{
		apiBase: strings.TrimRight(apiBase, "/"),
		token:   token,
		chatID:  chatID,
		client:  newHTTPClient(),
	}
}

type telegramPayload struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send posts the title in bold followed by the message. Backticks in the
// message body are escaped for the legacy Markdown parse mode.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	payload := telegramPayload{
		ChatID:                t.chatID,
		Text:                  fmt.Sprintf("*%s*\n%s", title, strings.ReplaceAll(message, "`", "'")),
		ParseMode:             "Markdown",
		DisableWebPagePreview: true,
	}

	if err := postJSON(ctx, t.client, url, payload); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
