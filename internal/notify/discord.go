package notify

import (
	"context"
	"fmt"
	"net/http"
)

// Discord caps message content at 2000 characters.
const discordMaxContent = 2000

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender. username overrides the webhook's
// display name when non-empty.
func NewDiscordSender(webhookURL, username string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   username,
		client:     newHTTPClient(),
	}
}

type discordPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// Send posts the title in bold followed by the message.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n%s", title, message)
	if r := []rune(content); len(r) > discordMaxContent {
		content = string(r[:discordMaxContent-1]) + "…"
	}

	if err := postJSON(ctx, d.client, d.webhookURL, discordPayload{Content: content, Username: d.username}); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
