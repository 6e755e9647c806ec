package alerting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const slackDefaultUsername = "BackupsBot"
const slackDefaultIconEmoji = ":card_file_box:"

var slackClient = &http.Client{Timeout: 10 * time.Second}

// SlackConfig contains config values for slack config
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" json:"webhook_url"`
	Channel    string `mapstructure:"channel" json:"channel"`
	Username   string `mapstructure:"username" json:"username"`
	IconEmoji  string `mapstructure:"icon_emoji" json:"icon_emoji"`
}

type slackWebhook struct {
	Channel   string `json:"channel,omitempty"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	IconEmoji string `json:"icon_emoji"`
}

// SlackLog posts a message to the configured incoming webhook
func SlackLog(message string, config *SlackConfig) error {
	username := config.Username
	if username == "" {
		username = slackDefaultUsername
	}

	iconEmoji := config.IconEmoji
	if iconEmoji == "" {
		iconEmoji = slackDefaultIconEmoji
	}

	data := slackWebhook{
		Channel:   config.Channel,
		Username:  username,
		Text:      message,
		IconEmoji: iconEmoji,
	}

	payloadBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}

	resp, err := slackClient.Post(config.WebhookURL, "application/json", bytes.NewReader(payloadBytes))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %s", resp.Status)
	}

	return nil
}
