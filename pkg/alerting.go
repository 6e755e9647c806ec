package pkg

import (
	"fmt"
	"os"
	"time"

	"github.com/feederco/chunked-db-backup/pkg/alerting"
)

// AlertingConfig sub-config type for alerting related
type AlertingConfig struct {
	Slack *alerting.SlackConfig `mapstructure:"slack" json:"slack"`
}

func (c *AlertingConfig) slack() *alerting.SlackConfig {
	if c == nil || c.Slack == nil || c.Slack.WebhookURL == "" {
		return nil
	}
	return c.Slack
}

// AlertError alerts an error to the system administrator
func AlertError(alertingConfig *AlertingConfig, message string, err error) {
	hostname, _ := os.Hostname()

	fullMessage := fmt.Sprintf("[*BACKUP FAILURE*] [%s] [host: `%s`] `%s` with error: `%s`", time.Now().Format(time.RFC3339), hostname, message, err)

	if slackConfig := alertingConfig.slack(); slackConfig != nil {
		if slackErr := alerting.SlackLog(fullMessage, slackConfig); slackErr != nil {
			Log.WithError(slackErr).Warn("Could not alert to Slack")
		}
	}

	// Always print to error log
	Log.WithError(err).Error(message)
}

// AlertMessage simply alerts a message to the correct channels
func AlertMessage(alertingConfig *AlertingConfig, message string) {
	hostname, _ := os.Hostname()

	fullMessage := fmt.Sprintf("[backup message] [%s] [host: %s] %s", time.Now().Format(time.RFC3339), hostname, message)

	if slackConfig := alertingConfig.slack(); slackConfig != nil {
		if err := alerting.SlackLog(fullMessage, slackConfig); err != nil {
			Log.WithError(err).Warn("Could not alert to Slack")
		}
	}

	Log.Info(message)
}
