package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts one-way operational alerts to a fixed Slack channel: the
// worker fleet's only outbound surface, used for billing-finalizer
// failures, account-pool exhaustion, and poll-timeout storms. There are no
// inbound Slack routes — no slash commands, interactions, or events.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier. If botToken is empty, the notifier
// is a noop (logging only), which keeps local/dev runs from requiring a
// real Slack workspace.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a configured client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostAlert sends an alert notification to the configured channel.
func (n *Notifier) PostAlert(ctx context.Context, alert AlertInfo) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping alert post", "kind", alert.Kind, "title", alert.Title)
		return nil
	}

	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(AlertBlocks(alert)...),
		goslack.MsgOptionText(fmt.Sprintf("%s %s", SeverityEmoji(alert.Severity), alert.Title), false),
	}

	channelID, ts, err := n.client.PostMessageContext(ctx, n.channel, opts...)
	if err != nil {
		return fmt.Errorf("posting alert to slack: %w", err)
	}

	n.logger.Info("posted alert to slack", "kind", alert.Kind, "channel", channelID, "ts", ts)
	return nil
}
