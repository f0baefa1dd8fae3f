package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

// SeverityEmoji returns the emoji prefix for a given severity level.
func SeverityEmoji(severity string) string {
	switch severity {
	case "critical":
		return "🔴"
	case "warning":
		return "🟡"
	default:
		return "⚪"
	}
}

// AlertBlocks builds Slack Block Kit blocks for an operational alert.
func AlertBlocks(alert AlertInfo) []goslack.Block {
	header := goslack.NewHeaderBlock(
		goslack.NewTextBlockObject(goslack.PlainTextType,
			fmt.Sprintf("%s %s", SeverityEmoji(alert.Severity), alert.Title), true, false),
	)

	var fields []*goslack.TextBlockObject
	if alert.WorkspaceID != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Workspace:* %s", alert.WorkspaceID), false, false))
	}
	if alert.ProviderID != "" {
		fields = append(fields, goslack.NewTextBlockObject(goslack.MarkdownType, fmt.Sprintf("*Provider:* %s", alert.ProviderID), false, false))
	}

	blocks := []goslack.Block{header}
	if len(fields) > 0 {
		blocks = append(blocks, goslack.NewSectionBlock(nil, fields, nil))
	}
	if alert.Description != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncate(alert.Description, 500), false, false),
			nil, nil,
		))
	}
	return blocks
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
