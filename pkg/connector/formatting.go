// Copyright 2024-2026 Aiku AI

package connector

import (
	"github.com/aiku/mautrix-slack-webhook/pkg/connector/matrixfmt"
	"github.com/aiku/mautrix-slack-webhook/pkg/connector/slackfmt"
	"maunium.net/go/mautrix/event"
)

// slackToMatrix converts Slack mrkdwn to Matrix message content of msgType.
func slackToMatrix(text string, msgType event.MessageType) *event.MessageEventContent {
	parsed := slackfmt.Parse(text)
	return &event.MessageEventContent{
		MsgType:       msgType,
		Body:          parsed.Body,
		Format:        parsed.Format,
		FormattedBody: parsed.FormattedBody,
	}
}

// slackToPlain converts Slack mrkdwn to plain text.
func slackToPlain(text string) string {
	return slackfmt.Plain(text)
}

// matrixToSlack converts Matrix message content to Slack mrkdwn.
func matrixToSlack(content *event.MessageEventContent) string {
	return matrixfmt.Parse(content)
}
