// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-slack-webhook/pkg/connector/matrixfmt"
)

// HandleMatrixMessage posts a Matrix message to the linked Slack channel and
// mirrors it into the other Matrix rooms bound to the same channel.
func (l *ChannelLink) HandleMatrixMessage(ctx context.Context, evt *event.Event) error {
	content := evt.Content.AsMessage()
	log := l.log.With().
		Str("event_id", evt.ID.String()).
		Str("room_id", evt.RoomID.String()).
		Logger()

	msg, err := l.convertMatrixMessage(content)
	if err != nil {
		log.Debug().Err(err).Msg("Not relaying Matrix message")
		return nil
	}

	senderName := senderDisplayName(evt.Sender)
	profile, err := l.bridge.Matrix.GetProfile(ctx, evt.Sender)
	if err != nil {
		log.Warn().Err(err).Str("sender", evt.Sender.String()).Msg("Failed to get sender profile")
	} else if profile != nil {
		if profile.DisplayName != "" {
			msg.Username = profile.DisplayName
			senderName = profile.DisplayName
		}
		if !profile.AvatarURL.IsEmpty() {
			msg.IconURL = l.bridge.Config.MediaURL(profile.AvatarURL)
		}
	}

	var errs []error
	if err := l.bridge.Slack.PostWebhook(ctx, l.webhookURI, msg); err != nil {
		Metrics.DeliveryFailures.WithLabelValues("slack").Inc()
		log.Err(err).Msg("Failed to post message to Slack")
		errs = append(errs, fmt.Errorf("slack webhook: %w", err))
	} else {
		log.Debug().Msg("Posted message to Slack")
	}

	mirror := mirrorContent(content, senderName)
	for _, roomID := range l.RoomIDs() {
		if roomID == evt.RoomID {
			continue
		}
		if err := l.bridge.Matrix.SendMessage(ctx, roomID, mirror); err != nil {
			Metrics.DeliveryFailures.WithLabelValues("matrix").Inc()
			log.Err(err).Str("target_room_id", roomID.String()).Msg("Failed to mirror message")
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
	}
	return nil
}

// convertMatrixMessage builds the Slack webhook payload for a Matrix message.
func (l *ChannelLink) convertMatrixMessage(content *event.MessageEventContent) (*slack.WebhookMessage, error) {
	msg := &slack.WebhookMessage{}

	switch content.MsgType {
	case event.MsgText, event.MsgNotice:
		msg.Text = matrixToSlack(content)

	case event.MsgEmote:
		msg.Text = "_" + matrixToSlack(content) + "_"

	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		uri := content.URL.ParseOrIgnore()
		if uri.IsEmpty() {
			return nil, fmt.Errorf("%w: %s without a content URI", ErrTranslation, content.MsgType)
		}
		url := l.bridge.Config.MediaURL(uri)
		name := content.GetFileName()
		if name == "" {
			name = content.Body
		}
		attachment := slack.Attachment{
			Fallback:  matrixfmt.Escape(name) + ": " + url,
			Title:     name,
			TitleLink: url,
		}
		if content.MsgType == event.MsgImage {
			attachment.ImageURL = url
		}
		if content.Body != "" && content.Body != name {
			msg.Text = matrixToSlack(content)
		}
		msg.Attachments = []slack.Attachment{attachment}

	default:
		return nil, fmt.Errorf("unsupported message type: %s", content.MsgType)
	}

	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrTranslation)
	}
	return msg, nil
}

// mirrorContent renders a message for the other rooms of the link. Text is
// sent as a bot notice naming the sender; media is re-sent with the same
// content URI.
func mirrorContent(content *event.MessageEventContent, senderName string) *event.MessageEventContent {
	switch content.MsgType {
	case event.MsgImage, event.MsgVideo, event.MsgAudio, event.MsgFile:
		return &event.MessageEventContent{
			MsgType:  content.MsgType,
			Body:     content.Body,
			FileName: content.FileName,
			URL:      content.URL,
			Info:     content.Info,
		}
	case event.MsgEmote:
		return &event.MessageEventContent{
			MsgType: event.MsgNotice,
			Body:    "* " + senderName + " " + content.Body,
		}
	default:
		return &event.MessageEventContent{
			MsgType: event.MsgNotice,
			Body:    senderName + ": " + content.Body,
		}
	}
}

// senderDisplayName falls back to the localpart when no profile is available.
func senderDisplayName(userID id.UserID) string {
	localpart, _, err := userID.Parse()
	if err != nil || localpart == "" {
		return userID.String()
	}
	return localpart
}
