// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Slack message subtypes handled by the bridge.
const (
	SubtypeMeMessage   = "me_message"
	SubtypeFileComment = "file_comment"
	SubtypeFileShare   = "file_share"
)

// SlackMessage is an inbound message from a Slack outgoing webhook.
type SlackMessage struct {
	Token       string
	TeamID      string
	TeamDomain  string
	ChannelID   string
	ChannelName string
	UserID      string
	UserName    string
	Text        string
	Subtype     string
	Timestamp   string

	// File is set for file_share and file_comment messages.
	File *slack.File
	// FileContent is the raw file data, when it was sent inline or fetched.
	FileContent []byte
}

// HandleSlackMessage delivers an authenticated Slack message into every
// Matrix room bound to the link, as the ghost of the Slack user.
func (l *ChannelLink) HandleSlackMessage(ctx context.Context, msg *SlackMessage) error {
	log := l.log.With().
		Str("user_name", msg.UserName).
		Str("subtype", msg.Subtype).
		Str("timestamp", msg.Timestamp).
		Logger()

	switch msg.Subtype {
	case "", SubtypeMeMessage, SubtypeFileComment, SubtypeFileShare:
	default:
		log.Debug().Msg("Ignoring message with unhandled subtype")
		return nil
	}

	ghost, err := l.bridge.ghostFor(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to get ghost for %s: %w", msg.UserName, err)
	}
	rooms := l.RoomIDs()

	switch msg.Subtype {
	case "":
		return l.deliver(ctx, ghost, rooms, slackToMatrix(msg.Text, event.MsgText))

	case SubtypeMeMessage:
		return l.deliver(ctx, ghost, rooms, slackToMatrix(msg.Text, event.MsgEmote))

	case SubtypeFileComment:
		return l.deliver(ctx, ghost, rooms, &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    slackToPlain(msg.Text),
		})

	default:
		return l.handleFileShare(ctx, ghost, rooms, msg)
	}
}

// handleFileShare uploads the shared file and delivers it, then delivers the
// file's initial comment. The comment is attempted even if the media failed.
func (l *ChannelLink) handleFileShare(ctx context.Context, ghost Ghost, rooms []id.RoomID, msg *SlackMessage) error {
	if msg.File == nil {
		l.log.Debug().Msg("Ignoring file_share without a file")
		return nil
	}
	log := l.log.With().Str("file_id", msg.File.ID).Str("file_title", msg.File.Title).Logger()

	var errs []error
	if len(msg.FileContent) == 0 {
		log.Warn().Err(fmt.Errorf("%w: file has no content", ErrTranslation)).Msg("Skipping shared file")
	} else if content, err := l.uploadFile(ctx, ghost, msg.File, msg.FileContent); err != nil {
		if errors.Is(err, ErrTranslation) {
			log.Warn().Err(err).Msg("Skipping shared file")
		} else {
			log.Err(err).Msg("Failed to upload shared file")
			errs = append(errs, err)
		}
	} else if err := l.deliver(ctx, ghost, rooms, content); err != nil {
		errs = append(errs, err)
	}

	if comment := msg.File.InitialComment.Comment; comment != "" {
		if err := l.deliver(ctx, ghost, rooms, slackToMatrix(comment, event.MsgText)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// uploadFile uploads data through the ghost and builds the media message.
func (l *ChannelLink) uploadFile(ctx context.Context, ghost Ghost, file *slack.File, data []byte) (*event.MessageEventContent, error) {
	name := file.Title
	if name == "" {
		name = file.Name
	}
	uri, err := ghost.UploadMedia(ctx, data, name, file.Mimetype)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %q: %w", name, err)
	}
	if uri.IsEmpty() {
		return nil, fmt.Errorf("%w: upload of %q returned no content URI", ErrTranslation, name)
	}
	l.log.Debug().Str("content_uri", uri.String()).Msg("Uploaded shared file")
	return slackFileToMatrix(file, name, uri), nil
}

// slackFileToMatrix builds an m.image or m.file message for an uploaded file.
func slackFileToMatrix(file *slack.File, name string, uri id.ContentURI) *event.MessageEventContent {
	msgType := event.MsgFile
	if strings.HasPrefix(file.Mimetype, "image/") {
		msgType = event.MsgImage
	}
	info := &event.FileInfo{
		MimeType: file.Mimetype,
		Size:     file.Size,
	}
	if file.OriginalW > 0 && file.OriginalH > 0 {
		info.Width = file.OriginalW
		info.Height = file.OriginalH
	}
	return &event.MessageEventContent{
		MsgType: msgType,
		Body:    name,
		URL:     uri.CUString(),
		Info:    info,
	}
}

// deliver sends content as ghost into every room. A failing room does not
// stop delivery to the others.
func (l *ChannelLink) deliver(ctx context.Context, ghost Ghost, rooms []id.RoomID, content *event.MessageEventContent) error {
	var errs []error
	for _, roomID := range rooms {
		if err := ghost.SendMessage(ctx, roomID, content); err != nil {
			Metrics.DeliveryFailures.WithLabelValues("matrix").Inc()
			l.log.Err(err).
				Str("room_id", roomID.String()).
				Str("ghost", ghost.UserID().String()).
				Msg("Failed to deliver Slack message to Matrix")
			errs = append(errs, fmt.Errorf("room %s: %w", roomID, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDelivery, errors.Join(errs...))
	}
	return nil
}
