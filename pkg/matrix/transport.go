// Copyright 2024-2026 Aiku AI

// Package matrix connects the bridge to the homeserver as an application
// service: it receives transactions from the homeserver and sends events as
// the bridge bot or as Slack ghosts.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-slack-webhook/pkg/connector"
)

// Transport implements connector.MatrixAPI on top of an appservice.
type Transport struct {
	as  *appservice.AppService
	bot *appservice.IntentAPI
	log zerolog.Logger

	ghostMu sync.Mutex
	ghosts  map[id.UserID]*ghost

	processor *appservice.EventProcessor
	stopOnce  sync.Once
}

var _ connector.MatrixAPI = (*Transport)(nil)

// NewTransport creates an appservice client for the homeserver described by
// cfg, authenticated with the tokens in reg.
func NewTransport(cfg *connector.Config, reg *appservice.Registration, log zerolog.Logger) (*Transport, error) {
	as, err := appservice.CreateFull(appservice.CreateOpts{
		Registration:     reg,
		HomeserverDomain: cfg.Homeserver.ServerName,
		HomeserverURL:    cfg.Homeserver.URL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create appservice: %w", err)
	}
	as.Log = log.With().Str("component", "appservice").Logger()
	as.QueryHandler = &queryHandler{cfg: cfg, bot: as.BotMXID()}
	return &Transport{
		as:     as,
		bot:    as.BotIntent(),
		log:    log.With().Str("component", "matrix").Logger(),
		ghosts: make(map[id.UserID]*ghost),
	}, nil
}

// Start registers the bridge bot with the homeserver.
func (t *Transport) Start(ctx context.Context) error {
	if err := t.bot.EnsureRegistered(ctx); err != nil {
		return fmt.Errorf("failed to register bridge bot: %w", err)
	}
	t.as.Ready = true
	t.log.Info().Str("bot", t.bot.UserID.String()).Msg("Bridge bot registered")
	return nil
}

func (t *Transport) BotUserID() id.UserID {
	return t.as.BotMXID()
}

// SendText sends a notice from the bridge bot.
func (t *Transport) SendText(ctx context.Context, roomID id.RoomID, text string) error {
	return t.SendMessage(ctx, roomID, &event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	})
}

func (t *Transport) SendMessage(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error {
	return sendMessage(ctx, t.bot, roomID, content)
}

func (t *Transport) JoinRoom(ctx context.Context, roomID id.RoomID) error {
	if err := t.bot.EnsureJoined(ctx, roomID); err != nil {
		return fmt.Errorf("failed to join %s: %w", roomID, err)
	}
	return nil
}

func (t *Transport) GetProfile(ctx context.Context, userID id.UserID) (*connector.Profile, error) {
	resp, err := t.bot.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile of %s: %w", userID, err)
	}
	return &connector.Profile{
		DisplayName: resp.DisplayName,
		AvatarURL:   resp.AvatarURL,
	}, nil
}

// Ghost returns the intent of a ghost user, registering it on first use.
func (t *Transport) Ghost(ctx context.Context, userID id.UserID) (connector.Ghost, error) {
	t.ghostMu.Lock()
	defer t.ghostMu.Unlock()
	if g, ok := t.ghosts[userID]; ok {
		return g, nil
	}
	intent := t.as.Intent(userID)
	if err := intent.EnsureRegistered(ctx); err != nil && !errors.Is(err, mautrix.MUserInUse) {
		return nil, fmt.Errorf("failed to register ghost %s: %w", userID, err)
	}
	g := &ghost{intent: intent}
	t.ghosts[userID] = g
	t.log.Debug().Str("ghost", userID.String()).Msg("Registered ghost")
	return g, nil
}

type ghost struct {
	intent *appservice.IntentAPI
}

func (g *ghost) UserID() id.UserID {
	return g.intent.UserID
}

func (g *ghost) SetDisplayName(ctx context.Context, name string) error {
	return g.intent.SetDisplayName(ctx, name)
}

func (g *ghost) SendMessage(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error {
	return sendMessage(ctx, g.intent, roomID, content)
}

func (g *ghost) UploadMedia(ctx context.Context, data []byte, fileName, mimeType string) (id.ContentURI, error) {
	resp, err := g.intent.UploadBytesWithName(ctx, data, mimeType, fileName)
	if err != nil {
		return id.ContentURI{}, err
	}
	return resp.ContentURI, nil
}

// sendMessage sends content as intent, joining the room first if needed.
func sendMessage(ctx context.Context, intent *appservice.IntentAPI, roomID id.RoomID, content *event.MessageEventContent) error {
	if _, err := intent.SendMessageEvent(ctx, roomID, event.EventMessage, content); err != nil {
		return fmt.Errorf("failed to send to %s as %s: %w", roomID, intent.UserID, err)
	}
	return nil
}
