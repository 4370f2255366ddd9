// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-slack-webhook/pkg/store"
)

// Profile is the public profile of a Matrix user.
type Profile struct {
	DisplayName string
	AvatarURL   id.ContentURI
}

// MatrixAPI is the bridge bot's access to the homeserver.
type MatrixAPI interface {
	BotUserID() id.UserID
	SendText(ctx context.Context, roomID id.RoomID, text string) error
	SendMessage(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error
	JoinRoom(ctx context.Context, roomID id.RoomID) error
	GetProfile(ctx context.Context, userID id.UserID) (*Profile, error)
	// Ghost returns a registered ghost user able to act in rooms.
	Ghost(ctx context.Context, userID id.UserID) (Ghost, error)
}

// Ghost is a Matrix user puppeted on behalf of a Slack user.
type Ghost interface {
	UserID() id.UserID
	SetDisplayName(ctx context.Context, name string) error
	SendMessage(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) error
	UploadMedia(ctx context.Context, data []byte, fileName, mimeType string) (id.ContentURI, error)
}

// SlackPoster posts messages to Slack incoming webhooks.
type SlackPoster interface {
	PostWebhook(ctx context.Context, uri string, msg *slack.WebhookMessage) error
}

// RoomStore persists link descriptors and room bindings.
type RoomStore interface {
	Insert(ctx context.Context, entry store.RoomEntry) error
	Select(ctx context.Context, q store.Query) ([]store.RoomEntry, error)
	Delete(ctx context.Context, id string) error
}

// SlackBridge routes events between Matrix and Slack and owns the set of
// channel links.
type SlackBridge struct {
	Config *Config
	Log    zerolog.Logger
	Matrix MatrixAPI
	Slack  SlackPoster
	Store  RoomStore
	Links  *LinkRegistry
	Admin  *AdminCommandDispatcher

	dedup *EventDedupFilter

	// lifecycleMu makes check, persist and register atomic with respect to
	// other lifecycle operations.
	lifecycleMu sync.Mutex

	ghostMu    sync.Mutex
	ghostNames map[id.UserID]string
}

// NewSlackBridge creates a bridge and registers the statically configured
// links. Links stored in the database are loaded by LoadLinks.
func NewSlackBridge(cfg *Config, matrix MatrixAPI, poster SlackPoster, rooms RoomStore, log zerolog.Logger) (*SlackBridge, error) {
	b := &SlackBridge{
		Config:     cfg,
		Log:        log,
		Matrix:     matrix,
		Slack:      poster,
		Store:      rooms,
		Links:      NewLinkRegistry(),
		dedup:      NewEventDedupFilter(),
		ghostNames: make(map[id.UserID]string),
	}
	b.Admin = NewAdminCommandDispatcher(b, cfg.MatrixAdminRoom)

	for _, rc := range cfg.Rooms {
		link := newChannelLink(b, rc.SlackChannelID, rc.SlackAPIToken, rc.WebhookURL)
		link.configured = true
		if err := b.Links.Add(link); err != nil {
			return nil, fmt.Errorf("failed to register configured channel: %w", err)
		}
		for _, roomID := range rc.RoomIDs() {
			b.Links.BindRoom(link, roomID)
		}
		b.Log.Info().
			Str("channel_id", rc.SlackChannelID).
			Int("rooms", len(rc.RoomIDs())).
			Msg("Registered configured channel link")
	}
	b.updateGauges()
	return b, nil
}

// HandleMatrixEvent routes one event from the homeserver.
func (b *SlackBridge) HandleMatrixEvent(ctx context.Context, evt *event.Event) {
	log := b.Log.With().
		Str("event_id", evt.ID.String()).
		Str("room_id", evt.RoomID.String()).
		Str("sender", evt.Sender.String()).
		Logger()

	if b.dedup.Observe(evt.ID) {
		Metrics.MatrixEvents.WithLabelValues("duplicate").Inc()
		log.Debug().Msg("Dropping duplicate event")
		return
	}

	botID := b.Matrix.BotUserID()
	if evt.Type.Type == event.StateMember.Type {
		member := evt.Content.AsMember()
		if evt.GetStateKey() == botID.String() && member.Membership == event.MembershipInvite {
			if err := b.Matrix.JoinRoom(ctx, evt.RoomID); err != nil {
				log.Err(err).Msg("Failed to accept room invite")
			} else {
				log.Info().Msg("Accepted room invite")
			}
			Metrics.MatrixEvents.WithLabelValues("invite").Inc()
		}
		return
	}

	// Echo prevention: our own bot and every ghost we puppet.
	if evt.Sender == botID || b.Config.IsGhostUserID(evt.Sender) {
		Metrics.MatrixEvents.WithLabelValues("echo").Inc()
		return
	}

	if evt.Type.Type != event.EventMessage.Type {
		Metrics.MatrixEvents.WithLabelValues("ignored").Inc()
		return
	}

	if b.Config.MatrixAdminRoom != "" && evt.RoomID == b.Config.MatrixAdminRoom {
		Metrics.MatrixEvents.WithLabelValues("admin").Inc()
		b.Admin.Dispatch(ctx, evt.Sender, evt.Content.AsMessage().Body)
		return
	}

	link := b.Links.FindByRoomID(evt.RoomID)
	if link == nil {
		Metrics.MatrixEvents.WithLabelValues("unbound").Inc()
		log.Debug().Msg("Ignoring event for room without a linked channel")
		return
	}

	Metrics.MatrixEvents.WithLabelValues("relayed").Inc()
	if err := link.HandleMatrixMessage(ctx, evt); err != nil {
		log.Err(err).Msg("Failed to relay Matrix message")
	}
}

// Authenticate checks that msg targets a linked channel and carries its
// token. It returns ErrNotFound or ErrAuthentication and has no side effects
// beyond metrics.
func (b *SlackBridge) Authenticate(msg *SlackMessage) error {
	_, err := b.authenticate(msg)
	return err
}

func (b *SlackBridge) authenticate(msg *SlackMessage) (*ChannelLink, error) {
	link := b.Links.FindByChannelID(msg.ChannelID)
	if link == nil {
		Metrics.SlackMessages.WithLabelValues("unknown_channel").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, msg.ChannelID)
	}
	if !link.Authenticate(msg) {
		Metrics.SlackMessages.WithLabelValues("unauthorized").Inc()
		return nil, fmt.Errorf("%w for channel %s", ErrAuthentication, msg.ChannelID)
	}
	return link, nil
}

// HandleSlackMessage routes one message from a Slack outgoing webhook. It
// returns ErrNotFound for an unknown channel and ErrAuthentication when the
// token does not match, in both cases without side effects.
func (b *SlackBridge) HandleSlackMessage(ctx context.Context, msg *SlackMessage) error {
	link, err := b.authenticate(msg)
	if err != nil {
		return err
	}
	Metrics.SlackMessages.WithLabelValues("accepted").Inc()
	return link.HandleSlackMessage(ctx, msg)
}

// CreateOrReuseLink returns the link for channelID, creating and persisting
// a new one if none exists. Creating requires both token and webhookURI.
func (b *SlackBridge) CreateOrReuseLink(ctx context.Context, channelID, token, webhookURI string) (*ChannelLink, error) {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	return b.createOrReuseLink(ctx, channelID, token, webhookURI)
}

func (b *SlackBridge) createOrReuseLink(ctx context.Context, channelID, token, webhookURI string) (*ChannelLink, error) {
	if link := b.Links.FindByChannelID(channelID); link != nil {
		return link, nil
	}
	if webhookURI == "" {
		return nil, fmt.Errorf("%w: no webhook URI for channel %s", ErrConfiguration, channelID)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no token for channel %s", ErrConfiguration, channelID)
	}

	link := newChannelLink(b, channelID, token, webhookURI)
	if err := b.Store.Insert(ctx, link.descriptor()); err != nil {
		return nil, fmt.Errorf("failed to persist link for %s: %w", channelID, err)
	}
	if err := b.Links.Add(link); err != nil {
		return nil, err
	}
	b.updateGauges()
	b.Log.Info().Str("channel_id", channelID).Msg("Created channel link")
	return link, nil
}

// LinkRoom binds roomID to the channel's link, creating the link if needed,
// and persists the binding.
func (b *SlackBridge) LinkRoom(ctx context.Context, channelID string, roomID id.RoomID, token, webhookURI string) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	link, err := b.createOrReuseLink(ctx, channelID, token, webhookURI)
	if err != nil {
		return err
	}

	if prev := b.Links.FindByRoomID(roomID); prev != nil && prev != link {
		if err := b.Store.Delete(ctx, bindingEntryID(roomID, prev.ChannelID)); err != nil {
			return fmt.Errorf("failed to remove previous binding of %s: %w", roomID, err)
		}
	}
	err = b.Store.Insert(ctx, store.RoomEntry{
		ID:       bindingEntryID(roomID, channelID),
		RemoteID: channelID,
		MatrixID: roomID.String(),
	})
	if err != nil {
		return fmt.Errorf("failed to persist binding of %s to %s: %w", roomID, channelID, err)
	}
	b.Links.BindRoom(link, roomID)
	b.updateGauges()

	b.Log.Info().
		Str("channel_id", channelID).
		Str("room_id", roomID.String()).
		Msg("Linked room")
	return nil
}

// UnlinkRoom removes the binding of roomID to the channel's link. The stored
// binding is deleted before the in-memory one. Unlinking the last room of a
// link that did not come from the config retires the link: its descriptor is
// deleted and it leaves the registry.
func (b *SlackBridge) UnlinkRoom(ctx context.Context, channelID string, roomID id.RoomID) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	link := b.Links.FindByChannelID(channelID)
	if link == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, channelID)
	}
	if !link.HasRoom(roomID) {
		return fmt.Errorf("%w: %s is not linked to %s", ErrNotBound, roomID, channelID)
	}
	retire := !link.configured && len(link.RoomIDs()) == 1

	if err := b.Store.Delete(ctx, bindingEntryID(roomID, channelID)); err != nil {
		return fmt.Errorf("failed to delete binding of %s to %s: %w", roomID, channelID, err)
	}
	if retire {
		if err := b.Store.Delete(ctx, channelID); err != nil {
			return fmt.Errorf("failed to delete link for %s: %w", channelID, err)
		}
	}
	b.Links.UnbindRoom(link, roomID)
	if retire {
		b.Links.Remove(link)
	}
	b.updateGauges()

	b.Log.Info().
		Str("channel_id", channelID).
		Str("room_id", roomID.String()).
		Bool("link_removed", retire).
		Msg("Unlinked room")
	return nil
}

// LoadLinks registers the stored link descriptors, then their room bindings.
// Links already registered from the config take precedence.
func (b *SlackBridge) LoadLinks(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	descriptors, err := b.Store.Select(ctx, store.Query{RemoteID: store.Present, MatrixID: store.Absent})
	if err != nil {
		return fmt.Errorf("failed to load channel links: %w", err)
	}
	for _, entry := range descriptors {
		if err := b.Links.Add(linkFromEntry(b, entry)); err != nil {
			b.Log.Warn().Err(err).Str("channel_id", entry.RemoteID).Msg("Skipping stored channel link")
		}
	}

	bindings, err := b.Store.Select(ctx, store.Query{RemoteID: store.Present, MatrixID: store.Present})
	if err != nil {
		return fmt.Errorf("failed to load room bindings: %w", err)
	}
	bound := 0
	for _, entry := range bindings {
		link := b.Links.FindByChannelID(entry.RemoteID)
		if link == nil {
			b.Log.Warn().
				Str("channel_id", entry.RemoteID).
				Str("room_id", entry.MatrixID).
				Msg("Stored binding refers to an unknown channel")
			continue
		}
		b.Links.BindRoom(link, id.RoomID(entry.MatrixID))
		bound++
	}
	b.updateGauges()

	b.Log.Info().
		Int("links", len(descriptors)).
		Int("bindings", bound).
		Msg("Loaded stored channel links")
	return nil
}

// ghostFor returns the ghost of the message's sender, setting its display
// name the first time it is seen or when it changes.
func (b *SlackBridge) ghostFor(ctx context.Context, msg *SlackMessage) (Ghost, error) {
	username := msg.UserName
	if username == "" {
		username = msg.UserID
	}
	if username == "" {
		return nil, fmt.Errorf("message has no sender")
	}

	userID := b.Config.GhostUserID(username)
	ghost, err := b.Matrix.Ghost(ctx, userID)
	if err != nil {
		return nil, err
	}

	name := b.Config.FormatDisplayname(DisplaynameParams{
		Username: username,
		UserID:   msg.UserID,
		Team:     msg.TeamDomain,
	})
	b.ghostMu.Lock()
	current := b.ghostNames[userID]
	b.ghostMu.Unlock()
	if current != name {
		if err := ghost.SetDisplayName(ctx, name); err != nil {
			b.Log.Warn().Err(err).Str("ghost", userID.String()).Msg("Failed to set ghost display name")
		} else {
			b.ghostMu.Lock()
			b.ghostNames[userID] = name
			b.ghostMu.Unlock()
		}
	}
	return ghost, nil
}

func (b *SlackBridge) updateGauges() {
	links := b.Links.All()
	rooms := 0
	for _, link := range links {
		rooms += len(link.RoomIDs())
	}
	Metrics.LinkedChannels.Set(float64(len(links)))
	Metrics.BoundRooms.Set(float64(rooms))
}
