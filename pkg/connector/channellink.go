// Copyright 2024-2026 Aiku AI

package connector

import (
	"crypto/subtle"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-slack-webhook/pkg/store"
)

// ChannelLink connects one Slack channel to the Matrix rooms bound to it.
// The set of bound rooms is only mutated through LinkRegistry.
type ChannelLink struct {
	ChannelID string

	token      string
	webhookURI string
	// configured links come from the config file and are never retired.
	configured bool

	bridge *SlackBridge
	log    zerolog.Logger

	mu    sync.RWMutex
	rooms []id.RoomID
}

func newChannelLink(bridge *SlackBridge, channelID, token, webhookURI string) *ChannelLink {
	return &ChannelLink{
		ChannelID:  channelID,
		token:      token,
		webhookURI: webhookURI,
		bridge:     bridge,
		log:        bridge.Log.With().Str("channel_id", channelID).Logger(),
	}
}

// linkFromEntry rebuilds a link from its stored descriptor.
func linkFromEntry(bridge *SlackBridge, entry store.RoomEntry) *ChannelLink {
	return newChannelLink(bridge, entry.RemoteID, entry.Remote.Token, entry.Remote.WebhookURI)
}

// descriptor returns the store record describing this link.
func (l *ChannelLink) descriptor() store.RoomEntry {
	return store.RoomEntry{
		ID:       l.ChannelID,
		RemoteID: l.ChannelID,
		Remote: store.RemoteData{
			Token:      l.token,
			WebhookURI: l.webhookURI,
		},
	}
}

// WebhookURI returns the Slack incoming webhook messages are posted to.
func (l *ChannelLink) WebhookURI() string {
	return l.webhookURI
}

// Authenticate reports whether msg carries this link's webhook token.
func (l *ChannelLink) Authenticate(msg *SlackMessage) bool {
	if msg == nil || msg.Token == "" || l.token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(msg.Token), []byte(l.token)) == 1
}

// RoomIDs returns a copy of the bound room IDs in binding order.
func (l *ChannelLink) RoomIDs() []id.RoomID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.rooms)
}

// HasRoom reports whether roomID is bound to this link.
func (l *ChannelLink) HasRoom(roomID id.RoomID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Contains(l.rooms, roomID)
}

func (l *ChannelLink) addRoom(roomID id.RoomID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !slices.Contains(l.rooms, roomID) {
		l.rooms = append(l.rooms, roomID)
	}
}

func (l *ChannelLink) removeRoom(roomID id.RoomID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := slices.Index(l.rooms, roomID)
	if idx < 0 {
		return false
	}
	l.rooms = slices.Delete(l.rooms, idx, idx+1)
	return true
}
