// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
	"sort"
	"sync"

	"maunium.net/go/mautrix/id"
)

// LinkRegistry indexes ChannelLinks by Slack channel ID and by Matrix room ID.
// A room is bound to at most one link; every mutation keeps both indices and
// the links' bound room sets consistent.
type LinkRegistry struct {
	mu          sync.RWMutex
	byChannelID map[string]*ChannelLink
	byRoomID    map[id.RoomID]*ChannelLink
}

// NewLinkRegistry returns an empty registry.
func NewLinkRegistry() *LinkRegistry {
	return &LinkRegistry{
		byChannelID: make(map[string]*ChannelLink),
		byRoomID:    make(map[id.RoomID]*ChannelLink),
	}
}

// Add registers link under its channel ID. Registering a second link for the
// same channel fails with ErrConflict instead of orphaning the bound rooms of
// the first one.
func (r *LinkRegistry) Add(link *ChannelLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byChannelID[link.ChannelID]; ok {
		return fmt.Errorf("%w: %s", ErrConflict, link.ChannelID)
	}
	r.byChannelID[link.ChannelID] = link
	return nil
}

// BindRoom binds roomID to link. If the room is bound to a different link it
// is unbound there first. Binding an already bound room is a no-op.
func (r *LinkRegistry) BindRoom(link *ChannelLink, roomID id.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.byRoomID[roomID]; ok && prev != link {
		prev.removeRoom(roomID)
	}
	link.addRoom(roomID)
	r.byRoomID[roomID] = link
}

// UnbindRoom removes roomID from link. It returns false if the room was not
// bound to link.
func (r *LinkRegistry) UnbindRoom(link *ChannelLink, roomID id.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !link.removeRoom(roomID) {
		return false
	}
	if r.byRoomID[roomID] == link {
		delete(r.byRoomID, roomID)
	}
	return true
}

// Remove retires link: its channel entry and every room bound to it.
func (r *LinkRegistry) Remove(link *ChannelLink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byChannelID[link.ChannelID] == link {
		delete(r.byChannelID, link.ChannelID)
	}
	for _, roomID := range link.RoomIDs() {
		if r.byRoomID[roomID] == link {
			delete(r.byRoomID, roomID)
		}
		link.removeRoom(roomID)
	}
}

// FindByChannelID returns the link for a Slack channel, or nil.
func (r *LinkRegistry) FindByChannelID(channelID string) *ChannelLink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byChannelID[channelID]
}

// FindByRoomID returns the link a Matrix room is bound to, or nil.
func (r *LinkRegistry) FindByRoomID(roomID id.RoomID) *ChannelLink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byRoomID[roomID]
}

// All returns the registered links sorted by channel ID.
func (r *LinkRegistry) All() []*ChannelLink {
	r.mu.RLock()
	links := make([]*ChannelLink, 0, len(r.byChannelID))
	for _, link := range r.byChannelID {
		links = append(links, link)
	}
	r.mu.RUnlock()
	sort.Slice(links, func(i, j int) bool {
		return links[i].ChannelID < links[j].ChannelID
	})
	return links
}

// Len returns the number of registered links.
func (r *LinkRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChannelID)
}
