// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-slack-webhook/pkg/store"
)

// sentMessage records a message sent into a Matrix room.
type sentMessage struct {
	Sender  id.UserID
	RoomID  id.RoomID
	Content *event.MessageEventContent
}

// fakeMatrix is an in-memory MatrixAPI. Every message sent by the bot or a
// ghost is appended to a single ordered log.
type fakeMatrix struct {
	mu sync.Mutex

	botID    id.UserID
	sent     []sentMessage
	joined   []id.RoomID
	profiles map[id.UserID]*Profile
	ghosts   map[id.UserID]*fakeGhost

	// FailRooms makes SendMessage fail for these rooms, for bot and ghosts.
	FailRooms map[id.RoomID]bool
	// UploadURI is returned by ghost uploads. Empty means a translation failure.
	UploadURI id.ContentURI
	// UploadErr is returned by ghost uploads.
	UploadErr error
	// ProfileErr is returned by GetProfile.
	ProfileErr error
}

func newFakeMatrix() *fakeMatrix {
	return &fakeMatrix{
		botID:     "@slackbot:example.com",
		profiles:  make(map[id.UserID]*Profile),
		ghosts:    make(map[id.UserID]*fakeGhost),
		FailRooms: make(map[id.RoomID]bool),
		UploadURI: id.ContentURI{Homeserver: "example.com", FileID: "abc123"},
	}
}

func (f *fakeMatrix) BotUserID() id.UserID {
	return f.botID
}

func (f *fakeMatrix) SendText(ctx context.Context, roomID id.RoomID, text string) error {
	return f.SendMessage(ctx, roomID, &event.MessageEventContent{MsgType: event.MsgNotice, Body: text})
}

func (f *fakeMatrix) SendMessage(_ context.Context, roomID id.RoomID, content *event.MessageEventContent) error {
	return f.record(f.botID, roomID, content)
}

func (f *fakeMatrix) record(sender id.UserID, roomID id.RoomID, content *event.MessageEventContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailRooms[roomID] {
		return errors.New("forbidden")
	}
	f.sent = append(f.sent, sentMessage{Sender: sender, RoomID: roomID, Content: content})
	return nil
}

func (f *fakeMatrix) JoinRoom(_ context.Context, roomID id.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roomID)
	return nil
}

func (f *fakeMatrix) GetProfile(_ context.Context, userID id.UserID) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	return f.profiles[userID], nil
}

func (f *fakeMatrix) Ghost(_ context.Context, userID id.UserID) (Ghost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.ghosts[userID]
	if !ok {
		g = &fakeGhost{matrix: f, userID: userID}
		f.ghosts[userID] = g
	}
	return g, nil
}

func (f *fakeMatrix) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]sentMessage, len(f.sent))
	copy(cp, f.sent)
	return cp
}

func (f *fakeMatrix) SentTo(roomID id.RoomID) []sentMessage {
	var out []sentMessage
	for _, msg := range f.Sent() {
		if msg.RoomID == roomID {
			out = append(out, msg)
		}
	}
	return out
}

func (f *fakeMatrix) Joined() []id.RoomID {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]id.RoomID, len(f.joined))
	copy(cp, f.joined)
	return cp
}

func (f *fakeMatrix) ghost(userID id.UserID) *fakeGhost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ghosts[userID]
}

// fakeGhost sends through its parent fakeMatrix so ordering is preserved.
type fakeGhost struct {
	matrix *fakeMatrix
	userID id.UserID

	mu           sync.Mutex
	displayNames []string
	uploads      []string
}

func (g *fakeGhost) UserID() id.UserID {
	return g.userID
}

func (g *fakeGhost) SetDisplayName(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.displayNames = append(g.displayNames, name)
	return nil
}

func (g *fakeGhost) SendMessage(_ context.Context, roomID id.RoomID, content *event.MessageEventContent) error {
	return g.matrix.record(g.userID, roomID, content)
}

func (g *fakeGhost) UploadMedia(_ context.Context, _ []byte, fileName, _ string) (id.ContentURI, error) {
	g.mu.Lock()
	g.uploads = append(g.uploads, fileName)
	g.mu.Unlock()

	g.matrix.mu.Lock()
	defer g.matrix.mu.Unlock()
	return g.matrix.UploadURI, g.matrix.UploadErr
}

func (g *fakeGhost) DisplayNames() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.displayNames...)
}

// postedWebhook records a message posted to a Slack webhook.
type postedWebhook struct {
	URI string
	Msg *slack.WebhookMessage
}

type fakePoster struct {
	mu     sync.Mutex
	posted []postedWebhook
	Err    error
}

func (p *fakePoster) PostWebhook(_ context.Context, uri string, msg *slack.WebhookMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.posted = append(p.posted, postedWebhook{URI: uri, Msg: msg})
	return nil
}

func (p *fakePoster) Posted() []postedWebhook {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]postedWebhook, len(p.posted))
	copy(cp, p.posted)
	return cp
}

// fakeStore is an in-memory RoomStore.
type fakeStore struct {
	mu        sync.Mutex
	entries   map[string]store.RoomEntry
	InsertErr error
	DeleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]store.RoomEntry)}
}

func (s *fakeStore) Insert(_ context.Context, entry store.RoomEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	s.entries[entry.ID] = entry
	return nil
}

func (s *fakeStore) Select(_ context.Context, q store.Query) ([]store.RoomEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.RoomEntry
	for _, entry := range s.entries {
		if matchPresence(q.RemoteID, entry.RemoteID) && matchPresence(q.MatrixID, entry.MatrixID) {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchPresence(p store.Presence, value string) bool {
	switch p {
	case store.Present:
		return value != ""
	case store.Absent:
		return value == ""
	default:
		return true
	}
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.entries, id)
	return nil
}

func (s *fakeStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

const testAdminRoom id.RoomID = "!admin:example.com"

func newTestConfig() *Config {
	cfg := &Config{
		Homeserver: HomeserverConfig{
			URL:        "http://localhost:8008",
			ServerName: "example.com",
			PublicURL:  "https://matrix.example.com",
		},
		AppService:      AppServiceConfig{BotUsername: "slackbot"},
		MatrixAdminRoom: testAdminRoom,
	}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	return cfg
}

type testBridge struct {
	*SlackBridge
	matrix *fakeMatrix
	poster *fakePoster
	store  *fakeStore
}

func newTestBridge(t *testing.T, cfg *Config) *testBridge {
	t.Helper()
	if cfg == nil {
		cfg = newTestConfig()
	}
	tb := &testBridge{
		matrix: newFakeMatrix(),
		poster: &fakePoster{},
		store:  newFakeStore(),
	}
	b, err := NewSlackBridge(cfg, tb.matrix, tb.poster, tb.store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSlackBridge: %v", err)
	}
	tb.SlackBridge = b
	return tb
}

// linkChannel creates a link for channelID bound to rooms.
func (tb *testBridge) linkChannel(t *testing.T, channelID string, rooms ...id.RoomID) *ChannelLink {
	t.Helper()
	for _, roomID := range rooms {
		if err := tb.LinkRoom(context.Background(), channelID, roomID, "tok-"+channelID, "https://hooks.slack.test/"+channelID); err != nil {
			t.Fatalf("LinkRoom(%s, %s): %v", channelID, roomID, err)
		}
	}
	link := tb.Links.FindByChannelID(channelID)
	if link == nil {
		t.Fatalf("no link for %s", channelID)
	}
	return link
}

func textEvent(evtID id.EventID, roomID id.RoomID, sender id.UserID, body string) *event.Event {
	return &event.Event{
		ID:     evtID,
		RoomID: roomID,
		Sender: sender,
		Type:   event.EventMessage,
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: event.MsgText,
			Body:    body,
		}},
	}
}
