// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/slack-go/slack"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

func slackMsg(subtype, text string) *SlackMessage {
	return &SlackMessage{
		Token:      "tok-C1",
		TeamDomain: "acme",
		ChannelID:  "C1",
		UserID:     "U1",
		UserName:   "alice",
		Text:       text,
		Subtype:    subtype,
	}
}

func TestHandleSlackMessageSubtypes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		msg      *SlackMessage
		wantType event.MessageType
		wantBody string
	}{
		{"plain text", slackMsg("", "hello <@U2|bob>"), event.MsgText, "hello @bob"},
		{"me message", slackMsg(SubtypeMeMessage, "waves"), event.MsgEmote, "waves"},
		{"file comment", slackMsg(SubtypeFileComment, "nice &amp; shiny"), event.MsgText, "nice & shiny"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tb := newTestBridge(t, nil)
			tb.linkChannel(t, "C1", "!a:example.com")
			if err := tb.HandleSlackMessage(context.Background(), tt.msg); err != nil {
				t.Fatalf("HandleSlackMessage: %v", err)
			}
			sent := tb.matrix.Sent()
			if len(sent) != 1 {
				t.Fatalf("sent %d messages, want 1", len(sent))
			}
			if sent[0].Content.MsgType != tt.wantType || sent[0].Content.Body != tt.wantBody {
				t.Errorf("got %s %q, want %s %q", sent[0].Content.MsgType, sent[0].Content.Body, tt.wantType, tt.wantBody)
			}
		})
	}
}

func TestHandleSlackMessageUnknownSubtype(t *testing.T) {
	t.Parallel()
	tb := newTestBridge(t, nil)
	tb.linkChannel(t, "C1", "!a:example.com")
	if err := tb.HandleSlackMessage(context.Background(), slackMsg("channel_join", "joined")); err != nil {
		t.Fatalf("HandleSlackMessage: %v", err)
	}
	if len(tb.matrix.Sent()) != 0 {
		t.Error("unhandled subtype was delivered")
	}
	if tb.matrix.ghost(tb.Config.GhostUserID("alice")) != nil {
		t.Error("ghost fetched for an ignored message")
	}
}

func TestHandleSlackMessageGhostDisplayName(t *testing.T) {
	t.Parallel()
	cfg := newTestConfig()
	cfg.DisplaynameTemplate = "{{.Username}} ({{.Team}})"
	if err := cfg.PostProcess(); err != nil {
		t.Fatal(err)
	}
	tb := newTestBridge(t, cfg)
	tb.linkChannel(t, "C1", "!a:example.com")
	ctx := context.Background()

	for range 3 {
		if err := tb.HandleSlackMessage(ctx, slackMsg("", "hi")); err != nil {
			t.Fatalf("HandleSlackMessage: %v", err)
		}
	}
	ghost := tb.matrix.ghost("@slack_alice:example.com")
	if ghost == nil {
		t.Fatal("ghost not created")
	}
	if got := ghost.DisplayNames(); !slices.Equal(got, []string{"alice (acme)"}) {
		t.Errorf("display names set: %v", got)
	}
}

func TestHandleSlackMessageUserIDFallback(t *testing.T) {
	t.Parallel()
	tb := newTestBridge(t, nil)
	tb.linkChannel(t, "C1", "!a:example.com")
	msg := slackMsg("", "hi")
	msg.UserName = ""
	if err := tb.HandleSlackMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleSlackMessage: %v", err)
	}
	sent := tb.matrix.Sent()
	if len(sent) != 1 || sent[0].Sender != tb.Config.GhostUserID("U1") {
		t.Errorf("sent: %+v", sent)
	}
}

func fileShare(mime, comment string, content []byte) *SlackMessage {
	msg := slackMsg(SubtypeFileShare, "")
	msg.File = &slack.File{
		ID:        "F1",
		Name:      "cat.png",
		Title:     "A cat",
		Mimetype:  mime,
		Size:      len(content),
		OriginalW: 640,
		OriginalH: 480,
	}
	msg.File.InitialComment.Comment = comment
	msg.FileContent = content
	return msg
}

func TestHandleSlackFileShareOrder(t *testing.T) {
	t.Parallel()
	tb := newTestBridge(t, nil)
	rooms := []id.RoomID{"!a:example.com", "!b:example.com"}
	tb.linkChannel(t, "C1", rooms...)

	if err := tb.HandleSlackMessage(context.Background(), fileShare("image/png", "hi", []byte("png"))); err != nil {
		t.Fatalf("HandleSlackMessage: %v", err)
	}

	sent := tb.matrix.Sent()
	if len(sent) != 4 {
		t.Fatalf("sent %d messages, want 4", len(sent))
	}
	for i, roomID := range rooms {
		img := sent[i]
		if img.RoomID != roomID || img.Content.MsgType != event.MsgImage {
			t.Errorf("message %d: got %s in %s, want image in %s", i, img.Content.MsgType, img.RoomID, roomID)
		}
		if img.Content.URL != "mxc://example.com/abc123" || img.Content.Body != "A cat" {
			t.Errorf("image content: %+v", img.Content)
		}
		if img.Content.Info == nil || img.Content.Info.Width != 640 || img.Content.Info.MimeType != "image/png" {
			t.Errorf("image info: %+v", img.Content.Info)
		}
		text := sent[len(rooms)+i]
		if text.RoomID != roomID || text.Content.MsgType != event.MsgText || text.Content.Body != "hi" {
			t.Errorf("caption %d: %+v", i, text)
		}
	}
	ghost := tb.matrix.ghost("@slack_alice:example.com")
	if got := ghost.uploads; !slices.Equal(got, []string{"A cat"}) {
		t.Errorf("uploads: %v", got)
	}
}

func TestHandleSlackFileShareNonImage(t *testing.T) {
	t.Parallel()
	tb := newTestBridge(t, nil)
	tb.linkChannel(t, "C1", "!a:example.com")
	if err := tb.HandleSlackMessage(context.Background(), fileShare("application/pdf", "", []byte("%PDF"))); err != nil {
		t.Fatalf("HandleSlackMessage: %v", err)
	}
	sent := tb.matrix.Sent()
	if len(sent) != 1 || sent[0].Content.MsgType != event.MsgFile {
		t.Errorf("sent: %+v", sent)
	}
}

func TestHandleSlackFileShareDegraded(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		setup   func(tb *testBridge)
		content []byte
		wantErr bool
	}{
		{"no content", func(*testBridge) {}, nil, false},
		{"empty upload URI", func(tb *testBridge) { tb.matrix.UploadURI = id.ContentURI{} }, []byte("png"), false},
		{"upload error", func(tb *testBridge) { tb.matrix.UploadErr = errors.New("too large") }, []byte("png"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tb := newTestBridge(t, nil)
			tb.linkChannel(t, "C1", "!a:example.com")
			tt.setup(tb)

			err := tb.HandleSlackMessage(context.Background(), fileShare("image/png", "hi", tt.content))
			if (err != nil) != tt.wantErr {
				t.Errorf("error: got %v, want error %v", err, tt.wantErr)
			}
			sent := tb.matrix.Sent()
			if len(sent) != 1 || sent[0].Content.Body != "hi" {
				t.Errorf("caption not delivered alone: %+v", sent)
			}
		})
	}
}

func TestHandleSlackMessagePartialDelivery(t *testing.T) {
	t.Parallel()
	tb := newTestBridge(t, nil)
	tb.linkChannel(t, "C1", "!a:example.com", "!b:example.com", "!c:example.com")
	tb.matrix.FailRooms["!b:example.com"] = true

	err := tb.HandleSlackMessage(context.Background(), slackMsg("", "hi"))
	if !errors.Is(err, ErrDelivery) {
		t.Fatalf("got %v, want ErrDelivery", err)
	}
	if len(tb.matrix.SentTo("!a:example.com")) != 1 || len(tb.matrix.SentTo("!c:example.com")) != 1 {
		t.Error("failure in one room stopped delivery to the others")
	}
}
