// Copyright 2024-2026 Aiku AI

package connector

import "testing"

func TestChannelLinkAuthenticate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		linkToken string
		msg       *SlackMessage
		want      bool
	}{
		{"matching token", "secret", &SlackMessage{Token: "secret"}, true},
		{"wrong token", "secret", &SlackMessage{Token: "other"}, false},
		{"prefix of token", "secret", &SlackMessage{Token: "sec"}, false},
		{"missing token", "secret", &SlackMessage{}, false},
		{"link without token", "", &SlackMessage{Token: ""}, false},
		{"nil message", "secret", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			link := newRegistryLink("C1")
			link.token = tt.linkToken
			if got := link.Authenticate(tt.msg); got != tt.want {
				t.Errorf("Authenticate: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestChannelLinkRoomIDsIsCopy(t *testing.T) {
	t.Parallel()
	link := newRegistryLink("C1")
	link.addRoom("!a:example.com")
	rooms := link.RoomIDs()
	rooms[0] = "!mutated:example.com"
	if !link.HasRoom("!a:example.com") {
		t.Error("mutating the returned slice changed the link")
	}
}

func TestChannelLinkDescriptorRoundTrip(t *testing.T) {
	t.Parallel()
	link := newRegistryLink("C1")
	entry := link.descriptor()
	if entry.ID != "C1" || entry.RemoteID != "C1" || entry.MatrixID != "" {
		t.Errorf("descriptor IDs: %+v", entry)
	}
	restored := linkFromEntry(link.bridge, entry)
	if restored.ChannelID != "C1" || restored.WebhookURI() != link.WebhookURI() || restored.token != link.token {
		t.Errorf("restored link differs: %+v", restored)
	}
}
