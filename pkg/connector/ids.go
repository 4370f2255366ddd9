// Copyright 2024-2026 Aiku AI

package connector

import (
	"strings"

	"maunium.net/go/mautrix/id"
)

// GhostUserID returns the Matrix user that represents a Slack user.
func (c *Config) GhostUserID(slackUsername string) id.UserID {
	return id.NewUserID(c.UsernamePrefix+id.EncodeUserLocalpart(slackUsername), c.Homeserver.ServerName)
}

// IsGhostUserID reports whether userID is inside the ghost namespace.
func (c *Config) IsGhostUserID(userID id.UserID) bool {
	localpart, server, err := userID.Parse()
	if err != nil {
		return false
	}
	return server == c.Homeserver.ServerName && strings.HasPrefix(localpart, c.UsernamePrefix)
}

// BotUserID returns the user ID of the bridge bot.
func (c *Config) BotUserID() id.UserID {
	return id.NewUserID(c.AppService.BotUsername, c.Homeserver.ServerName)
}

// bindingEntryID is the store ID of a room binding.
func bindingEntryID(roomID id.RoomID, channelID string) string {
	return string(roomID) + " " + channelID
}
