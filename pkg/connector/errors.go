// Copyright 2024-2026 Aiku AI

package connector

import "errors"

// Error kinds returned by the bridge. Callers match them with errors.Is;
// the returned errors wrap these with context.
var (
	// ErrConfiguration is returned when a link is created without the
	// channel token or webhook URI.
	ErrConfiguration = errors.New("missing channel configuration")
	// ErrConflict is returned when a channel ID is registered twice.
	ErrConflict = errors.New("channel already linked")
	// ErrNotFound is returned when no link exists for a channel ID.
	ErrNotFound = errors.New("unknown channel")
	// ErrNotBound is returned when a room is not bound to the given channel.
	ErrNotBound = errors.New("room not linked to channel")
	// ErrAuthentication is returned when an inbound webhook token does not match.
	ErrAuthentication = errors.New("invalid webhook token")
	// ErrDelivery wraps failures posting to Slack or sending to Matrix rooms.
	ErrDelivery = errors.New("delivery failed")
	// ErrTranslation marks a degraded message, e.g. a media upload that
	// produced no content URI.
	ErrTranslation = errors.New("message translation degraded")
)
