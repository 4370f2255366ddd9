// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector implements a Matrix-Slack bridge driven by a Matrix
// application service on one side and Slack webhooks on the other.
//
// Slack messages arrive through outgoing webhooks and are posted into Matrix
// by a ghost user per Slack user. Matrix messages are posted to the channel's
// incoming webhook under the sender's display name and avatar.
//
// # Core Types
//
// [SlackBridge] routes inbound events from both networks and owns the
// channel lifecycle: links are created, bound to rooms and unbound either
// from the static config, from the database at startup, or through
// commands in the admin room.
//
// [ChannelLink] connects one Slack channel to any number of Matrix rooms.
// A message from one bound room is posted to Slack and mirrored into the
// other bound rooms.
//
// [LinkRegistry] indexes links by channel ID and room ID. A room is bound
// to at most one link.
//
// [AdminCommandDispatcher] parses link, unlink, list and help commands.
//
// # Echo Prevention
//
// Events sent by the bridge bot or by any user in the ghost namespace are
// dropped before routing. The homeserver may redeliver a transaction, so
// [EventDedupFilter] drops recently seen event IDs.
//
// # Sub-packages
//
//   - matrixfmt converts Matrix HTML to Slack mrkdwn.
//   - slackfmt converts Slack mrkdwn to Matrix HTML.
package connector
