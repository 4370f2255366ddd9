// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mautrix-slack-webhook is a Matrix-Slack bridge built on Slack
// outgoing and incoming webhooks. Slack users appear in Matrix as ghost
// users of an application service; Matrix messages are posted to Slack
// under the sender's name and avatar.
package main

import (
	"fmt"
	"os"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
