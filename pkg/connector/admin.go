// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"
)

// AdminCommand is a command accepted in the admin room.
type AdminCommand struct {
	Name    string
	Usage   string
	Help    string
	MinArgs int
	Run     func(ctx context.Context, b *SlackBridge, args []string, respond func(string)) error
}

// AdminCommandDispatcher parses and runs commands posted in the admin room.
type AdminCommandDispatcher struct {
	bridge   *SlackBridge
	roomID   id.RoomID
	commands map[string]*AdminCommand
	log      zerolog.Logger
}

// NewAdminCommandDispatcher returns a dispatcher answering in roomID.
func NewAdminCommandDispatcher(b *SlackBridge, roomID id.RoomID) *AdminCommandDispatcher {
	d := &AdminCommandDispatcher{
		bridge:   b,
		roomID:   roomID,
		commands: make(map[string]*AdminCommand),
		log:      b.Log.With().Str("component", "admin").Logger(),
	}
	for _, cmd := range []*AdminCommand{cmdLink, cmdUnlink, cmdList, cmdHelp} {
		d.commands[cmd.Name] = cmd
	}
	return d
}

var tokenRe = regexp.MustCompile(`(?:[^\s"]+|"[^"]*")+`)

// Tokenize splits a command line on whitespace. A double-quoted span is part
// of one token and may contain whitespace; the quotes are removed.
func Tokenize(line string) []string {
	tokens := tokenRe.FindAllString(line, -1)
	for i, tok := range tokens {
		tokens[i] = strings.ReplaceAll(tok, `"`, "")
	}
	return tokens
}

// Dispatch runs the command in body on behalf of sender. Every outcome is
// reported back into the admin room; failures never escape.
func (d *AdminCommandDispatcher) Dispatch(ctx context.Context, sender id.UserID, body string) {
	respond := func(text string) {
		if err := d.bridge.Matrix.SendText(ctx, d.roomID, sender.String()+": "+text); err != nil {
			d.log.Err(err).Msg("Failed to send admin response")
		}
	}

	args := Tokenize(body)
	if len(args) == 0 {
		return
	}
	name := args[0]
	d.log.Info().Str("sender", sender.String()).Str("command", name).Msg("Admin command")

	cmd, ok := d.commands[name]
	if !ok {
		Metrics.AdminCommands.WithLabelValues("unknown", "unrecognised").Inc()
		respond("Unrecognised command: " + name)
		return
	}
	if err := d.run(ctx, cmd, args[1:], respond); err != nil {
		Metrics.AdminCommands.WithLabelValues(cmd.Name, "failed").Inc()
		d.log.Warn().Err(err).Str("command", name).Msg("Admin command failed")
		respond("Command failed: " + err.Error())
		return
	}
	Metrics.AdminCommands.WithLabelValues(cmd.Name, "ok").Inc()
}

func (d *AdminCommandDispatcher) run(ctx context.Context, cmd *AdminCommand, args []string, respond func(string)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if len(args) < cmd.MinArgs {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	return cmd.Run(ctx, d.bridge, args, respond)
}

var cmdLink = &AdminCommand{
	Name:    "link",
	Usage:   "link <channel_id> <room_id> [token] [webhook_url]",
	Help:    "Link a Matrix room to a Slack channel. The token and webhook URL are required the first time a channel is linked.",
	MinArgs: 2,
	Run: func(ctx context.Context, b *SlackBridge, args []string, respond func(string)) error {
		channelID, roomID := args[0], id.RoomID(args[1])
		var token, webhookURI string
		if len(args) > 2 {
			token = args[2]
		}
		if len(args) > 3 {
			webhookURI = args[3]
		}
		if err := b.LinkRoom(ctx, channelID, roomID, token, webhookURI); err != nil {
			return err
		}
		respond("Linked " + roomID.String() + " to " + channelID)
		return nil
	},
}

var cmdUnlink = &AdminCommand{
	Name:    "unlink",
	Usage:   "unlink <channel_id> <room_id>",
	Help:    "Remove the link between a Matrix room and a Slack channel.",
	MinArgs: 2,
	Run: func(ctx context.Context, b *SlackBridge, args []string, respond func(string)) error {
		channelID, roomID := args[0], id.RoomID(args[1])
		if err := b.UnlinkRoom(ctx, channelID, roomID); err != nil {
			return err
		}
		respond("Unlinked " + roomID.String() + " from " + channelID)
		return nil
	},
}

var cmdList = &AdminCommand{
	Name:  "list",
	Usage: "list",
	Help:  "List linked channels and their rooms.",
	Run: func(_ context.Context, b *SlackBridge, _ []string, respond func(string)) error {
		links := b.Links.All()
		if len(links) == 0 {
			respond("No linked channels")
			return nil
		}
		lines := make([]string, 0, len(links))
		for _, link := range links {
			rooms := link.RoomIDs()
			names := make([]string, len(rooms))
			for i, roomID := range rooms {
				names[i] = roomID.String()
			}
			if len(names) == 0 {
				names = []string{"(no rooms)"}
			}
			lines = append(lines, link.ChannelID+": "+strings.Join(names, ", "))
		}
		respond(strings.Join(lines, "\n"))
		return nil
	},
}

var cmdHelp = &AdminCommand{
	Name:  "help",
	Usage: "help",
	Help:  "Show this help.",
	Run: func(_ context.Context, b *SlackBridge, _ []string, respond func(string)) error {
		cmds := make([]*AdminCommand, 0, len(b.Admin.commands))
		for _, cmd := range b.Admin.commands {
			cmds = append(cmds, cmd)
		}
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
		lines := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			lines = append(lines, cmd.Usage+" - "+cmd.Help)
		}
		respond(strings.Join(lines, "\n"))
		return nil
	},
}
