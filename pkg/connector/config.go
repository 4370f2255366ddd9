// Copyright 2024-2026 Aiku AI

package connector

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/caarlos0/env/v11"
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
	"maunium.net/go/mautrix/id"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the bridge configuration.
type Config struct {
	Homeserver HomeserverConfig `yaml:"homeserver"`
	AppService AppServiceConfig `yaml:"appservice"`

	// UsernamePrefix is prepended to Slack usernames to build ghost user
	// localparts. Any Matrix sender in that namespace is treated as one of
	// our ghosts and its messages are never relayed back to Slack.
	UsernamePrefix      string `yaml:"username_prefix"`
	DisplaynameTemplate string `yaml:"displayname_template"`
	// MatrixAdminRoom is the control room for link/unlink commands. Leave
	// empty to disable admin commands.
	MatrixAdminRoom id.RoomID `yaml:"matrix_admin_room"`

	SlackHook SlackHookConfig `yaml:"slack_hook"`
	// SlackTeamTokens maps a Slack team domain to an API token used to
	// download private files shared in that team.
	SlackTeamTokens map[string]string `yaml:"slack_team_tokens"`

	// Rooms are statically configured links, registered at startup before
	// any links loaded from the database.
	Rooms []RoomConfig `yaml:"rooms"`

	Database DatabaseConfig    `yaml:"database"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	Logging  zeroconfig.Config `yaml:"logging"`

	displaynameTemplate *template.Template `yaml:"-"`
}

type HomeserverConfig struct {
	URL        string `yaml:"url" env:"SLACKBRIDGE_HOMESERVER_URL"`
	ServerName string `yaml:"server_name" env:"SLACKBRIDGE_SERVER_NAME"`
	// PublicURL is used to build links to Matrix media for Slack. Defaults to URL.
	PublicURL string `yaml:"public_url" env:"SLACKBRIDGE_PUBLIC_URL"`
}

type AppServiceConfig struct {
	Registration string `yaml:"registration" env:"SLACKBRIDGE_REGISTRATION"`
	Address      string `yaml:"address" env:"SLACKBRIDGE_AS_ADDRESS"`
	Listen       string `yaml:"listen" env:"SLACKBRIDGE_AS_LISTEN"`
	BotUsername  string `yaml:"bot_username" env:"SLACKBRIDGE_BOT_USERNAME"`
}

type SlackHookConfig struct {
	Listen string    `yaml:"listen" env:"SLACKBRIDGE_HOOK_LISTEN"`
	TLS    TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	KeyFile string `yaml:"key_file" env:"SLACKBRIDGE_HOOK_TLS_KEY"`
	CrtFile string `yaml:"crt_file" env:"SLACKBRIDGE_HOOK_TLS_CRT"`
}

// Enabled reports whether both the key and certificate are configured.
func (t TLSConfig) Enabled() bool {
	return t.KeyFile != "" && t.CrtFile != ""
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"SLACKBRIDGE_DATABASE_DSN"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"SLACKBRIDGE_METRICS_ENABLED"`
	Listen  string `yaml:"listen" env:"SLACKBRIDGE_METRICS_LISTEN"`
}

// RoomConfig is a statically configured channel link.
type RoomConfig struct {
	SlackChannelID string      `yaml:"slack_channel_id"`
	SlackAPIToken  string      `yaml:"slack_api_token"`
	WebhookURL     string      `yaml:"webhook_url"`
	MatrixRoomIDs  []id.RoomID `yaml:"matrix_room_ids"`
	MatrixRoomID   id.RoomID   `yaml:"matrix_room_id"`
}

// RoomIDs returns matrix_room_ids, or matrix_room_id when the list is empty.
func (rc RoomConfig) RoomIDs() []id.RoomID {
	if len(rc.MatrixRoomIDs) > 0 {
		return rc.MatrixRoomIDs
	}
	if rc.MatrixRoomID != "" {
		return []id.RoomID{rc.MatrixRoomID}
	}
	return nil
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	Username string
	UserID   string
	Team     string
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess validates the config, fills defaults and compiles templates.
func (c *Config) PostProcess() error {
	if c.Homeserver.URL == "" {
		return fmt.Errorf("homeserver.url is required")
	}
	if c.Homeserver.ServerName == "" {
		return fmt.Errorf("homeserver.server_name is required")
	}
	c.Homeserver.URL = strings.TrimRight(c.Homeserver.URL, "/")
	if c.Homeserver.PublicURL == "" {
		c.Homeserver.PublicURL = c.Homeserver.URL
	}
	c.Homeserver.PublicURL = strings.TrimRight(c.Homeserver.PublicURL, "/")
	if c.UsernamePrefix == "" {
		c.UsernamePrefix = "slack_"
	}
	if c.AppService.BotUsername == "" {
		c.AppService.BotUsername = "slackbot"
	}
	if c.DisplaynameTemplate == "" {
		c.DisplaynameTemplate = "{{.Username}}"
	}
	for _, room := range c.Rooms {
		if room.SlackChannelID == "" {
			return fmt.Errorf("rooms: slack_channel_id is required")
		}
		if len(room.RoomIDs()) == 0 {
			return fmt.Errorf("expected either 'matrix_room_ids' or 'matrix_room_id' for slack channel ID %s", room.SlackChannelID)
		}
		if room.SlackAPIToken == "" {
			return fmt.Errorf("%w: rooms: no slack_api_token for channel %s", ErrConfiguration, room.SlackChannelID)
		}
		if room.WebhookURL == "" {
			return fmt.Errorf("%w: rooms: no webhook_url for channel %s", ErrConfiguration, room.SlackChannelID)
		}
	}
	var err error
	c.displaynameTemplate, err = template.New("displayname").Parse(c.DisplaynameTemplate)
	return err
}

// applyEnv overrides deployment settings and secrets from the environment.
func (c *Config) applyEnv() error {
	for _, target := range []any{&c.Homeserver, &c.AppService, &c.SlackHook, &c.Database, &c.Metrics} {
		if err := env.Parse(target); err != nil {
			return fmt.Errorf("failed to parse environment overrides: %w", err)
		}
	}
	return nil
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "homeserver", "url")
	helper.Copy(up.Str, "homeserver", "server_name")
	helper.Copy(up.Str|up.Null, "homeserver", "public_url")
	helper.Copy(up.Str, "appservice", "registration")
	helper.Copy(up.Str, "appservice", "address")
	helper.Copy(up.Str, "appservice", "listen")
	helper.Copy(up.Str, "appservice", "bot_username")
	helper.Copy(up.Str, "username_prefix")
	helper.Copy(up.Str, "displayname_template")
	helper.Copy(up.Str|up.Null, "matrix_admin_room")
	helper.Copy(up.Str, "slack_hook", "listen")
	helper.Copy(up.Str|up.Null, "slack_hook", "tls", "key_file")
	helper.Copy(up.Str|up.Null, "slack_hook", "tls", "crt_file")
	helper.Copy(up.Map, "slack_team_tokens")
	helper.Copy(up.List, "rooms")
	helper.Copy(up.Str, "database", "dsn")
	helper.Copy(up.Bool, "metrics", "enabled")
	helper.Copy(up.Str, "metrics", "listen")
	helper.Copy(up.Map, "logging")
}

// Upgrader returns the config upgrader that merges a user config onto the
// embedded example config.
func Upgrader() up.BaseUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks: [][]string{
			{"appservice"},
			{"username_prefix"},
			{"slack_hook"},
			{"rooms"},
			{"database"},
			{"logging"},
		},
		Base: ExampleConfig,
	}
}

// LoadConfig reads, upgrades and validates the config at path. When save is
// true, the upgraded config is written back to path.
func LoadConfig(path string, save bool) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}
	data, _, err := up.Do(path, save, Upgrader())
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML config data, applies environment overrides and
// validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// FormatDisplayname generates a ghost display name from the template and params.
func (c *Config) FormatDisplayname(params DisplaynameParams) string {
	if c.displaynameTemplate == nil {
		return params.Username
	}
	var buf strings.Builder
	if err := c.displaynameTemplate.Execute(&buf, params); err != nil {
		return params.Username
	}
	return buf.String()
}

// MediaURL converts an mxc:// URI into a public HTTP download URL.
func (c *Config) MediaURL(uri id.ContentURI) string {
	if uri.IsEmpty() {
		return ""
	}
	return c.Homeserver.PublicURL + "/_matrix/media/v3/download/" + uri.Homeserver + "/" + uri.FileID
}
