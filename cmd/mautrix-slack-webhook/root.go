// Copyright 2024-2026 Aiku AI

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiku/mautrix-slack-webhook/pkg/connector"
)

const (
	name    = "mautrix-slack-webhook"
	version = "0.1.0"
)

var (
	cfgFile    string
	saveConfig bool
)

var rootCmd = &cobra.Command{
	Use:           name,
	Short:         "A Matrix-Slack bridge using Slack webhooks",
	Long:          "mautrix-slack-webhook links Slack channels to Matrix rooms through Slack outgoing and incoming webhooks and a Matrix application service.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBridge,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVar(&saveConfig, "save-config", true, "write the upgraded config back to disk")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(registrationCmd)
}

func loadConfig() (*connector.Config, error) {
	cfg, err := connector.LoadConfig(cfgFile, saveConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func versionString() string {
	return fmt.Sprintf("%s v%s (tag %s, commit %s, built %s)", name, version, Tag, Commit, BuildTime)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println(versionString())
	},
}
