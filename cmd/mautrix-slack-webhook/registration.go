// Copyright 2024-2026 Aiku AI

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiku/mautrix-slack-webhook/pkg/matrix"
)

var registrationCmd = &cobra.Command{
	Use:   "generate-registration",
	Short: "Generate the appservice registration file",
	Long:  "Generates a registration with fresh tokens and writes it to the path set in appservice.registration.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := matrix.GenerateRegistration(cfg)
		if err := reg.Save(cfg.AppService.Registration); err != nil {
			return fmt.Errorf("saving registration: %w", err)
		}
		cmd.Printf("Registration written to %s\n", cfg.AppService.Registration)
		return nil
	},
}
