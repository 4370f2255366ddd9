// Copyright 2024-2026 Aiku AI

package matrix

import (
	"fmt"
	"regexp"

	"maunium.net/go/mautrix/appservice"

	"github.com/aiku/mautrix-slack-webhook/pkg/connector"
)

// GenerateRegistration builds a fresh appservice registration with random
// tokens. The bridge claims the ghost namespace and its bot exclusively.
func GenerateRegistration(cfg *connector.Config) *appservice.Registration {
	reg := appservice.CreateRegistration()
	reg.ID = "slack"
	reg.URL = cfg.AppService.Address
	reg.SenderLocalpart = cfg.AppService.BotUsername
	falseVal := false
	reg.RateLimited = &falseVal

	server := regexp.QuoteMeta(cfg.Homeserver.ServerName)
	reg.Namespaces.UserIDs.Register(regexp.MustCompile(fmt.Sprintf("^@%s.*:%s$", regexp.QuoteMeta(cfg.UsernamePrefix), server)), true)
	reg.Namespaces.UserIDs.Register(regexp.MustCompile(fmt.Sprintf("^@%s:%s$", regexp.QuoteMeta(cfg.AppService.BotUsername), server)), true)
	return reg
}

// LoadRegistration reads the registration file named in cfg.
func LoadRegistration(cfg *connector.Config) (*appservice.Registration, error) {
	reg, err := appservice.LoadRegistration(cfg.AppService.Registration)
	if err != nil {
		return nil, fmt.Errorf("failed to load registration %s: %w", cfg.AppService.Registration, err)
	}
	if reg.ServerToken == "" || reg.AppToken == "" {
		return nil, fmt.Errorf("registration %s is missing as_token or hs_token", cfg.AppService.Registration)
	}
	return reg, nil
}
