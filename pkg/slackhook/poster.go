// Copyright 2024-2026 Aiku AI

package slackhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// Poster sends messages to Slack incoming webhooks.
type Poster struct {
	client *http.Client
}

// NewPoster returns a Poster using client, or a client with a 30 second
// timeout when client is nil.
func NewPoster(client *http.Client) *Poster {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Poster{client: client}
}

// PostWebhook posts msg to the incoming webhook at uri.
func (p *Poster) PostWebhook(ctx context.Context, uri string, msg *slack.WebhookMessage) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, uri, p.client, msg); err != nil {
		return fmt.Errorf("failed to post to webhook: %w", err)
	}
	return nil
}
