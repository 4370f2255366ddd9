// Copyright 2024-2026 Aiku AI

// Package slackhook receives Slack outgoing webhooks and posts to Slack
// incoming webhooks.
package slackhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/slack-go/slack"

	"github.com/aiku/mautrix-slack-webhook/pkg/connector"
)

// maxPayloadSize is the largest webhook body accepted (8 MB), enough for a
// file sent inline.
const maxPayloadSize = 8 << 20

// MessageHandler is the bridge side of the webhook.
type MessageHandler interface {
	Authenticate(msg *connector.SlackMessage) error
	HandleSlackMessage(ctx context.Context, msg *connector.SlackMessage) error
}

// FileDownloader fetches a private Slack file with an API token.
type FileDownloader interface {
	Download(ctx context.Context, token, url string) ([]byte, error)
}

// Handler decodes Slack outgoing webhook requests and passes them to the
// bridge.
type Handler struct {
	bridge     MessageHandler
	files      FileDownloader
	teamTokens map[string]string
	log        zerolog.Logger
}

// NewHandler returns a webhook handler. teamTokens maps a team domain to
// the API token used to download private files from that team.
func NewHandler(bridge MessageHandler, files FileDownloader, teamTokens map[string]string, log zerolog.Logger) *Handler {
	return &Handler{
		bridge:     bridge,
		files:      files,
		teamTokens: teamTokens,
		log:        log.With().Str("component", "slackhook").Logger(),
	}
}

// Router returns the webhook routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(h.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("Webhook request")
	}))
	r.Post("/", h.handleWebhook)
	r.Post("/slack/webhook", h.handleWebhook)
	return r
}

// payload is an outgoing webhook body. The same field names are used for
// form and JSON encodings.
type payload struct {
	Token       string          `json:"token"`
	TeamID      string          `json:"team_id"`
	TeamDomain  string          `json:"team_domain"`
	ChannelID   string          `json:"channel_id"`
	ChannelName string          `json:"channel_name"`
	UserID      string          `json:"user_id"`
	UserName    string          `json:"user_name"`
	Text        string          `json:"text"`
	Subtype     string          `json:"subtype"`
	Timestamp   string          `json:"timestamp"`
	File        json.RawMessage `json:"file"`
}

// sharedFile is a Slack file object that may carry its data inline.
type sharedFile struct {
	slack.File
	Content string `json:"_content"`
}

var errBadPayload = errors.New("bad payload")

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
	msg, err := decodePayload(r)
	if err != nil {
		h.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Rejecting webhook request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	log := h.log.With().
		Str("channel_id", msg.ChannelID).
		Str("user_name", msg.UserName).
		Str("subtype", msg.Subtype).
		Logger()

	// Nothing is fetched or delivered for a request that fails here.
	if err := h.bridge.Authenticate(msg); err != nil {
		h.writeError(w, r, log, err)
		return
	}

	ctx := r.Context()
	if msg.Subtype == connector.SubtypeFileShare && msg.File != nil && len(msg.FileContent) == 0 && msg.File.URLPrivate != "" {
		msg.FileContent = h.fetchFile(ctx, log, msg)
	}

	if err := h.bridge.HandleSlackMessage(ctx, msg); err != nil {
		h.writeError(w, r, log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, connector.ErrNotFound):
		log.Debug().Msg("Webhook for unknown channel")
		http.Error(w, "unknown channel", http.StatusNotFound)
	case errors.Is(err, connector.ErrAuthentication):
		log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Webhook token mismatch")
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		log.Err(err).Msg("Failed to handle Slack message")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// fetchFile downloads a private file with the team's token. Failures are
// logged and leave the message without content.
func (h *Handler) fetchFile(ctx context.Context, log zerolog.Logger, msg *connector.SlackMessage) []byte {
	token, ok := h.teamTokens[msg.TeamDomain]
	if !ok || h.files == nil {
		log.Debug().Str("team_domain", msg.TeamDomain).Msg("No API token to fetch private file")
		return nil
	}
	data, err := h.files.Download(ctx, token, msg.File.URLPrivate)
	if err != nil {
		log.Warn().Err(err).Str("file_id", msg.File.ID).Msg("Failed to download private file")
		return nil
	}
	return data
}

func decodePayload(r *http.Request) (*connector.SlackMessage, error) {
	var p payload
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadPayload, err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadPayload, err)
		}
		p = payload{
			Token:       r.PostForm.Get("token"),
			TeamID:      r.PostForm.Get("team_id"),
			TeamDomain:  r.PostForm.Get("team_domain"),
			ChannelID:   r.PostForm.Get("channel_id"),
			ChannelName: r.PostForm.Get("channel_name"),
			UserID:      r.PostForm.Get("user_id"),
			UserName:    r.PostForm.Get("user_name"),
			Text:        r.PostForm.Get("text"),
			Subtype:     r.PostForm.Get("subtype"),
			Timestamp:   r.PostForm.Get("timestamp"),
		}
		if file := r.PostForm.Get("file"); file != "" {
			p.File = json.RawMessage(file)
		}
	}
	if p.ChannelID == "" {
		return nil, fmt.Errorf("%w: missing channel_id", errBadPayload)
	}

	msg := &connector.SlackMessage{
		Token:       p.Token,
		TeamID:      p.TeamID,
		TeamDomain:  p.TeamDomain,
		ChannelID:   p.ChannelID,
		ChannelName: p.ChannelName,
		UserID:      p.UserID,
		UserName:    p.UserName,
		Text:        p.Text,
		Subtype:     p.Subtype,
		Timestamp:   p.Timestamp,
	}
	if len(bytes.TrimSpace(p.File)) > 0 && !bytes.Equal(bytes.TrimSpace(p.File), []byte("null")) {
		var file sharedFile
		if err := json.Unmarshal(p.File, &file); err != nil {
			return nil, fmt.Errorf("%w: invalid file: %w", errBadPayload, err)
		}
		msg.File = &file.File
		if file.Content != "" {
			content, err := decodeBinaryString(file.Content)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid file content: %w", errBadPayload, err)
			}
			msg.FileContent = content
		}
	}
	return msg, nil
}

// decodeBinaryString maps each character of s to one byte. Inline file data
// is sent as a "binary" string, one character per byte, so characters above
// U+00FF cannot occur in valid content.
func decodeBinaryString(s string) ([]byte, error) {
	b := make([]byte, 0, len(s))
	for i, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("character %U at offset %d is not a byte", r, i)
		}
		b = append(b, byte(r))
	}
	return b, nil
}

// SlackDownloader downloads private files through the Slack Web API client.
type SlackDownloader struct {
	HTTPClient *http.Client
}

func (d *SlackDownloader) Download(ctx context.Context, token, url string) ([]byte, error) {
	var opts []slack.Option
	if d.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(d.HTTPClient))
	}
	var buf bytes.Buffer
	if err := slack.New(token, opts...).GetFileContext(ctx, url, &buf); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	return buf.Bytes(), nil
}
