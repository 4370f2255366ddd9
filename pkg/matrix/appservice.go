// Copyright 2024-2026 Aiku AI

package matrix

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mautrix-slack-webhook/pkg/connector"
)

// EventHandler processes one event pushed by the homeserver.
type EventHandler = appservice.EventHandler

// queryHandler answers the homeserver's user and alias queries. Users in the
// ghost namespace exist on demand; the bridge owns no aliases.
type queryHandler struct {
	cfg *connector.Config
	bot id.UserID
}

var _ appservice.QueryHandler = (*queryHandler)(nil)

func (q *queryHandler) QueryAlias(string) bool {
	return false
}

func (q *queryHandler) QueryUser(userID id.UserID) bool {
	return userID == q.bot || q.cfg.IsGhostUserID(userID)
}

// Router returns the appservice API the homeserver pushes transactions to.
func (t *Transport) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(t.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("Appservice request")
	}))
	r.Handle("/*", t.as.Router)
	return r
}

// HandleEvents passes message and membership events from accepted
// transactions to handle, one at a time in arrival order, until Stop is
// called.
func (t *Transport) HandleEvents(ctx context.Context, handle EventHandler) {
	ep := appservice.NewEventProcessor(t.as)
	ep.ExecMode = appservice.Sync
	ep.On(event.EventMessage, handle)
	ep.On(event.StateMember, handle)
	t.processor = ep
	ep.Start(ctx)
}

// Stop stops event dispatch started by HandleEvents.
func (t *Transport) Stop() {
	t.stopOnce.Do(func() {
		if t.processor != nil {
			t.processor.Stop()
		}
	})
}
