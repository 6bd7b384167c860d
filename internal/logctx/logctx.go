// Package logctx carries per-attempt identifiers on a context and decorates
// slog records with them.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps a slog.Handler and adds an "attempt" group to every record
// whose context carries Attempt data.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(attemptKey{}).(*Attempt); ok {
		attrs := []any{
			slog.String("request_id", a.RequestID),
			slog.String("realm", a.Realm),
			slog.String("provider", a.Provider),
		}
		if a.ClientID != "" {
			attrs = append(attrs, slog.String("client_id", a.ClientID))
		}
		r.AddAttrs(slog.Group("attempt", attrs...))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type attemptKey struct{}

// Attempt identifies one client authentication attempt. It is owned by a
// single request; ClientID is filled in once the client is known.
type Attempt struct {
	RequestID string
	Realm     string
	Provider  string
	ClientID  string
}

func WithAttempt(ctx context.Context, a *Attempt) context.Context {
	return context.WithValue(ctx, attemptKey{}, a)
}

// AttemptFrom returns the Attempt stored in ctx, or nil.
func AttemptFrom(ctx context.Context) *Attempt {
	a, _ := ctx.Value(attemptKey{}).(*Attempt)
	return a
}

// New returns a logger that decorates records from h. A nil h discards.
func New(h slog.Handler) *slog.Logger {
	if h == nil {
		h = slog.DiscardHandler
	}
	return slog.New(Handler{Handler: h})
}
