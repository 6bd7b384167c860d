package clientauth

import (
	"context"
	"log/slog"
)

// EventSink receives audit events emitted during authentication.
type EventSink interface {
	// ClientResolved is called once the client ID claimed by the request is known,
	// before the client is looked up.
	ClientResolved(ctx context.Context, clientID string)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) ClientResolved(context.Context, string) {}

// SlogEvents writes events as info records to a slog.Logger.
type SlogEvents struct {
	log *slog.Logger
}

// NewSlogEvents returns an EventSink logging to h. A nil h discards.
func NewSlogEvents(h slog.Handler) SlogEvents {
	if h == nil {
		h = slog.DiscardHandler
	}
	return SlogEvents{log: slog.New(h)}
}

func (e SlogEvents) ClientResolved(ctx context.Context, clientID string) {
	if e.log == nil {
		return
	}
	e.log.InfoContext(ctx, "client_auth.client_resolved", slog.String("client_id", clientID))
}

var (
	_ EventSink = NopEvents{}
	_ EventSink = SlogEvents{}
)
