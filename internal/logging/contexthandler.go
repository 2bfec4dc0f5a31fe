package logging

import (
	"context"
	"log/slog"

	"github.com/webgame-three/fpsync/internal/session"
)

// ContextProvider returns attributes evaluated at log time.
type ContextProvider func() []slog.Attr

// ContextHandler appends the provider's attributes to every record it handles.
// Enabled comes from the embedded handler.
type ContextHandler struct {
	slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{Handler: inner, provider: provider}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewContextHandler(h.Handler.WithAttrs(attrs), h.provider)
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return NewContextHandler(h.Handler.WithGroup(name), h.provider)
}

// SessionAttrs reports the current session and local player on every record.
func SessionAttrs(sess *session.Context) ContextProvider {
	return func() []slog.Attr {
		s := sess.GetSession()
		return []slog.Attr{
			slog.String("session", s.ID),
			slog.String("localId", string(s.LocalID)),
		}
	}
}
