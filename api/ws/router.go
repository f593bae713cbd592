package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/nvoropaev/concord/realtime"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, session *realtime.Session, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given event type.
func (r *Router) On(eventType string, fn HandlerFunc) {
	r.handlers[eventType] = fn
}

// Dispatch decodes raw bytes and invokes the appropriate handler.
func (r *Router) Dispatch(s *realtime.Session, raw []byte) {
	var ev realtime.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		r.logger.Warn("malformed packet",
			zap.Int64("user_id", s.UserID),
			zap.Error(err))
		return
	}

	// Assign a trace ID for this dispatch.
	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	fn, ok := r.handlers[ev.Type]
	if !ok {
		r.logger.Debug("unhandled event type",
			zap.String("type", ev.Type),
			zap.Int64("user_id", s.UserID))
		return
	}

	if err := fn(ctx, s, ev.Payload); err != nil {
		r.logger.Error("handler error",
			zap.String("type", ev.Type),
			zap.Int64("user_id", s.UserID),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
