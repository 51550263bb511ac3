package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/headless/pkg/domain"
)

// LoggingHooks returns lifecycle hooks that log every event at debug level,
// and failures at warn level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRequest: func(ctx context.Context, e *domain.RequestEvent) {
			logger.DebugContext(ctx, "request",
				"client", e.Client,
				"streaming", e.Streaming,
				"chars", len(e.Text),
			)
		},
		OnResponse: func(ctx context.Context, e *domain.ResponseEvent) {
			logger.DebugContext(ctx, "response",
				"client", e.Client,
				"conversation_id", e.ConversationID,
				"response_id", e.ResponseID,
				"tokens", e.Tokens,
				"duration", e.Duration,
			)
		},
		OnHandoff: func(ctx context.Context, e *domain.HandoffEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "handoff failed", "from", e.Client, "to", e.To, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "handoff", "from", e.Client, "to", e.To, "resumed", e.Resumed)
		},
		OnError: func(ctx context.Context, e *domain.ErrorEvent) {
			logger.WarnContext(ctx, "pipeline error", "client", e.Client, "kind", e.Kind, "err", e.Err)
		},
	}
}
