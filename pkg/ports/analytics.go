package ports

import (
	"context"

	"github.com/aretw0/headless/pkg/domain"
)

// AnalyticsClient sends a fully merged analytics payload.
type AnalyticsClient interface {
	Send(ctx context.Context, event domain.AnalyticsEvent) error
}
