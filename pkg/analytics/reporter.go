// Package analytics layers SDK defaults onto consumer analytics payloads and
// forwards them to a ports.AnalyticsClient.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/ports"
	"github.com/google/uuid"
	"github.com/imdario/mergo"
)

// SDKName is the clientSdk entry always set by the reporter.
const SDKName = "CHAT_HEADLESS"

// Reporter merges payloads and reports them. It is safe for concurrent use.
type Reporter struct {
	client ports.AnalyticsClient
	botID  string

	mu   sync.RWMutex
	base domain.AnalyticsEvent

	sessionID      string
	version        string
	conversationID func() string
	now            func() time.Time
	logger         *slog.Logger

	impressionSent atomic.Bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithBasePayload sets the payload layered under every reported event.
func WithBasePayload(base domain.AnalyticsEvent) Option {
	return func(r *Reporter) { r.base = cloneEvent(base) }
}

// WithSessionTracking adds a per-reporter session id to every event.
func WithSessionTracking(enabled bool) Option {
	return func(r *Reporter) {
		if enabled {
			r.sessionID = uuid.NewString()
		} else {
			r.sessionID = ""
		}
	}
}

// WithConversationID supplies the current conversation id at report time.
func WithConversationID(fn func() string) Option {
	return func(r *Reporter) { r.conversationID = fn }
}

// WithSDKVersion sets the value of the SDKName clientSdk entry.
func WithSDKVersion(v string) Option {
	return func(r *Reporter) { r.version = v }
}

// WithClock overrides time.Now for derived timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a reporter for botID.
func New(client ports.AnalyticsClient, botID string, opts ...Option) *Reporter {
	r := &Reporter{
		client:         client,
		botID:          botID,
		version:        "dev",
		conversationID: func() string { return "" },
		now:            time.Now,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SessionID returns the tracked session id, empty when tracking is disabled.
func (r *Reporter) SessionID() string { return r.sessionID }

// AddClientSDK merges entries into the clientSdk map of the base payload.
// Wrapper layers call it to announce themselves.
func (r *Reporter) AddClientSDK(sdk map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base.ClientSDK == nil {
		r.base.ClientSDK = make(map[string]string, len(sdk))
	}
	maps.Copy(r.base.ClientSDK, sdk)
}

// Base returns a copy of the base payload.
func (r *Reporter) Base() domain.AnalyticsEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneEvent(r.base)
}

// Payload builds the event that Report would send for ev.
// Precedence: derived defaults < base payload < ev.
func (r *Reporter) Payload(ev domain.AnalyticsEvent) (domain.AnalyticsEvent, error) {
	out := domain.AnalyticsEvent{
		Timestamp: r.now().UTC().Format(time.RFC3339Nano),
		SessionID: r.sessionID,
		Chat: domain.ChatProps{
			BotID:          r.botID,
			ConversationID: r.conversationID(),
		},
	}

	if err := mergo.Merge(&out, r.Base(), mergo.WithOverride); err != nil {
		return out, fmt.Errorf("merging base payload: %w", err)
	}
	if err := mergo.Merge(&out, cloneEvent(ev), mergo.WithOverride); err != nil {
		return out, fmt.Errorf("merging event payload: %w", err)
	}

	if out.ClientSDK == nil {
		out.ClientSDK = make(map[string]string, 1)
	}
	out.ClientSDK[SDKName] = r.version
	return out, nil
}

// Report sends ev. CHAT_IMPRESSION is sent at most once per reporter; later
// ones are dropped silently. Client failures are logged and returned.
func (r *Reporter) Report(ctx context.Context, ev domain.AnalyticsEvent) error {
	if ev.Action == domain.ActionChatImpression && r.impressionSent.Swap(true) {
		return nil
	}

	payload, err := r.Payload(ev)
	if err != nil {
		r.logger.Error("Failed to build analytics payload", "action", ev.Action, "err", err)
		return err
	}

	if r.client == nil {
		return nil
	}
	if err := r.client.Send(ctx, payload); err != nil {
		r.logger.Error("Error occurred on request to analytics API", "action", ev.Action, "err", err)
		return fmt.Errorf("reporting %s: %w", ev.Action, err)
	}
	return nil
}

// cloneEvent copies the maps of ev so merging never writes through to a caller's map.
func cloneEvent(ev domain.AnalyticsEvent) domain.AnalyticsEvent {
	ev.ClientSDK = maps.Clone(ev.ClientSDK)
	ev.Value = maps.Clone(ev.Value)
	ev.Options = maps.Clone(ev.Options)
	return ev
}
