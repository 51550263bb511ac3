package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/ports"
	"github.com/aretw0/headless/pkg/session"
	"github.com/aretw0/headless/pkg/state"
)

type target struct {
	Policy
	mgr *session.Manager
}

// Persister loads and saves the conversation slice for one bot and hostname.
type Persister struct {
	key     string
	targets []target
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Persister or a CredentialStore.
type Option func(*options)

type options struct {
	logger *slog.Logger
	locker ports.DistributedLocker
	now    func() time.Time
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLocker serializes writes across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(o *options) { o.locker = l }
}

// WithClock overrides time.Now for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) manager(store ports.KeyValueStore) *session.Manager {
	mopts := []session.Option{session.WithLogger(o.logger)}
	if o.locker != nil {
		mopts = append(mopts, session.WithLocker(o.locker))
	}
	return session.NewManager(store, mopts...)
}

// NewPersister creates a persister for key. Policies are read in the order given;
// policies without a store are ignored.
func NewPersister(key string, policies []Policy, opts ...Option) *Persister {
	o := buildOptions(opts)
	p := &Persister{
		key:    key,
		logger: o.logger.With("key", key),
		now:    o.now,
	}
	for _, pol := range policies {
		if pol.Store == nil {
			continue
		}
		p.targets = append(p.targets, target{Policy: pol, mgr: o.manager(pol.Store)})
	}
	return p
}

// Key returns the storage key.
func (p *Persister) Key() string { return p.key }

// Enabled reports whether any policy has a store.
func (p *Persister) Enabled() bool { return len(p.targets) > 0 }

// Load returns the first usable stored conversation. It reports false, with the
// initial conversation state, when nothing usable is stored.
func (p *Persister) Load(ctx context.Context) (domain.ConversationState, bool) {
	for _, t := range p.targets {
		conv, ok := p.load(ctx, t)
		if ok {
			p.logger.Debug("Restored conversation", "policy", t.Name, "messages", len(conv.Messages))
			return conv, true
		}
	}
	return domain.NewConversationState(), false
}

func (p *Persister) load(ctx context.Context, t target) (domain.ConversationState, bool) {
	log := p.logger.With("policy", t.Name)

	data, err := t.mgr.Get(ctx, p.key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn("Failed to read persisted conversation", "err", err)
		}
		return domain.ConversationState{}, false
	}

	var conv domain.ConversationState
	if err := json.Unmarshal(data, &conv); err != nil {
		log.Warn("Discarding corrupt persisted conversation", "err", err)
		p.remove(ctx, t)
		return domain.ConversationState{}, false
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	// A request in flight when the entry was written did not survive the process.
	conv.IsLoading = false
	conv.CanSendMessage = true

	if t.MaxAge <= 0 {
		return conv, true
	}

	last, ok := conv.LastMessage()
	if !ok {
		return domain.ConversationState{}, false
	}
	if age := p.now().Sub(last.Time()); age >= t.MaxAge {
		log.Debug("Discarding stale persisted conversation", "age", age)
		p.remove(ctx, t)
		return domain.ConversationState{}, false
	}
	return conv, true
}

func (p *Persister) remove(ctx context.Context, t target) {
	if err := t.mgr.Remove(ctx, p.key); err != nil {
		p.logger.Warn("Failed to remove persisted conversation", "policy", t.Name, "err", err)
	}
}

// Save writes conv to every policy.
func (p *Persister) Save(ctx context.Context, conv domain.ConversationState) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	var errs []error
	for _, t := range p.targets {
		if err := t.mgr.Set(ctx, p.key, data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Clear removes the entry from every policy.
func (p *Persister) Clear(ctx context.Context) error {
	var errs []error
	for _, t := range p.targets {
		if err := t.mgr.Remove(ctx, p.key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Bind saves the conversation slice of src on every change. Writes are
// serialized and always store the conversation current at write time, so
// concurrent transitions cannot leave an older snapshot behind.
// Write failures are logged.
func (p *Persister) Bind(ctx context.Context, src state.Source) state.Unsubscribe {
	var mu sync.Mutex
	return state.Watch(src, state.Conversation, func(domain.ConversationState) {
		mu.Lock()
		defer mu.Unlock()
		if err := p.Save(ctx, src.GetState().Conversation); err != nil {
			p.logger.Warn("Failed to persist conversation", "err", err)
		}
	})
}
