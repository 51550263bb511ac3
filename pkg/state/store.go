package state

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/domain"
)

// Listener observes a derived value of the state.
type Listener struct {
	// Select derives the observed value. A nil Select observes the whole state.
	Select func(domain.State) any

	// Callback receives the new selected value and the state after the transition.
	Callback func(value any, s domain.State)
}

// Unsubscribe removes a listener. Calling it more than once is a no-op.
type Unsubscribe func()

type subscription struct {
	Listener
	active atomic.Bool
	// seen is the sequence number of the last transition delivered.
	seen atomic.Uint64
}

// deliver reports whether seq is newer than every transition already
// delivered to sub, and records it.
func (sub *subscription) deliver(seq uint64) bool {
	for {
		seen := sub.seen.Load()
		if seq <= seen {
			return false
		}
		if sub.seen.CompareAndSwap(seen, seq) {
			return true
		}
	}
}

// Store is the observable state container. It is safe for concurrent use.
// Mutations are serialized; listeners run outside the lock, synchronously,
// on the goroutine that performed the mutation. A listener never receives a
// transition older than one it has already received.
type Store struct {
	mu        sync.Mutex
	seq       uint64
	state     domain.State
	listeners []*subscription
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for dispatch tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a store holding initial.
func NewStore(initial domain.State, opts ...Option) *Store {
	s := &Store{
		state:  initial.Clone(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.state.Conversation.Messages == nil {
		s.state.Conversation.Messages = []domain.Message{}
	}
	return s
}

// GetState returns a copy of the current state.
func (s *Store) GetState() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SetState atomically replaces the whole state.
func (s *Store) SetState(next domain.State) {
	s.transition("setState", func(st *domain.State) bool {
		*st = next.Clone()
		return true
	})
}

// Dispatch applies one action as one transition.
func (s *Store) Dispatch(a Action) {
	s.transition(a.Name(), func(st *domain.State) bool {
		a.apply(st)
		return true
	})
}

// DispatchIf applies a only when cond holds for the current state. The check
// and the update happen under the same lock. It reports whether a was applied.
func (s *Store) DispatchIf(cond func(domain.State) bool, a Action) bool {
	return s.transition(a.Name(), func(st *domain.State) bool {
		if !cond(*st) {
			return false
		}
		a.apply(st)
		return true
	})
}

// AddListener registers l and returns its Unsubscribe.
func (s *Store) AddListener(l Listener) Unsubscribe {
	sub := &subscription{Listener: l}
	sub.active.Store(true)

	s.mu.Lock()
	s.listeners = append(s.listeners, sub)
	s.mu.Unlock()

	return func() {
		if !sub.active.Swap(false) {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, other := range s.listeners {
			if other == sub {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				break
			}
		}
	}
}

func (s *Store) transition(name string, mutate func(*domain.State) bool) bool {
	s.mu.Lock()
	prev := s.state.Clone()
	next := s.state.Clone()
	if !mutate(&next) {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.seq++
	seq := s.seq
	subs := append([]*subscription(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Debug("State transition", "action", name, "seq", seq)

	for _, sub := range subs {
		if !sub.active.Load() || sub.Callback == nil {
			continue
		}
		before, after := sub.selected(prev), sub.selected(next)
		if reflect.DeepEqual(before, after) {
			continue
		}
		if !sub.deliver(seq) {
			s.logger.Debug("Skipping superseded transition", "action", name, "seq", seq)
			continue
		}
		sub.Callback(after, next.Clone())
	}
	return true
}

func (sub *subscription) selected(st domain.State) any {
	if sub.Select == nil {
		return st
	}
	return sub.Select(st)
}
