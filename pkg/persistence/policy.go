package persistence

import (
	"time"

	"github.com/aretw0/headless/pkg/ports"
)

// DefaultMaxAge is the freshness window of the durable policy.
const DefaultMaxAge = 24 * time.Hour

// Policy describes one persistence target.
type Policy struct {
	// Name is used in logs ("durable", "session").
	Name string

	Store ports.KeyValueStore

	// MaxAge discards entries whose last message is older. Zero disables the check.
	MaxAge time.Duration
}

// Durable returns the durable policy over store.
func Durable(store ports.KeyValueStore) Policy {
	return Policy{Name: "durable", Store: store, MaxAge: DefaultMaxAge}
}

// Session returns the session-scope policy over store.
func Session(store ports.KeyValueStore) Policy {
	return Policy{Name: "session", Store: store}
}
