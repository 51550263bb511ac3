// Package middleware provides ports.KeyValueStore decorators applied to
// persisted conversation data before it reaches a backend.
package middleware

import "github.com/aretw0/headless/pkg/ports"

// Middleware allows wrapping a KeyValueStore to add behavior.
type Middleware func(ports.KeyValueStore) ports.KeyValueStore

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(store ports.KeyValueStore, mws ...Middleware) ports.KeyValueStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
