package ports

import "context"

// KeyValueStore is the byte storage behind conversation persistence.
// Values are opaque to the store.
type KeyValueStore interface {
	// Get returns the value for key, or domain.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// List returns the keys that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
