package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/ports"
	"github.com/aretw0/headless/pkg/session"
)

// CredentialStore keeps the handoff credentials of an event client so that an
// agent session survives a restart of the SDK.
type CredentialStore struct {
	key    string
	mgr    *session.Manager
	logger *slog.Logger
}

// NewCredentialStore creates a credential store for key. A nil store yields a
// store that remembers nothing.
func NewCredentialStore(key string, store ports.KeyValueStore, opts ...Option) *CredentialStore {
	o := buildOptions(opts)
	c := &CredentialStore{key: key, logger: o.logger.With("key", key)}
	if store != nil {
		c.mgr = o.manager(store)
	}
	return c
}

// Load returns the saved credentials. Missing or unparseable entries are
// reported as absent.
func (c *CredentialStore) Load(ctx context.Context) (domain.Credentials, bool) {
	if c.mgr == nil {
		return nil, false
	}
	data, err := c.mgr.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn("Failed to read handoff credentials", "err", err)
		}
		return nil, false
	}

	var creds domain.Credentials
	if err := json.Unmarshal(data, &creds); err != nil || creds == nil {
		c.logger.Warn("Ignoring unparseable handoff credentials", "err", err)
		return nil, false
	}
	return creds, true
}

// Save stores creds.
func (c *CredentialStore) Save(ctx context.Context, creds domain.Credentials) error {
	if c.mgr == nil {
		return nil
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return c.mgr.Set(ctx, c.key, data)
}

// Clear removes the saved credentials.
func (c *CredentialStore) Clear(ctx context.Context) error {
	if c.mgr == nil {
		return nil
	}
	return c.mgr.Remove(ctx, c.key)
}
