package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/headless"
	"github.com/aretw0/headless/internal/config"
	"github.com/aretw0/headless/pkg/adapters/file"
	"github.com/aretw0/headless/pkg/adapters/memory"
	"github.com/aretw0/headless/pkg/adapters/redis"
	"github.com/aretw0/headless/pkg/adapters/sqlite"
	"github.com/aretw0/headless/pkg/persistence/middleware"
	"github.com/aretw0/headless/pkg/ports"
)

// sessionTTL bounds how long redis keeps session scoped values.
const sessionTTL = 24 * time.Hour

// Storage holds the stores selected by the configuration.
type Storage struct {
	Durable ports.KeyValueStore
	Session ports.KeyValueStore
	// Credentials keeps agent session credentials across runs when Session
	// does not. Nil means credentials live in Session.
	Credentials ports.KeyValueStore
	Locker      ports.DistributedLocker
	Middlewares []middleware.Middleware

	closers []io.Closer
}

// OpenStorage builds the stores for cfg. The caller must Close the result.
func OpenStorage(cfg config.StorageConfig, logger *slog.Logger) (*Storage, error) {
	s := &Storage{Session: memory.NewStore()}

	switch cfg.Backend {
	case config.BackendFile, "":
		path := cfg.Path
		if path == "" {
			path = file.DefaultPath()
		}
		s.Durable = file.New(path)
		s.Credentials = s.Durable
	case config.BackendMemory:
		s.Durable = memory.NewStore()
	case config.BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(file.DefaultPath(), "headless.db")
		}
		db, err := sqlite.New(path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		s.Durable = db
		s.Credentials = db
		s.closers = append(s.closers, db)
	case config.BackendRedis:
		prefix := cfg.Redis.Prefix
		if prefix == "" {
			prefix = "headless:"
		}
		durable := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redis.WithPrefix(prefix))
		// Session values expire like a browser session would.
		s.Session = redis.NewFromClient(durable.Client(),
			redis.WithPrefix(prefix+"session:"), redis.WithTTL(sessionTTL))
		s.Durable = durable
		s.Locker = redis.NewLocker(durable.Client(), prefix+"lock:")
		s.closers = append(s.closers, durable)
	case config.BackendNone:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if len(cfg.PIIPatterns) > 0 {
		s.Middlewares = append(s.Middlewares, middleware.NewPIIMiddleware(cfg.PIIPatterns))
	}
	if cfg.EncryptionKey != "" {
		enc, err := encryptionConfig(cfg)
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		s.Middlewares = append(s.Middlewares, middleware.NewEncryptionMiddleware(enc))
	}
	return s, nil
}

func encryptionConfig(cfg config.StorageConfig) (middleware.EncryptionConfig, error) {
	active, err := config.DecodeKey(cfg.EncryptionKey)
	if err != nil {
		return middleware.EncryptionConfig{}, fmt.Errorf("encryption key: %w", err)
	}
	enc := middleware.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		b, err := config.DecodeKey(k)
		if err != nil {
			return middleware.EncryptionConfig{}, fmt.Errorf("fallback key: %w", err)
		}
		enc.FallbackKeys = append(enc.FallbackKeys, b)
	}
	return enc, nil
}

// Wrapped returns the durable store behind the configured middlewares, or nil.
func (s *Storage) Wrapped() ports.KeyValueStore {
	if s.Durable == nil {
		return nil
	}
	return middleware.Chain(s.Durable, s.Middlewares...)
}

// Options returns the headless options that wire the stores.
func (s *Storage) Options() []headless.Option {
	opts := []headless.Option{
		headless.WithDurableStore(s.Durable),
		headless.WithSessionStore(s.Session),
		headless.WithStoreMiddleware(s.Middlewares...),
	}
	if s.Credentials != nil {
		opts = append(opts, headless.WithCredentialStore(s.Credentials))
	}
	if s.Locker != nil {
		opts = append(opts, headless.WithLocker(s.Locker))
	}
	return opts
}

// Close releases backend connections.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
