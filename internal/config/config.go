// Package config loads the CLI configuration from a YAML, TOML or JSON file
// and HEADLESS_* environment variables.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/headless"
	"github.com/aretw0/headless/pkg/adapters/chatapi"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Config is the CLI configuration.
type Config struct {
	Chat    headless.Config `json:"chat" yaml:"chat" toml:"chat"`
	Storage StorageConfig   `json:"storage" yaml:"storage" toml:"storage"`
	Agent   AgentConfig     `json:"agent" yaml:"agent" toml:"agent"`
	Log     LogConfig       `json:"log" yaml:"log" toml:"log"`
	Server  ServerConfig    `json:"server" yaml:"server" toml:"server"`
}

// StorageConfig selects the durable store and its middlewares.
type StorageConfig struct {
	Backend string      `json:"backend" yaml:"backend" toml:"backend"`
	Path    string      `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
	Redis   RedisConfig `json:"redis" yaml:"redis" toml:"redis"`

	// EncryptionKey is a 32 byte AES key, hex or base64 encoded.
	EncryptionKey string `json:"encryptionKey,omitempty" yaml:"encryptionKey,omitempty" toml:"encryptionKey,omitempty"`
	// FallbackKeys decrypt values written before a key rotation.
	FallbackKeys []string `json:"fallbackKeys,omitempty" yaml:"fallbackKeys,omitempty" toml:"fallbackKeys,omitempty"`
	// PIIPatterns are regular expressions matched against JSON field names to mask.
	PIIPatterns []string `json:"piiPatterns,omitempty" yaml:"piiPatterns,omitempty" toml:"piiPatterns,omitempty"`
}

// RedisConfig configures the redis backend and the distributed locker.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
	DB       int    `json:"db" yaml:"db" toml:"db"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty" toml:"prefix,omitempty"`
}

// AgentConfig enables handoff to a WebSocket agent desk.
type AgentConfig struct {
	URL       string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	VisitorID string `json:"visitorId,omitempty" yaml:"visitorId,omitempty" toml:"visitorId,omitempty"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
	Metrics bool   `json:"metrics" yaml:"metrics" toml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Backend: BackendFile},
		Log:     LogConfig{Level: "info", Format: "text"},
		Server:  ServerConfig{Addr: ":8080", Metrics: true},
	}
}

// Load reads path, when not empty, over the defaults and applies environment
// overrides. ${VAR} references in the file are expanded.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(filepath.Ext(path), expandEnvVars(string(data)), cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func decode(ext, data string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal([]byte(data), cfg)
	case ".toml":
		_, err := toml.Decode(data, cfg)
		return err
	case ".json":
		return json.Unmarshal([]byte(data), cfg)
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}"))
	})
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	str("HEADLESS_BOT_ID", &cfg.Chat.BotID)
	str("HEADLESS_API_KEY", &cfg.Chat.APIKey)
	str("HEADLESS_HOSTNAME", &cfg.Chat.Hostname)
	if v, ok := lookup("HEADLESS_ENV"); ok {
		cfg.Chat.Env = chatapi.Env(strings.ToUpper(v))
	}
	if v, ok := lookup("HEADLESS_REGION"); ok {
		cfg.Chat.Region = chatapi.Region(strings.ToUpper(v))
	}
	str("HEADLESS_STORAGE", &cfg.Storage.Backend)
	str("HEADLESS_STORAGE_PATH", &cfg.Storage.Path)
	str("HEADLESS_REDIS_ADDR", &cfg.Storage.Redis.Addr)
	str("HEADLESS_REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	str("HEADLESS_ENCRYPTION_KEY", &cfg.Storage.EncryptionKey)
	str("HEADLESS_AGENT_URL", &cfg.Agent.URL)
	str("HEADLESS_LOG_LEVEL", &cfg.Log.Level)
	str("HEADLESS_LOG_FORMAT", &cfg.Log.Format)
	str("HEADLESS_ADDR", &cfg.Server.Addr)

	if v, ok := lookup("HEADLESS_REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HEADLESS_REDIS_DB: %w", err)
		}
		cfg.Storage.Redis.DB = db
	}
	if v, ok := lookup("HEADLESS_PII_PATTERNS"); ok {
		cfg.Storage.PIIPatterns = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the storage settings. Chat credentials are validated by
// headless.New so that commands not talking to the API can run without them.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendFile, BackendMemory, BackendSQLite, BackendNone:
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, errors.New("storage.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Storage.EncryptionKey != "" {
		if _, err := DecodeKey(c.Storage.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("storage.encryptionKey: %w", err))
		}
	}
	for _, k := range c.Storage.FallbackKeys {
		if _, err := DecodeKey(k); err != nil {
			errs = append(errs, fmt.Errorf("storage.fallbackKeys: %w", err))
		}
	}
	for _, p := range c.Storage.PIIPatterns {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("storage.piiPatterns: %w", err))
		}
	}
	return errors.Join(errs...)
}

// DecodeKey decodes a hex or base64 encoded 32 byte key.
func DecodeKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, errors.New("key must be 32 bytes, hex or base64 encoded")
}
