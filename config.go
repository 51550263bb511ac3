package headless

import (
	"errors"

	"github.com/aretw0/headless/pkg/adapters/chatapi"
	"github.com/aretw0/headless/pkg/domain"
)

// AnalyticsConfig configures analytics reporting.
type AnalyticsConfig struct {
	// BaseEventPayload is layered under every reported event.
	BaseEventPayload domain.AnalyticsEvent `json:"baseEventPayload" yaml:"baseEventPayload" toml:"baseEventPayload"`

	// Endpoint overrides the events URL computed from Env and Region.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`

	// SessionTrackingEnabled adds a session id to every event. Defaults to true.
	SessionTrackingEnabled *bool `json:"sessionTrackingEnabled,omitempty" yaml:"sessionTrackingEnabled,omitempty" toml:"sessionTrackingEnabled,omitempty"`
}

// Config configures a Headless instance.
type Config struct {
	BotID  string         `json:"botId" yaml:"botId" toml:"botId"`
	APIKey string         `json:"apiKey" yaml:"apiKey" toml:"apiKey"`
	Env    chatapi.Env    `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Region chatapi.Region `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`

	// Hostname scopes persisted state. The OS hostname is used when empty.
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty" toml:"hostname,omitempty"`

	// SaveToLocalStorage enables the durable policy. Defaults to true.
	SaveToLocalStorage *bool `json:"saveToLocalStorage,omitempty" yaml:"saveToLocalStorage,omitempty" toml:"saveToLocalStorage,omitempty"`

	// SaveToSessionStorage enables the session policy. Defaults to true.
	SaveToSessionStorage *bool `json:"saveToSessionStorage,omitempty" yaml:"saveToSessionStorage,omitempty" toml:"saveToSessionStorage,omitempty"`

	AnalyticsConfig AnalyticsConfig   `json:"analyticsConfig" yaml:"analyticsConfig" toml:"analyticsConfig"`
	Endpoints       chatapi.Endpoints `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
}

// Bool returns a pointer to b, for the optional Config flags.
func Bool(b bool) *bool { return &b }

func (c Config) withDefaults() Config {
	if c.Env == "" {
		c.Env = chatapi.EnvProd
	}
	if c.Region == "" {
		c.Region = chatapi.RegionUS
	}
	if c.SaveToLocalStorage == nil {
		c.SaveToLocalStorage = Bool(true)
	}
	if c.SaveToSessionStorage == nil {
		c.SaveToSessionStorage = Bool(true)
	}
	if c.AnalyticsConfig.SessionTrackingEnabled == nil {
		c.AnalyticsConfig.SessionTrackingEnabled = Bool(true)
	}
	return c
}

// Validate reports missing required fields.
func (c Config) Validate() error {
	var errs []error
	if c.BotID == "" {
		errs = append(errs, errors.New("botId is required"))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("apiKey is required"))
	}
	return errors.Join(errs...)
}
