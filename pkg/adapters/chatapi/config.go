package chatapi

import (
	"fmt"
	"net/url"
	"strings"
)

// Env selects the backend environment.
type Env string

const (
	EnvProd    Env = "PROD"
	EnvSandbox Env = "SANDBOX"
)

// Region selects the backend region.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
)

// APIVersion is sent with every request as the "v" query parameter.
const APIVersion = "20240101"

var domains = map[Env]map[Region]string{
	EnvProd: {
		RegionUS: "https://chat-api.headless.dev",
		RegionEU: "https://chat-api.eu.headless.dev",
	},
	EnvSandbox: {
		RegionUS: "https://sbx-chat-api.headless.dev",
		RegionEU: "https://sbx-chat-api.eu.headless.dev",
	},
}

// Endpoints overrides the computed URLs. Empty fields keep the default.
type Endpoints struct {
	Message string `json:"message,omitempty" yaml:"message,omitempty" toml:"message,omitempty"`
	Stream  string `json:"stream,omitempty" yaml:"stream,omitempty" toml:"stream,omitempty"`
}

// Config identifies the bot and the backend to talk to.
type Config struct {
	BotID     string
	APIKey    string
	Env       Env
	Region    Region
	Endpoints Endpoints
}

// Domain returns the base URL for the env and region, defaulting to PROD/US.
func Domain(env Env, region Region) (string, error) {
	if env == "" {
		env = EnvProd
	}
	if region == "" {
		region = RegionUS
	}
	byRegion, ok := domains[Env(strings.ToUpper(string(env)))]
	if !ok {
		return "", fmt.Errorf("unknown env %q", env)
	}
	d, ok := byRegion[Region(strings.ToUpper(string(region)))]
	if !ok {
		return "", fmt.Errorf("unknown region %q", region)
	}
	return d, nil
}

func (c Config) endpoints() (Endpoints, error) {
	out := c.Endpoints
	if out.Message != "" && out.Stream != "" {
		return out, nil
	}
	base, err := Domain(c.Env, c.Region)
	if err != nil {
		return Endpoints{}, err
	}
	path := base + "/v2/bots/" + url.PathEscape(c.BotID) + "/message"
	if out.Message == "" {
		out.Message = path
	}
	if out.Stream == "" {
		out.Stream = path + "/streaming"
	}
	return out, nil
}
