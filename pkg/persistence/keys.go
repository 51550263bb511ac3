package persistence

import (
	"errors"
	"os"
	"strings"
)

// Storage namespaces.
const (
	StateNamespace       = "headless_chat_state"
	CredentialsNamespace = "headless_chat_credentials"
)

const keySeparator = "__"

// ErrNoHostname is returned when no hostname is configured and the OS cannot provide one.
var ErrNoHostname = errors.New("unable to determine hostname")

// Key builds the storage key for a namespace, hostname and bot id.
func Key(namespace, hostname, botID string) string {
	return strings.Join([]string{namespace, hostname, botID}, keySeparator)
}

// ParseKey splits a storage key. It reports false for keys not built by Key.
func ParseKey(key string) (namespace, hostname, botID string, ok bool) {
	parts := strings.SplitN(key, keySeparator, 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// ResolveHostname returns configured when set, the OS hostname otherwise.
func ResolveHostname(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "", ErrNoHostname
	}
	return host, nil
}
