package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/headless/pkg/ports"
)

// Mask replaces the values of masked keys.
const Mask = "***"

type piiMiddleware struct {
	next     ports.KeyValueStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks, in JSON values, the values
// of object keys matching the patterns (e.g. "email" inside collected notes).
// Values that are not JSON are stored unchanged.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.KeyValueStore) ports.KeyValueStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Set(ctx context.Context, key string, value []byte) error {
	var doc any
	if err := json.Unmarshal(value, &doc); err != nil {
		return m.next.Set(ctx, key, value)
	}

	// Decoding produced a fresh tree, so masking cannot leak into the caller's state.
	doc = mask(doc, m.patterns)

	masked, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal masked value: %w", err)
	}
	return m.next.Set(ctx, key, masked)
}

func (m *piiMiddleware) Get(ctx context.Context, key string) ([]byte, error) {
	return m.next.Get(ctx, key)
}

func (m *piiMiddleware) Remove(ctx context.Context, key string) error {
	return m.next.Remove(ctx, key)
}

func (m *piiMiddleware) List(ctx context.Context, prefix string) ([]string, error) {
	return m.next.List(ctx, prefix)
}

// Helpers

func mask(v any, patterns []*regexp.Regexp) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			if matchesAny(k, patterns) {
				node[k] = Mask
				continue
			}
			node[k] = mask(child, patterns)
		}
		return node
	case []any:
		for i, child := range node {
			node[i] = mask(child, patterns)
		}
		return node
	default:
		return v
	}
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
