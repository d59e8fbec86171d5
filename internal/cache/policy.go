package cache

import (
	"strings"
	"time"
)

// Policy decides which GET responses are cacheable and for how long.
// Lookups pick the longest configured path prefix, so a narrow rule for
// /v1/models/detail can override a broad /v1/models rule.
type Policy struct {
	defaultTTL time.Duration
	ttls       map[string]time.Duration
	excluded   []string
}

// NewPolicy constructs a policy with the built-in exclusion list. Chat
// completions are generative and never cached; credential and auth
// surfaces carry secrets; operational and health endpoints must observe
// the live process.
func NewPolicy(defaultTTL time.Duration) *Policy {
	return &Policy{
		defaultTTL: defaultTTL,
		ttls:       make(map[string]time.Duration),
		excluded: []string{
			"/v1/chat/completions",
			"/v1/credentials",
			"/v1/auth",
			"/v1/system",
			"/healthz",
		},
	}
}

// SetTTL registers a TTL for a path prefix. A non-positive TTL disables
// caching under that prefix.
func (p *Policy) SetTTL(prefix string, ttl time.Duration) {
	p.ttls[prefix] = ttl
}

// Exclude adds a path prefix that must never be served from cache.
func (p *Policy) Exclude(prefix string) {
	p.excluded = append(p.excluded, prefix)
}

// TTL returns the cache lifetime for a path, or 0 when the path must not
// be cached.
func (p *Policy) TTL(path string) time.Duration {
	for _, prefix := range p.excluded {
		if strings.HasPrefix(path, prefix) {
			return 0
		}
	}
	bestLen := -1
	ttl := p.defaultTTL
	for prefix, t := range p.ttls {
		if strings.HasPrefix(path, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			ttl = t
		}
	}
	if ttl < 0 {
		return 0
	}
	return ttl
}
