package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Factory builds a fresh adapter instance for one request chain.
type Factory func(opts Options) Adapter

// registry maps provider prefix to adapter factory. Registration happens from
// package init functions only; the map is read-only once the process is
// serving, so lookups need no synchronization.
var registry = make(map[string]Factory)

// Register installs a factory under a provider prefix. It must only be
// called during process start and panics on duplicates, which indicate a
// programming error.
func Register(prefix string, factory Factory) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || factory == nil {
		panic("provider: invalid registration")
	}
	if _, exists := registry[prefix]; exists {
		panic(fmt.Sprintf("provider: duplicate registration for %q", prefix))
	}
	registry[prefix] = factory
}

// New constructs an adapter for the given provider prefix.
func New(prefix string, opts Options) (Adapter, error) {
	factory, ok := registry[strings.ToLower(strings.TrimSpace(prefix))]
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q", prefix)
	}
	return factory(opts), nil
}

// Supported reports whether a provider prefix has a registered adapter.
func Supported(prefix string) bool {
	_, ok := registry[strings.ToLower(strings.TrimSpace(prefix))]
	return ok
}

// Prefixes returns all registered provider prefixes in sorted order.
func Prefixes() []string {
	out := make([]string, 0, len(registry))
	for prefix := range registry {
		out = append(out, prefix)
	}
	sort.Strings(out)
	return out
}
