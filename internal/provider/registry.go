package provider

import (
	"fmt"
	"sort"
)

// Registry maps provider codes to their capability implementations. It is
// built once at startup and read-only afterwards, so concurrent reads need
// no synchronization.
type Registry struct {
	capabilities map[string]Capability
}

// NewRegistry builds a registry from the capabilities wired at startup.
func NewRegistry(capabilities ...Capability) *Registry {
	m := make(map[string]Capability, len(capabilities))
	for _, c := range capabilities {
		m[c.Code()] = c
	}
	return &Registry{capabilities: m}
}

// Available reports whether the given provider code has an implementation.
func (r *Registry) Available(code string) bool {
	_, ok := r.capabilities[code]
	return ok
}

// Get resolves a provider code to its capability. Unknown codes fail fast
// with ErrNotImplemented.
func (r *Registry) Get(code string) (Capability, error) {
	c, ok := r.capabilities[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, code)
	}
	return c, nil
}

// Codes returns all implemented provider codes, sorted for stable output.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.capabilities))
	for code := range r.capabilities {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Streamer resolves a provider code to its streaming capability, when the
// backend implements one.
func (r *Registry) Streamer(code string) (Streamer, bool) {
	c, ok := r.capabilities[code]
	if !ok {
		return nil, false
	}
	s, ok := c.(Streamer)
	return s, ok
}
