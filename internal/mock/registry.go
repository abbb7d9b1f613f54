// Package mock implements the command override registry consulted before
// dispatch reaches a real handler.
//
// The registry is a single shared table keyed by command name. Every operation
// takes the registry mutex for its full duration and releases it before
// returning; nothing blocks while holding it. Reads hand out copies, never
// aliases into the backing map.
package mock

import (
	"sync"

	"github.com/mattjoyce/marionette/internal/protocol"
)

// Registry stores command overrides for the lifetime of a session.
type Registry struct {
	mu    sync.Mutex
	mocks map[string]protocol.MockConfig

	// originalHandlers is reserved for restore-to-original semantics.
	// TODO: populate when handler swapping lands; Restore then diverges from Reset.
	originalHandlers map[string]any
}

// NewRegistry creates an empty mock registry.
func NewRegistry() *Registry {
	return &Registry{
		mocks:            make(map[string]protocol.MockConfig),
		originalHandlers: make(map[string]any),
	}
}

// Set unconditionally inserts or overwrites the override for command.
// Config contents are not validated.
func (r *Registry) Set(command string, config protocol.MockConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mocks[command] = config
}

// Get returns a copy of the current override for command.
func (r *Registry) Get(command string) (protocol.MockConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.mocks[command]
	if !ok {
		return protocol.MockConfig{}, false
	}
	return copyConfig(cfg), true
}

// Remove deletes the override for command, returning it if present.
func (r *Registry) Remove(command string) (protocol.MockConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.mocks[command]
	if ok {
		delete(r.mocks, command)
	}
	return cfg, ok
}

// All returns a copy of every registered override, keyed by command.
func (r *Registry) All() map[string]protocol.MockConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]protocol.MockConfig, len(r.mocks))
	for name, cfg := range r.mocks {
		out[name] = copyConfig(cfg)
	}
	return out
}

// Clear removes all overrides. Reserved original-handler storage is untouched.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.mocks)
}

// Reset removes all overrides and clears the reserved original-handler storage.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.mocks)
	clear(r.originalHandlers)
}

// Restore removes mocks and reinstates original handlers. Handler storage is
// never populated yet, so this currently behaves exactly like Reset; it stays
// a distinct operation so the contract can diverge without an interface change.
func (r *Registry) Restore() {
	r.Reset()
}

// Len reports the number of registered overrides.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mocks)
}

// copyConfig deep-copies a MockConfig so callers cannot race registry mutations
// through a shared ReturnValue backing array.
func copyConfig(cfg protocol.MockConfig) protocol.MockConfig {
	out := cfg
	if cfg.ReturnValue != nil {
		out.ReturnValue = append([]byte(nil), cfg.ReturnValue...)
	}
	return out
}
