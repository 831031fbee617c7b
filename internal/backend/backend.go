// Package backend defines the contract between the delegation proxy and the
// pluggable modules it forwards to. A module executes against the proxy's own
// storage view, never a private copy: that is what lets state survive an
// upgrade that only repoints the backend reference.
package backend

import (
	"context"
	"sync"

	"slotgate/internal/call"
	"slotgate/internal/events"
	"slotgate/internal/state"
	dErrors "slotgate/pkg/domain-errors"
)

// Env is the execution environment a forwarded invocation runs in. Store is
// the invoking proxy's write overlay; Emit buffers a notification for
// publication after the invocation commits.
//
// Modules write only field slots of their declared layout. The proxy's
// reserved slots live behind hash-derived keys, so a well-formed layout
// cannot reach them; staying out of them is the module author's obligation.
type Env struct {
	Store state.Mutable
	Emit  func(events.Event)
}

// Module is the single polymorphic entry point of a backend. It receives the
// inbound call's exact selector and argument bytes and returns exact result
// bytes; the proxy interprets neither.
type Module interface {
	Invoke(ctx context.Context, c call.Call, env Env) ([]byte, error)
}

// Resolver maps a backend reference to executable module logic.
type Resolver interface {
	Resolve(addr call.Address) (Module, error)
}

// Info describes a registered module for catalog listings.
type Info struct {
	Address call.Address
	Version string
}

// Registry is the process-local module catalog. Registration order is
// preserved for listings.
type Registry struct {
	mu      sync.RWMutex
	modules map[call.Address]Module
	infos   []Info
}

func NewRegistry() *Registry {
	return &Registry{modules: make(map[call.Address]Module)}
}

// Register adds a module under addr. Re-registering an address is a conflict;
// replacing logic is what proxy upgrades are for.
func (r *Registry) Register(addr call.Address, version string, m Module) error {
	if addr.IsNull() {
		return dErrors.New(dErrors.CodeInvalidArgument, "module address must not be null")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[addr]; ok {
		return dErrors.Newf(dErrors.CodeConflict, "module already registered at %s", addr.Hex())
	}
	r.modules[addr] = m
	r.infos = append(r.infos, Info{Address: addr, Version: version})
	return nil
}

func (r *Registry) Resolve(addr call.Address) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[addr]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no module registered at %s", addr.Hex())
	}
	return m, nil
}

// List returns registered modules in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, len(r.infos))
	copy(out, r.infos)
	return out
}
