// Package resolver decides which backend an entity type belongs to.
package resolver

import (
	"github.com/polystore/polystore/internal/domain"
)

// Resolver maps entity type names to their primary backend. Lookup order:
// explicit routing configuration, then the type's own Routed declaration,
// then the process-wide default. There is no error path: unresolvable types
// fall through to the default, so resolution is deterministic and safe to
// run on every repository construction.
type Resolver struct {
	routing       map[string]domain.Target
	defaultTarget domain.Target
}

// New creates a resolver from the polyglot configuration.
func New(cfg domain.PolyglotConfig) *Resolver {
	routing := make(map[string]domain.Target, len(cfg.EntityRouting))
	for name, target := range cfg.EntityRouting {
		if target.Valid() {
			routing[name] = target
		}
	}

	defaultTarget := cfg.DefaultTarget
	if !defaultTarget.Valid() {
		defaultTarget = domain.TargetRelational
	}

	return &Resolver{
		routing:       routing,
		defaultTarget: defaultTarget,
	}
}

// TargetFor resolves the primary backend for an entity type. The prototype
// is a zero value of the type, consulted for a Routed declaration; it may be
// nil when only configuration and the default apply.
func (r *Resolver) TargetFor(typeName string, prototype any) domain.Target {
	if target, ok := r.routing[typeName]; ok {
		return target
	}

	if routed, ok := prototype.(domain.Routed); ok {
		if target := routed.DatabaseTarget(); target.Valid() {
			return target
		}
	}

	return r.defaultTarget
}

// Default returns the process-wide default backend.
func (r *Resolver) Default() domain.Target {
	return r.defaultTarget
}
