// Package domain defines the core interfaces and types for polystore.
package domain

// Entity is the minimal contract every stored record satisfies: a stable
// string identifier. The rest of the core is entity-type-agnostic and works
// on canonical JSON documents.
type Entity interface {
	EntityID() string
}

// Routed is an optional declaration an entity type can make to pin itself to
// a backend. The resolver consults it after explicit routing configuration
// and before the process-wide default.
type Routed interface {
	DatabaseTarget() Target
}

// Target identifies one of the two storage backends.
type Target string

const (
	// TargetDocument is the document store backend (MongoDB).
	TargetDocument Target = "document"

	// TargetRelational is the relational backend (SQLite or PostgreSQL).
	TargetRelational Target = "relational"
)

// Other returns the opposite backend.
func (t Target) Other() Target {
	if t == TargetDocument {
		return TargetRelational
	}
	return TargetDocument
}

// Valid reports whether t names a known backend.
func (t Target) Valid() bool {
	return t == TargetDocument || t == TargetRelational
}

// BackendRole is a backend relative to a repository instance: the resolved
// primary, or the dual-write secondary. The secondary only exists in
// dual-write mode.
type BackendRole string

const (
	RolePrimary   BackendRole = "primary"
	RoleSecondary BackendRole = "secondary"
)

// Mode selects how mutations are propagated.
type Mode string

const (
	// ModeSingleStore targets only the resolved primary backend.
	ModeSingleStore Mode = "single"

	// ModeDualWrite mutates the primary, then attempts the same mutation
	// against the secondary under the resilience pipeline. Reads always come
	// from the primary.
	ModeDualWrite Mode = "dual"
)
