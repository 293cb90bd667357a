package domain

// ConsistencyStatus classifies a point-in-time comparison of the primary and
// secondary copy of an entity. Exactly one status applies to any comparison.
type ConsistencyStatus string

const (
	// Consistent means both copies are byte-equal under canonical
	// serialization, or both are absent.
	Consistent ConsistencyStatus = "consistent"

	// Inconsistent means both copies exist but differ.
	Inconsistent ConsistencyStatus = "inconsistent"

	// MissingInPrimary means only the secondary holds a copy.
	MissingInPrimary ConsistencyStatus = "missing_in_primary"

	// MissingInSecondary means only the primary holds a copy.
	MissingInSecondary ConsistencyStatus = "missing_in_secondary"

	// ConsistencyError means the comparison itself failed (a backend was
	// unreachable). Distinct from Inconsistent so operators can tell
	// "data differs" from "couldn't check".
	ConsistencyError ConsistencyStatus = "error"
)

// ConsistencyResult is the outcome of validating one entity.
// Produced on demand; not persisted.
type ConsistencyResult struct {
	EntityID   string            `json:"entityId"`
	EntityType string            `json:"entityType"`
	Status     ConsistencyStatus `json:"status"`
	Reason     string            `json:"reason,omitempty"`
}

// IsConsistent reports whether the comparison found no divergence.
func (r ConsistencyResult) IsConsistent() bool {
	return r.Status == Consistent
}
