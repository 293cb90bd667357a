package polyglot

import (
	"context"
	"errors"
	"fmt"

	"github.com/polystore/polystore/internal/codec"
	"github.com/polystore/polystore/internal/domain"
	"github.com/polystore/polystore/internal/store"
)

// Validator compares the primary and secondary copy of an entity by
// canonical serialization. The comparison is point-in-time and unlocked; a
// concurrent writer can make it observe a transient mismatch, which is why
// divergence is repaired by backfill rather than treated as a hard error.
type Validator struct {
	primaryTarget domain.Target
	primary       domain.Store
	secondary     domain.Store
}

// NewValidator builds a validator over the two backends of one routed type.
// The secondary may be nil; validation then always reports an error status.
func NewValidator(primaryTarget domain.Target, primary, secondary domain.Store) *Validator {
	return &Validator{
		primaryTarget: primaryTarget,
		primary:       primary,
		secondary:     secondary,
	}
}

// Validate classifies the entity's cross-backend state. Exactly one status
// is returned for any input; a backend failure during the comparison yields
// the error status, distinct from a data mismatch.
func (v *Validator) Validate(ctx context.Context, entityType, id string) domain.ConsistencyResult {
	result := domain.ConsistencyResult{
		EntityID:   id,
		EntityType: entityType,
	}

	if v.secondary == nil {
		result.Status = domain.ConsistencyError
		result.Reason = "secondary backend not configured"
		return result
	}

	primaryDoc, err := v.primary.Get(ctx, entityType, id)
	primaryFound := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		result.Status = domain.ConsistencyError
		result.Reason = fmt.Sprintf("primary read failed: %v", err)
		return result
	}

	secondaryDoc, err := v.secondary.Get(ctx, entityType, id)
	secondaryFound := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		result.Status = domain.ConsistencyError
		result.Reason = fmt.Sprintf("secondary read failed: %v", err)
		return result
	}

	switch {
	case !primaryFound && !secondaryFound:
		result.Status = domain.Consistent
	case primaryFound && !secondaryFound:
		result.Status = domain.MissingInSecondary
	case !primaryFound && secondaryFound:
		result.Status = domain.MissingInPrimary
	default:
		equal, cerr := codec.Equal(primaryDoc, secondaryDoc)
		if cerr != nil {
			result.Status = domain.ConsistencyError
			result.Reason = fmt.Sprintf("comparison failed: %v", cerr)
			return result
		}
		if equal {
			result.Status = domain.Consistent
		} else {
			result.Status = domain.Inconsistent
			result.Reason = "data differs between backends"
		}
	}
	return result
}
