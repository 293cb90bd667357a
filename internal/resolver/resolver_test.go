package resolver

import (
	"testing"

	"github.com/polystore/polystore/internal/domain"
)

type docEntity struct{}

func (docEntity) EntityID() string              { return "d1" }
func (docEntity) DatabaseTarget() domain.Target { return domain.TargetDocument }

type plainEntity struct{}

func (plainEntity) EntityID() string { return "p1" }

func TestResolveOrder(t *testing.T) {
	r := New(domain.PolyglotConfig{
		DefaultTarget: domain.TargetRelational,
		EntityRouting: map[string]domain.Target{
			"docEntity": domain.TargetRelational, // explicit config beats declaration
			"Order":     domain.TargetDocument,
		},
	})

	t.Run("ExplicitConfigWins", func(t *testing.T) {
		if got := r.TargetFor("docEntity", docEntity{}); got != domain.TargetRelational {
			t.Errorf("expected relational, got %s", got)
		}
	})

	t.Run("ConfigWithoutPrototype", func(t *testing.T) {
		if got := r.TargetFor("Order", nil); got != domain.TargetDocument {
			t.Errorf("expected document, got %s", got)
		}
	})

	t.Run("DeclaredTarget", func(t *testing.T) {
		r := New(domain.PolyglotConfig{DefaultTarget: domain.TargetRelational})
		if got := r.TargetFor("docEntity", docEntity{}); got != domain.TargetDocument {
			t.Errorf("expected declared document target, got %s", got)
		}
	})

	t.Run("FallsThroughToDefault", func(t *testing.T) {
		if got := r.TargetFor("plainEntity", plainEntity{}); got != domain.TargetRelational {
			t.Errorf("expected default relational, got %s", got)
		}
		if got := r.TargetFor("Unknown", nil); got != domain.TargetRelational {
			t.Errorf("expected default relational, got %s", got)
		}
	})
}

func TestResolveDeterministic(t *testing.T) {
	r := New(domain.PolyglotConfig{
		DefaultTarget: domain.TargetDocument,
		EntityRouting: map[string]domain.Target{"A": domain.TargetRelational},
	})

	for i := 0; i < 100; i++ {
		if got := r.TargetFor("A", nil); got != domain.TargetRelational {
			t.Fatalf("resolution not deterministic at iteration %d: %s", i, got)
		}
	}
}

func TestInvalidConfigFallsBack(t *testing.T) {
	r := New(domain.PolyglotConfig{
		DefaultTarget: domain.Target("bogus"),
		EntityRouting: map[string]domain.Target{"A": domain.Target("bogus")},
	})

	if got := r.TargetFor("A", nil); got != domain.TargetRelational {
		t.Errorf("expected fallback to relational, got %s", got)
	}
	if got := r.Default(); got != domain.TargetRelational {
		t.Errorf("expected default relational, got %s", got)
	}
}
