package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/polystore/polystore/internal/domain"
)

var errBackend = errors.New("backend unavailable")

func testConfig() domain.ResilienceConfig {
	return domain.ResilienceConfig{
		EnableResilience:               true,
		RetryCount:                     3,
		RetryDelayMs:                   1,
		CircuitBreakerFailureThreshold: 100, // keep the breaker out of retry tests
		CircuitBreakerDurationSeconds:  30,
		SecondaryWriteTimeoutMs:        5000,
	}
}

func TestRetryExhaustion(t *testing.T) {
	p := New("test", testConfig())

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errBackend
	})

	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	// 1 initial attempt + RetryCount retries
	if attempts != 4 {
		t.Errorf("expected exactly 4 attempts, got %d", attempts)
	}
}

func TestRetryRecovers(t *testing.T) {
	p := New("test", testConfig())

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after recovery, got: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDisabledRunsOnce(t *testing.T) {
	cfg := testConfig()
	cfg.EnableResilience = false
	p := New("test", cfg)

	attempts := 0
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return errBackend
	})

	if !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected single attempt with resilience disabled, got %d", attempts)
	}
}

func TestTimeoutBoundsCall(t *testing.T) {
	cfg := testConfig()
	cfg.SecondaryWriteTimeoutMs = 20
	p := New("test", cfg)

	start := time.Now()
	err := p.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("call not bounded by timeout, took %v", elapsed)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	cfg := testConfig()
	cfg.RetryCount = 1
	cfg.CircuitBreakerFailureThreshold = 2
	p := New("test", cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = p.Execute(ctx, func(ctx context.Context) error {
			return errBackend
		})
	}

	if p.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", p.State())
	}

	// Open circuit rejects without invoking the call
	attempts := 0
	err := p.Execute(ctx, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got: %v", err)
	}
	if attempts != 0 {
		t.Errorf("expected no attempts through an open circuit, got %d", attempts)
	}
}

func TestCallerCancellation(t *testing.T) {
	p := New("test", testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Execute(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	if err == nil {
		t.Error("expected error for cancelled context")
	}
}
