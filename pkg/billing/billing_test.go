package billing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/duskforge/genforge/pkg/generation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFinalize_IdempotentOnCharged(t *testing.T) {
	f := NewFinalizer(nil, nil, discardLogger(), nil)
	gen := generation.Generation{
		Status:       generation.StatusCompleted,
		BillingState: generation.BillingCharged,
	}
	if err := f.Finalize(context.Background(), gen, nil, nil, 0); err != nil {
		t.Errorf("Finalize() on CHARGED generation = %v, want nil no-op", err)
	}
}

func TestFinalize_IdempotentOnSkipped(t *testing.T) {
	f := NewFinalizer(nil, nil, discardLogger(), nil)
	gen := generation.Generation{
		Status:       generation.StatusFailed,
		BillingState: generation.BillingSkipped,
	}
	if err := f.Finalize(context.Background(), gen, nil, nil, 0); err != nil {
		t.Errorf("Finalize() on SKIPPED generation = %v, want nil no-op", err)
	}
}

func TestFinalize_NoOpWhenNotTerminal(t *testing.T) {
	f := NewFinalizer(nil, nil, discardLogger(), nil)
	for _, status := range []generation.Status{generation.StatusPending, generation.StatusProcessing} {
		gen := generation.Generation{Status: status, BillingState: generation.BillingUncharged}
		if err := f.Finalize(context.Background(), gen, nil, nil, 0); err != nil {
			t.Errorf("Finalize() on %s generation = %v, want nil no-op", status, err)
		}
	}
}

func TestPreferredCreditType(t *testing.T) {
	tests := []struct {
		name    string
		credits map[string]int
		want    string
	}{
		{"web preferred over openapi", map[string]int{"web": 10, "openapi": 100}, "web"},
		{"openapi when web empty", map[string]int{"web": 0, "openapi": 5}, "openapi"},
		{"any fallback", map[string]int{"web": 0, "openapi": 0, "promo": 3}, "promo"},
		{"nothing available", map[string]int{"web": 0, "openapi": 0}, ""},
		{"empty map", map[string]int{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preferredCreditType(tt.credits)
			if got != tt.want {
				t.Errorf("preferredCreditType(%v) = %q, want %q", tt.credits, got, tt.want)
			}
		})
	}
}
