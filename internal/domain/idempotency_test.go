package domain

import (
	"context"
	"testing"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyScope(t *testing.T) {
	if got := IdempotencyScope("user-1", " op-1 "); got != "user-1:op-1" {
		t.Fatalf("unexpected scoped key: %q", got)
	}
	if got := IdempotencyScope("user-1", "  "); got != "" {
		t.Fatalf("blank key must stay blank, got %q", got)
	}
}

func TestIdempotencyKeyContext(t *testing.T) {
	if _, ok := IdempotencyKeyFromContext(context.Background()); ok {
		t.Fatal("expected no key in empty context")
	}

	ctx := WithIdempotencyKey(context.Background(), "op-1")
	key, ok := IdempotencyKeyFromContext(ctx)
	if !ok || key != "op-1" {
		t.Fatalf("unexpected key: %q ok=%v", key, ok)
	}
}
