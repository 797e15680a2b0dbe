package idempotency

import (
	"context"
	"testing"
	"time"

	pconfig "github.com/maplecart/api/internal/platform/config"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
)

func TestNewStoreSelectsBackend(t *testing.T) {
	store, err := NewStore(pconfig.IdempotencyStoreMemory, nil)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", store)
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "local"})
	store, err = NewStore(pconfig.IdempotencyStoreFirestore, provider)
	if err != nil {
		t.Fatalf("firestore store: %v", err)
	}
	if _, ok := store.(*FirestoreStore); !ok {
		t.Fatalf("expected *FirestoreStore, got %T", store)
	}

	if store, err := NewStore(pconfig.IdempotencyStoreFirestore, nil); err == nil || store != nil {
		t.Fatalf("expected error without provider, got %v / %v", store, err)
	}
	if _, err := NewStore("redis", provider); err == nil {
		t.Fatalf("expected unknown backend to be rejected")
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	res, err := store.Reserve(ctx, "key-1", "fp", fixedTime, time.Hour)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %+v (%v)", res, err)
	}
	if res, _ := store.Reserve(ctx, "key-1", "fp", fixedTime, time.Hour); res.State != ReservationStatePending {
		t.Fatalf("expected pending reservation, got %v", res.State)
	}
	if _, err := store.Reserve(ctx, "key-1", "other", fixedTime, time.Hour); err != ErrFingerprintMismatch {
		t.Fatalf("expected fingerprint mismatch, got %v", err)
	}

	if err := store.SaveResponse(ctx, "key-1", "fp", Response{Status: 201, Body: []byte(`{"id":"ord_1"}`)}, fixedTime, time.Hour); err != nil {
		t.Fatalf("save response: %v", err)
	}
	res, err = store.Reserve(ctx, "key-1", "fp", fixedTime.Add(time.Minute), time.Hour)
	if err != nil || res.State != ReservationStateCompleted || res.Record.ResponseStatus != 201 {
		t.Fatalf("expected completed replay, got %+v (%v)", res, err)
	}

	removed, err := store.CleanupExpired(ctx, fixedTime.Add(2*time.Hour), 0)
	if err != nil || removed != 1 {
		t.Fatalf("expected one expired record removed, got %d (%v)", removed, err)
	}
	if res, _ := store.Reserve(ctx, "key-1", "other", fixedTime.Add(2*time.Hour), time.Hour); res.State != ReservationStateNew {
		t.Fatalf("expired key must be reusable, got %v", res.State)
	}
}
