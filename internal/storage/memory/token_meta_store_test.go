package memory

import (
	"context"
	"errors"
	"testing"

	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/storage"
)

func TestTokenMetaStore_PutAndGet(t *testing.T) {
	store := NewTokenMetaStore()
	ctx := context.Background()

	meta := &domain.TokenMeta{
		Mint:      "mint1",
		Decimals:  9,
		Name:      "TestToken",
		Symbol:    "TT",
		Image:     "https://example.com/tt.png",
		FetchedAt: 1704067200000,
	}

	if err := store.Put(ctx, meta); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, err := store.Get(ctx, "mint1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if result.Name != "TestToken" {
		t.Errorf("Name mismatch: got %s, want TestToken", result.Name)
	}

	if result.FetchedAt != 1704067200000 {
		t.Errorf("FetchedAt mismatch: got %d", result.FetchedAt)
	}
}

func TestTokenMetaStore_GetMissing(t *testing.T) {
	store := NewTokenMetaStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenMetaStore_PutOverwrites(t *testing.T) {
	store := NewTokenMetaStore()
	ctx := context.Background()

	first := &domain.TokenMeta{Mint: "mint1", Name: "Old", FetchedAt: 1000}
	second := &domain.TokenMeta{Mint: "mint1", Name: "New", FetchedAt: 2000}

	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	result, err := store.Get(ctx, "mint1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if result.Name != "New" || result.FetchedAt != 2000 {
		t.Errorf("expected overwritten entry, got %+v", result)
	}
}

func TestTokenMetaStore_PutInvalid(t *testing.T) {
	store := NewTokenMetaStore()

	if err := store.Put(context.Background(), nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}

	if err := store.Put(context.Background(), &domain.TokenMeta{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty mint, got %v", err)
	}
}

func TestTokenMetaStore_GetReturnsCopy(t *testing.T) {
	store := NewTokenMetaStore()
	ctx := context.Background()

	if err := store.Put(ctx, &domain.TokenMeta{Mint: "mint1", Name: "Original"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	first, _ := store.Get(ctx, "mint1")
	first.Name = "Mutated"

	second, _ := store.Get(ctx, "mint1")
	if second.Name != "Original" {
		t.Error("store entry was mutated through returned pointer")
	}
}
