package storage

import (
	"context"

	"escrow-gateway/internal/domain"
)

// TokenMetaStore is the backing store of the metadata cache. Entries carry
// the resolution timestamp; freshness (TTL) is decided by the caller, so an
// expired entry is evicted logically, not physically.
type TokenMetaStore interface {
	// Get retrieves cached metadata by mint. Returns ErrNotFound if absent.
	Get(ctx context.Context, mint string) (*domain.TokenMeta, error)

	// Put stores metadata for a mint, unconditionally overwriting any
	// existing entry.
	Put(ctx context.Context, meta *domain.TokenMeta) error
}
