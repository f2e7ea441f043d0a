package memory

import (
	"context"
	"sync"

	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/storage"
)

// TokenMetaStore is an in-memory implementation of storage.TokenMetaStore.
// Process-lifetime; entries live until overwritten.
type TokenMetaStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.TokenMeta
}

// NewTokenMetaStore creates a new in-memory token metadata store.
func NewTokenMetaStore() *TokenMetaStore {
	return &TokenMetaStore{
		byMint: make(map[string]*domain.TokenMeta),
	}
}

// Get retrieves cached metadata by mint. Returns ErrNotFound if absent.
func (s *TokenMetaStore) Get(_ context.Context, mint string) (*domain.TokenMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	metaCopy := *m
	return &metaCopy, nil
}

// Put stores metadata for a mint, overwriting any existing entry.
func (s *TokenMetaStore) Put(_ context.Context, meta *domain.TokenMeta) error {
	if meta == nil || meta.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metaCopy := *meta
	s.byMint[meta.Mint] = &metaCopy
	return nil
}

var _ storage.TokenMetaStore = (*TokenMetaStore)(nil)
