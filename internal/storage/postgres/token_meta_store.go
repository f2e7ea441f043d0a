package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/storage"
)

// TokenMetaStore implements storage.TokenMetaStore using PostgreSQL.
// Survives restarts, so a warm metadata cache carries across deploys.
type TokenMetaStore struct {
	pool *Pool
}

// NewTokenMetaStore creates a new TokenMetaStore.
func NewTokenMetaStore(pool *Pool) *TokenMetaStore {
	return &TokenMetaStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenMetaStore = (*TokenMetaStore)(nil)

// Get retrieves cached metadata by mint. Returns ErrNotFound if absent.
func (s *TokenMetaStore) Get(ctx context.Context, mint string) (*domain.TokenMeta, error) {
	query := `
		SELECT mint, decimals, name, symbol, image, fetched_at
		FROM token_meta_cache
		WHERE mint = $1
	`

	row := s.pool.QueryRow(ctx, query, mint)
	m, err := scanTokenMeta(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token metadata: %w", err)
	}
	return m, nil
}

// Put stores metadata for a mint, overwriting any existing entry.
func (s *TokenMetaStore) Put(ctx context.Context, meta *domain.TokenMeta) error {
	if meta == nil || meta.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_meta_cache (mint, decimals, name, symbol, image, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (mint) DO UPDATE SET
			decimals = EXCLUDED.decimals,
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			image = EXCLUDED.image,
			fetched_at = EXCLUDED.fetched_at
	`

	_, err := s.pool.Exec(ctx, query,
		meta.Mint,
		meta.Decimals,
		meta.Name,
		meta.Symbol,
		meta.Image,
		meta.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("put token metadata: %w", err)
	}
	return nil
}

// scanTokenMeta scans a single row into TokenMeta.
func scanTokenMeta(row pgx.Row) (*domain.TokenMeta, error) {
	var m domain.TokenMeta

	err := row.Scan(
		&m.Mint,
		&m.Decimals,
		&m.Name,
		&m.Symbol,
		&m.Image,
		&m.FetchedAt,
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
