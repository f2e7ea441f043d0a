// Package metadata resolves descriptive token metadata: the on-chain
// Metaplex descriptor points to an off-chain JSON document; resolved values
// are cached with a TTL so repeated lookups skip the network.
package metadata

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	sol "github.com/gagliardetto/solana-go"

	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/observability"
	"escrow-gateway/internal/solana"
	"escrow-gateway/internal/storage"
)

// DefaultTTL is how long a cached resolution stays fresh.
const DefaultTTL = 24 * time.Hour

// maxDocumentSize bounds the off-chain JSON document read.
const maxDocumentSize = 1 << 20

// Resolution errors.
var (
	// ErrNoDescriptor is returned when a mint has no on-chain metadata account.
	ErrNoDescriptor = errors.New("token has no metadata descriptor")

	// ErrUnreachableMetadata is returned when the off-chain document cannot
	// be fetched or parsed. Soft failure: the token resolves to nil.
	ErrUnreachableMetadata = errors.New("metadata document unreachable")
)

// Resolver resolves token metadata and is the sole writer of the cache store.
type Resolver struct {
	rpc    solana.RPCClient
	store  storage.TokenMetaStore
	client *http.Client
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTTL sets the cache time-to-live.
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.ttl = ttl
	}
}

// WithClock sets the time source used for TTL checks.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithHTTPClient sets the client used for off-chain document fetches.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithLogger sets the resolver logger.
func WithLogger(logger *log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver backed by the given RPC client and cache store.
func NewResolver(rpc solana.RPCClient, store storage.TokenMetaStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		rpc:    rpc,
		store:  store,
		client: &http.Client{Timeout: 15 * time.Second},
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: log.New(os.Stdout, "[metadata] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns metadata for a mint, served from the cache when fresh.
// A missing descriptor yields ErrNoDescriptor; an unreachable off-chain
// document yields ErrUnreachableMetadata. Both are soft failures for batch
// callers.
func (r *Resolver) Resolve(ctx context.Context, mint string) (*domain.TokenMeta, error) {
	nowMs := r.now().UnixMilli()

	if cached, err := r.store.Get(ctx, mint); err == nil {
		if nowMs-cached.FetchedAt < r.ttl.Milliseconds() {
			observability.RecordCacheHit()
			return cached, nil
		}
	}
	observability.RecordCacheMiss()

	desc, err := r.fetchDescriptor(ctx, mint)
	if err != nil {
		observability.RecordMetadataResolution("descriptor_error")
		return nil, err
	}

	doc, err := r.fetchDocument(ctx, desc.URI)
	if err != nil {
		observability.RecordMetadataResolution("document_error")
		r.logger.Printf("fetch document for %s: %v", mint, err)
		return nil, err
	}

	meta := &domain.TokenMeta{
		Mint:      mint,
		Decimals:  desc.Decimals,
		Name:      firstNonEmpty(doc.Name, desc.Name, domain.UnknownTokenName),
		Symbol:    firstNonEmpty(doc.Symbol, desc.Symbol, domain.UnknownTokenSymbol),
		Image:     doc.Image,
		FetchedAt: nowMs,
	}

	// Overwrites any expired entry unconditionally. A store failure is not
	// fatal: the caller still gets the resolved metadata.
	if err := r.store.Put(ctx, meta); err != nil {
		r.logger.Printf("cache put for %s: %v", mint, err)
	}

	observability.RecordMetadataResolution("success")
	return meta, nil
}

// ResolveBatch resolves all mints concurrently and independently. The result
// slice preserves input order; a failed slot is nil and never aborts the rest.
func (r *Resolver) ResolveBatch(ctx context.Context, mints []string) []*domain.TokenMeta {
	results := make([]*domain.TokenMeta, len(mints))

	var wg sync.WaitGroup
	for i, mint := range mints {
		wg.Add(1)
		go func(i int, mint string) {
			defer wg.Done()

			meta, err := r.Resolve(ctx, mint)
			if err != nil {
				r.logger.Printf("resolve %s: %v", mint, err)
				return
			}
			results[i] = meta
		}(i, mint)
	}
	wg.Wait()

	return results
}

// descriptor is the on-chain side of a resolution: Metaplex metadata account
// fields plus the decimals from the SPL mint account.
type descriptor struct {
	Name     string
	Symbol   string
	URI      string
	Decimals int
}

// fetchDescriptor reads the Metaplex metadata PDA and the mint account.
func (r *Resolver) fetchDescriptor(ctx context.Context, mint string) (*descriptor, error) {
	mintKey, err := sol.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	metaAddr, _, err := sol.FindTokenMetadataAddress(mintKey)
	if err != nil {
		return nil, fmt.Errorf("derive metadata address: %w", err)
	}

	account, err := r.rpc.GetAccountInfo(ctx, metaAddr.String())
	if err != nil {
		return nil, fmt.Errorf("get metadata account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("mint %s: %w", mint, ErrNoDescriptor)
	}

	data, err := base64.StdEncoding.DecodeString(account.Data)
	if err != nil {
		return nil, fmt.Errorf("decode metadata account data: %w", err)
	}

	desc, err := parseMetadataAccount(data)
	if err != nil {
		return nil, fmt.Errorf("parse metadata account: %w", err)
	}

	desc.Decimals, err = r.fetchMintDecimals(ctx, mint)
	if err != nil {
		return nil, err
	}

	return desc, nil
}

// parseMetadataAccount decodes the borsh-encoded Metaplex metadata account:
// key u8, update authority (32), mint (32), then zero-padded name/symbol/uri.
func parseMetadataAccount(data []byte) (*descriptor, error) {
	dec := bin.NewBorshDecoder(data)

	if _, err := dec.ReadUint8(); err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	if _, err := dec.ReadNBytes(32); err != nil {
		return nil, fmt.Errorf("read update authority: %w", err)
	}
	if _, err := dec.ReadNBytes(32); err != nil {
		return nil, fmt.Errorf("read mint: %w", err)
	}

	name, err := dec.ReadString()
	if err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	symbol, err := dec.ReadString()
	if err != nil {
		return nil, fmt.Errorf("read symbol: %w", err)
	}
	uri, err := dec.ReadString()
	if err != nil {
		return nil, fmt.Errorf("read uri: %w", err)
	}

	return &descriptor{
		Name:   strings.TrimRight(name, "\x00"),
		Symbol: strings.TrimRight(symbol, "\x00"),
		URI:    strings.TrimRight(uri, "\x00"),
	}, nil
}

// SPL mint layout: COption<Pubkey> mint authority (36), supply u64 (8),
// then decimals at offset 44.
const mintDecimalsOffset = 44

// fetchMintDecimals reads the decimal exponent from the SPL mint account.
func (r *Resolver) fetchMintDecimals(ctx context.Context, mint string) (int, error) {
	account, err := r.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return 0, fmt.Errorf("get mint account: %w", err)
	}
	if account == nil {
		return 0, fmt.Errorf("mint account %s: %w", mint, ErrNoDescriptor)
	}

	data, err := base64.StdEncoding.DecodeString(account.Data)
	if err != nil {
		return 0, fmt.Errorf("decode mint account data: %w", err)
	}
	if len(data) <= mintDecimalsOffset {
		return 0, fmt.Errorf("mint account data too short: %d bytes", len(data))
	}

	return int(data[mintDecimalsOffset]), nil
}

// offchainDoc is the JSON document referenced by the descriptor URI.
type offchainDoc struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  string `json:"image"`
}

// fetchDocument retrieves and parses the off-chain JSON document.
func (r *Resolver) fetchDocument(ctx context.Context, uri string) (*offchainDoc, error) {
	if uri == "" {
		return nil, fmt.Errorf("empty descriptor uri: %w", ErrUnreachableMetadata)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create document request: %w", ErrUnreachableMetadata)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", uri, err, ErrUnreachableMetadata)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d: %w", uri, resp.StatusCode, ErrUnreachableMetadata)
	}

	var doc offchainDoc
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", uri, err, ErrUnreachableMetadata)
	}

	return &doc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
