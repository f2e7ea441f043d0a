package domain

// Fallback values when neither the off-chain document nor the on-chain
// descriptor carries a field.
const (
	UnknownTokenName   = "Unknown Token"
	UnknownTokenSymbol = "UNKNOWN"
)

// TokenMeta represents resolved descriptive metadata for a token mint.
// Immutable once fetched; cached with FetchedAt for TTL checks.
type TokenMeta struct {
	Mint      string `json:"address"`  // token mint address
	Decimals  int    `json:"decimals"` // from the SPL mint account
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Image     string `json:"image"` // off-chain image URI, may be empty
	FetchedAt int64  `json:"-"`     // when metadata was resolved (ms)
}
