package solana

import "encoding/json"

// SearchAssetsResult is the payload of a searchAssets call for fungible
// tokens with the native balance included.
type SearchAssetsResult struct {
	Total         int            `json:"total"`
	Items         []Asset        `json:"items"`
	NativeBalance *NativeBalance `json:"nativeBalance"`
}

// Asset is a single fungible holding returned by searchAssets.
type Asset struct {
	ID        string     `json:"id"` // mint address
	TokenInfo *TokenInfo `json:"token_info"`
}

// TokenInfo carries the raw balance and decimals of an asset.
// Balance is kept as json.Number: raw amounts exceed float64 precision.
type TokenInfo struct {
	Balance  json.Number `json:"balance"`
	Decimals int         `json:"decimals"`
}

// NativeBalance is the wallet's intrinsic SOL balance in lamports.
type NativeBalance struct {
	Lamports json.Number `json:"lamports"`
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
