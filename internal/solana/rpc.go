package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface used by the gateway.
type RPCClient interface {
	// SearchAssets retrieves all fungible holdings plus the native balance
	// for an owner (DAS method, Helius-compatible endpoints).
	SearchAssets(ctx context.Context, ownerAddress string) (*SearchAssetsResult, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance retrieves the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}
