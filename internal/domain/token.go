package domain

// WrappedSOLMint is the mint address of the wrapped-SOL token.
// Native SOL balances are merged into a holding of this mint.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// NativeDecimals is the decimal exponent of the native asset (1 SOL = 1e9 lamports).
const NativeDecimals = 9

// TokenHolding represents a single fungible token position of a wallet.
// Field names mirror the token account balance shape the dashboard consumes.
type TokenHolding struct {
	Mint           string  `json:"address"`        // token mint address
	Amount         string  `json:"amount"`         // raw integer amount as decimal string
	Decimals       int     `json:"decimals"`       // decimal exponent, fixed per mint
	UiAmount       float64 `json:"uiAmount"`       // display amount, rounded
	UiAmountString string  `json:"uiAmountString"` // display amount, exact decimal string
}
