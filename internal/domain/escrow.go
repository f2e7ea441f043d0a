package domain

// EscrowRecord is the client-side view of an on-chain escrow account.
// Created by the escrow program; read-only here. The in-memory list is
// replaced only by a full re-fetch after a settled close/accept.
type EscrowRecord struct {
	Address              string  `json:"address"`     // escrow account address
	Seed                 uint64  `json:"seed"`        // PDA derivation seed
	Bump                 uint8   `json:"bump"`        // PDA bump
	Initializer          string  `json:"initializer"` // wallet that created the escrow
	MintA                string  `json:"mintA"`       // deposited token mint
	MintB                string  `json:"mintB"`       // requested token mint
	InitializerAmountRaw uint64  `json:"-"`
	InitializerAmount    float64 `json:"initializerAmount"` // ui amount of mintA deposited
	TakerAmountRaw       uint64  `json:"-"`
	TakerAmount          float64 `json:"takerAmount"` // ui amount of mintB requested
}

// EscrowAction is the lifecycle action a viewer may take on an escrow.
type EscrowAction string

const (
	ActionNotConnected EscrowAction = "NOT_CONNECTED"
	ActionClose        EscrowAction = "CLOSE"
	ActionAccept       EscrowAction = "ACCEPT"
)

// String returns the string representation of EscrowAction.
func (a EscrowAction) String() string {
	return string(a)
}

// IsValid checks if the action is a valid value.
func (a EscrowAction) IsValid() bool {
	return a == ActionNotConnected || a == ActionClose || a == ActionAccept
}
