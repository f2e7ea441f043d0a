// Package escrow derives the action a viewer may take on an escrow record,
// runs the confirmation/submission lifecycle for that action, and maintains
// the in-memory escrow list refreshed from chain.
package escrow

import (
	"context"

	"escrow-gateway/internal/domain"
)

// ProgramClient is the on-chain escrow program collaborator. All three calls
// are opaque, fallible remote operations.
type ProgramClient interface {
	// List returns every open escrow account of the program.
	List(ctx context.Context) ([]domain.EscrowRecord, error)

	// Submit executes a close or accept against the record and returns the
	// transaction signature once it is confirmed.
	Submit(ctx context.Context, action domain.EscrowAction, rec domain.EscrowRecord) (string, error)

	// Create opens a new escrow offering amountARaw of mintA for amountBRaw
	// of mintB and returns the transaction signature.
	Create(ctx context.Context, mintA, mintB string, amountARaw, amountBRaw uint64) (string, error)
}

// Decide derives the permitted action purely from the viewer identity and the
// record's initializer. An absent viewer gets ActionNotConnected, the
// initializer gets ActionClose, everyone else gets ActionAccept.
func Decide(viewer string, rec domain.EscrowRecord) domain.EscrowAction {
	switch {
	case viewer == "":
		return domain.ActionNotConnected
	case viewer == rec.Initializer:
		return domain.ActionClose
	default:
		return domain.ActionAccept
	}
}
