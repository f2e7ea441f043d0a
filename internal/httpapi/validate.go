package httpapi

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// validWalletAddress reports whether s is a plausible wallet address: base58,
// 32 bytes, and a point on the ed25519 curve. Wallet keys are always on
// curve; program-derived addresses are not.
func validWalletAddress(s string) bool {
	point, ok := decodePubkey(s)
	if !ok {
		return false
	}
	return isOnCurve(point)
}

// validTokenAddress reports whether s is a plausible mint address: base58 and
// 32 bytes. Mints may be program-derived, so no curve check.
func validTokenAddress(s string) bool {
	_, ok := decodePubkey(s)
	return ok
}

func decodePubkey(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != 32 {
		return nil, false
	}
	return raw, true
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
