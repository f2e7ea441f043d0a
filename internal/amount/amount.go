// Package amount converts raw integer token amounts to and from display
// values using exact base-10 arithmetic. Raw amounts on Solana exceed 2^53,
// so binary floats are never used as an intermediate representation.
package amount

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the native-asset convention (1 SOL = 1e9 lamports).
const DefaultDecimals = 9

// ParseRaw normalizes a raw integer amount from any of the source
// representations upstream APIs use: fixed-width integers, decimal strings,
// or JSON numeric literals. Negative raw amounts are rejected.
func ParseRaw(v interface{}) (decimal.Decimal, error) {
	var d decimal.Decimal

	switch raw := v.(type) {
	case uint64:
		d = decimal.NewFromUint64(raw)
	case int64:
		d = decimal.NewFromInt(raw)
	case int:
		d = decimal.NewFromInt(int64(raw))
	case json.Number:
		var err error
		d, err = decimal.NewFromString(raw.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse raw amount %q: %w", raw.String(), err)
		}
	case string:
		var err error
		d, err = decimal.NewFromString(raw)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parse raw amount %q: %w", raw, err)
		}
	case float64:
		d = decimal.NewFromFloat(raw)
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported raw amount type %T", v)
	}

	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("negative raw amount %s", d.String())
	}
	return d, nil
}

// ToUi converts a raw integer amount to its display value: raw / 10^decimals.
func ToUi(raw decimal.Decimal, decimals int) decimal.Decimal {
	return raw.Shift(int32(-decimals))
}

// ToRaw is the inverse of ToUi: ui * 10^decimals.
func ToRaw(ui decimal.Decimal, decimals int) decimal.Decimal {
	return ui.Shift(int32(decimals))
}

// UiFromRaw parses a raw amount and converts it in one step.
func UiFromRaw(v interface{}, decimals int) (decimal.Decimal, error) {
	raw, err := ParseRaw(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return ToUi(raw, decimals), nil
}
