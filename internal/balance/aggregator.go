// Package balance aggregates a wallet's fungible holdings into a single
// normalized portfolio, folding the native SOL balance into the wrapped-SOL
// entry.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/shopspring/decimal"

	"escrow-gateway/internal/amount"
	"escrow-gateway/internal/domain"
	"escrow-gateway/internal/observability"
	"escrow-gateway/internal/solana"
)

// uiPrecision is the fixed display precision of merged UI amounts.
const uiPrecision = 9

// Aggregation errors.
var (
	// ErrBalanceFetch is returned when the balance source is unreachable or
	// returns no result. Aggregation is all-or-nothing: no partial portfolio.
	ErrBalanceFetch = errors.New("failed to fetch balances")

	// ErrRefreshInFlight is returned when an aggregation for the same wallet
	// is already running. Advisory only; suppressed calls are not queued.
	ErrRefreshInFlight = errors.New("balance refresh already in flight")
)

// Aggregator fetches and normalizes wallet holdings.
type Aggregator struct {
	rpc    solana.RPCClient
	logger *log.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewAggregator creates an Aggregator over the given RPC client.
func NewAggregator(rpc solana.RPCClient, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(os.Stdout, "[balance] ", log.LstdFlags|log.Lshortfile)
	}
	return &Aggregator{
		rpc:      rpc,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

// Aggregate returns all fungible holdings of the wallet with the native
// balance merged into (or synthesized as) the wrapped-SOL entry. Result
// order carries no guarantee for the merged entry.
func (a *Aggregator) Aggregate(ctx context.Context, owner string) ([]domain.TokenHolding, error) {
	a.mu.Lock()
	if a.inFlight[owner] {
		a.mu.Unlock()
		return nil, ErrRefreshInFlight
	}
	a.inFlight[owner] = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.inFlight, owner)
		a.mu.Unlock()
	}()

	result, err := a.rpc.SearchAssets(ctx, owner)
	if err != nil {
		observability.RecordBalanceFetch("error", 0)
		return nil, fmt.Errorf("search assets for %s: %v: %w", owner, err, ErrBalanceFetch)
	}

	holdings := make([]domain.TokenHolding, 0, len(result.Items))
	for _, item := range result.Items {
		if item.TokenInfo == nil {
			continue
		}

		raw, err := amount.ParseRaw(item.TokenInfo.Balance)
		if err != nil {
			a.logger.Printf("skip %s: %v", item.ID, err)
			continue
		}

		ui := amount.ToUi(raw, item.TokenInfo.Decimals)
		holdings = append(holdings, domain.TokenHolding{
			Mint:           item.ID,
			Amount:         raw.String(),
			Decimals:       item.TokenInfo.Decimals,
			UiAmount:       ui.InexactFloat64(),
			UiAmountString: ui.String(),
		})
	}

	if result.NativeBalance != nil {
		lamports, err := amount.ParseRaw(result.NativeBalance.Lamports)
		if err != nil {
			observability.RecordBalanceFetch("error", 0)
			return nil, fmt.Errorf("parse native balance: %v: %w", err, ErrBalanceFetch)
		}
		if lamports.IsPositive() {
			holdings = mergeNative(holdings, lamports)
		}
	}

	observability.RecordBalanceFetch("success", len(holdings))
	return holdings, nil
}

// mergeNative folds the lamport balance into an existing wrapped-SOL holding
// or appends a synthesized one. Raw amounts are summed exactly; the merged UI
// amount is the sum of the two already-derived UI values rounded to 9 digits,
// NOT re-derived from the raw sum. The two can differ by the display rounding
// epsilon and the UI-sum form is what the dashboard has always shown.
func mergeNative(holdings []domain.TokenHolding, lamports decimal.Decimal) []domain.TokenHolding {
	nativeUi := amount.ToUi(lamports, domain.NativeDecimals)

	for i := range holdings {
		if holdings[i].Mint != domain.WrappedSOLMint {
			continue
		}

		existingRaw, err := decimal.NewFromString(holdings[i].Amount)
		if err != nil {
			break // corrupt entry, fall through to synthesize
		}
		existingUi, err := decimal.NewFromString(holdings[i].UiAmountString)
		if err != nil {
			break
		}

		mergedUi := existingUi.Add(nativeUi).Round(uiPrecision)

		holdings[i].Amount = existingRaw.Add(lamports).String()
		holdings[i].UiAmountString = mergedUi.String()
		holdings[i].UiAmount = mergedUi.InexactFloat64()

		observability.RecordNativeMerge()
		return holdings
	}

	return append(holdings, domain.TokenHolding{
		Mint:           domain.WrappedSOLMint,
		Amount:         lamports.String(),
		Decimals:       domain.NativeDecimals,
		UiAmount:       nativeUi.InexactFloat64(),
		UiAmountString: nativeUi.String(),
	})
}
