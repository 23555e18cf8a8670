// Package aave implements the tracker-liquidator control loop for an
// Aave-v2-style lending protocol: it watches borrower accounts, detects
// positions that have crossed the liquidation threshold, and races to
// submit a liquidation transaction ahead of competing liquidators.
package aave

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// oneRay is the fixed-point scale (1e18) used throughout the health-factor
// and price arithmetic, matching the protocol's own accounting precision.
var oneRay = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// HealthFactorBoundary is the health factor at or below which a position is
// liquidatable.
var HealthFactorBoundary = new(big.Int).Set(oneRay)

// Market mirrors one reserve asset tracked by the Market Catalog.
type Market struct {
	AssetID               common.Address
	Symbol                string
	Decimals              uint8
	LiquidationThreshold  uint64 // basis points, 0..10000
	LiquidationBonus      uint64 // basis points, >= 10000
	ATokenID              common.Address
	VariableDebtTokenID   common.Address
	Price                 *big.Int // 1e18-fixed, numéraire units
	VariableDebtIndex     *big.Int // ray-precision accrual index, diagnostic only
}

// pow10 returns 10^decimals as a *big.Int.
func pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// AccountSummary is a borrower's aggregate position as reported by the
// pool contract's single summary read.
type AccountSummary struct {
	TotalCollateral            *big.Int
	TotalDebt                  *big.Int
	AvailableBorrow            *big.Int
	CurrentLiquidationThreshold *big.Int
	HealthFactor                *big.Int
}

// Liquidatable reports whether the account's health factor has crossed the
// protocol's liquidation boundary (HF <= 1e18).
func (s *AccountSummary) Liquidatable() bool {
	return s.HealthFactor.Cmp(HealthFactorBoundary) <= 0
}

// PositionLeg is a borrower's balance in a single market.
type PositionLeg struct {
	ATokenBalance   *big.Int
	VariableDebt    *big.Int
	StableDebt      *big.Int
	UsedAsCollateral bool
}

// EntryState is the lifecycle state of a TrackedEntry.
type EntryState int

const (
	// StateTracked is the steady state: the address is actively monitored.
	StateTracked EntryState = iota
	// StateLiquidating marks an address whose liquidation has been
	// dispatched; it is removed from the tracked set the moment the
	// dispatch is issued.
	StateLiquidating
	// StateRemoved is terminal within a run.
	StateRemoved
)

func (s EntryState) String() string {
	switch s {
	case StateTracked:
		return "tracked"
	case StateLiquidating:
		return "liquidating"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// TrackedEntry is one address under active observation.
type TrackedEntry struct {
	Address         common.Address
	LastHealthFactor *big.Int
	LastCheckedAt    time.Time
	State            EntryState
}

// LiquidationPlan is the transient decision the Liquidator submits on-chain.
type LiquidationPlan struct {
	Borrower         common.Address
	DebtMarket       Market
	CollateralMarket Market
	RepayAmount      *big.Int
	GasPriceWei      *big.Int
	EstimatedReward  *big.Int
	SwapFeeTier      uint32
	DispatchedAt     time.Time
}
