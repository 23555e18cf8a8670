package aave

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountOracle reads a borrower's aggregate position straight from the
// lending pool contract, and per-market legs from the reserve's token
// contracts. It never caches: a stale health factor is the one thing this
// agent cannot afford to act on.
type AccountOracle struct {
	pool ReserveReader
}

// NewAccountOracle returns an oracle reading through pool.
func NewAccountOracle(pool ReserveReader) *AccountOracle {
	return &AccountOracle{pool: pool}
}

// GetAccountSummary reads a borrower's aggregate collateral, debt, and
// health factor. A nil result means the upstream call failed or returned
// malformed data; no error is surfaced, and the Tracker answers a nil
// summary by removing the borrower from the tracked set.
func (o *AccountOracle) GetAccountSummary(ctx context.Context, borrower common.Address) *AccountSummary {
	out, err := o.pool.Call(ctx, nil, "getUserAccountData", borrower)
	if err != nil || len(out) < 6 {
		return nil
	}

	totalCollateral, _ := out[0].(*big.Int)
	totalDebt, _ := out[1].(*big.Int)
	availableBorrow, _ := out[2].(*big.Int)
	currentLiqThreshold, _ := out[3].(*big.Int)
	healthFactor, _ := out[5].(*big.Int)

	if totalCollateral == nil || totalDebt == nil || healthFactor == nil {
		return nil
	}

	return &AccountSummary{
		TotalCollateral:             totalCollateral,
		TotalDebt:                   totalDebt,
		AvailableBorrow:             availableBorrow,
		CurrentLiquidationThreshold: currentLiqThreshold,
		HealthFactor:                healthFactor,
	}
}

// GetPositionLeg reads a borrower's balance in a single reserve, used
// during liquidation planning to size the collateral seizure and confirm
// which side of the position carries the debt being repaid.
func (o *AccountOracle) GetPositionLeg(ctx context.Context, aTokenOrDebtToken ReserveReader, borrower common.Address) *PositionLeg {
	out, err := aTokenOrDebtToken.Call(ctx, nil, "balanceOf", borrower)
	if err != nil || len(out) < 1 {
		return nil
	}
	balance, _ := out[0].(*big.Int)
	if balance == nil {
		return nil
	}
	return &PositionLeg{ATokenBalance: balance}
}
