package aave

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"liquidationbot/internal/db"
	"liquidationbot/internal/util"
	"liquidationbot/pkg/contractclient"
	"liquidationbot/pkg/mempool"
)

// liquidatorSubmitter is the subset of contractclient.ContractClient the
// Liquidator needs to submit the wrapper call and later re-sign it at a
// bumped gas price during a mempool race, reusing the original nonce so
// only the highest-fee resubmission is ever mined.
type liquidatorSubmitter interface {
	PendingNonce(ctx context.Context, from common.Address) (uint64, error)
	SendAt(ctx context.Context, txType contractclient.TxType, gasLimit *uint64, gasPrice *big.Int, nonce uint64, from common.Address, privateKey *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error)
}

// gasLimitCap is the gas limit passed on every liquidation submission,
// sized generously for the wrapper's flash-loan/swap/repay round trip.
const gasLimitCap = uint64(28_000_000)

// Liquidator selects the most profitable debt/collateral market pair for
// a liquidatable borrower, sizes the repay under the close-factor rule,
// and submits the on-chain liquidation call, then races the mempool for
// the submitted transaction's confirmation.
type Liquidator struct {
	submitter  liquidatorSubmitter
	fromAddr   common.Address
	privateKey *ecdsa.PrivateKey
	swapFees   *SwapFeeClassifier
	recorder   *db.LiquidationRecorder
	watchdog   *mempool.Watchdog
	dumpDir    string
}

// NewLiquidator wires a Liquidator against its on-chain submitter,
// signing key, swap-fee classifier, and optional persistence/watchdog
// collaborators (both may be nil in tests that only exercise selection
// math).
func NewLiquidator(
	submitter liquidatorSubmitter,
	fromAddr common.Address,
	privateKey *ecdsa.PrivateKey,
	swapFees *SwapFeeClassifier,
	recorder *db.LiquidationRecorder,
	watchdog *mempool.Watchdog,
	dumpDir string,
) *Liquidator {
	return &Liquidator{
		submitter:  submitter,
		fromAddr:   fromAddr,
		privateKey: privateKey,
		swapFees:   swapFees,
		recorder:   recorder,
		watchdog:   watchdog,
		dumpDir:    dumpDir,
	}
}

// scoredMarket pairs a market with its ranking score for selection.
type scoredMarket struct {
	market Market
	score  *big.Int
}

// SelectDebtMarket picks the market carrying the largest numéraire-valued
// variable debt for the borrower: score = variable_debt * price / 10^decimals.
// Ties break by lexicographically smallest asset address.
func SelectDebtMarket(markets []Market, variableDebt map[common.Address]*big.Int) (Market, bool) {
	scored := make([]scoredMarket, 0, len(markets))
	for _, m := range markets {
		debt, ok := variableDebt[m.AssetID]
		if !ok || debt == nil || debt.Sign() == 0 {
			continue
		}
		score := new(big.Int).Mul(debt, m.Price)
		score.Quo(score, pow10(m.Decimals))
		scored = append(scored, scoredMarket{market: m, score: score})
	}
	return pickHighestScore(scored)
}

// SelectCollateralMarket picks the market maximizing bonus capture:
// score = a_token_balance * price * liquidation_bonus / 10^decimals.
func SelectCollateralMarket(markets []Market, aTokenBalance map[common.Address]*big.Int) (Market, bool) {
	scored := make([]scoredMarket, 0, len(markets))
	for _, m := range markets {
		balance, ok := aTokenBalance[m.AssetID]
		if !ok || balance == nil || balance.Sign() == 0 {
			continue
		}
		score := new(big.Int).Mul(balance, m.Price)
		score.Mul(score, new(big.Int).SetUint64(m.LiquidationBonus))
		score.Quo(score, pow10(m.Decimals))
		scored = append(scored, scoredMarket{market: m, score: score})
	}
	return pickHighestScore(scored)
}

func pickHighestScore(scored []scoredMarket) (Market, bool) {
	if len(scored) == 0 {
		return Market{}, false
	}
	best := scored[0]
	for _, candidate := range scored[1:] {
		cmp := candidate.score.Cmp(best.score)
		if cmp > 0 || (cmp == 0 && bytes.Compare(candidate.market.AssetID.Bytes(), best.market.AssetID.Bytes()) < 0) {
			best = candidate
		}
	}
	return best.market, true
}

// RepayAmount applies the protocol's 50% close-factor rule: half the
// chosen debt market's variable debt, rounded down.
func RepayAmount(variableDebt *big.Int) *big.Int {
	return new(big.Int).Quo(variableDebt, big.NewInt(2))
}

// EstimatedReward computes the diagnostic-only collateral-denominated
// reward estimate:
// reward = repay * price(debt) * 10^decimals(coll) / 10^decimals(debt) / price(coll) * bonus / 10000
func EstimatedReward(repayAmount *big.Int, debtMarket, collateralMarket Market) *big.Int {
	reward := new(big.Int).Mul(repayAmount, debtMarket.Price)
	reward.Mul(reward, pow10(collateralMarket.Decimals))
	reward.Quo(reward, pow10(debtMarket.Decimals))
	reward.Quo(reward, collateralMarket.Price)
	reward.Mul(reward, new(big.Int).SetUint64(collateralMarket.LiquidationBonus))
	reward.Quo(reward, big.NewInt(10000))
	return reward
}

// debtValueInNumeraire converts repayAmount (in debt-asset base units) into
// a float approximation of its numéraire value, the input the gas-bid
// curve is evaluated against.
func debtValueInNumeraire(repayAmount *big.Int, debtMarket Market) float64 {
	scaled := new(big.Int).Mul(repayAmount, debtMarket.Price)
	scaled.Quo(scaled, pow10(debtMarket.Decimals))
	value := new(big.Float).Quo(new(big.Float).SetInt(scaled), new(big.Float).SetInt(oneRay))
	f, _ := value.Float64()
	return f
}

// BuildPlan selects markets, sizes the repay, estimates reward, and
// chooses a gas price for a liquidatable borrower, without submitting
// anything on-chain.
func BuildPlan(
	borrower common.Address,
	markets []Market,
	variableDebt map[common.Address]*big.Int,
	aTokenBalance map[common.Address]*big.Int,
	swapFees *SwapFeeClassifier,
) (*LiquidationPlan, error) {
	debtMarket, ok := SelectDebtMarket(markets, variableDebt)
	if !ok {
		return nil, fmt.Errorf("no market carries variable debt for %s", borrower.Hex())
	}
	collateralMarket, ok := SelectCollateralMarket(markets, aTokenBalance)
	if !ok {
		return nil, fmt.Errorf("no market carries collateral for %s", borrower.Hex())
	}

	repay := RepayAmount(variableDebt[debtMarket.AssetID])
	reward := EstimatedReward(repay, debtMarket, collateralMarket)

	var feeTier uint32 = FeeTierExotic
	if swapFees != nil {
		feeTier = swapFees.Tier(collateralMarket.ATokenID, debtMarket.ATokenID)
	}

	gasGwei := util.GasGweiForDebtValue(debtValueInNumeraire(repay, debtMarket))

	return &LiquidationPlan{
		Borrower:         borrower,
		DebtMarket:       debtMarket,
		CollateralMarket: collateralMarket,
		RepayAmount:      repay,
		GasPriceWei:      util.GweiToWei(gasGwei),
		EstimatedReward:  reward,
		SwapFeeTier:      feeTier,
	}, nil
}

// Submit dispatches a built plan to the on-chain liquidator wrapper,
// records the attempt, and registers the transaction with the mempool
// watchdog to race any competitor. The nonce is captured once, up front,
// and reused for every later resubmission the watchdog issues: only the
// highest-fee transaction at that nonce is ever mined, which is what
// guarantees at-most-once execution of the liquidation against this
// borrower.
func (l *Liquidator) Submit(ctx context.Context, plan *LiquidationPlan) (common.Hash, error) {
	plan.DispatchedAt = time.Now()
	gasLimit := gasLimitCap

	nonce, err := l.submitter.PendingNonce(ctx, l.fromAddr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce for liquidation of %s: %w", plan.Borrower.Hex(), err)
	}

	hash, err := l.submitter.SendAt(
		ctx, contractclient.Standard, &gasLimit, plan.GasPriceWei, nonce, l.fromAddr, l.privateKey,
		"liquidate",
		plan.Borrower, plan.DebtMarket.ATokenID, plan.CollateralMarket.ATokenID,
		plan.RepayAmount, plan.SwapFeeTier,
	)

	outcome := "submitted"
	failureReason := ""
	if err != nil {
		outcome = "submission_failed"
		failureReason = err.Error()
	}

	if l.recorder != nil {
		_ = l.recorder.Record(db.Attempt{
			Timestamp:       plan.DispatchedAt,
			Borrower:        plan.Borrower.Hex(),
			DebtAsset:       plan.DebtMarket.AssetID.Hex(),
			CollateralAsset: plan.CollateralMarket.AssetID.Hex(),
			RepayAmount:     plan.RepayAmount,
			EstimatedReward: plan.EstimatedReward,
			GasPriceWei:     plan.GasPriceWei,
			TxHash:          hash.Hex(),
			Outcome:         outcome,
			FailureReason:   failureReason,
		})
	}

	tag := util.LiquidationTag(plan.Borrower.Hex())
	if err != nil {
		log.Printf("%s submission failed after %s: %v", tag, util.Elapsed(plan.DispatchedAt), err)
		return common.Hash{}, fmt.Errorf("submit liquidation for %s: %w", plan.Borrower.Hex(), err)
	}
	log.Printf("%s submitted %s after %s", tag, hash.Hex(), util.Elapsed(plan.DispatchedAt))

	if l.watchdog != nil {
		done := l.watchdog.Track(&mempool.Race{
			Borrower:    plan.Borrower,
			GasPriceWei: plan.GasPriceWei,
			InitialHash: hash,
			Resubmit: func(ctx context.Context, gasPriceWei *big.Int) (common.Hash, error) {
				return l.submitter.SendAt(
					ctx, contractclient.Standard, &gasLimit, gasPriceWei, nonce, l.fromAddr, l.privateKey,
					"liquidate",
					plan.Borrower, plan.DebtMarket.ATokenID, plan.CollateralMarket.ATokenID,
					plan.RepayAmount, plan.SwapFeeTier,
				)
			},
		})

		// The attempt is not "done" at submission: the racing core is part
		// of it. Block until the watchdog resolves this borrower's race
		// (confirmed, exhausted, or timed out) so a caller waiting on the
		// full attempt — not just the initial broadcast — observes its end.
		select {
		case <-done:
		case <-ctx.Done():
		}
		log.Printf("%s race ended after %s", tag, util.Elapsed(plan.DispatchedAt))
	}

	return hash, nil
}
