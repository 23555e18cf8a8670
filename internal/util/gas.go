package util

import (
	"math"
	"math/big"
)

// gweiScale is 10^9, the wei-per-gwei conversion factor.
var gweiScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(9), nil)

// maxGasGwei is the hard cap the bidding formula never exceeds.
const maxGasGwei = 10000

const (
	gasFormulaCoefficient = 29.9895
	gasFormulaExponent    = 3.50691
)

// GasGweiForDebtValue reproduces the liquidator's gas-bid curve bit-exactly:
// gas_gwei = min(10000, floor(29.9895 * exp(3.50691 * debtEth))), where
// debtEth is the repaid debt's value expressed as a float in numéraire
// units (i.e. 1e18-scaled integer value / 1e18). The formula is a fixed
// design choice, not a computed optimum, so the constants must reproduce
// exactly rather than be "simplified."
func GasGweiForDebtValue(debtEth float64) uint64 {
	bid := math.Floor(gasFormulaCoefficient * math.Exp(gasFormulaExponent*debtEth))
	if bid > maxGasGwei || math.IsInf(bid, 1) {
		return maxGasGwei
	}
	if bid < 0 {
		return 0
	}
	return uint64(bid)
}

// GweiToWei converts a gwei quantity to its wei *big.Int representation.
func GweiToWei(gwei uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gwei), gweiScale)
}

// BumpGasPrice computes floor(competitorWei * 11 / 10), the mempool
// watchdog's replace-by-fee bid.
func BumpGasPrice(competitorWei *big.Int) *big.Int {
	bumped := new(big.Int).Mul(competitorWei, big.NewInt(11))
	return bumped.Quo(bumped, big.NewInt(10))
}
