package aave

import "github.com/ethereum/go-ethereum/common"

// Fee tiers mirror a Uniswap-v3-style pool fee, expressed in hundredths of
// a basis point, used to estimate the swap cost of converting seized
// collateral back into the repay asset.
const (
	FeeTierStable = uint32(500)
	FeeTierMid    = uint32(3000)
	FeeTierExotic = uint32(10000)
)

// SwapFeeClassifier picks a fee tier for a collateral/debt asset pair from
// operator-maintained allow-lists: stable-to-stable pairs get the cheapest
// tier, any pair touching an exotic token gets the priciest, and everything
// else falls to the mid tier.
type SwapFeeClassifier struct {
	stablecoins map[common.Address]struct{}
	exotics     map[common.Address]struct{}
}

// NewSwapFeeClassifier builds a classifier from the configured stablecoin
// and exotic-token allow-lists.
func NewSwapFeeClassifier(stablecoins, exotics []common.Address) *SwapFeeClassifier {
	c := &SwapFeeClassifier{
		stablecoins: make(map[common.Address]struct{}, len(stablecoins)),
		exotics:     make(map[common.Address]struct{}, len(exotics)),
	}
	for _, a := range stablecoins {
		c.stablecoins[a] = struct{}{}
	}
	for _, a := range exotics {
		c.exotics[a] = struct{}{}
	}
	return c
}

// Tier returns the fee tier for swapping collateral into debt: the stable
// tier when both assets are stablecoins, the exotic tier when either asset
// is on the exotic allow-list, and otherwise the mid-range default.
func (c *SwapFeeClassifier) Tier(collateral, debt common.Address) uint32 {
	_, collateralStable := c.stablecoins[collateral]
	_, debtStable := c.stablecoins[debt]
	if collateralStable && debtStable {
		return FeeTierStable
	}

	_, collateralExotic := c.exotics[collateral]
	_, debtExotic := c.exotics[debt]
	if collateralExotic || debtExotic {
		return FeeTierExotic
	}

	return FeeTierMid
}
