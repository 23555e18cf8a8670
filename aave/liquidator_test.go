package aave

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), oneRay)
}

func scaledUnits(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pow10(decimals))
}

func TestSelectDebtAndCollateralMarkets_S2Scenario(t *testing.T) {
	debtMarket := Market{
		AssetID:              common.HexToAddress("0x1"),
		Decimals:             6,
		LiquidationThreshold: 8000,
		LiquidationBonus:     10500,
		Price:                oneRay,
	}
	collateralMarket := Market{
		AssetID:              common.HexToAddress("0x2"),
		Decimals:             18,
		LiquidationThreshold: 8000,
		LiquidationBonus:     10750,
		Price:                oneRay,
	}
	markets := []Market{debtMarket, collateralMarket}

	variableDebt := map[common.Address]*big.Int{
		debtMarket.AssetID: scaledUnits(1000, 6),
	}
	aTokenBalance := map[common.Address]*big.Int{
		collateralMarket.AssetID: scaledUnits(2000, 18),
	}

	chosenDebt, ok := SelectDebtMarket(markets, variableDebt)
	require.True(t, ok)
	assert.Equal(t, debtMarket.AssetID, chosenDebt.AssetID)

	chosenColl, ok := SelectCollateralMarket(markets, aTokenBalance)
	require.True(t, ok)
	assert.Equal(t, collateralMarket.AssetID, chosenColl.AssetID)

	repay := RepayAmount(variableDebt[chosenDebt.AssetID])
	assert.Equal(t, scaledUnits(500, 6), repay)

	reward := EstimatedReward(repay, chosenDebt, chosenColl)
	expected := new(big.Float).Mul(big.NewFloat(537.5), new(big.Float).SetInt(pow10(18)))
	expectedInt, _ := expected.Int(nil)
	assert.Equal(t, 0, reward.Cmp(expectedInt))
}

func TestSelectDebtMarketTiesBreakByLexicographicAddress(t *testing.T) {
	high := common.HexToAddress("0xffff000000000000000000000000000000ffff")
	low := common.HexToAddress("0x0001000000000000000000000000000000ffff")

	markets := []Market{
		{AssetID: high, Decimals: 18, Price: oneRay},
		{AssetID: low, Decimals: 18, Price: oneRay},
	}
	debt := map[common.Address]*big.Int{
		high: scaledUnits(10, 18),
		low:  scaledUnits(10, 18),
	}

	chosen, ok := SelectDebtMarket(markets, debt)
	require.True(t, ok)
	assert.Equal(t, low, chosen.AssetID)
}

func TestSelectDebtMarketInvariantUnderPermutation(t *testing.T) {
	m1 := Market{AssetID: common.HexToAddress("0x1"), Decimals: 18, Price: oneRay}
	m2 := Market{AssetID: common.HexToAddress("0x2"), Decimals: 18, Price: e18(2)}
	debt := map[common.Address]*big.Int{
		m1.AssetID: scaledUnits(100, 18),
		m2.AssetID: scaledUnits(100, 18),
	}

	a, ok := SelectDebtMarket([]Market{m1, m2}, debt)
	require.True(t, ok)
	b, ok := SelectDebtMarket([]Market{m2, m1}, debt)
	require.True(t, ok)
	assert.Equal(t, a.AssetID, b.AssetID)
	assert.Equal(t, m2.AssetID, a.AssetID)
}

func TestRepayAmountRoundsDown(t *testing.T) {
	assert.Equal(t, big.NewInt(1), RepayAmount(big.NewInt(3)))
	assert.Equal(t, big.NewInt(500), RepayAmount(big.NewInt(1000)))
}
