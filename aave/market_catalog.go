package aave

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"liquidationbot/internal/fanout"
	"liquidationbot/pkg/contractclient"
)

// ReserveReader is the subset of contractclient.ContractClient the Market
// Catalog needs to read one reserve's configuration and current price,
// narrowed so tests can substitute a fake.
type ReserveReader interface {
	Call(ctx context.Context, from *common.Address, method string, args ...interface{}) ([]interface{}, error)
}

// MarketCatalog caches each reserve's configuration and live price. It is
// loaded once at startup and refreshed on demand rather than per-read: the
// Bot refreshes it before every liquidation attempt, since liquidation
// thresholds and bonuses change rarely but prices move every block.
type MarketCatalog struct {
	dataProvider ReserveReader
	priceOracle  ReserveReader
	reserves     []common.Address

	fanoutWidth int
	limiter     *fanout.Limiter
	dumpPath    string

	mu      sync.RWMutex
	markets map[common.Address]Market
}

// NewMarketCatalog returns a catalog for the given reserve list, reading
// configuration from dataProvider and prices from priceOracle.
func NewMarketCatalog(dataProvider, priceOracle ReserveReader, reserves []common.Address, fanoutWidth int, limiter *fanout.Limiter, dumpPath string) *MarketCatalog {
	return &MarketCatalog{
		dataProvider: dataProvider,
		priceOracle:  priceOracle,
		reserves:     reserves,
		fanoutWidth:  fanoutWidth,
		limiter:      limiter,
		dumpPath:     dumpPath,
		markets:      make(map[common.Address]Market),
	}
}

// LoadAll performs the initial full fan-out read of every configured
// reserve, populating the catalog from scratch.
func (c *MarketCatalog) LoadAll(ctx context.Context) error {
	return c.refresh(ctx, c.reserves)
}

// Refresh re-reads every currently known reserve's configuration and
// price. A partial RPC failure on one reserve leaves that reserve's prior
// cached entry in place rather than discarding the whole catalog, and
// Refresh then returns ErrUpstreamUnavailable so the caller can decide
// whether to act on the partly stale data.
func (c *MarketCatalog) Refresh(ctx context.Context) error {
	c.mu.RLock()
	reserves := make([]common.Address, 0, len(c.markets))
	for addr := range c.markets {
		reserves = append(reserves, addr)
	}
	c.mu.RUnlock()
	if len(reserves) == 0 {
		reserves = c.reserves
	}
	return c.refresh(ctx, reserves)
}

func (c *MarketCatalog) refresh(ctx context.Context, reserves []common.Address) error {
	if len(reserves) == 0 {
		return ErrNoMarkets
	}

	var mu sync.Mutex
	fetched := make(map[common.Address]Market, len(reserves))

	fanout.Run(ctx, c.fanoutWidth, reserves, c.limiter, func(ctx context.Context, reserve common.Address) {
		market, err := c.loadReserve(ctx, reserve)
		if err != nil {
			// Transient upstream failure: keep whatever was cached before.
			return
		}
		mu.Lock()
		fetched[reserve] = *market
		mu.Unlock()
	})

	if len(fetched) == 0 {
		return ErrUpstreamUnavailable
	}

	c.mu.Lock()
	for addr, m := range fetched {
		c.markets[addr] = m
	}
	c.mu.Unlock()

	if c.dumpPath != "" {
		_ = c.dump()
	}
	if len(fetched) < len(reserves) {
		return ErrUpstreamUnavailable
	}
	return nil
}

func (c *MarketCatalog) loadReserve(ctx context.Context, reserve common.Address) (*Market, error) {
	cfg, err := c.dataProvider.Call(ctx, nil, "getReserveConfigurationData", reserve)
	if err != nil {
		return nil, fmt.Errorf("reserve configuration for %s: %w", reserve.Hex(), err)
	}
	tokens, err := c.dataProvider.Call(ctx, nil, "getReserveTokensAddresses", reserve)
	if err != nil {
		return nil, fmt.Errorf("reserve tokens for %s: %w", reserve.Hex(), err)
	}
	priceOut, err := c.priceOracle.Call(ctx, nil, "getAssetPrice", reserve)
	if err != nil {
		return nil, fmt.Errorf("asset price for %s: %w", reserve.Hex(), err)
	}

	decimals, _ := cfg[0].(*big.Int)
	liqThreshold, _ := cfg[2].(*big.Int)
	liqBonus, _ := cfg[3].(*big.Int)
	aToken, _ := tokens[0].(common.Address)
	variableDebtToken, _ := tokens[2].(common.Address)
	price, _ := priceOut[0].(*big.Int)

	if decimals == nil || liqThreshold == nil || liqBonus == nil || price == nil {
		return nil, fmt.Errorf("malformed reserve data for %s", reserve.Hex())
	}

	// The normalized variable-debt index is read separately: it's a
	// ray-precision accrual multiplier, not part of getReserveConfigurationData,
	// and is only ever a diagnostic (no selection formula in this package
	// consumes it). A read failure here doesn't fail the whole reserve load.
	var variableDebtIndex *big.Int
	if indexOut, err := c.dataProvider.Call(ctx, nil, "getReserveNormalizedVariableDebt", reserve); err == nil {
		variableDebtIndex, _ = indexOut[0].(*big.Int)
	}

	return &Market{
		AssetID:              reserve,
		Decimals:             uint8(decimals.Uint64()),
		LiquidationThreshold: liqThreshold.Uint64(),
		LiquidationBonus:     liqBonus.Uint64(),
		ATokenID:             aToken,
		VariableDebtTokenID:  variableDebtToken,
		Price:                price,
		VariableDebtIndex:    variableDebtIndex,
	}, nil
}

// Get returns the cached market for asset, if known.
func (c *MarketCatalog) Get(asset common.Address) (Market, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markets[asset]
	return m, ok
}

// All returns every cached market, snapshotted under the read lock.
func (c *MarketCatalog) All() []Market {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Market, 0, len(c.markets))
	for _, m := range c.markets {
		out = append(out, m)
	}
	return out
}

type marketDump struct {
	AssetID              string `json:"asset_id"`
	Symbol               string `json:"symbol"`
	Decimals             uint8  `json:"decimals"`
	LiquidationThreshold uint64 `json:"liquidation_threshold_bps"`
	LiquidationBonus     uint64 `json:"liquidation_bonus_bps"`
	PriceWei             string `json:"price_wei"`
	VariableDebtIndex    string `json:"variable_debt_index,omitempty"`
}

// dump writes the current catalog snapshot to dumpPath as JSON, the way
// operators inspect what prices and thresholds the agent is reasoning
// about without attaching a debugger.
func (c *MarketCatalog) dump() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]marketDump, 0, len(c.markets))
	for _, m := range c.markets {
		d := marketDump{
			AssetID:              m.AssetID.Hex(),
			Symbol:               m.Symbol,
			Decimals:             m.Decimals,
			LiquidationThreshold: m.LiquidationThreshold,
			LiquidationBonus:     m.LiquidationBonus,
			PriceWei:             m.Price.String(),
		}
		if m.VariableDebtIndex != nil {
			d.VariableDebtIndex = m.VariableDebtIndex.String()
		}
		out = append(out, d)
	}

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal market dump: %w", err)
	}
	return os.WriteFile(c.dumpPath, raw, 0o644)
}
