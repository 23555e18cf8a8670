package aave

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"liquidationbot/internal/db"
	"liquidationbot/pkg/mempool"
	"liquidationbot/pkg/subgraph"
	"liquidationbot/pkg/watchlist"
)

// Bot wires the Market Catalog, Account Oracle, Tracker, and Liquidator
// into the single running agent, mirroring the shape of the teacher's own
// top-level domain struct: one entry point holding every collaborator the
// control loop needs, constructed once at startup.
type Bot struct {
	Catalog    *MarketCatalog
	Oracle     *AccountOracle
	Tracker    *Tracker
	Liquidator *Liquidator
	Watchdog   *mempool.Watchdog

	tokenClient func(common.Address) ReserveReader
	attempts    chan AttemptResult
}

// AttemptResult reports the outcome of one completed liquidation attempt:
// the plan was built, submitted, and (if a mempool watchdog is wired) raced
// to resolution. Err is the submission error, if the wrapper call itself
// failed to reach the chain; a nil Err means the transaction was
// successfully broadcast, regardless of how the on-chain race resolved.
type AttemptResult struct {
	Borrower common.Address
	Err      error
}

// Attempts returns the channel the process entrypoint blocks on to learn
// when the first liquidation attempt has completed, mirroring the
// teacher's own report-channel shutdown pattern.
func (b *Bot) Attempts() <-chan AttemptResult {
	return b.attempts
}

// dispatchFunc adapts a plain function to the Dispatcher interface so the
// Tracker can fire liquidations without importing the Liquidator directly.
type dispatchFunc func(borrower common.Address)

func (f dispatchFunc) Dispatch(borrower common.Address) { f(borrower) }

// BotConfig collects every external collaborator and tunable needed to
// construct a Bot.
type BotConfig struct {
	LendingPool         ReserveReader
	DataProvider        ReserveReader
	PriceOracle         ReserveReader
	LiquidatorSubmitter liquidatorSubmitter
	Store               watchlist.Store
	Subgraph            *subgraph.Client
	Reserves            []common.Address
	FromAddress         common.Address
	PrivateKey          *ecdsa.PrivateKey
	Stablecoins         []common.Address
	ExoticAssets        []common.Address
	TrackedCap          int
	FanoutWidth         int
	MarketDumpPath      string
	Recorder            *db.LiquidationRecorder
	PendingSource       mempool.PendingSource
	Receipts            mempool.ReceiptFetcher
	ChainID             *big.Int

	// TokenClient builds a read-only client bound to an ERC20-shaped token
	// address (an aToken or variable-debt token), used to read a
	// borrower's balanceOf during liquidation planning.
	TokenClient func(common.Address) ReserveReader
}

// NewBot constructs a fully wired Bot from cfg. It does not perform any
// network I/O itself; callers run Bootstrap and Run afterward.
func NewBot(cfg BotConfig) *Bot {
	catalog := NewMarketCatalog(cfg.DataProvider, cfg.PriceOracle, cfg.Reserves, cfg.FanoutWidth, nil, cfg.MarketDumpPath)
	oracle := NewAccountOracle(cfg.LendingPool)
	swapFees := NewSwapFeeClassifier(cfg.Stablecoins, cfg.ExoticAssets)

	var watchdog *mempool.Watchdog
	if cfg.PendingSource != nil {
		watchdog = mempool.New(cfg.PendingSource, cfg.Receipts, cfg.FromAddress, cfg.ChainID)
	}

	liquidator := NewLiquidator(cfg.LiquidatorSubmitter, cfg.FromAddress, cfg.PrivateKey, swapFees, cfg.Recorder, watchdog, "liquidations")

	bot := &Bot{
		Catalog:     catalog,
		Oracle:      oracle,
		Liquidator:  liquidator,
		Watchdog:    watchdog,
		tokenClient: cfg.TokenClient,
		attempts:    make(chan AttemptResult, 1),
	}

	dispatcher := dispatchFunc(func(borrower common.Address) {
		go bot.liquidate(context.Background(), borrower)
	})

	bot.Tracker = NewTracker(cfg.Store, oracle, cfg.Subgraph, dispatcher, cfg.TrackedCap)
	return bot
}

// liquidate builds and submits a plan for a borrower the Tracker has just
// flagged as liquidatable. The Market Catalog is refreshed first, since a
// write transaction must reason about current prices, not the last scan's.
// A result is only reported on b.attempts once a plan actually reaches
// submission: a borrower that heals or fails to read back out from under
// us before a plan could be built never counts as an attempt.
func (b *Bot) liquidate(ctx context.Context, borrower common.Address) {
	if err := b.Catalog.Refresh(ctx); err != nil {
		return
	}

	summary := b.Oracle.GetAccountSummary(ctx, borrower)
	if summary == nil || !summary.Liquidatable() {
		return
	}

	markets := b.Catalog.All()
	variableDebt, aTokenBalance := b.positionsFor(ctx, borrower, markets)

	plan, err := BuildPlan(borrower, markets, variableDebt, aTokenBalance, b.Liquidator.swapFees)
	if err != nil {
		return
	}

	_, submitErr := b.Liquidator.Submit(ctx, plan)

	select {
	case b.attempts <- AttemptResult{Borrower: borrower, Err: submitErr}:
	default:
		// A result is already queued from an earlier attempt; the process
		// entrypoint only ever waits for the first one.
	}
}

// positionsFor reads every market's per-account balances needed for debt
// and collateral selection. Markets the account has no position in are
// simply absent from the resulting maps.
func (b *Bot) positionsFor(ctx context.Context, borrower common.Address, markets []Market) (map[common.Address]*big.Int, map[common.Address]*big.Int) {
	variableDebt := make(map[common.Address]*big.Int, len(markets))
	aTokenBalance := make(map[common.Address]*big.Int, len(markets))

	if b.tokenClient == nil {
		return variableDebt, aTokenBalance
	}

	for _, m := range markets {
		debtLeg := b.Oracle.GetPositionLeg(ctx, b.tokenClient(m.VariableDebtTokenID), borrower)
		if debtLeg != nil && debtLeg.ATokenBalance != nil && debtLeg.ATokenBalance.Sign() > 0 {
			variableDebt[m.AssetID] = debtLeg.ATokenBalance
		}

		collateralLeg := b.Oracle.GetPositionLeg(ctx, b.tokenClient(m.ATokenID), borrower)
		if collateralLeg != nil && collateralLeg.ATokenBalance != nil && collateralLeg.ATokenBalance.Sign() > 0 {
			aTokenBalance[m.AssetID] = collateralLeg.ATokenBalance
		}
	}
	return variableDebt, aTokenBalance
}
