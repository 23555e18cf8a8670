// Command liquidator runs the tracker-liquidator control loop: it loads
// the market catalog, seeds or restores the tracked borrower set, and
// drives the run loop forever, exiting once the first liquidation attempt
// has resolved: either its submission failed, or it was submitted and raced
// to resolution (unless -loop is set, in which case the process keeps
// running past it).
package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/joho/godotenv"

	"liquidationbot/aave"
	"liquidationbot/configs"
	"liquidationbot/internal/db"
	"liquidationbot/internal/util"
	"liquidationbot/pkg/contractclient"
	"liquidationbot/pkg/subgraph"
	"liquidationbot/pkg/watchlist"
)

func main() {
	loop := flag.Bool("loop", false, "keep iterating after a liquidation attempt instead of exiting the process")
	configPath := flag.String("config", "configs/config.yml", "path to config.yml")
	flag.Parse()

	os.Exit(run(*configPath, *loop))
}

func run(configPath string, loop bool) int {
	// Best-effort: operators running locally keep secrets in .env rather
	// than exporting them; a deployed process sets the real environment
	// and has no .env file to find.
	_ = godotenv.Load()

	privateKeyHex, err := resolvePrivateKey()
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		log.Fatalf("fatal: parse private key: %v", err)
	}
	fromAddr := contractclient.PublicKeyToAddress(privateKey)

	conf, err := configs.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	ctx := context.Background()

	client, err := ethclient.DialContext(ctx, conf.RPCURL)
	if err != nil {
		log.Fatalf("fatal: dial RPC: %v", err)
	}

	store, err := watchlist.Open(conf.WatchlistDBPath)
	if err != nil {
		log.Fatalf("fatal: open watchlist store: %v", err)
	}
	defer store.Close()

	bot, err := wireBot(ctx, client, conf, fromAddr, privateKey, store)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := bot.Catalog.LoadAll(ctx); err != nil {
		log.Fatalf("fatal: load market catalog: %v", err)
	}

	if err := bot.Tracker.Bootstrap(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if bot.Watchdog != nil {
		go func() {
			if err := bot.Watchdog.Run(ctx); err != nil {
				log.Printf("mempool watchdog stopped: %v", err)
			}
		}()
	}

	// The run loop iterates forever; it never breaks itself. A liquidation
	// dispatch runs concurrently with later iterations (the borrower is
	// already untracked by the time it's fired), so the loop keeps scanning
	// while an attempt is in flight.
	go bot.Tracker.Run(ctx)

	if loop {
		// Daemon mode: keep running past a completed attempt instead of
		// exiting the process. Only an external signal stops it.
		select {}
	}

	result := <-bot.Attempts()

	// Exit code is intentionally counter-conventional: 1 signals a
	// liquidation attempt was submitted (reached the watchdog/chain), 0
	// signals the submission itself never made it out.
	if result.Err != nil {
		return 0
	}
	return 1
}

func resolvePrivateKey() (string, error) {
	secrets, err := configs.LoadSecrets()
	if err != nil {
		return "", err
	}
	if secrets.PrivateKeyHex != "" {
		return secrets.PrivateKeyHex, nil
	}
	return util.Decrypt([]byte(secrets.DecryptionKey), secrets.EncryptedPrivKey)
}

func wireBot(ctx context.Context, client *ethclient.Client, conf *configs.Config, fromAddr common.Address, privateKey *ecdsa.PrivateKey, store watchlist.Store) (*aave.Bot, error) {
	poolClient, err := buildClient(client, conf, configs.ContractLendingPool)
	if err != nil {
		return nil, err
	}
	dataProviderClient, err := buildClient(client, conf, configs.ContractProtocolDataProvider)
	if err != nil {
		return nil, err
	}
	priceOracleClient, err := buildClient(client, conf, configs.ContractPriceOracle)
	if err != nil {
		return nil, err
	}
	liquidatorClient, err := buildClient(client, conf, configs.ContractLiquidator)
	if err != nil {
		return nil, err
	}
	erc20ABI, err := loadContractABI(conf, configs.ContractERC20)
	if err != nil {
		return nil, err
	}

	reserves := make([]common.Address, 0, len(conf.Reserves))
	for _, r := range conf.Reserves {
		reserves = append(reserves, common.HexToAddress(r))
	}
	stablecoins := toAddresses(conf.Stablecoins)
	exotics := toAddresses(conf.ExoticAssets)

	var pendingSource *gethclient.Client
	if conf.WebsocketURL != "" {
		rpcClient, err := rpc.DialContext(ctx, conf.WebsocketURL)
		if err == nil {
			pendingSource = gethclient.New(rpcClient)
		} else {
			log.Printf("mempool subscription unavailable: %v", err)
		}
	}

	var recorder *db.LiquidationRecorder
	if conf.MySQLDSN != "" {
		recorder, err = db.NewLiquidationRecorder(conf.MySQLDSN)
		if err != nil {
			log.Printf("liquidation recorder unavailable: %v", err)
		}
	}

	return aave.NewBot(aave.BotConfig{
		LendingPool:         poolClient,
		DataProvider:        dataProviderClient,
		PriceOracle:         priceOracleClient,
		LiquidatorSubmitter: liquidatorClient,
		Store:               store,
		Subgraph:            subgraph.New(conf.SubgraphURL),
		Reserves:            reserves,
		FromAddress:         fromAddr,
		PrivateKey:          privateKey,
		Stablecoins:         stablecoins,
		ExoticAssets:        exotics,
		TrackedCap:          conf.Tunables.TrackedCap,
		FanoutWidth:         conf.Tunables.BootstrapFanoutWidth,
		MarketDumpPath:      "dump-markets.json",
		Recorder:            recorder,
		PendingSource:       pendingSource,
		Receipts:            client,
		ChainID:             big.NewInt(conf.Tunables.ChainID),
		TokenClient: func(token common.Address) aave.ReserveReader {
			return contractclient.New(client, token, erc20ABI)
		},
	}), nil
}

func buildClient(client *ethclient.Client, conf *configs.Config, name string) (*contractclient.ContractClient, error) {
	entry, ok := conf.Contracts[name]
	if !ok {
		return nil, fmt.Errorf("missing contract config for %q", name)
	}
	contractABI, err := loadContractABI(conf, name)
	if err != nil {
		return nil, err
	}
	return contractclient.New(client, common.HexToAddress(entry.Address), contractABI), nil
}

func loadContractABI(conf *configs.Config, name string) (*abi.ABI, error) {
	entry, ok := conf.Contracts[name]
	if !ok {
		return nil, fmt.Errorf("missing contract config for %q", name)
	}
	return util.LoadABI(entry.ABI)
}

func toAddresses(hexes []string) []common.Address {
	out := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		out = append(out, common.HexToAddress(h))
	}
	return out
}
