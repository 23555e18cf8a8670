// Package configs loads the agent's structural configuration from YAML
// (contract addresses, ABI paths, allow-lists, tunables) while the signing
// key comes from the environment, and RPC_URL in the environment, when set,
// overrides the YAML rpcUrl endpoint; the same
// split the teacher's own config layer draws between config.yml and the
// encrypted-key environment variables.
package configs

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ContractYAMLData names one contract's address and the path to its ABI
// or Hardhat artifact JSON.
type ContractYAMLData struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

// TunablesYAMLData holds the control-loop knobs that govern tracked-set
// size and fan-out width, broken out from the contract map so operators
// can tune them without touching addresses.
type TunablesYAMLData struct {
	TrackedCap           int `yaml:"trackedCap"`
	BootstrapFanoutWidth int `yaml:"bootstrapFanoutWidth"`
	ChainID              int64 `yaml:"chainId"`
}

// Config is the entire structural configuration parsed from config.yml.
type Config struct {
	RPCURL          string                      `yaml:"rpcUrl"`
	WebsocketURL    string                      `yaml:"websocketUrl"`
	SubgraphURL     string                      `yaml:"subgraphUrl"`
	WatchlistDBPath string                      `yaml:"watchlistDbPath"`
	MySQLDSN        string                      `yaml:"mysqlDsn"`
	Contracts       map[string]ContractYAMLData `yaml:"contracts"`
	Reserves        []string                    `yaml:"reserves"`
	Stablecoins     []string                    `yaml:"stablecoins"`
	ExoticAssets    []string                    `yaml:"exoticAssets"`
	Tunables        TunablesYAMLData            `yaml:"tunables"`
}

// Contract name keys expected in the config.yml contracts map.
const (
	ContractLendingPool         = "lendingPool"
	ContractProtocolDataProvider = "protocolDataProvider"
	ContractPriceOracle         = "priceOracle"
	ContractLiquidator          = "liquidator"
	ContractERC20               = "erc20"
)

// LoadConfig reads and parses config.yml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	if rpcURL := os.Getenv("RPC_URL"); rpcURL != "" {
		config.RPCURL = rpcURL
	}
	if config.Tunables.TrackedCap == 0 {
		config.Tunables.TrackedCap = 200
	}
	if config.Tunables.BootstrapFanoutWidth == 0 {
		config.Tunables.BootstrapFanoutWidth = 500
	}
	if config.Tunables.ChainID == 0 {
		config.Tunables.ChainID = 137
	}
	return &config, nil
}

// Secrets is the environment-sourced signing material, kept separate from
// config.yml so a committed config file never carries a key.
type Secrets struct {
	PrivateKeyHex    string
	EncryptedPrivKey string
	DecryptionKey    string
}

// LoadSecrets reads signing material from the environment. PRIVATE_KEY or
// the full ENC_PK/KEY pair must be set (both may be); LoadSecrets does not
// decrypt, it only gathers the raw inputs the caller decrypts with
// internal/util.Decrypt.
func LoadSecrets() (*Secrets, error) {
	s := &Secrets{
		PrivateKeyHex:    os.Getenv("PRIVATE_KEY"),
		EncryptedPrivKey: os.Getenv("ENC_PK"),
		DecryptionKey:    os.Getenv("KEY"),
	}
	if s.PrivateKeyHex == "" && (s.EncryptedPrivKey == "" || s.DecryptionKey == "") {
		return nil, fmt.Errorf("missing signing key: set PRIVATE_KEY or both ENC_PK and KEY")
	}
	return s, nil
}
