package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"positionScope/internal/position"
	"positionScope/internal/pricing"
)

// Base mainnet deployment defaults.
const (
	DefaultPositionManager = "0x03a520b32C04BF3bEEf7BEb72E919cf822Ed34f1"
	DefaultFactory         = "0x33128a8fC17869897dcE68Ed026d694621f6FDfD"
	DefaultNumeraire       = "0x4200000000000000000000000000000000000006"
)

var (
	// DefaultWhitelist is WETH, USDbC, DAI and USDC.
	DefaultWhitelist = []string{
		DefaultNumeraire,
		"0xd9aaec86b65d86f6a7b5b1b0c42ffa531710b6ca",
		"0x50c5725949a6f0c72e6c4a641f24049a917db0cb",
		"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
	}
	// DefaultStablePools switches from the WETH/USDbC pool to WETH/USDC at block 12520407.
	DefaultStablePools = []string{
		"0x4c36388be6f416a29c8d8eee81c771ce6be14b18@0",
		"0xd0b53d9277642d899df5c87a3966a349a798f224@12520407",
	}
)

// ProcessConfig holds configuration for the process command.
type ProcessConfig struct {
	In              string
	RPCURL          string
	PGDSN           string
	ClickHouseDSN   string
	PositionManager common.Address
	Factory         common.Address
	Pricing         pricing.Config
	Denylist        position.Denylist
	StateName       string
	FromBlock       uint64
	BatchSize       int
	MetricsAddr     string
	LogLevel        string
}

// LoadProcess merges config file, environment variables, and flags into ProcessConfig.
func LoadProcess(cfgFile string, flags *pflag.FlagSet) (ProcessConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"in":                       "./data/typed_events.jsonl",
		"position-manager":         DefaultPositionManager,
		"factory":                  DefaultFactory,
		"numeraire":                DefaultNumeraire,
		"whitelist":                strings.Join(DefaultWhitelist, ","),
		"stable-pools":             strings.Join(DefaultStablePools, ","),
		"minimum-numeraire-locked": "0.01",
		"state-name":               "process",
		"batch-size":               1000,
		"log-level":                "info",
	})
	if err != nil {
		return ProcessConfig{}, err
	}

	// The cursor is committed with the entities, so it cannot live in a separate file.
	if v.IsSet("state-file") {
		return ProcessConfig{}, fmt.Errorf("state-file is not supported, the cursor is stored with the entities under state-name")
	}
	if v.GetString("state-name") == "" {
		return ProcessConfig{}, fmt.Errorf("state-name is required")
	}

	cfg := ProcessConfig{
		In:            v.GetString("in"),
		RPCURL:        v.GetString("rpc"),
		PGDSN:         v.GetString("pg-dsn"),
		ClickHouseDSN: v.GetString("clickhouse-dsn"),
		StateName:     v.GetString("state-name"),
		FromBlock:     v.GetUint64("from"),
		BatchSize:     v.GetInt("batch-size"),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
	}

	if cfg.PositionManager, err = parseAddress("position-manager", v.GetString("position-manager")); err != nil {
		return ProcessConfig{}, err
	}
	if cfg.Factory, err = parseAddress("factory", v.GetString("factory")); err != nil {
		return ProcessConfig{}, err
	}
	if cfg.Pricing.Numeraire, err = parseAddress("numeraire", v.GetString("numeraire")); err != nil {
		return ProcessConfig{}, err
	}
	for _, value := range getStringSlice(v, "whitelist") {
		addr, err := parseAddress("whitelist", value)
		if err != nil {
			return ProcessConfig{}, err
		}
		cfg.Pricing.Whitelist = append(cfg.Pricing.Whitelist, addr)
	}
	if cfg.Pricing.StablePools, err = ParseStablePools(getStringSlice(v, "stable-pools")); err != nil {
		return ProcessConfig{}, err
	}
	if cfg.Pricing.MinimumNumeraireLocked, err = decimal.NewFromString(v.GetString("minimum-numeraire-locked")); err != nil {
		return ProcessConfig{}, fmt.Errorf("minimum-numeraire-locked: %w", err)
	}

	if v.IsSet("denylist") {
		cfg.Denylist, err = position.ParseDenylist(getStringSlice(v, "denylist"))
		if err != nil {
			return ProcessConfig{}, err
		}
	} else {
		cfg.Denylist = position.DefaultDenylist()
	}

	return cfg, nil
}

// ParseStablePools reads entries of the form pool@fromBlock. A bare address starts at block 0.
func ParseStablePools(values []string) ([]pricing.StablePool, error) {
	pools := make([]pricing.StablePool, 0, len(values))
	for _, value := range values {
		addrPart, blockPart, hasBlock := strings.Cut(strings.TrimSpace(value), "@")
		addr, err := parseAddress("stable-pools", addrPart)
		if err != nil {
			return nil, err
		}
		var from uint64
		if hasBlock {
			from, err = strconv.ParseUint(strings.TrimSpace(blockPart), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("stable-pools: invalid block in %q: %w", value, err)
			}
		}
		pools = append(pools, pricing.StablePool{Pool: addr, FromBlock: from})
	}
	return pools, nil
}
