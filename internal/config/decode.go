package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	In              string
	Out             string
	Errors          string
	LogLevel        string
	Topic0Map       map[string]string
	PositionManager common.Address
	Factory         common.Address
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"out":              "./data/typed_events.jsonl",
		"errors":           "./data/decode_errors.jsonl",
		"log-level":        "info",
		"position-manager": DefaultPositionManager,
		"factory":          DefaultFactory,
	})
	if err != nil {
		return DecodeConfig{}, err
	}

	manager, err := parseAddress("position-manager", v.GetString("position-manager"))
	if err != nil {
		return DecodeConfig{}, err
	}
	factory, err := parseAddress("factory", v.GetString("factory"))
	if err != nil {
		return DecodeConfig{}, err
	}

	cfg := DecodeConfig{
		In:              v.GetString("in"),
		Out:             v.GetString("out"),
		Errors:          v.GetString("errors"),
		LogLevel:        v.GetString("log-level"),
		Topic0Map:       getStringMap(v, "topic0-map"),
		PositionManager: manager,
		Factory:         factory,
	}
	return cfg, nil
}

func parseAddress(key, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, value)
	}
	return common.HexToAddress(value), nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return map[string]string{}
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, v := range typed {
			out[k] = fmt.Sprintf("%v", v)
		}
		return out
	case string:
		return parseStringMap(typed)
	default:
		return map[string]string{}
	}
}

func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(input) == "" {
		return out
	}
	for _, pair := range strings.Split(input, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
