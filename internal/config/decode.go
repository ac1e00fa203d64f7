package config

import (
	"time"

	"github.com/spf13/pflag"
)

// DecodeConfig holds configuration for the decode command.
type DecodeConfig struct {
	RPCURL       string
	Wallet       string
	ChainID      uint64
	In           string
	Out          string
	PgDSN        string
	Workers      int
	Timezone     string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadDecode merges config file, environment variables, and flags into DecodeConfig.
func LoadDecode(cfgFile string, flags *pflag.FlagSet) (DecodeConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return DecodeConfig{}, err
	}

	v.SetDefault("out", "./data/decoded.jsonl")
	v.SetDefault("workers", 4)
	v.SetDefault("timezone", "Europe/Vienna")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	cfg := DecodeConfig{
		RPCURL:       v.GetString("rpc"),
		Wallet:       v.GetString("wallet"),
		ChainID:      v.GetUint64("chain-id"),
		In:           v.GetString("in"),
		Out:          v.GetString("out"),
		PgDSN:        v.GetString("pg-dsn"),
		Workers:      v.GetInt("workers"),
		Timezone:     v.GetString("timezone"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}
