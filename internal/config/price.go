package config

import (
	"time"

	"github.com/spf13/pflag"
)

// PriceConfig holds configuration for the price command.
type PriceConfig struct {
	RPCURL       string
	Pool         string
	In           string
	Out          string
	PgDSN        string
	Bucket       int64
	ProbeLimit   int
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadPrice merges config file, environment variables, and flags into PriceConfig.
func LoadPrice(cfgFile string, flags *pflag.FlagSet) (PriceConfig, error) {
	v, err := newViper(cfgFile, flags)
	if err != nil {
		return PriceConfig{}, err
	}

	v.SetDefault("in", "./data/decoded.jsonl")
	v.SetDefault("out", "./data/prices.jsonl")
	v.SetDefault("bucket", int64(60))
	v.SetDefault("probe-limit", 64)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

	cfg := PriceConfig{
		RPCURL:       v.GetString("rpc"),
		Pool:         v.GetString("pool"),
		In:           v.GetString("in"),
		Out:          v.GetString("out"),
		PgDSN:        v.GetString("pg-dsn"),
		Bucket:       v.GetInt64("bucket"),
		ProbeLimit:   v.GetInt("probe-limit"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}
