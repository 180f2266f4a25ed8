package config

import (
	"time"

	"github.com/spf13/pflag"
)

// BalanceConfig holds configuration for the balance command.
type BalanceConfig struct {
	RPCURL       string
	Token        string
	Owners       []string
	Spender      string
	Block        uint64
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadBalance merges config file, environment variables, and flags into BalanceConfig.
func LoadBalance(cfgFile string, flags *pflag.FlagSet) (BalanceConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"timeout":       10 * time.Second,
		"max-retries":   5,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return BalanceConfig{}, err
	}
	return BalanceConfig{
		RPCURL:       v.GetString("rpc"),
		Token:        v.GetString("token"),
		Owners:       getStringSlice(v, "owner"),
		Spender:      v.GetString("spender"),
		Block:        v.GetUint64("block"),
		Timeout:      v.GetDuration("timeout"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
