package config

import "github.com/spf13/pflag"

// WhitelistConfig holds configuration for the whitelist command.
type WhitelistConfig struct {
	In       string
	Out      string
	LogLevel string
}

// LoadWhitelist merges config file, environment variables, and flags into WhitelistConfig.
func LoadWhitelist(cfgFile string, flags *pflag.FlagSet) (WhitelistConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{"out": "./data/whitelist.json"})
	if err != nil {
		return WhitelistConfig{}, err
	}
	return WhitelistConfig{
		In:       v.GetString("in"),
		Out:      v.GetString("out"),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// QuoteConfig holds configuration for the quote subcommands. Key is a hex
// secp256k1 private key and is only read by quote sign.
type QuoteConfig struct {
	Key       string
	Signer    string
	Account   string
	Amount    string
	Signature string
	LogLevel  string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, nil)
	if err != nil {
		return QuoteConfig{}, err
	}
	return QuoteConfig{
		Key:       v.GetString("key"),
		Signer:    v.GetString("signer"),
		Account:   v.GetString("account"),
		Amount:    v.GetString("amount"),
		Signature: v.GetString("signature"),
		LogLevel:  v.GetString("log-level"),
	}, nil
}

// VestingConfig holds configuration for the vesting command.
type VestingConfig struct {
	Total    string
	Decimals uint8
	Start    string
	Cliff    string
	Tranches string
	Step     string
}

// LoadVesting merges config file, environment variables, and flags into VestingConfig.
func LoadVesting(cfgFile string, flags *pflag.FlagSet) (VestingConfig, error) {
	v, err := load(cfgFile, flags, map[string]any{
		"cliff":    "0",
		"tranches": "100:30d",
		"step":     "1d",
	})
	if err != nil {
		return VestingConfig{}, err
	}
	return VestingConfig{
		Total:    v.GetString("total"),
		Decimals: uint8(v.GetUint("decimals")),
		Start:    v.GetString("start"),
		Cliff:    v.GetString("cliff"),
		Tranches: v.GetString("tranches"),
		Step:     v.GetString("step"),
	}, nil
}
