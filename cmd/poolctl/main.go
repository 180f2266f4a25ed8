package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "Token distribution pool tooling",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a YAML scenario against the in-memory pool engine",
		RunE:  runSimulate,
	}
	simulateCmd.Flags().String("scenario", "", "scenario YAML path")
	simulateCmd.Flags().String("events", "./data/events.jsonl", "output events JSONL")
	simulateCmd.Flags().String("snapshot", "", "optional snapshot JSON output path")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for events and snapshot")
	simulateCmd.Flags().Bool("migrate", true, "apply schema migrations before writing to Postgres")
	root.AddCommand(simulateCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print pool and lock state from a stored snapshot",
		RunE:  runInspect,
	}
	inspectCmd.Flags().String("snapshot", "", "snapshot JSON path")
	inspectCmd.Flags().String("pg-dsn", "", "Postgres DSN, used when --snapshot is empty")
	inspectCmd.Flags().String("at", "", "evaluate state at this time (unix seconds or RFC3339), default snapshot time")
	root.AddCommand(inspectCmd)

	whitelistCmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Build a whitelist Merkle root and proofs from CSV (poolId,address,amount)",
		RunE:  runWhitelist,
	}
	whitelistCmd.Flags().String("in", "", "input CSV path")
	whitelistCmd.Flags().String("out", "./data/whitelist.json", "output JSON path")
	root.AddCommand(whitelistCmd)

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Sign or verify contribution quotes",
	}
	quoteSignCmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign a quote for account and amount",
		RunE:  runQuoteSign,
	}
	quoteSignCmd.Flags().String("key", "", "hex secp256k1 private key of the quote signer")
	quoteVerifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a quote signature against the expected signer",
		RunE:  runQuoteVerify,
	}
	quoteVerifyCmd.Flags().String("signer", "", "expected signer address")
	quoteVerifyCmd.Flags().String("signature", "", "hex signature")
	for _, c := range []*cobra.Command{quoteSignCmd, quoteVerifyCmd} {
		c.Flags().String("account", "", "contributor address")
		c.Flags().String("amount", "", "quoted amount in base units")
		quoteCmd.AddCommand(c)
	}
	root.AddCommand(quoteCmd)

	vestingCmd := &cobra.Command{
		Use:   "vesting",
		Short: "Print the unlock curve of a vesting schedule",
		RunE:  runVesting,
	}
	vestingCmd.Flags().String("total", "", "total amount in token units")
	vestingCmd.Flags().Uint8("decimals", 0, "token decimals")
	vestingCmd.Flags().String("start", "", "schedule start (unix seconds or RFC3339), default 0")
	vestingCmd.Flags().String("cliff", "0", "cliff duration (e.g. 5d, 12h)")
	vestingCmd.Flags().String("tranches", "100:30d", "tranches as percent:duration, comma-separated")
	vestingCmd.Flags().String("step", "1d", "sampling interval")
	root.AddCommand(vestingCmd)

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Read ERC-20 balances over RPC",
		RunE:  runBalance,
	}
	balanceCmd.Flags().String("rpc", "", "RPC URL")
	balanceCmd.Flags().String("token", "", "token address")
	balanceCmd.Flags().StringSlice("owner", nil, "owner addresses (comma-separated)")
	balanceCmd.Flags().String("spender", "", "optional spender address, adds an allowance column")
	balanceCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	balanceCmd.Flags().Duration("timeout", 10*time.Second, "per-call timeout")
	balanceCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	balanceCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(balanceCmd)

	return root
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
