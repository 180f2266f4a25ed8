package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenpools/internal/chain"
	"tokenpools/internal/config"
	"tokenpools/internal/erc20"
	"tokenpools/internal/model"
	"tokenpools/internal/transfer"
)

func runBalance(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBalance(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Token) {
		return fmt.Errorf("invalid token address %q", cfg.Token)
	}
	if len(cfg.Owners) == 0 {
		return fmt.Errorf("at least one owner is required")
	}
	owners := make([]common.Address, 0, len(cfg.Owners))
	for _, raw := range cfg.Owners {
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("invalid owner address %q", raw)
		}
		owners = append(owners, common.HexToAddress(raw))
	}
	token := common.HexToAddress(cfg.Token)
	var spender *common.Address
	if cfg.Spender != "" {
		if !common.IsHexAddress(cfg.Spender) {
			return fmt.Errorf("invalid spender address %q", cfg.Spender)
		}
		addr := common.HexToAddress(cfg.Spender)
		spender = &addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	// Pin every read to one block so the balances are consistent.
	block := cfg.Block
	var blockTime uint64
	if block == 0 {
		head := chain.NewHeaderClock(client, cfg.MaxRetries, cfg.RetryBackoff, logger)
		if err := head.Refresh(ctx); err != nil {
			return err
		}
		block, blockTime = head.Height(), head.Now()
	} else if blockTime, err = client.BlockTimestamp(ctx, block); err != nil {
		return fmt.Errorf("block %d timestamp: %w", block, err)
	}

	cache := erc20.NewMetaCache()
	var meta model.TokenMeta
	err = chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
		m, err := cache.Lookup(ctx, client, token, logger)
		if err != nil {
			return err
		}
		meta = m
		return nil
	})
	if err != nil {
		return fmt.Errorf("token metadata: %w", err)
	}

	reader := transfer.ChainBalances{Caller: client, Timeout: cfg.Timeout, Block: new(big.Int).SetUint64(block)}
	logger.Info("reading balances",
		zap.String("chain_id", chainID.String()),
		zap.String("token", token.Hex()),
		zap.String("symbol", meta.Symbol),
		zap.Uint64("block", block),
		zap.Int("owners", len(owners)),
	)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "# block %d at %s\n", block, time.Unix(int64(blockTime), 0).UTC().Format(time.RFC3339))
	if spender == nil {
		fmt.Fprintf(w, "OWNER\tBALANCE\tSYMBOL\n")
	} else {
		fmt.Fprintf(w, "OWNER\tBALANCE\tALLOWANCE\tSYMBOL\n")
	}
	for _, owner := range owners {
		var bal *big.Int
		err := chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(context.Context) error {
			var err error
			bal, err = reader.BalanceOf(token, owner)
			return err
		})
		if err != nil {
			return err
		}
		if spender == nil {
			fmt.Fprintf(w, "%s\t%s\t%s\n", owner.Hex(), erc20.FormatAmount(bal, meta.Decimals), meta.Symbol)
			continue
		}
		var allowed *big.Int
		err = chain.WithRetry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			var err error
			allowed, err = erc20.Allowance(callCtx, client, token, owner, *spender, reader.Block)
			return err
		})
		if err != nil {
			return fmt.Errorf("allowance %s: %w", owner.Hex(), err)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", owner.Hex(), erc20.FormatAmount(bal, meta.Decimals), erc20.FormatAmount(allowed, meta.Decimals), meta.Symbol)
	}
	return w.Flush()
}
