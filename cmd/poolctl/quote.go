package main

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenpools/internal/config"
	"tokenpools/internal/proof"
)

func loadQuote(cmd *cobra.Command) (config.QuoteConfig, common.Address, *big.Int, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
	if err != nil {
		return cfg, common.Address{}, nil, err
	}
	if !common.IsHexAddress(cfg.Account) {
		return cfg, common.Address{}, nil, fmt.Errorf("invalid account %q", cfg.Account)
	}
	amount, ok := new(big.Int).SetString(cfg.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return cfg, common.Address{}, nil, fmt.Errorf("invalid amount %q", cfg.Amount)
	}
	return cfg, common.HexToAddress(cfg.Account), amount, nil
}

func runQuoteSign(cmd *cobra.Command, _ []string) error {
	cfg, account, amount, err := loadQuote(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Key, "0x"))
	if err != nil {
		return fmt.Errorf("parse key: %w", err)
	}
	sig, err := proof.SignQuote(key, account, amount)
	if err != nil {
		return err
	}
	logger.Debug("quote signed",
		zap.String("signer", crypto.PubkeyToAddress(key.PublicKey).Hex()),
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
	)
	fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(sig))
	return nil
}

func runQuoteVerify(cmd *cobra.Command, _ []string) error {
	cfg, account, amount, err := loadQuote(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !common.IsHexAddress(cfg.Signer) {
		return fmt.Errorf("invalid signer %q", cfg.Signer)
	}
	sig, err := hexutil.Decode(cfg.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	recovered, err := proof.RecoverQuoteSigner(account, amount, sig)
	if err != nil {
		return err
	}
	signer := common.HexToAddress(cfg.Signer)
	if recovered != signer {
		logger.Warn("quote signer mismatch", zap.String("recovered", recovered.Hex()), zap.String("expected", signer.Hex()))
		return fmt.Errorf("quote signed by %s, expected %s", recovered.Hex(), signer.Hex())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok", recovered.Hex())
	return nil
}
