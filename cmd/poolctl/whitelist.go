package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenpools/internal/config"
	"tokenpools/internal/proof"
)

func runWhitelist(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadWhitelist(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input csv is required")
	}
	in, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	entries, err := proof.ReadWhitelistCSV(in)
	if err != nil {
		return err
	}
	file, err := proof.BuildWhitelistFile(entries)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(file, "", "\t")
	if err != nil {
		return fmt.Errorf("marshal whitelist: %w", err)
	}
	if dir := filepath.Dir(cfg.Out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(cfg.Out, data, 0o644); err != nil {
		return fmt.Errorf("write whitelist: %w", err)
	}

	logger.Info("whitelist written",
		zap.Int("entries", len(entries)),
		zap.String("root", file.Root.Hex()),
		zap.String("out", cfg.Out),
	)
	fmt.Fprintln(cmd.OutOrStdout(), file.Root.Hex())
	return nil
}
