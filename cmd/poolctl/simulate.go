package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tokenpools/internal/clock"
	"tokenpools/internal/config"
	"tokenpools/internal/locker"
	"tokenpools/internal/pool"
	"tokenpools/internal/scenario"
	"tokenpools/internal/storage"
	"tokenpools/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Scenario == "" {
		return fmt.Errorf("scenario path is required")
	}
	sc, err := scenario.Load(cfg.Scenario)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks storage.Multi
	if cfg.Events != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Events))
	}
	var pg *postgres.Store
	if cfg.PGDSN != "" {
		if cfg.Migrate {
			if err := postgres.Migrate(cfg.PGDSN); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	runner, err := scenario.NewRunner(sc, sinks, logger)
	if err != nil {
		return err
	}

	logger.Info("simulation start",
		zap.String("scenario", cfg.Scenario),
		zap.Int("steps", len(sc.Steps)),
		zap.String("events", cfg.Events),
		zap.Bool("postgres", pg != nil),
	)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	snap := runner.Snapshot()
	if cfg.Snapshot != "" {
		if err := storage.NewSnapshotFile(cfg.Snapshot).SaveSnapshot(ctx, snap); err != nil {
			return err
		}
	}
	if pg != nil {
		if err := pg.SaveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	logger.Info("simulation done",
		zap.Int("pools", len(snap.Pools)),
		zap.Int("contributions", len(snap.Contributions)),
		zap.Int("locks", len(snap.Locks)),
	)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(runner.Report())
}

func runInspect(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadInspect(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var store storage.SnapshotStore
	switch {
	case cfg.Snapshot != "":
		store = storage.NewSnapshotFile(cfg.Snapshot)
	case cfg.PGDSN != "":
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pg.Close()
		store = pg
	default:
		return fmt.Errorf("snapshot path or pg dsn is required")
	}

	snap, ok, err := store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no snapshot found")
	}

	at := snap.Timestamp
	if cfg.At != "" {
		if at, err = config.ParseTimestamp(cfg.At); err != nil {
			return fmt.Errorf("parse --at: %w", err)
		}
	}
	clk := clock.NewManual(at, snap.Height)

	// Nothing moves tokens here; the registry and locker are read-only views.
	reg := pool.NewRegistry(pool.Config{}, nil, clk, logger)
	if err := reg.Restore(snap); err != nil {
		return err
	}
	lk := locker.New(common.Address{}, nil, clk, logger)
	if err := lk.Restore(snap.Locks); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POOL\tNAME\tVARIANT\tSTATE\tRAISED\tLIMIT\tCONTRIBUTORS")
	for _, p := range reg.Pools() {
		state, err := reg.State(p.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Variant, state, p.TotalRaised, p.PoolLimit, p.Contributors)
	}
	if len(snap.Locks) > 0 {
		fmt.Fprintln(w, "\nLOCK\tKIND\tBENEFICIARY\tAMOUNT\tRELEASED\tVESTABLE")
		for _, rec := range snap.Locks {
			l, err := lk.Get(rec.ID)
			if err != nil {
				return err
			}
			for _, s := range l.Beneficiaries {
				vestable := "locked"
				if v, err := lk.Vestable(l.ID, s.Account); err == nil {
					vestable = v.String()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", l.ID, l.Kind, s.Account.Hex(), s.Amount, s.Released, vestable)
			}
		}
	}
	return w.Flush()
}
