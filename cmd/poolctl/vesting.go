package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tokenpools/internal/config"
	"tokenpools/internal/erc20"
	"tokenpools/internal/vesting"
)

// maxCurveRows bounds the printed curve when --step is small.
const maxCurveRows = 10000

func runVesting(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadVesting(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	total, err := erc20.ParseAmount(cfg.Total, cfg.Decimals)
	if err != nil {
		return err
	}
	start, err := config.ParseTimestamp(cfg.Start)
	if err != nil {
		return fmt.Errorf("parse start: %w", err)
	}
	cliff, err := vesting.ParseDuration(cfg.Cliff)
	if err != nil {
		return err
	}
	tranches, err := vesting.ParseTranches(cfg.Tranches)
	if err != nil {
		return err
	}
	step, err := vesting.ParseDuration(cfg.Step)
	if err != nil {
		return err
	}
	if step == 0 {
		return fmt.Errorf("step must be positive")
	}
	sched, err := vesting.NewSchedule(total, start, cliff, tranches)
	if err != nil {
		return err
	}
	if (sched.End()-start)/step > maxCurveRows {
		return fmt.Errorf("step %s gives more than %d rows", cfg.Step, maxCurveRows)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OFFSET\tTIME\tUNLOCKED")
	for ts := start; ; ts += step {
		if ts > sched.End() {
			ts = sched.End()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			time.Duration(ts-start)*time.Second,
			time.Unix(int64(ts), 0).UTC().Format(time.RFC3339),
			erc20.FormatAmount(sched.Unlocked(ts), cfg.Decimals),
		)
		if ts == sched.End() {
			break
		}
	}
	return w.Flush()
}
