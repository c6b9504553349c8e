package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/minermon"
	"github.com/loykin/minermon/internal/pool"
)

func createCheckCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the miner and the pool once without taking action",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := minermon.LoadConfig(global.ConfigPath)
			if err != nil {
				return err
			}
			closer := setupLogging(cfg, cmd.ErrOrStderr())
			defer func() { _ = closer.Close() }()

			w := minermon.NewWithHistory(cfg, nil)
			res, err := w.Check(cmd.Context())
			if err != nil {
				return err
			}
			printCheck(cmd.OutOrStdout(), cfg, res)
			return nil
		},
	}
}

func printCheck(out io.Writer, cfg *minermon.Config, res minermon.CheckResult) {
	if p := res.Process; p == nil {
		_, _ = fmt.Fprintf(out, "Miner %q: not running\n", cfg.MinerExecutable)
	} else {
		_, _ = fmt.Fprintf(out, "Miner %q: running, pid %d, uptime %s\n",
			cfg.MinerExecutable, p.PID, p.Uptime(time.Now()).Round(time.Second))
		if res.InGrace {
			_, _ = fmt.Fprintf(out, "  within startup grace of %s\n", cfg.StartupGrace)
		}
	}

	switch {
	case !res.PoolEnabled:
		_, _ = fmt.Fprintln(out, "Pool: monitoring disabled (fresh)")
	case res.Pool.Status == pool.StatusUnknown:
		_, _ = fmt.Fprintf(out, "Pool: unknown (%v)\n", res.Pool.Err)
	default:
		_, _ = fmt.Fprintf(out, "Pool: %s, last share %s (%s ago, limit %s)\n",
			res.Pool.Status, res.Pool.LastShare.Format("2006-01-02 15:04:05"),
			res.Pool.Age.Round(time.Second), cfg.PoolMaximumLastUpdateTimeout)
	}
}
