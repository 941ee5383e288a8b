package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	ljerrors "github.com/genba/labjackgo/internal/errors"
	"github.com/genba/labjackgo/internal/ui"
)

type pingFlags struct {
	count    int
	interval time.Duration
}

func newPingCmd(g *globalFlags) *cobra.Command {
	flags := &pingFlags{}

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a device answers",
		Long: `Ping opens the selected device and sends the family's liveness frame.
A failed exchange is retried once before the device is reported down.`,
		Example: `  # Ping the first UE9 on USB
  ljctl ping

  # Ping a networked UE9 five times
  ljctl ping --target tcp://192.168.1.209 --count 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runPing(cmd, g, flags)
		},
	}
	cmd.Flags().IntVar(&flags.count, "count", 1, "Number of pings")
	cmd.Flags().DurationVar(&flags.interval, "interval", time.Second, "Delay between pings")
	return cmd
}

func runPing(cmd *cobra.Command, g *globalFlags, flags *pingFlags) error {
	if flags.count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	e, err := newEnv(cmd, g)
	if err != nil {
		return err
	}
	defer e.Close()

	s, err := e.open(context.Background())
	if err != nil {
		return e.wrapErr(err, "open")
	}
	defer s.Close()

	failed := 0
	for i := 0; i < flags.count; i++ {
		if i > 0 {
			time.Sleep(flags.interval)
		}
		start := time.Now()
		if s.Ping() {
			fmt.Fprintf(e.out, "%s %s time=%s\n", ui.OK("OK"), e.describe(s), time.Since(start).Round(time.Microsecond))
		} else {
			failed++
			fmt.Fprintf(e.out, "%s %s\n", ui.Fail("FAIL"), e.describe(s))
		}
	}
	if failed > 0 {
		return ljerrors.WrapDeviceError(
			ljerrors.Newf(ljerrors.Timeout, "ping", "%d of %d pings failed", failed, flags.count), "ping")
	}
	return nil
}

func newResetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Soft-reset a device",
		Long: `Reset sends the soft reset command and checks the acknowledgement. The
device drops off the bus or network while it restarts.`,
		Example: `  ljctl reset --family U3 --match 320012345`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			e, err := newEnv(cmd, g)
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := e.open(context.Background())
			if err != nil {
				return e.wrapErr(err, "open")
			}
			defer s.Close()

			if err := s.Reset(); err != nil {
				return e.wrapErr(err, "reset")
			}
			fmt.Fprintf(e.out, "%s reset %s\n", ui.OK("OK"), e.describe(s))
			return nil
		},
	}
}
