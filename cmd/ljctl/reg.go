package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/modbus"
)

func newRegCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reg",
		Short: "Read and write Modbus registers",
	}
	cmd.AddCommand(newRegReadCmd(g))
	cmd.AddCommand(newRegWriteCmd(g))
	return cmd
}

type regReadFlags struct {
	count  int
	format string
}

func parseAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid register address %q", s)
	}
	return uint16(v), nil
}

func newRegReadCmd(g *globalFlags) *cobra.Command {
	flags := &regReadFlags{}

	cmd := &cobra.Command{
		Use:   "read <address>",
		Short: "Read a register value",
		Long: `Read fetches one value starting at address. The register map decides
how many words to read and how to decode them unless --count or --format
say otherwise.`,
		Example: `  # Analog input 0 as float32
  ljctl reg read 0 --target tcp://192.168.1.209

  # Serial number
  ljctl reg read 50100 --format uint32`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			format, err := modbus.ParseFormat(flags.format)
			if err != nil {
				return err
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

			v, err := s.ReadRegister(addr, flags.count, format)
			if err != nil {
				return e.wrapErr(err, "read register")
			}
			fmt.Fprintf(e.out, "%d = %s\n", addr, strconv.FormatFloat(v, 'g', -1, 64))
			return nil
		},
	}
	cmd.Flags().IntVar(&flags.count, "count", 0, "Registers to read (0 = from the register map)")
	cmd.Flags().StringVar(&flags.format, "format", "default", "Decode as default|float32|uint32|int32|uint16")
	return cmd
}

func newRegWriteCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <address> <value>",
		Short: "Write a register value",
		Long: `Write stores value at address and checks the device's echo. The value is
encoded in the register map's format: float32 for analog ranges (DAC0 is
5000), uint32 for timers and counters (7000-7999) and uint16 for digital
lines (6000-6999). Integer registers reject fractional or out-of-range values.`,
		Example: `  # Drive DAC0 to 2.5 V
  ljctl reg write 5000 2.5 --target tcp://192.168.1.209`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddr(args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q", args[1])
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

			if err := s.WriteRegister(addr, value); err != nil {
				return e.wrapErr(err, "write register")
			}
			fmt.Fprintf(e.out, "%d <- %s\n", addr, args[1])
			return nil
		},
	}
	return cmd
}
