package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "ljctl",
		Short: "Host-side control for UE9, U3 and U6 data acquisition devices",
		Long: `ljctl finds LabJack UE9, U3 and U6 devices over USB or Ethernet, opens
sessions on them and exchanges native command frames and Modbus registers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor || os.Getenv("NO_COLOR") != "" {
				ui.Plain()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", defaultConfigPath, "Path to the YAML configuration")
	pf.StringVar(&g.family, "family", "", "Device family: UE9|U3|U6 (default from config)")
	pf.StringVar(&g.target, "target", "", "Target: usb, usb:N, udp or tcp://host (default from config)")
	pf.StringVar(&g.match, "match", "", "Select by local ID, serial or IP address")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: silent|error|info|verbose|debug")
	pf.StringVar(&g.capture, "capture", "", "Record device traffic to this pcap file")
	pf.StringVar(&g.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	pf.BoolVar(&g.pick, "pick", false, "Prompt for a device when several match")
	pf.BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newListCmd(g))
	rootCmd.AddCommand(newDiscoverCmd(g))
	rootCmd.AddCommand(newPingCmd(g))
	rootCmd.AddCommand(newResetCmd(g))
	rootCmd.AddCommand(newRegCmd(g))
	rootCmd.AddCommand(newMonitorCmd(g))
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newSimCmd(g))
	rootCmd.AddCommand(newCaptureCmd(g))
	rootCmd.AddCommand(newInterfacesCmd())

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(out, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden {
				fmt.Fprintf(out, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(out, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
