package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/capture"
	"github.com/genba/labjackgo/internal/config"
	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/netdetect"
	"github.com/genba/labjackgo/internal/transport"
)

func newCaptureCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record and inspect device traffic",
	}
	cmd.AddCommand(newCaptureLiveCmd(g))
	cmd.AddCommand(newCaptureDumpCmd())
	return cmd
}

type captureLiveFlags struct {
	iface    string
	output   string
	duration time.Duration
}

func newCaptureLiveCmd(g *globalFlags) *cobra.Command {
	flags := &captureLiveFlags{}

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Capture device ports from a network interface",
		Long: `Live opens an interface with libpcap, filters on the configured device
ports and writes matching packets to --output. Requires capture privileges.
Without --interface the interface routing to a tcp:// target is used, and
loopback otherwise, which suits "ljctl sim".`,
		Example: `  sudo ljctl capture live --interface eth0 --output ue9.pcap --duration 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.output == "" {
				return missingFlagError(cmd, "--output")
			}
			return runCaptureLive(cmd, g, flags)
		},
	}
	cmd.Flags().StringVar(&flags.iface, "interface", "", "Interface to capture on (default: loopback)")
	cmd.Flags().StringVar(&flags.output, "output", "", "pcap file to write (required)")
	cmd.Flags().DurationVar(&flags.duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	return cmd
}

func runCaptureLive(cmd *cobra.Command, g *globalFlags, flags *captureLiveFlags) error {
	cfg, err := config.Load(g.configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	log, err := logging.NewLoggerWithOptions(cfg.LoggerOptions())
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Close()

	iface := flags.iface
	if iface == "" {
		if iface, err = captureInterface(cfg, g); err != nil {
			return err
		}
	}
	ports := cfg.TransportOptions().Ports
	live, err := capture.StartLive(iface, flags.output, ports, log)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Capturing on %s (%s)\n", iface, capture.Filter(ports))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.duration)
		defer cancel()
	}
	<-ctx.Done()

	if err := live.Stop(); err != nil {
		return fmt.Errorf("close capture: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d packet(s) to %s\n", live.Packets(), flags.output)
	return nil
}

// captureInterface picks the interface routing to a tcp:// target, or
// loopback for everything else.
func captureInterface(cfg *config.Config, g *globalFlags) (string, error) {
	spec := cfg.Device.Target
	if g.target != "" {
		spec = g.target
	}
	target, err := transport.ParseTarget(spec)
	if err != nil {
		return "", err
	}
	if target.Kind == transport.KindTCP {
		return netdetect.DetectInterfaceForTarget(target.Host)
	}
	return capture.LoopbackInterface()
}

func newCaptureDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file.pcap>",
		Short: "Print the TCP payloads of a capture",
		Long: `Dump prints one line per TCP segment with a payload: timestamp, endpoints
and the payload in hex. Works on files written by --capture and by
"capture live".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segs, err := capture.ReadSegments(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range segs {
				fmt.Fprintf(out, "%s %s:%d -> %s:%d % X\n",
					s.Timestamp.Format("15:04:05.000000"), s.Src, s.SrcPort, s.Dst, s.DstPort, s.Payload)
			}
			fmt.Fprintf(out, "%d segment(s)\n", len(segs))
			return nil
		},
	}
}
