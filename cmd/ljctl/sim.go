package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/config"
	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/logging"
	"github.com/genba/labjackgo/internal/sim"
	"github.com/genba/labjackgo/internal/transport"
)

type simFlags struct {
	listen       string
	serial       uint32
	localID      uint8
	commandPort  int
	streamPort   int
	registerPort int
	discovery    int
	duration     time.Duration
}

func newSimCmd(g *globalFlags) *cobra.Command {
	flags := &simFlags{}
	ports := transport.DefaultPorts()

	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run a networked UE9 emulator",
		Long: `Sim listens on the command, stream and register TCP ports and the UDP
discovery port and answers like a UE9: identify, ping, reset, Modbus reads
and writes, and discovery datagrams. Point other ljctl commands at it with
--target tcp://<listen>.`,
		Example: `  # Emulator on loopback with the factory ports
  ljctl sim

  # Unprivileged register port
  ljctl sim --register-port 5020 --serial 268500000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runSim(cmd, g, flags)
		},
	}
	cmd.Flags().StringVar(&flags.listen, "listen", "127.0.0.1", "IPv4 address to bind")
	cmd.Flags().Uint32Var(&flags.serial, "serial", sim.DefaultIdentity.Serial, "Serial number to report")
	cmd.Flags().Uint8Var(&flags.localID, "local-id", sim.DefaultIdentity.LocalID, "Local ID to report")
	cmd.Flags().IntVar(&flags.commandPort, "command-port", ports.Command, "Command TCP port")
	cmd.Flags().IntVar(&flags.streamPort, "stream-port", ports.Stream, "Stream TCP port")
	cmd.Flags().IntVar(&flags.registerPort, "register-port", ports.Register, "Register (Modbus) TCP port")
	cmd.Flags().IntVar(&flags.discovery, "discovery-port", ports.Discovery, "Discovery UDP port")
	cmd.Flags().DurationVar(&flags.duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	return cmd
}

func runSim(cmd *cobra.Command, g *globalFlags, flags *simFlags) error {
	cfg, err := config.Load(g.configPath, !cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	log, err := logging.NewLoggerWithOptions(cfg.LoggerOptions())
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Close()

	d, err := sim.New(sim.Config{
		ListenIP: flags.listen,
		Ports: transport.Ports{
			Command:   flags.commandPort,
			Stream:    flags.streamPort,
			Register:  flags.registerPort,
			Discovery: flags.discovery,
		},
		Identity: device.Identity{Serial: flags.serial, LocalID: flags.localID},
	}, log)
	if err != nil {
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}
	defer d.Stop()

	p := d.Ports()
	fmt.Fprintf(cmd.OutOrStdout(), "UE9 emulator serial %d on %s (command %d, stream %d, register %d, discovery %d)\n",
		flags.serial, flags.listen, p.Command, p.Stream, p.Register, p.Discovery)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.duration)
		defer cancel()
	}
	<-ctx.Done()

	st := d.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Served %d command(s), %d register request(s), %d reset(s), %d probe(s)\n",
		st.Commands, st.Registers, st.Resets, st.Probes)
	return nil
}
