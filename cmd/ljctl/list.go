package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/device"
	"github.com/genba/labjackgo/internal/transport"
	"github.com/genba/labjackgo/internal/ui"
)

type listFlags struct {
	output string
}

type deviceJSON struct {
	Family    string `json:"family"`
	Transport string `json:"transport"`
	Serial    uint32 `json:"serial"`
	LocalID   uint8  `json:"local_id"`
	Address   string `json:"address,omitempty"`
}

func newListCmd(g *globalFlags) *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List devices of a family over the configured target",
		Long: `List opens every device of the selected family reachable over the target,
reads its identity and closes it again. USB targets enumerate the bus; udp
broadcasts a discovery datagram; tcp://host identifies a single device.`,
		Example: `  # U3 devices on USB
  ljctl list --family U3

  # UE9 devices on the local network
  ljctl list --family UE9 --target udp --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runList(cmd, g, flags, false)
		},
	}
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")
	return cmd
}

func newDiscoverCmd(g *globalFlags) *cobra.Command {
	flags := &listFlags{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Broadcast for networked devices",
		Long: `Discover sends the discovery datagram to the broadcast address and
lists every device that answers within the discovery timeout. It is
equivalent to "list --target udp".`,
		Example: `  # Discover on a specific interface
  ljctl discover --family UE9

  # JSON for scripts
  ljctl discover --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runList(cmd, g, flags, true)
		},
	}
	cmd.Flags().StringVar(&flags.output, "output", "text", "Output format: text|json")
	return cmd
}

func runList(cmd *cobra.Command, g *globalFlags, flags *listFlags, broadcast bool) error {
	if flags.output != "text" && flags.output != "json" {
		return fmt.Errorf("invalid output format '%s'; must be 'text' or 'json'", flags.output)
	}
	e, err := newEnv(cmd, g)
	if err != nil {
		return err
	}
	defer e.Close()
	if broadcast {
		e.target = transport.Target{Kind: transport.KindUDP, Index: -1}
	}

	ids, err := e.list(context.Background())
	if err != nil {
		return e.wrapErr(err, "list")
	}
	return printDevices(e, ids, flags.output)
}

func printDevices(e *env, ids []device.Identity, output string) error {
	if output == "json" {
		out := make([]deviceJSON, 0, len(ids))
		for _, id := range ids {
			out = append(out, deviceJSON{
				Family:    id.Family.String(),
				Transport: id.Transport.String(),
				Serial:    id.Serial,
				LocalID:   id.LocalID,
				Address:   id.Address,
			})
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		fmt.Fprintf(e.out, "%s\n", data)
		return nil
	}
	fmt.Fprintln(e.out, ui.RenderDevices(ids))
	return nil
}
