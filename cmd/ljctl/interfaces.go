package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/genba/labjackgo/internal/netdetect"
)

func newInterfacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "interfaces",
		Short: "List IPv4 interfaces and their broadcast addresses",
		Long: `Interfaces prints every interface with an IPv4 address. The broadcast
column is where discovery datagrams go when transport.interface in the
configuration names that interface.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			interfaces, err := netdetect.ListInterfaces()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, iface := range interfaces {
				state := "down"
				if iface.IsUp {
					state = "up"
				}
				kind := ""
				if iface.IsLoopback {
					kind = " loopback"
				}
				bcast := iface.Broadcast
				if bcast == "" {
					bcast = "-"
				}
				fmt.Fprintf(out, "%-12s %-4s%s  %s  broadcast %s\n", iface.Name, state, kind, netdetect.AddressString(iface), bcast)
			}
			return nil
		},
	}
}
