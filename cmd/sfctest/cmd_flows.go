package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/sfctest/pkg/cli"
	"github.com/newtron-network/sfctest/pkg/deployment"
	"github.com/newtron-network/sfctest/pkg/ovs"
	"github.com/newtron-network/sfctest/pkg/util"
)

func newFlowsCmd() *cobra.Command {
	var table int
	var bridge string
	var raw bool

	cmd := &cobra.Command{
		Use:   "flows",
		Short: "Show classifier flows on every compute node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			computes := deployment.Computes(s.nodes)
			if len(computes) == 0 {
				return fmt.Errorf("no compute nodes: %w", util.ErrNotFound)
			}

			t := cli.NewTable(os.Stdout, "NODE", "PRIORITY", "TP_DST", "NSP", "MATCH")
			for _, n := range computes {
				q := ovs.NewOfctlQuerier(n.Host, n.User)
				if raw {
					out, err := q.DumpRaw(ctx, bridge, table)
					if err != nil {
						util.WithNode(n.Name).Warnf("dump-flows: %v", err)
						continue
					}
					fmt.Printf("== %s ==\n%s\n", n.Name, out)
					continue
				}
				flows, err := q.DumpFlows(ctx, bridge, table)
				if err != nil {
					util.WithNode(n.Name).Warnf("dump-flows: %v", err)
					continue
				}
				for _, f := range flows {
					port, nsp := "-", "-"
					if p, ok := f.DestPort(); ok {
						port = fmt.Sprint(p)
					}
					if id, ok := f.NSP(); ok {
						nsp = fmt.Sprintf("%#x", id)
					}
					t.Rowf(n.Name, f.Priority, port, nsp, matchString(f))
				}
			}
			return t.Flush()
		},
	}

	cmd.Flags().IntVar(&table, "table", ovs.ClassifierTable, "OpenFlow table to dump, -1 for all")
	cmd.Flags().StringVar(&bridge, "bridge", ovs.DefaultBridge, "OVS bridge")
	cmd.Flags().BoolVar(&raw, "raw", false, "print ovs-ofctl output unparsed")
	return cmd
}

func matchString(f ovs.Flow) string {
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(f.Match)) {
		if v := f.Match[k]; v != "" {
			parts = append(parts, k+"="+v)
		} else {
			parts = append(parts, k)
		}
	}
	return strings.Join(parts, ",")
}
