package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/sfctest/pkg/cli"
	"github.com/newtron-network/sfctest/pkg/scenario"
)

func newListCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available scenarios in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = resolveScenariosDir(cmd, dir)
			all, err := scenario.ParseAllScenarios(dir)
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Printf("No scenarios found in %s/\n", dir)
				return nil
			}
			sorted, err := scenario.ValidateDependencyGraph(all)
			if err != nil {
				return err
			}

			t := cli.NewTable(os.Stdout, "#", "SCENARIO", "STEPS", "REQUIRES", "DESCRIPTION")
			for i, s := range sorted {
				requires := strings.Join(s.Requires, ",")
				if requires == "" {
					requires = "-"
				}
				t.Rowf(i+1, s.Name, len(s.Steps), requires, s.Description)
			}
			return t.Flush()
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "scenarios", "directory containing scenario YAML files")
	return cmd
}
