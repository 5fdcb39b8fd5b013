package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/newtron-network/sfctest/pkg/deployment"
	"github.com/newtron-network/sfctest/pkg/util"
)

// remoteTackerRC is where the installer leaves the admin credentials on
// controller nodes.
const remoteTackerRC = "/root/tackerc"

func newFetchCredsCmd() *cobra.Command {
	var odlrc string

	cmd := &cobra.Command{
		Use:   "fetch-creds",
		Short: "Copy tackerc from a controller and write the controller address to odlrc",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			controllers := deployment.Controllers(s.nodes)
			if len(controllers) == 0 {
				return fmt.Errorf("no controller node: %w", util.ErrNotFound)
			}
			local := s.cfg.TackerRCPath()
			if err := controllers[0].GetFile(ctx, remoteTackerRC, local); err != nil {
				return err
			}
			fmt.Printf("tackerc   -> %s\n", local)

			ip, port, err := deployment.ControllerEndpoint(ctx, s.nodes)
			if err != nil {
				return err
			}
			if odlrc == "" {
				odlrc = filepath.Join(s.cfg.DemoDir, "odlrc")
			}
			if err := deployment.WriteODLRC(odlrc, ip, port); err != nil {
				return err
			}
			fmt.Printf("odlrc     -> %s (%s:%s)\n", odlrc, ip, port)
			return nil
		},
	}

	cmd.Flags().StringVar(&odlrc, "odlrc", "", "odlrc output path (default <demo_dir>/odlrc)")
	return cmd
}
