package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/sfctest/pkg/cli"
	"github.com/newtron-network/sfctest/pkg/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage persistent settings",
		Long: `Manage the defaults kept in ~/.sfctest/settings.json.

  config     testbed config used when --config is not given
  scenarios  scenario directory used when --dir is not given
  results    overrides results_dir of the testbed config

Examples:
  sfctest settings show
  sfctest settings set config /etc/sfctest/testbed.yaml
  sfctest settings clear`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show all settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := settings.Load()
				if err != nil {
					return err
				}
				fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())
				t := cli.NewTable(os.Stdout, "SETTING", "VALUE")
				for _, name := range settings.Names {
					p, _ := s.Field(name)
					t.Row(name, orNotSet(*p))
				}
				return t.Flush()
			},
		},
		&cobra.Command{
			Use:   "get <setting>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := settings.Load()
				if err != nil {
					return err
				}
				p, err := s.Field(args[0])
				if err != nil {
					return err
				}
				fmt.Println(orNotSet(*p))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <setting> <value>",
			Short: "Change one setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return updateSettings(func(s *settings.Settings) error {
					p, err := s.Field(args[0])
					if err != nil {
						return err
					}
					*p = args[1]
					fmt.Printf("%s = %s\n", args[0], args[1])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Reset every setting",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return updateSettings(func(s *settings.Settings) error {
					s.Clear()
					fmt.Println("settings cleared")
					return nil
				})
			},
		},
	)
	return cmd
}

// updateSettings applies fn to the stored settings and saves them. An
// unreadable settings file is replaced.
func updateSettings(fn func(*settings.Settings) error) error {
	s, err := settings.Load()
	if err != nil {
		s = &settings.Settings{}
	}
	if err := fn(s); err != nil {
		return err
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

func orNotSet(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}
