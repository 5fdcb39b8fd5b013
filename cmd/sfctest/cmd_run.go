package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/newtron-network/sfctest/pkg/scenario"
	"github.com/newtron-network/sfctest/pkg/util"
)

func newRunCmd() *cobra.Command {
	var opts scenario.RunOptions
	var dir, junitPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run test scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = resolveScenariosDir(cmd, dir)

			// Fail on scenario errors before touching the testbed.
			runner := scenario.NewRunner(dir, nil)
			if _, err := runner.Load(opts); err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			runID := newRunID()
			env, err := s.environment(ctx, runID)
			if err != nil {
				return err
			}
			runner.Env = env
			runner.Verbose = verboseFlag
			runner.Progress = scenario.NewConsoleProgress(verboseFlag)

			util.WithField(util.FieldRun, runID).Infof("running scenarios from %s", dir)
			results, err := runner.Run(ctx, opts)
			if err != nil {
				return err
			}

			gen := &scenario.ReportGenerator{Results: results, RunID: runID}
			report := filepath.Join(s.cfg.ResultsDir, runID, "report.md")
			if err := gen.WriteMarkdown(report); err != nil {
				util.Warnf("writing report: %v", err)
			} else {
				util.Infof("report written to %s", report)
			}
			if junitPath != "" {
				if err := gen.WriteJUnit(junitPath); err != nil {
					util.Warnf("writing junit: %v", err)
				}
			}

			// Exit 2 = infra error, Exit 1 = verification failure
			if code := scenario.ExitCode(results); code != scenario.ExitPassed {
				s.Close()
				os.Exit(code)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "scenarios", "directory containing scenario YAML files")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "run specific scenario")
	cmd.Flags().BoolVar(&opts.All, "all", false, "run all scenarios in dir")
	cmd.Flags().StringVar(&junitPath, "junit", "", "JUnit XML output path")

	return cmd
}
