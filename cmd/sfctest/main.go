package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/newtron-network/sfctest/pkg/util"
	"github.com/newtron-network/sfctest/pkg/version"
)

var (
	verboseFlag bool
	configFlag  string
	logLevel    string
	jsonLogs    bool
)

// overrides holds values that may come from flags or SFCTEST_* variables.
var overrides = newOverrides()

func newOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SFCTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sfctest",
		Short: "SFC testbed scenarios for OpenStack/Tacker/OpenDaylight",
		Long: `Sfctest deploys service function chains on an NFV testbed and checks
that the classification rules reach the compute nodes and that traffic is
steered through the service functions.

  sfctest list                          # show available scenarios
  sfctest run --scenario basic          # run one scenario
  sfctest run --all --junit out.xml     # run every scenario in order
  sfctest verify --classifier red_http:red:80
  sfctest flows                         # dump classifier table on computes
  sfctest fetch-creds                   # copy tackerc, write odlrc`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if jsonLogs {
				util.SetJSONFormat()
			}
			if verboseFlag && !cmd.Flags().Changed("log-level") {
				logLevel = "debug"
			}
			return util.SetLogLevel(logLevel)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")
	pf.StringVarP(&configFlag, "config", "c", "", "Testbed config file (default from settings)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.BoolVar(&jsonLogs, "json", false, "Log in JSON format")
	pf.String("installer-ip", "", "Installer (jump host) address")
	pf.String("installer-password", "", "Installer password")
	pf.String("controller", "", "Controller northbound endpoint (host:port)")
	pf.Int("topology-seed", 0, "Topology index, -1 for the fallback placement")

	for key, flag := range map[string]string{
		"installer.ip":        "installer-ip",
		"installer.password":  "installer-password",
		"controller.endpoint": "controller",
		"topology.seed":       "topology-seed",
	} {
		if err := overrides.BindPFlag(key, pf.Lookup(flag)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newListCmd(),
		newVerifyCmd(),
		newFlowsCmd(),
		newFetchCredsCmd(),
		newSettingsCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.String("sfctest"))
				if verboseFlag {
					fmt.Println("build:", version.Info())
				}
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
