package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yairfalse/lwcomply/internal/errors"
	"github.com/yairfalse/lwcomply/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lwcomply",
	Short: "Aggregate Lacework compliance reports across AWS accounts",
	Long: `lwcomply pulls a compliance report for every monitored AWS account,
resolves the resources behind each violation and fills in missing ownership
tags from what the rest of the account is tagged with.

  lwcomply run                         # previous week, all enabled accounts
  lwcomply run --start 2024-06-03 --end 2024-06-09
  lwcomply run --accounts 123456789012 -o yaml
  lwcomply alerts -o table
  lwcomply cache stats
  lwcomply doctor`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion, _ := cmd.Flags().GetBool("version"); showVersion {
			runVersion(cmd, []string{})
			return nil
		}
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		noColor, _ := rootCmd.PersistentFlags().GetBool("no-color")
		errors.DisplayError(os.Stderr, err, noColor)
		os.Exit(errors.GetExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lwcomply/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringP("output", "o", "json", "output format (json, yaml, table)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.Flags().Bool("version", false, "show version information")

	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("output.format", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("output.no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newAlertsCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newDoctorCommand())
	rootCmd.AddCommand(newVersionCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	var err error
	cfg, err = config.LoadFrom(viper.GetViper(), cfgFile)
	if err != nil {
		return errors.ConfigurationError("config", fmt.Sprintf("failed to load configuration: %v", err))
	}
	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *config.Config {
	return cfg
}
