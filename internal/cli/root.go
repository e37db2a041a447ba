// Package cli implements the solid command.
package cli

import (
	"fmt"
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/relab/solid/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "solid",
		Short: "A command-line utility for the solid consensus protocol.",
		Long: `solid runs validators of a leader-rotating consensus protocol.

To run a network of validators in this process, use the 'solid run' command.
To create validator keys, use the 'solid keygen' command.`,
		SilenceUsage: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.solid.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "sets the log level (debug, info, warn, error)")
	cobra.CheckErr(viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")))
	rootCmd.PersistentFlags().StringSlice("log-pkgs", []string{}, "set the log level on a per-package basis.")
	cobra.CheckErr(viper.BindPFlag("log-pkgs", rootCmd.PersistentFlags().Lookup("log-pkgs")))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".solid" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".solid")
	}

	viper.SetEnvPrefix("solid")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	cobra.CheckErr(setLogLevels(viper.GetString("log-level"), viper.GetStringSlice("log-pkgs")))
}

// setLogLevels applies the global level and a list of package:level overrides.
func setLogLevels(level string, packageLevels []string) error {
	if err := logging.SetLogLevel(level); err != nil {
		return err
	}
	for _, packageLevel := range packageLevels {
		parts := strings.Split(packageLevel, ":")
		if len(parts) != 2 {
			return fmt.Errorf("log-pkgs must be a comma-separated list of package:level strings, got %q", packageLevel)
		}
		if err := logging.SetPackageLogLevel(parts[0], parts[1]); err != nil {
			return err
		}
	}
	return nil
}
