/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FLEET"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Schedule extract, replenish and stabilize work across a fleet",
	Long: `fleet decides, every cycle, which targets to work and with how many
units of capacity, then dispatches the resulting work orders to worker agents.

Every flag can also be set through the environment as FLEET_<FLAG>, with
dashes written as underscores.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := bindFlags(cmd); err != nil {
			return err
		}

		level, err := log.ParseLevel(viper.GetString("level"))
		if err != nil {
			return errors.Wrap(err, "invalid log level")
		}
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("level", "info", "log level (debug, info, warn, error)")
}

// bindFlags lets FLEET_* variables stand in for any flag of cmd. Values that
// do not parse as the flag's type are reported together.
func bindFlags(cmd *cobra.Command) error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	var result *multierror.Error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		name := envPrefix + "_" + strings.ReplaceAll(strings.ToUpper(flag.Name), "-", "_")
		if value, ok := os.LookupEnv(name); ok && !flag.Changed {
			if err := flag.Value.Set(value); err != nil {
				result = multierror.Append(result, errors.Wrapf(err, "failed to parse %s (%s)", name, flag.Value.Type()))
			}
		}
	})
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "binding flags")
	}
	if err := viper.BindPFlags(cmd.InheritedFlags()); err != nil {
		return errors.Wrap(err, "binding flags")
	}
	return nil
}
