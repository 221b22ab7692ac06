package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

var (
	cfgFile string
	v       = common.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "paystubd",
	Short: "Asynchronous paystub extraction service",
	Long: `paystubd accepts paystub documents over HTTP or from a broker, extracts pay
fields with a bounded worker pool and serves the scored results.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (json, console)")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd)
}

// initConfig reads the config file when one is given. Environment variables
// prefixed with PAYSTUB_ override it.
func initConfig() {
	if cfgFile == "" {
		return
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config %s: %v\n", cfgFile, err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
