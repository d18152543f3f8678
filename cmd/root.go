// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/pktt/internal/config"
	"firestige.xyz/pktt/internal/log"
)

var (
	// Global flags
	configFile string

	// cfg is loaded before any subcommand runs.
	cfg *config.GlobalConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pktt",
	Short: "pktt - ONC RPC aware packet trace decoder",
	Long: `pktt decodes captured network traces layer by layer, from the link
header up to ONC RPC calls and replies. It pairs replies with their calls,
unwraps RPCSEC_GSS integrity envelopes and decodes portmap bodies.

Input is a pcap or pcapng file; output is a table, YAML or JSON.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig loads the configuration and sets up the process logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := log.Init(loaded.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	cfg = loaded
	return nil
}
