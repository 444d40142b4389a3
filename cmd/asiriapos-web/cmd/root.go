package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	host    string
	port    int
	version = "dev" // Set by build
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "asiriapos-web",
	Short: "AsiriaPOS web front-end",
	Long: `asiriapos-web serves the AsiriaPOS point-of-sale pages in front of the
AsiriaPOS REST API.

It keeps each browser's API credentials in a server-side session, refreshes
expired access tokens transparently, and renders the dashboard, inventory and
account pages.`,
	Version:      version,
	SilenceUsage: true,
	// Default to serve command when no subcommand is specified
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "asiriapos.yaml", "Path to configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from a dotenv file first")
	rootCmd.PersistentFlags().StringVar(&host, "host", "localhost", "Server host address")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 8000, "Server port number")
}
