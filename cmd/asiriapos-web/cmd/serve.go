package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ideamans/asiriapos-web/cmd/asiriapos-web/cmd/server"
	"github.com/ideamans/asiriapos-web/pkg/config"
	"github.com/ideamans/asiriapos-web/pkg/shared/logging"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web front-end",
	Long: `Start asiriapos-web with the specified configuration.

The server will:
- Load the dotenv file and the configuration file
- Initialize session storage (memory, LevelDB or Redis)
- Connect to the AsiriaPOS REST API
- Serve the pages and reload the site section when the file changes
- Handle graceful shutdown on SIGTERM/SIGINT`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := logging.NewLoggerWithFile("main", logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Color, cfg.Logging.File.Rotation())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	if path == "" {
		logger.Warn("No config file found, using environment and defaults", "flag", cfgFile)
	}

	return server.Run(context.Background(), server.Config{
		ConfigPath: path,
		App:        cfg,
		Host:       host,
		Port:       port,
		HostSet:    cmd.Flags().Changed("host"),
		PortSet:    cmd.Flags().Changed("port"),
		Logger:     logger,
		Version:    version,
	})
}

// loadConfig loads the dotenv file, then the config file. A missing config
// file is only an error when --config was given explicitly; otherwise the
// configuration comes from POS_* variables and defaults, and path is "".
func loadConfig(cmd *cobra.Command) (cfg *config.Config, path string, err error) {
	if envFile != "" {
		if err := config.LoadEnvFile(envFile); err != nil {
			return nil, "", err
		}
	}

	path = cfgFile
	cfg, err = config.NewFileLoader(path).Load()
	if errors.Is(err, config.ErrConfigFileNotFound) && !cmd.Flags().Changed("config") {
		path = ""
		cfg, err = config.NewFileLoader("").Load()
	}
	if err != nil {
		return nil, "", server.FormatConfigError(err)
	}
	return cfg, path, nil
}
