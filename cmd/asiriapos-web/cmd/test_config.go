package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ideamans/asiriapos-web/cmd/asiriapos-web/cmd/server"
	"github.com/ideamans/asiriapos-web/pkg/config"
	"github.com/ideamans/asiriapos-web/pkg/shared/kvs"
)

// testConfigCmd represents the test-config command
var testConfigCmd = &cobra.Command{
	Use:   "test-config",
	Short: "Validate the configuration file",
	Long: `Test and validate the configuration without starting the server.

This command will:
- Load the dotenv file and the configuration file
- Apply POS_* environment overrides and defaults
- Validate all fields and report every problem found

If the configuration is valid, the command exits with status 0.
If there are validation errors, the command exits with status 1.`,
	RunE: runTestConfig,
}

func init() {
	rootCmd.AddCommand(testConfigCmd)
}

func runTestConfig(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println("Testing configuration from environment (no config file)")
	} else {
		fmt.Printf("Testing configuration file: %s\n", path)
	}
	fmt.Println("✓ Configuration loaded successfully")

	if err := cfg.Validate(); err != nil {
		return server.FormatConfigError(err)
	}
	fmt.Println("✓ Configuration validation passed")

	fmt.Println("\nConfiguration Summary:")
	fmt.Printf("  Site Name: %s\n", cfg.Site.Name)
	fmt.Printf("  Listen: %s\n", cfg.Server.Addr())
	fmt.Printf("  API: %s\n", cfg.API.BaseURL)

	storeType := cfg.Session.Store.Type
	if storeType == "" {
		storeType = kvs.TypeMemory
	}
	fmt.Printf("  Session Store: %s\n", storeType)
	fmt.Printf("  Session Cookie: %s (expires after %s)\n", cfg.Session.Cookie.Name, cfg.Session.Cookie.Expire)

	if cfg.LoginRateLimit.Enabled() {
		fmt.Printf("  Login Rate Limit: %d attempts per %s\n", cfg.LoginRateLimit.Attempts, cfg.LoginRateLimit.GetInterval())
	} else {
		fmt.Println("  Login Rate Limit: disabled")
	}
	if cfg.Site.MaintenanceMode {
		fmt.Println("  Maintenance Mode: on")
	}

	for _, name := range missingEnv(path) {
		fmt.Printf("  Warning: ${%s} is not set\n", name)
	}

	fmt.Println("\n✓ Configuration is valid and ready to use")
	return nil
}

func missingEnv(path string) []string {
	if path == "" {
		return nil
	}
	l := config.NewFileLoader(path)
	if _, err := l.Load(); err != nil {
		return nil
	}
	return l.MissingEnvVars()
}
