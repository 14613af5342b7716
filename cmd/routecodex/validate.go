package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/profile"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, resolve the provider bindings, and
report problems without starting the gateway.

Checks performed:
  - YAML syntax and unknown keys
  - environment variable interpolation
  - provider triple completeness and auth settings
  - route table shape (llmswitch last, single default)
  - profile registry consistency (protocol/family membership)

Exit code 2 signals an invalid configuration.`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &exitError{code: exitConfigInvalid, err: err}
	}
	if _, err := profile.NewRegistry(cfg.Providers); err != nil {
		return &exitError{code: exitConfigInvalid, err: err}
	}

	fmt.Printf("configuration %s is valid: %d provider(s), %d route(s)\n",
		cfgFile, len(cfg.Providers), len(cfg.Routes))
	return nil
}
