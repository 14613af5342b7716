package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Administrative exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitConfigInvalid = 2
	exitPreloadFailed = 3
	exitHealthTimeout = 4
)

// exitError carries a specific process exit code up through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "routecodex",
	Short: "RouteCodex - multi-provider LLM gateway",
	Long: `RouteCodex is a protocol gateway for LLM API traffic.

It terminates OpenAI Chat, OpenAI Responses, and Anthropic Messages
requests, routes each one through a configurable module pipeline, and
translates to the bound provider's wire dialect (OpenAI-compatible,
Anthropic, Gemini, iFlow, GLM, qwen, antigravity).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and maps failures to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
