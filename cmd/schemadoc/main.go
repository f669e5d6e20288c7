// Package main implements the schemadoc CLI, which documents the fields of
// schema registry subjects with a language model and publishes the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information, set via ldflags.
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"

	configPath string
	verbose    bool
	logLevel   string
)

// exitError carries a process exit status out of a RunE. err may be nil when
// the run finished but some jobs did not.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "schemadoc",
	Short: "Document schema registry subjects with a language model",
	Long: `schemadoc finds undocumented fields in Avro, JSON Schema and Protobuf
subjects, asks a language model to describe them, reviews every description
and publishes the updated definitions as a pull request, a local commit or a
directory of files.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: schemadoc.yaml or ~/.config/schemadoc/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging and full change listings")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn or error (trace logs prompts)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runFromRepoCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(versionCmd)
}
