package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
)

var initForce bool

// initCmd writes a sample configuration file
var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample configuration file",
	Long: `Write the built-in defaults as a commented YAML configuration file.
Credentials are never written; they are read from the environment.

Examples:
  # Create schemadoc.yaml in the current directory
  schemadoc init

  # Overwrite an existing file
  schemadoc init --force ./config/schemadoc.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := "schemadoc.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check %s: %w", path, err)
	}

	cfg, err := config.Defaults()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := config.WriteSample(f, cfg); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	cmd.Printf("Wrote %s\n", path)
	return nil
}
