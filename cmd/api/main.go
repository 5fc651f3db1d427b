package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"callfeedback/internal/config"
	"callfeedback/internal/store"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// commandContext carries configuration loaded once for every subcommand.
type commandContext struct {
	cfg config.Config
}

func (c *commandContext) openStore() (*store.Store, error) {
	s, err := store.Open(c.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", c.cfg.DBPath, err)
	}
	return s, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "callfeedback",
		Short:         "Call feedback pipeline and admin tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newSeedPromptsCommand(ctx))
	rootCmd.AddCommand(newImportScriptCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newProjectCommand(ctx))
	return rootCmd
}
