// Package cli implements tripctl, the maintenance command line for the
// tripbook backend. It reads the same environment as the API server.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pkordes/tripbook/backend/internal/app"
	"github.com/pkordes/tripbook/backend/internal/config"
	"github.com/pkordes/tripbook/backend/internal/service"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// User is the account the command acts as.
	User string
}

// NewRootCommand creates the root command for tripctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "tripctl",
		Short:         "Maintenance commands for the tripbook backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", "", "account id to act as")

	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewGCImagesCommand(opts))
	cmd.AddCommand(NewBudgetCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))

	return cmd
}

// openApp loads the environment configuration and builds the components.
// Logs go to the command's stderr so they never mix with its output.
func openApp(ctx context.Context, cmd *cobra.Command, opts *RootOptions) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := app.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	a, err := app.New(ctx, cfg, log, service.StaticAuth(opts.User))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return a, nil
}
