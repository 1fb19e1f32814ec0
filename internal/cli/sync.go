package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command, which runs one replication
// round: push every local record, then pull remote changes.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push local records and pull remote changes once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Bridge == nil {
				return errors.New("sync: replication is off; set REMOTE_DATABASE_URL and SYNC_ACCOUNT_ID")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := a.Bridge.Seed(ctx); err != nil {
				return err
			}
			queued := a.Bridge.Pending()

			runCtx, stop := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				defer close(done)
				a.Bridge.Run(runCtx)
			}()
			flushErr := a.Bridge.Flush(ctx)
			stop()
			<-done
			if flushErr != nil {
				return fmt.Errorf("sync: push: %w (%d still queued)", flushErr, a.Bridge.Pending())
			}

			pulled, err := a.Bridge.Pull(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %d, pulled %d\n", queued, pulled)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}
