package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGCImagesCommand creates the gc-images command, which removes stored
// images that no record refers to.
func NewGCImagesCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "gc-images",
		Short: "Remove images no record refers to",
		Long: `Remove stored images that no travel plan or visited place refers to.

Leftovers come from saves that failed half way. Run it while the API server
is stopped: an image uploaded for a record that is not stored yet looks
orphaned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.Janitor.Sweep(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			verb := "removed"
			if dryRun {
				verb = "would remove"
			}
			for _, name := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d orphaned image(s)\n", len(removed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list orphaned images without removing them")
	return cmd
}
