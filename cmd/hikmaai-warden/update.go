// ABOUTME: Update command refreshing the signature database from the configured feeds
// ABOUTME: Shows refresh progress and the resulting entry count

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	var (
		outputJSON bool
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh the signature database",
		Long: `Download every configured feed and atomically replace the signature set.
A failed update leaves the previous database in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			bar := newProgressBar(cmd.ErrOrStderr(), "Updating signatures", progressVisible(noProgress || outputJSON))
			outcome := <-s.app.StartUpdate(ctx, bar.Sink())
			bar.Stop()

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcome); err != nil {
					return err
				}
			}
			if outcome.Err != "" {
				return fmt.Errorf("update failed: %s", outcome.Err)
			}
			if !outputJSON {
				r := outcome.Result
				fmt.Fprintf(out, "Signatures: %s\n", outcome.Count)
				fmt.Fprintf(out, "  Added:      %d\n", r.Added)
				fmt.Fprintf(out, "  Removed:    %d\n", r.Removed)
				fmt.Fprintf(out, "  Generation: %d\n", r.Generation)
				fmt.Fprintf(out, "  Source:     %s\n", r.Source)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")

	return cmd
}
