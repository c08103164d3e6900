// ABOUTME: Drives command listing removable media that can be scanned
// ABOUTME: Prints mount points with filesystem type and capacity

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/drives"
)

func newDrivesCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "drives",
		Short: "List removable drives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := drives.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing drives: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if list == nil {
					list = []drives.Drive{}
				}
				return enc.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No removable drives found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH\tTYPE\tSIZE\tFREE")
			for _, d := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					d.Name, d.Path, d.FSType,
					formatBytes(int64(d.TotalBytes)), formatBytes(int64(d.FreeBytes)))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")

	return cmd
}
