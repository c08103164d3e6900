// ABOUTME: Database inspection commands for debugging and maintenance
// ABOUTME: Provides info, lookup and compact operations on the signature store

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/app"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database inspection and maintenance commands",
		Long:  `Commands for inspecting and maintaining the BadgerDB signature database.`,
	}

	cmd.AddCommand(newDBInfoCmd())
	cmd.AddCommand(newDBLookupCmd())
	cmd.AddCommand(newDBCompactCmd())

	return cmd
}

func newDBInfoCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			info, err := s.app.DBInfo()
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printDBInfo(cmd.OutOrStdout(), s.cfg.StorePath(), info)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")

	return cmd
}

func printDBInfo(w io.Writer, path string, info *app.Info) {
	st := info.Stats
	fmt.Fprintf(w, "Database path: %s\n", path)
	fmt.Fprintf(w, "Database Statistics:\n")
	fmt.Fprintf(w, "  Signatures:   %d\n", st.Meta.EntryCount)
	fmt.Fprintf(w, "  Generation:   %d\n", st.Meta.Generation)
	fmt.Fprintf(w, "  Last update:  %s\n", st.Meta.LastRefreshString())
	fmt.Fprintf(w, "  Size:         %s\n", formatBytes(st.StoreSizeBytes))
	fmt.Fprintf(w, "  Bloom filter: ~%d items, %s, %d hash functions\n",
		st.Bloom.ApproximateItems, formatBytes(int64(st.Bloom.BitSetSize)), st.Bloom.HashFunctions)
	fmt.Fprintf(w, "Update schedule: %s\n", info.Status.Schedule)

	if st.Meta.Generation == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Database is empty. Load signatures with:")
		fmt.Fprintln(w, "  hikmaai-warden update")
	}
}

func newDBLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <md5>",
		Short: "Check whether a digest is a known signature",
		Long:  `Check one MD5 digest. Exits with status 2 when it is known malware.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			found, err := s.app.Lookup(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("lookup failed: %w", err)
			}
			if found {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: MALWARE\n", args[0])
				return errInfected
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: not found\n", args[0])
			return nil
		},
	}
}

func newDBCompactCmd() *cobra.Command {
	var clearCache bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Trigger database compaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if clearCache {
				n, err := s.app.ClearDigestCache(cmd.Context())
				if err != nil {
					return fmt.Errorf("clearing digest cache: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached digests.\n", n)
			}
			if err := s.app.Store().Compact(); err != nil {
				return fmt.Errorf("compaction failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Compaction complete.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&clearCache, "clear-cache", false, "drop cached file digests first")
	return cmd
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
