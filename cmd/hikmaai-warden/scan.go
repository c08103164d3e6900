// ABOUTME: Scan command walking a directory for files with known-malicious digests
// ABOUTME: Prints pass/fail only in obfuscated mode, otherwise every match and a summary

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/app"
	"github.com/hikmaai-io/hikmaai-warden/internal/config"
)

func newScanCmd() *cobra.Command {
	var (
		outputJSON bool
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Scan a file or directory for known malware",
		Long: `Scan a file or directory tree against the local signature database.

With obfuscated_mode enabled (the default) the scan stops at the first match
and only reports CLEAN or INFECTED. Disable it to list every match:

  hikmaai-warden settings set obfuscated_mode false

Matches are also written to <log_dir>/scans/<timestamp>.log.
Exits with status 2 when malware is found.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			settings, err := s.settings.Load()
			if err != nil {
				return err
			}

			bar := newProgressBar(cmd.ErrOrStderr(), "Scanning files", progressVisible(noProgress || outputJSON))
			outcome := <-s.app.StartScan(ctx, args[0], bar.Sink())
			bar.Stop()

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcome); err != nil {
					return err
				}
			} else {
				printScanOutcome(cmd.OutOrStdout(), outcome, settings)
			}

			return scanResult(outcome)
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")

	return cmd
}

func printScanOutcome(w io.Writer, o app.ScanOutcome, settings config.Settings) {
	if o.Err != "" {
		fmt.Fprintf(w, "ERROR: %s\n", o.Err)
		return
	}

	if settings.ObfuscatedMode {
		switch {
		case o.Report.Infected():
			fmt.Fprintln(w, "INFECTED")
		case o.Report.Incomplete():
			fmt.Fprintln(w, "INCOMPLETE")
		default:
			fmt.Fprintln(w, "CLEAN")
		}
		return
	}

	for _, m := range o.Report.Matches {
		if m.FileType != "" {
			fmt.Fprintf(w, "%s  %s  [%s]\n", m.Digest, m.Path, m.FileType)
		} else {
			fmt.Fprintf(w, "%s  %s\n", m.Digest, m.Path)
		}
	}

	st := o.Report.Stats
	fmt.Fprintf(w, "\nScan summary:\n")
	fmt.Fprintf(w, "  Analysed:  %d\n", st.Hashed)
	fmt.Fprintf(w, "  Skipped:   %d\n", st.Skipped)
	fmt.Fprintf(w, "  Infected:  %d\n", st.Matched)
	if st.QueryFailures > 0 {
		fmt.Fprintf(w, "  Failed:    %d\n", st.QueryFailures)
		for _, p := range o.Report.QueryFailures {
			fmt.Fprintf(w, "    unchecked: %s\n", p)
		}
	}
	fmt.Fprintf(w, "  Duration:  %s\n", o.Report.Duration().Round(time.Millisecond))
	if o.LogPath != "" {
		fmt.Fprintf(w, "  Log:       %s\n", o.LogPath)
	}
}

// scanResult maps an outcome to the command error. A match wins over
// failed lookups; failed lookups alone are an error, never a clean pass.
func scanResult(o app.ScanOutcome) error {
	switch {
	case o.Err != "":
		return fmt.Errorf("scan failed: %s", o.Err)
	case o.Report != nil && o.Report.Infected():
		return errInfected
	case o.Report != nil && o.Report.Incomplete():
		return fmt.Errorf("%w: %d lookups failed", errIncomplete, len(o.Report.QueryFailures))
	default:
		return nil
	}
}
