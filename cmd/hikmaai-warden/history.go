// ABOUTME: History command listing past scans and run logs
// ABOUTME: Reads scan jobs from the database and log files from the log directory

package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/runlog"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit      int
		logs       bool
		root       string
		prune      time.Duration
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent scans",
		Long: `List recent scans, newest first. With --logs, list the scan and update
run log files instead. --root shows only the latest scan of one path and
--prune first deletes finished scans older than the given age.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if logs {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KIND\tSTARTED\tSIZE\tPATH")
				for _, kind := range []runlog.Kind{runlog.KindScans, runlog.KindUpdates} {
					entries, err := runlog.List(cfg.LogDir, kind)
					if err != nil {
						return err
					}
					for i, e := range entries {
						if i >= limit {
							break
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, e.Started.Format(time.RFC3339), formatBytes(e.Size), e.Path)
					}
				}
				return tw.Flush()
			}

			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			history := s.app.History()
			if prune > 0 {
				n, err := history.Cleanup(cmd.Context(), prune)
				if err != nil {
					return fmt.Errorf("pruning history: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d scans older than %s\n", n, prune)
			}

			var jobs []*types.Job
			if root != "" {
				job, err := history.LatestForRoot(cmd.Context(), root)
				if err != nil {
					return fmt.Errorf("reading history: %w", err)
				}
				if job != nil {
					jobs = append(jobs, job)
				}
			} else {
				jobs, err = history.List(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("listing history: %w", err)
				}
			}
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(jobs)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tMATCHES\tDURATION\tROOT")
			for _, j := range jobs {
				matches := "-"
				if j.Report != nil {
					matches = fmt.Sprint(len(j.Report.Matches))
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					j.CreatedAt.Local().Format(time.RFC3339), j.Status, matches,
					j.Duration().Round(time.Millisecond), j.Root)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	cmd.Flags().BoolVar(&logs, "logs", false, "list run log files")
	cmd.Flags().StringVar(&root, "root", "", "show the latest scan of this path")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete finished scans older than this age first")
	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")

	cmd.AddCommand(newHistoryLogCmd())
	return cmd
}

func newHistoryLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <file>",
		Short: "Print one run log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := runlog.ReadLines(args[0])
			if err != nil {
				return err
			}
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}
