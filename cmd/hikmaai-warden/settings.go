// ABOUTME: Settings commands for the persisted scanner preferences
// ABOUTME: Shows and edits the settings file watched by a running daemon

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/config"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change persisted settings",
		Long: `Show or change the settings stored in <data_dir>/` + config.SettingsFileName + `.

A running daemon reloads the update schedule when this file changes.`,
	}

	cmd.AddCommand(newSettingsShowCmd())
	cmd.AddCommand(newSettingsSetCmd())

	return cmd
}

func newSettingsShowCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			settings, err := config.NewSettingsStore(cfg.SettingsPath()).Load()
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(settings)
			}
			return printSettings(cmd.OutOrStdout(), settings)
		},
	}

	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")

	return cmd
}

func printSettings(w io.Writer, s config.Settings) error {
	fmt.Fprintf(w, "hashes_in_db = %d\n", s.HashesInDB)
	fmt.Fprintf(w, "last_db_update = %s\n", s.LastDBUpdate)
	for _, key := range config.SettingsKeys() {
		v, err := s.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s = %s\n", key, v)
	}
	if sched, err := s.Schedule(); err == nil {
		fmt.Fprintf(w, "# schedule: %s\n", sched)
	}
	return nil
}

func newSettingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting",
		Long: `Change one setting. Keys: ` + strings.Join(config.SettingsKeys(), ", ") + `.

update_weekday is 0 (Sunday) through 6, or -1 to disable scheduled updates.
update_time is HH:MM:SS; only the hour is used.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			key, value := args[0], args[1]

			var old string
			if _, err := config.NewSettingsStore(cfg.SettingsPath()).Update(func(s *config.Settings) error {
				old, _ = s.Get(key)
				return s.Set(key, value)
			}); err != nil {
				return err
			}

			logger := observability.NewLogger(cfg.Log, cmd.ErrOrStderr())
			observability.NewAuditLogger(logger).LogSettingsChange(cmd.Context(), key, old, value)
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}
