// ABOUTME: Status command querying a running daemon over its HTTP API
// ABOUTME: Shows update scheduling, database size and scan counters

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/api"
)

func newStatusCmd() *cobra.Command {
	var (
		addr       string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long:  `Query the status API of a running hikmaai-warden daemon.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				addr = cfg.HTTP.Addr
			}
			if addr == "" {
				return fmt.Errorf("no daemon address: pass --addr or set http.addr")
			}

			resp, err := fetchStatus(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printStatus(cmd.OutOrStdout(), addr, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "daemon HTTP address (default: http.addr from config)")
	cmd.Flags().BoolVarP(&outputJSON, "json", "j", false, "output as JSON")

	return cmd
}

func statusURL(addr string) string {
	if !strings.Contains(addr, "://") {
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + "/api/v1/status"
}

func fetchStatus(ctx context.Context, addr string) (*api.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL(addr), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("daemon returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding status: %w", err)
	}
	return &out, nil
}

func printStatus(w io.Writer, addr string, s *api.StatusResponse) {
	fmt.Fprintf(w, "hikmaai-warden daemon at %s\n", addr)
	if u := s.Updates; u != nil {
		fmt.Fprintf(w, "  Updates:     %s (%s)\n", u.Status, u.Schedule)
		if !u.NextScheduled.IsZero() {
			fmt.Fprintf(w, "  Next update: %s\n", u.NextScheduled.Local().Format(time.RFC3339))
		}
		if !u.LastUpdate.IsZero() {
			fmt.Fprintf(w, "  Last update: %s\n", u.LastUpdate.Local().Format(time.RFC3339))
		}
		if u.LastError != "" {
			fmt.Fprintf(w, "  Last error:  %s\n", u.LastError)
		}
	}
	if st := s.Store; st != nil {
		fmt.Fprintf(w, "  Signatures:  %d (generation %d)\n", st.Meta.EntryCount, st.Meta.Generation)
		fmt.Fprintf(w, "  DB size:     %s\n", formatBytes(st.StoreSizeBytes))
	}
	if m := s.Metrics; m != nil {
		fmt.Fprintf(w, "  Metrics:     %s\n", m.String())
	}
}
