package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/tui/client"
	"github.com/fixmux/fixmux/internal/ws"
)

var (
	lastSatelliteOnly bool
	startSources      string
	startInterval     time.Duration
	startSingle       bool
	startSatellites   bool
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List location providers known to the daemon",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Print the last known position",
	Args:  cobra.NoArgs,
	RunE:  runLast,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var startCmd = &cobra.Command{
	Use:   "start HANDLE",
	Short: "Start a session",
	Long: `Start a position session under HANDLE, replacing any session already using it.

Examples:
  fixmuxd start 1 --sources gps,network --interval 500ms
  fixmuxd start 2 --single --sources network
  fixmuxd start 3 --satellites`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop HANDLE",
	Short: "Stop a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(providersCmd, lastCmd, sessionsCmd, startCmd, stopCmd)
	lastCmd.Flags().BoolVar(&lastSatelliteOnly, "satellite-only", false, "only consider the gps provider")
	startCmd.Flags().StringVar(&startSources, "sources", "gps,network", "comma-separated providers")
	startCmd.Flags().DurationVar(&startInterval, "interval", time.Second, "update interval")
	startCmd.Flags().BoolVar(&startSingle, "single", false, "request one update per source")
	startCmd.Flags().BoolVar(&startSatellites, "satellites", false, "start a satellite-status session")
	startCmd.MarkFlagsMutuallyExclusive("single", "satellites")
}

func newHTTPClient() *client.HTTPClient {
	return client.NewHTTPClient(httpBase(serverURL), authToken)
}

func runProviders(cmd *cobra.Command, args []string) error {
	kinds, err := newHTTPClient().Providers()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, k := range kinds {
		fmt.Fprintln(out, k.String())
	}
	return nil
}

func runLast(cmd *cobra.Command, args []string) error {
	fix, err := newHTTPClient().LastKnown(lastSatelliteOnly)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), fix)
}

func runSessions(cmd *cobra.Command, args []string) error {
	sessions, err := newHTTPClient().Sessions()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), sessions)
}

func runStart(cmd *cobra.Command, args []string) error {
	handle, err := parseHandle(args[0])
	if err != nil {
		return err
	}
	c := newHTTPClient()
	sources := splitSources(startSources)

	var res *ws.ResultResponse
	switch {
	case startSatellites:
		res, err = c.StartSatellites(handle, startInterval, false)
	case startSingle:
		res, err = c.RequestSingle(handle, sources)
	default:
		res, err = c.StartSession(handle, sources, startInterval)
	}
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	// closed_error still stores the session; it resumes when a source is enabled.
	switch res.Name {
	case "no_error", "closed_error":
		return nil
	}
	return fmt.Errorf("session %d: %s", handle, res.Name)
}

func runStop(cmd *cobra.Command, args []string) error {
	handle, err := parseHandle(args[0])
	if err != nil {
		return err
	}
	return newHTTPClient().StopSession(handle)
}

func parseHandle(s string) (position.Handle, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid handle %q: %w", s, err)
	}
	return position.Handle(n), nil
}

func splitSources(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
