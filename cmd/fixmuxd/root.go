package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile   string
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "fixmuxd",
	Short: "Multi-source location fix arbitration daemon",
	Long: `fixmuxd arbitrates location fixes from several providers (gps, network,
passive) into one stream per session and serves it over HTTP and WebSocket.

Examples:
  fixmuxd serve --config fixmux.yaml   # run the daemon against the simulator
  fixmuxd watch                        # open the terminal dashboard
  fixmuxd providers                    # list available providers
  fixmuxd last --satellite-only        # print the last known gps fix`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "fixmux.yaml", "path to config file (defaults apply if missing)")
	pf.StringVar(&serverURL, "url", "http://127.0.0.1:8080", "base URL of a running fixmuxd")
	pf.StringVar(&authToken, "token", "", "auth token, if the daemon requires one")
}

// wsURLFor converts http://host:port into ws://host:port/ws.
func wsURLFor(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// httpBase strips any path so REST calls can be appended.
func httpBase(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(base, "/")
	}
	scheme := "http"
	if u.Scheme == "https" || u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}
