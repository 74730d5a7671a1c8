package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fixmux/fixmux/internal/tui/app"
	"github.com/fixmux/fixmux/internal/tui/client"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open the terminal dashboard for a running daemon",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	wsURL, err := wsURLFor(serverURL)
	if err != nil {
		return err
	}
	wsClient := client.NewWSClient(wsURL, authToken)
	defer wsClient.Close()

	model := app.New(wsClient, client.NewHTTPClient(httpBase(serverURL), authToken))
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
