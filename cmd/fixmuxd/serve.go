package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fixmux/fixmux/internal/config"
	"github.com/fixmux/fixmux/internal/registry"
	"github.com/fixmux/fixmux/internal/sim"
	"github.com/fixmux/fixmux/internal/ws"
)

// ErrNoLocationService is returned when serve has no provider backend to
// run against. The simulator is currently the only one.
var ErrNoLocationService = errors.New("no location service: enable sim in the config")

var (
	servePort int
	serveHost string
	simSeed   int64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon",
	Long: `Run the fix arbitration daemon against the simulated location service and
serve the session API and update stream.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server port")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "override bind host")
	serveCmd.Flags().Int64Var(&simSeed, "seed", 0, "override simulator seed")
}

func loadServeConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if simSeed != 0 {
		cfg.Sim.Seed = simSeed
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Sim.Enabled {
		return nil, ErrNoLocationService
	}
	return cfg, nil
}

// daemon is the wired set of components behind serve.
type daemon struct {
	sim         *sim.Service
	registry    *registry.Registry
	broadcaster *ws.Broadcaster
	handler     http.Handler
}

func newDaemon(cfg *config.Config) *daemon {
	svc := sim.New(cfg.Sim)
	b := ws.NewBroadcaster(cfg.Broadcast.Throttle, cfg.Broadcast.SnapshotInterval,
		cfg.Broadcast.MaxClients, cfg.Broadcast.ClientBuffer)
	reg := registry.New(svc, b, cfg)
	b.SetSessionLister(reg)

	server := ws.NewServer(cfg.Server, reg, b)
	server.SetProviderController(svc)

	return &daemon{sim: svc, registry: reg, broadcaster: b, handler: server.Handler()}
}

func (d *daemon) close() {
	d.registry.Close()
	d.broadcaster.Stop()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := newDaemon(cfg)
	defer d.close()

	log.Printf("[fixmuxd] starting simulator (tick %v, seed %d)", cfg.Sim.Tick, cfg.Sim.Seed)
	d.sim.Start(ctx)

	if err := ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, d.handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	log.Println("[fixmuxd] shutting down")
	return nil
}

// commandContext returns cmd's context, or Background when run outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
