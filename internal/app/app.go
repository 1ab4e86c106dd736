// Package app wires the history engine together: durable store, topic cache,
// reactive mirror, version manager, branch cloner, maintenance sweeper and
// the HTTP server. New constructs everything; Run blocks until shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/joho/godotenv"

	"historydb/pkg/branch"
	"historydb/pkg/cache"
	"historydb/pkg/config"
	"historydb/pkg/events"
	"historydb/pkg/maintenance"
	"historydb/pkg/memstore"
	"historydb/pkg/state"
	"historydb/pkg/store"
	"historydb/pkg/telemetry"
	"historydb/pkg/validation"
	"historydb/pkg/versions"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg     *config.Config
	version string

	st     *store.Store
	cache  *cache.TopicCache
	bus    *events.Bus
	mem    *memstore.Store
	vers   *versions.Manager
	cloner *branch.Cloner
	sweep  *maintenance.Sweeper

	srv *http.Server
}

// New initializes resources that do not require a running context: the
// pebble store and the in-memory components over it. Call Run to start the
// sweeper and the HTTP server and block until shutdown.
func New(cfg *config.Config, version string) (*App, error) {
	_ = godotenv.Load(".env")

	validation.SetRules(validation.Rules{})

	if err := state.EnsureStateDirs(cfg.Server.DBPath); err != nil {
		return nil, fmt.Errorf("state dirs under %s: %w", cfg.Server.DBPath, err)
	}
	telemetry.SetSink(state.TelemetryDir(cfg.Server.DBPath))

	// Pebble data lives under <db>/store, beside <db>/state.
	st, err := store.Open(filepath.Join(cfg.Server.DBPath, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Server.DBPath, err)
	}

	tc := cache.New(st)
	bus := events.NewBus()
	mem := memstore.New(tc, st,
		memstore.WithPublisher(bus),
		memstore.WithErrorLogSizes(cfg.History.ErrorLogSize, cfg.History.TopicErrorLogSize),
	)
	vm := versions.NewManager(st, mem,
		versions.WithMaxVersions(cfg.History.MaxVersions),
		versions.WithLister(st),
	)
	cl := branch.NewCloner(st, mem)

	a := &App{
		cfg:     cfg,
		version: version,
		st:      st,
		cache:   tc,
		bus:     bus,
		mem:     mem,
		vers:    vm,
		cloner:  cl,
	}
	if cfg.Maintenance.Enabled {
		a.sweep = maintenance.NewSweeper(st, cfg.Maintenance.Cron, cfg.History.MaxVersions)
	}
	return a, nil
}

// Mem exposes the reactive mirror, mainly for tests and tooling.
func (a *App) Mem() *memstore.Store { return a.mem }

// Run starts the maintenance scheduler and the HTTP server, and blocks until
// ctx is cancelled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	if a.sweep != nil {
		stop, err := a.sweep.Start(ctx)
		if err != nil {
			return err
		}
		defer stop()
	}

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		a.close()
		return nil
	case err := <-errCh:
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.st != nil {
		_ = a.st.Close()
	}
}
