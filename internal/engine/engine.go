// Package engine wires the stores, the plugin registry, the command
// processor and the event bus into one running unit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"arbor/internal/adapters/badger"
	"arbor/internal/adapters/sqlite"
	"arbor/internal/application/commands"
	"arbor/internal/application/events"
	"arbor/internal/application/lifecycle"
	"arbor/internal/application/query"
	"arbor/internal/application/workingcopy"
	"arbor/internal/config"
	"arbor/internal/plugins"
)

// Engine owns every long-lived component. Open it, then Run it (or use Do)
// before submitting commands.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	store     *sqlite.Store
	ephemeral *badger.Store
	registry  *lifecycle.Registry
	entities  *lifecycle.Manager
	wcs       *workingcopy.Manager
	proc      *commands.Processor
	events    *events.Manager
	queries   *query.Service
}

// Open opens the stores and registers the built-in and configured types
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	commands.SetMetricsEnabled(cfg.Metrics.Enabled)
	events.SetMetricsEnabled(cfg.Metrics.Enabled)

	store := sqlite.NewStore(logger)
	if err := store.Open(cfg.Database); err != nil {
		return nil, fmt.Errorf("open node store: %w", err)
	}

	bcfg := badger.DefaultConfig(cfg.Ephemeral.Path)
	bcfg.InMemory = cfg.Ephemeral.InMemory
	bcfg.TTL = cfg.Ephemeral.TTL
	bcfg.Logger = logger
	ephemeral, err := badger.Open(bcfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open ephemeral store: %w", err)
	}

	e := &Engine{cfg: cfg, logger: logger, store: store, ephemeral: ephemeral}
	if err := e.wire(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) wire(ctx context.Context) error {
	e.registry = lifecycle.NewRegistry()
	if err := plugins.Register(e.registry); err != nil {
		return err
	}
	if err := plugins.RegisterCustom(e.registry, e.cfg.Types); err != nil {
		return fmt.Errorf("register configured types: %w", err)
	}
	if err := e.registry.Provision(ctx, e.store); err != nil {
		return fmt.Errorf("provision entity tables: %w", err)
	}

	e.entities = lifecycle.NewManager(e.registry, e.logger)
	e.wcs = workingcopy.NewManager(e.store, e.ephemeral, e.entities, e.logger)
	e.events = events.NewManager(events.Options{
		Store:         e.store,
		Ephemeral:     e.ephemeral,
		Rate:          rate.Limit(e.cfg.Subscriptions.Rate),
		Burst:         e.cfg.Subscriptions.Burst,
		CoalesceAfter: e.cfg.Subscriptions.CoalesceAfter,
		StaleAfter:    e.cfg.Subscriptions.StaleAfter,
		Logger:        e.logger,
	})
	e.proc = commands.NewProcessor(commands.Options{
		Store:         e.store,
		Ephemeral:     e.ephemeral,
		WorkingCopies: e.wcs,
		Entities:      e.entities,
		Publisher:     e.events,
		HistoryLimit:  e.cfg.Commands.HistoryLimit,
		QueueSize:     e.cfg.Commands.QueueSize,
		Logger:        e.logger,
	})
	e.events.Bind(e.proc)
	e.queries = query.NewService(e.store, e.entities, e.logger)
	return nil
}

// Registry exposes the node type table
func (e *Engine) Registry() *lifecycle.Registry {
	return e.registry
}

// Client returns the facade used by adapters
func (e *Engine) Client() *Client {
	return &Client{engine: e}
}

// Run processes commands and runs the janitor until ctx ends. Subscriptions
// are closed on the way out.
func (e *Engine) Run(ctx context.Context) error {
	defer e.events.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.proc.Run(gctx) })
	g.Go(func() error { return e.janitor(gctx) })
	return g.Wait()
}

// Do runs the engine for as long as fn runs
func (e *Engine) Do(ctx context.Context, fn func(context.Context, *Client) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return fn(gctx, e.Client())
	})
	return g.Wait()
}

// janitor discards expired working copies and stalled subscriptions
func (e *Engine) janitor(ctx context.Context) error {
	interval := e.cfg.Janitor.SweepInterval
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	if ttl := e.cfg.Janitor.WorkingCopyTTL; ttl > 0 {
		n, err := e.proc.SweepWorkingCopies(ctx, ttl)
		switch {
		case err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, commands.ErrProcessorStopped):
			e.logger.Warn("working copy sweep failed", "error", err)
		case n > 0:
			e.logger.Info("discarded expired working copies", "count", n)
		}
	}
	if n := e.events.Sweep(); n > 0 {
		e.logger.Info("reaped stalled subscriptions", "count", n)
	}
}

// Close releases the stores
func (e *Engine) Close() error {
	if e.events != nil {
		e.events.Close()
	}
	var errs []error
	if e.ephemeral != nil {
		errs = append(errs, e.ephemeral.Close())
	}
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	return errors.Join(errs...)
}
