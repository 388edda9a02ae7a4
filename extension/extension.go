// Package extension provides a Forge extension entry point for Aegis.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/aegis"
	"github.com/xraph/aegis/cache"
	"github.com/xraph/aegis/plugin"
	"github.com/xraph/aegis/policyfile"
	"github.com/xraph/aegis/store"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "aegis"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Role-based permission engine with constrained overrides"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Aegis as a Forge extension.
type Extension struct {
	config     Config
	eng        *aegis.Engine
	cache      aegis.Cache
	logger     *slog.Logger
	engineOpts []aegis.Option
	plugins    []plugin.Plugin

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Aegis Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{config: DefaultConfig()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the extension name.
func (e *Extension) Name() string { return ExtensionName }

// Description returns the extension description.
func (e *Extension) Description() string { return ExtensionDescription }

// Version returns the extension version.
func (e *Extension) Version() string { return ExtensionVersion }

// Dependencies returns the list of extension names this extension depends on.
func (e *Extension) Dependencies() []string { return []string{} }

// Engine returns the underlying Aegis engine.
func (e *Extension) Engine() *aegis.Engine { return e.eng }

// Register implements [forge.Extension]. It builds the engine and registers
// it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	var opts []aegis.Option
	// Try to resolve store from DI container, fall back to option-provided store.
	if s, err := forge.Inject[store.Store](fapp.Container()); err == nil {
		opts = append(opts, aegis.WithStore(s))
	}
	if err := e.build(opts...); err != nil {
		return err
	}

	if err := vessel.Provide(fapp.Container(), func() (*aegis.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("aegis: register engine in container: %w", err)
	}
	return nil
}

func (e *Extension) build(base ...aegis.Option) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger

	opts := make([]aegis.Option, 0, len(base)+len(e.engineOpts)+len(e.plugins)+3)
	opts = append(opts, aegis.WithLogger(logger), aegis.WithConfig(aegis.Config{
		CacheTTL:       e.config.CacheTTL,
		CatalogRefresh: e.config.CatalogRefresh,
		LogDecisions:   e.config.LogDecisions,
	}))
	opts = append(opts, base...)

	switch {
	case e.cache != nil:
		opts = append(opts, aegis.WithCache(e.cache))
	case e.config.CacheTTL > 0:
		opts = append(opts, aegis.WithCache(cache.NewMemory(cache.WithTTL(e.config.CacheTTL))))
	}

	// User-provided options may override the store.
	opts = append(opts, e.engineOpts...)
	for _, x := range e.plugins {
		opts = append(opts, aegis.WithPlugin(x))
	}

	eng, err := aegis.NewEngine(opts...)
	if err != nil {
		return fmt.Errorf("aegis: create engine: %w", err)
	}
	e.eng = eng
	return nil
}

// Start migrates the store, seeds the catalog, applies the configured
// policy file and starts the expired-assignment sweeper.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("aegis: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.eng.Store().Migrate(ctx); err != nil {
			return fmt.Errorf("aegis: migration failed: %w", err)
		}
	}

	if err := e.eng.Start(ctx); err != nil {
		return err
	}

	if e.config.SeedDefaults {
		if err := e.eng.SeedDefaults(ctx); err != nil {
			return fmt.Errorf("aegis: seed catalog: %w", err)
		}
	}

	if e.config.PolicyFile != "" {
		f, err := policyfile.Load(e.config.PolicyFile)
		if err != nil {
			return err
		}
		res, err := policyfile.Apply(ctx, e.eng, f)
		if err != nil {
			return fmt.Errorf("aegis: apply %s: %w", e.config.PolicyFile, err)
		}
		e.logger.Info("aegis: policy file applied",
			slog.String("path", e.config.PolicyFile),
			slog.Int("roles_created", res.RolesCreated),
			slog.Int("roles_updated", res.RolesUpdated),
			slog.Int("assignments", res.Assignments),
		)
	}

	if e.config.SweepInterval > 0 {
		sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancel = cancel
		e.wg.Add(1)
		go e.sweep(sweepCtx, e.config.SweepInterval)
	}
	return nil
}

// sweep purges expired assignments every interval until ctx is done.
func (e *Extension) sweep(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.eng.PurgeExpiredAssignments(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("aegis: sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Stop stops the sweeper and shuts down the engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	return e.eng.Stop(ctx)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("aegis: extension not initialized")
	}
	return e.eng.Store().Ping(ctx)
}
