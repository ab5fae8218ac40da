package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/hyprpal/hyprslot/internal/config"
	"github.com/hyprpal/hyprslot/internal/engine"
	"github.com/hyprpal/hyprslot/internal/history"
	"github.com/hyprpal/hyprslot/internal/metrics"
	"github.com/hyprpal/hyprslot/internal/util"
)

type configReloader struct {
	path        string
	logger      *util.Logger
	engine      *engine.Engine
	metrics     *metrics.Collector
	history     *history.Store
	historyPath string

	mu         sync.Mutex
	lastConfig *config.Config
}

func newConfigReloader(path string, logger *util.Logger, eng *engine.Engine, metrics *metrics.Collector, store *history.Store, cfg *config.Config) *configReloader {
	r := &configReloader{
		path:       path,
		logger:     logger,
		engine:     eng,
		metrics:    metrics,
		history:    store,
		lastConfig: cfg,
	}
	if store != nil {
		r.historyPath = store.Path()
	}
	return r
}

// Reload re-reads the config file and applies it. A rejected file leaves the
// previous configuration active.
func (r *configReloader) Reload(reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Infof("%s, reloading config", reason)
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		r.logger.Warnf("config change rejected: %v", err)
		return err
	}
	change := config.DiffCatalogs(r.lastConfig, cfg)
	if lintErrs := cfg.Lint(); len(lintErrs) > 0 {
		r.logLintErrors(lintErrs)
		r.logRejected(change)
		return errors.New(lintErrs[0].Error())
	}
	if r.history != nil {
		if path, err := cfg.HistoryPath(); err == nil && path != r.historyPath {
			r.logger.Warnf("historyFile changed to %s; restart to switch logs", path)
		}
	}

	r.engine.Configure(cfg)
	r.metrics.SetEnabled(cfg.Telemetry.Enabled)
	r.logger.Infof("catalog reloaded: %s", change.Summary())
	if len(change.Removed) > 0 && r.history != nil {
		r.logger.Infof("pruning history for removed layouts %v", change.Removed)
		r.history.Load()
	}

	r.lastConfig = cfg
	return nil
}

func (r *configReloader) logRejected(change config.CatalogChange) {
	if change.Detail == "" {
		r.logger.Warnf("config change rejected; catalog unchanged vs last valid config")
		return
	}
	r.logger.Warnf("config change rejected (%s); catalog diff vs last valid config:\n%s", change.Summary(), change.Detail)
}

func (r *configReloader) logLintErrors(errs []config.LintError) {
	r.logger.Warnf("config validation failed with %d issue(s):", len(errs))
	for _, lintErr := range errs {
		if lintErr.Path != "" {
			r.logger.Warnf(" - %s: %s", lintErr.Path, lintErr.Message)
			continue
		}
		r.logger.Warnf(" - %s", lintErr.Message)
	}
}
