package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"agentforge/pkg/config"
	"agentforge/pkg/logx"
	"agentforge/pkg/metrics"
	"agentforge/pkg/persistence"
	"agentforge/pkg/retrieval"
	"agentforge/pkg/workspace"
)

// project bundles the configuration and committed store of one project directory.
type project struct {
	cfg    *config.Config
	store  *workspace.DirStore
	logger *logx.Logger
}

func loadProject(g *globalFlags) (*project, error) {
	cfg, err := config.Load(g.projectDir)
	if err != nil {
		return nil, err
	}
	if g.model != "" {
		cfg.LLM.Model = g.model
		cfg.LLM.Provider = config.ProviderForModel(g.model)
	}
	if g.debug {
		cfg.Debug.Enabled = true
	}
	if cfg.Debug.Enabled {
		logx.SetDebugConfig(true)
		if len(cfg.Debug.Domains) > 0 {
			logx.SetDebugDomains(cfg.Debug.Domains)
		}
	}

	store, err := workspace.NewDirStore(cfg.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	return &project{cfg: cfg, store: store, logger: logx.NewLogger("cli")}, nil
}

// newIndex builds a retrieval service over the committed project files.
func (p *project) newIndex(collector *metrics.Collector) *retrieval.Service {
	opts := retrieval.Options{
		WindowLines: p.cfg.Retrieval.ChunkLines,
		StrideLines: p.cfg.Retrieval.ChunkStride,
		MinScore:    p.cfg.Retrieval.MinScore,
		Debounce:    p.cfg.Retrieval.RebuildDebounce,
	}
	if collector != nil {
		opts.OnRebuild = collector.ObserveRebuild
	}
	svc := retrieval.NewService(opts)
	svc.Reindex(workspace.NewOverlay(p.store, nil).IndexFiles())
	return svc
}

// openSessions opens the session log database, creating its directory.
func (p *project) openSessions() (*persistence.Store, error) {
	path := p.cfg.Persistence.DBPath
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session db dir: %w", err)
	}
	store, err := persistence.Open(path)
	if err != nil {
		return nil, logx.Wrap(err, "open session db "+path)
	}
	return store, nil
}

// serveMetrics exposes collector on addr until the returned stop function is called.
func serveMetrics(addr string, collector *metrics.Collector, logger *logx.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server on %s stopped: %v", addr, err)
		}
	}()
	logger.Info("📊 Serving metrics on http://%s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("Metrics server shutdown: %v", err)
		}
	}
}
