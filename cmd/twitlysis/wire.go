package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Cryonoid/TwitLysis/internal/browser"
	"github.com/Cryonoid/TwitLysis/internal/config"
	"github.com/Cryonoid/TwitLysis/internal/credential"
	"github.com/Cryonoid/TwitLysis/internal/pipeline"
	"github.com/Cryonoid/TwitLysis/internal/preflight"
	"github.com/Cryonoid/TwitLysis/internal/session"
	"github.com/Cryonoid/TwitLysis/internal/snapshot"
	"github.com/Cryonoid/TwitLysis/internal/storage"
	"github.com/Cryonoid/TwitLysis/internal/storage/csvbackend"
	"github.com/Cryonoid/TwitLysis/internal/storage/jsonbackend"
	"github.com/Cryonoid/TwitLysis/internal/storage/postgres"
	"github.com/Cryonoid/TwitLysis/internal/storage/sqlite"
	"github.com/Cryonoid/TwitLysis/internal/storage/yamlbackend"
	"github.com/Cryonoid/TwitLysis/pkg/proxy"
)

// openBackend opens the configured storage backend.
func openBackend(ctx context.Context, c config.Config) (storage.Backend, error) {
	if c.Storage.Backend != config.BackendPostgres && c.Storage.Dir != "" {
		if err := os.MkdirAll(c.Storage.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	var (
		b   storage.Backend
		err error
	)
	switch c.Storage.Backend {
	case config.BackendYAML:
		b, err = yamlbackend.New(c.Storage.Dir)
	case config.BackendJSON:
		b, err = jsonbackend.New(filepath.Join(c.Storage.Dir, "results.json"))
	case config.BackendCSV:
		b, err = csvbackend.New(filepath.Join(c.Storage.Dir, "results.csv"))
	case config.BackendSQLite:
		b, err = sqlite.New(c.SQLitePath())
	case config.BackendPostgres:
		b, err = postgres.New(ctx, c.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// newProxyPool loads the configured proxy list. It returns nil when none is
// configured.
func newProxyPool(c config.Config) (*proxy.Pool, error) {
	if c.Proxy.File == "" {
		return nil, nil
	}
	pool := proxy.NewPool(proxy.Config{Strikes: c.Proxy.Strikes, Cooldown: c.Proxy.Cooldown})
	if err := pool.Load(c.Proxy.File); err != nil {
		return nil, err
	}
	return pool, nil
}

// newOrchestrator builds the browser session orchestrator from config.
func newOrchestrator(c config.Config, proxies *proxy.Pool, log *slog.Logger) *session.Orchestrator {
	launchers := browser.DefaultLaunchers(c.Browser.ControlURL, c.Browser.Bin, log)
	o := session.New(c.SessionConfig(), launchers, log)
	o.Proxies = proxies
	o.Snapshots = snapshot.NewWriter(c.SnapshotDir, log)
	return o
}

// newProber builds the advisory preflight probe, seeded with the stored
// credential. It returns nil when the probe is disabled.
func newProber(c config.Config, proxies *proxy.Pool, log *slog.Logger) (*preflight.Prober, error) {
	if !c.Preflight.Enabled {
		return nil, nil
	}
	pc, err := c.PreflightConfig()
	if err != nil {
		return nil, err
	}
	p, err := preflight.New(pc, log)
	if err != nil {
		return nil, err
	}
	p.Proxies = proxies

	token, ok, err := credential.Load(c.Session.CredentialPath)
	if err != nil {
		log.Warn("preflight: credential unavailable", "error", err)
	} else if ok {
		if err := p.SetToken(credential.CookieName, token); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// newPipeline wires the full analysis. The caller closes the returned
// backend.
func newPipeline(ctx context.Context, c config.Config, log *slog.Logger) (*pipeline.Pipeline, storage.Backend, error) {
	backend, err := openBackend(ctx, c)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s storage: %w", c.Storage.Backend, err)
	}
	proxies, err := newProxyPool(c)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("load proxies: %w", err)
	}
	prober, err := newProber(c, proxies, log)
	if err != nil {
		_ = backend.Close()
		return nil, nil, fmt.Errorf("preflight: %w", err)
	}

	p := pipeline.New(newOrchestrator(c, proxies, log), backend, log)
	if prober != nil {
		p.Prober = prober
	}
	return p, backend, nil
}
