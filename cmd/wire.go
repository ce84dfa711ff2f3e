package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/neural-scan/internal/audit"
	"github.com/kozaktomas/neural-scan/internal/audit/postgres"
	"github.com/kozaktomas/neural-scan/internal/config"
	"github.com/kozaktomas/neural-scan/internal/embedding"
	"github.com/kozaktomas/neural-scan/internal/facecache"
	"github.com/kozaktomas/neural-scan/internal/gallery"
	"github.com/kozaktomas/neural-scan/internal/gallery/dirremote"
	"github.com/kozaktomas/neural-scan/internal/gallery/gcs"
	"github.com/kozaktomas/neural-scan/internal/identity"
	"github.com/kozaktomas/neural-scan/internal/matcher"
	"github.com/kozaktomas/neural-scan/internal/osint"
	"github.com/kozaktomas/neural-scan/internal/osint/cse"
	"github.com/kozaktomas/neural-scan/internal/scan"
)

// app holds the wired collaborators of one command invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	sync    *gallery.Synchronizer
	service *scan.Service
	// verdicts is set when the audit log is open.
	verdicts *postgres.VerdictRepository
	closers  []func() error
}

// Close releases remote clients and database connections.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// newApp loads configuration and wires the scan service. The audit log is only
// opened when withAudit is set and DATABASE_URL is configured.
func newApp(ctx context.Context, withAudit bool) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx, withAudit); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, withAudit bool) error {
	cfg := a.cfg

	cache := facecache.New(cfg.Gallery.Dir, a.logger)
	store := gallery.NewLocalStore(cfg.Gallery.Dir, facecache.IsArtifact)

	remote, err := a.openRemote(ctx)
	if err != nil {
		return err
	}
	a.sync = gallery.NewSynchronizer(remote, store, cfg.Gallery.ObjectPrefix(), cache, a.logger)

	embedder := embedding.NewClient(cfg.Embedding.URL)
	a.logger.Debug("embedding server configured", "url", embedder.BaseURL())

	aggregator, err := a.openSearch(ctx)
	if err != nil {
		return err
	}

	var recorder audit.Recorder = audit.Nop{}
	if withAudit && cfg.Database.URL != "" {
		if recorder, err = a.openAudit(ctx); err != nil {
			return err
		}
	}

	a.service, err = scan.New(scan.Options{
		Store:    store,
		Sync:     a.sync,
		Cache:    cache,
		Matcher:  matcher.NewEmbeddingMatcher(embedder, cache, cfg.Identity.MatchLimit, a.logger),
		Policy:   identity.Policy{Threshold: cfg.Identity.Threshold},
		OSINT:    aggregator,
		Recorder: recorder,
		Logger:   a.logger,
	})
	return err
}

// openRemote returns the configured remote gallery, or nil when the local
// gallery is authoritative.
func (a *app) openRemote(ctx context.Context) (gallery.RemoteStore, error) {
	g := a.cfg.Gallery
	switch {
	case g.Bucket != "":
		bucket, err := gcs.New(ctx, g.Bucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, bucket.Close)
		a.logger.Info("remote gallery", "bucket", bucket.Name(), "prefix", g.ObjectPrefix())
		return bucket, nil
	case g.RemoteDir != "":
		a.logger.Info("remote gallery", "dir", g.RemoteDir, "prefix", g.ObjectPrefix())
		return dirremote.New(g.RemoteDir), nil
	default:
		a.logger.Warn("no remote gallery configured, local gallery is authoritative", "dir", g.Dir)
		return nil, nil
	}
}

// openSearch returns the OSINT aggregator, or nil when search is not configured.
func (a *app) openSearch(ctx context.Context) (*osint.Aggregator, error) {
	if !a.cfg.Search.Enabled() {
		a.logger.Warn("GOOGLE_CSE_API_KEY or GOOGLE_CSE_ID not set, osint search disabled")
		return nil, nil
	}
	client, err := cse.New(ctx, a.cfg.Search.APIKey, a.cfg.Search.EngineID, a.cfg.Search.Referer)
	if err != nil {
		return nil, fmt.Errorf("creating search client: %w", err)
	}
	return osint.NewAggregator(client, a.logger), nil
}

func (a *app) openAudit(ctx context.Context) (audit.Recorder, error) {
	pool, applied, err := postgres.Open(ctx, &a.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	for _, name := range applied {
		a.logger.Info("applied migration", "file", name)
	}
	a.verdicts = postgres.NewVerdictRepository(pool)
	return a.verdicts, nil
}
