package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bookbuilder/internal/archive"
	"git.home.luguber.info/inful/bookbuilder/internal/binder"
	"git.home.luguber.info/inful/bookbuilder/internal/book"
	"git.home.luguber.info/inful/bookbuilder/internal/config"
	"git.home.luguber.info/inful/bookbuilder/internal/eventstore"
	"git.home.luguber.info/inful/bookbuilder/internal/forge"
	"git.home.luguber.info/inful/bookbuilder/internal/janitor"
	"git.home.luguber.info/inful/bookbuilder/internal/locks"
	"git.home.luguber.info/inful/bookbuilder/internal/metrics"
	"git.home.luguber.info/inful/bookbuilder/internal/notify"
	"git.home.luguber.info/inful/bookbuilder/internal/pipeline"
	"git.home.luguber.info/inful/bookbuilder/internal/provision"
	"git.home.luguber.info/inful/bookbuilder/internal/server/httpserver"
	"git.home.luguber.info/inful/bookbuilder/internal/worker"
)

// app holds every wired component of the service.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	lockStore    *locks.Store
	inventory    *book.Inventory
	events       *eventstore.SQLiteStore
	pool         *worker.Pool
	janitor      *janitor.Janitor
	orchestrator *pipeline.Orchestrator
	archive      *archive.Service
	provisioner  *provision.Provisioner
	natsSink     *notify.NATSSink
	registry     *prometheus.Registry
	server       *httpserver.Server
}

// newApp assembles the full component graph from configuration.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	lockStore, err := locks.NewStore(filepath.Join(cfg.DataDir, "build_locks"))
	if err != nil {
		return nil, fmt.Errorf("open lock store: %w", err)
	}

	inventory, err := book.NewInventory(filepath.Join(cfg.DataDir, "books"), cfg.Build.ArtifactsBaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("open book inventory: %w", err)
	}

	events, err := eventstore.NewSQLiteStore(filepath.Join(cfg.DataDir, "bookbuilder.db"))
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	forgeClient := forge.NewClient(cfg.Forge.APIBaseURL, cfg.Forge.Token)
	sink, natsSink, err := buildSinks(cfg, forgeClient, logger)
	if err != nil {
		return nil, err
	}

	pool := worker.NewPool(cfg.Worker.Workers, cfg.Worker.QueueSize, logger)
	orchestrator := pipeline.New(pipeline.Options{
		Admission: binder.NewAdmission(lockStore, forge.GitRefResolver{}, cfg.Binder.Host(), cfg.Build.RateLimit()),
		Resolver:  binder.NewOutcomeResolver(lockStore, inventory, logger),
		Locks:     lockStore,
		Pool:      pool,
		Sink:      sink,
		Events:    events,
		Recorder:  recorder,
		Interval:  cfg.Build.ProgressInterval,
		Logger:    logger,
	})

	archiveSvc, err := buildArchive(cfg, recorder, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:          cfg,
		logger:       logger,
		lockStore:    lockStore,
		inventory:    inventory,
		events:       events,
		pool:         pool,
		orchestrator: orchestrator,
		archive:      archiveSvc,
		natsSink:     natsSink,
		registry:     registry,
	}
	a.janitor = janitor.New(lockStore, events, cfg.Janitor.SweepInterval, cfg.Build.RateLimit(), cfg.Janitor.TranscriptMaxAge, logger)
	a.provisioner = provision.New(forgeClient, cfg.Forge.Organization, cfg.Binder.ProductionURL, cfg.Journal.PapersURL, logger)
	a.server = httpserver.New(&cfg.Server, httpserver.Options{
		Builds:   orchestrator,
		Books:    inventory,
		Archive:  archiveSvc,
		Events:   events,
		Registry: registry,
		Logger:   logger,
	})
	return a, nil
}

// buildSinks assembles the notification fan-out: issue comments always,
// mail and NATS when configured.
func buildSinks(cfg *config.Config, forgeClient *forge.Client, logger *slog.Logger) (notify.Sink, *notify.NATSSink, error) {
	location, err := time.LoadLocation(cfg.Notify.Timezone)
	if err != nil {
		return nil, nil, fmt.Errorf("load notify timezone: %w", err)
	}

	sinks := []notify.Sink{
		notify.NewIssueSink(forgeClient, cfg.Forge.ReviewRepository, location),
	}
	if cfg.Notify.Mail.Enabled {
		sinks = append(sinks, notify.NewMailer(cfg.Notify.Mail, cfg.Notify.Mail.Recipients))
	}

	var natsSink *notify.NATSSink
	if cfg.Notify.NATS.Enabled {
		natsSink, err = notify.NewNATSSink(cfg.Notify.NATS)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats sink: %w", err)
		}
		sinks = append(sinks, natsSink)
	}
	return &notify.MultiSink{Sinks: sinks, Logger: logger}, natsSink, nil
}

// buildArchive assembles the archival deposit stack.
func buildArchive(cfg *config.Config, recorder metrics.Recorder, logger *slog.Logger) (*archive.Service, error) {
	journal := strings.ToLower(cfg.Journal.Name)
	records, err := archive.NewRecordStore(cfg.DataDir, journal)
	if err != nil {
		return nil, fmt.Errorf("open archive record store: %w", err)
	}
	client := archive.NewClient(cfg.Archive.BaseURL, cfg.Archive.Token)
	composer := archive.NewMetadataComposer(journal, cfg.Journal.DOIPrefix)
	return &archive.Service{
		Deposits:  archive.NewDepositCoordinator(client, records, composer, cfg.Archive.PacingDelay, cfg.Archive.RollbackPacing, recorder, logger),
		Uploads:   archive.NewUploadTracker(client, records, recorder, logger),
		Publisher: archive.NewPublisher(client, records, cfg.Archive.PacingDelay, recorder, logger),
		Records:   records,
	}, nil
}

// start brings up the background components and the HTTP servers.
func (a *app) start(ctx context.Context) error {
	a.pool.Start(ctx)
	if err := a.janitor.Start(); err != nil {
		return fmt.Errorf("start janitor: %w", err)
	}
	if err := a.server.Start(ctx); err != nil {
		return err
	}
	return nil
}

// stop shuts everything down in reverse start order.
func (a *app) stop(ctx context.Context) error {
	var errs []string
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, err.Error())
	}
	if err := a.janitor.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	a.pool.Stop()
	if a.natsSink != nil {
		a.natsSink.Close()
	}
	if err := a.inventory.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := a.events.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// close releases resources for the one-shot CLI commands that never start
// the background components.
func (a *app) close() {
	a.pool.Stop()
	if a.natsSink != nil {
		a.natsSink.Close()
	}
	_ = a.inventory.Close()
	_ = a.events.Close()
}
