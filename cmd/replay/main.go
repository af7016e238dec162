package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"journey-replay/internal/config"
	"journey-replay/internal/db"
	"journey-replay/internal/fixtures"
	"journey-replay/internal/logging"
	"journey-replay/internal/metrics"
	"journey-replay/internal/publisher"
	"journey-replay/internal/replay"
)

func main() {
	seed := flag.Bool("seed", false, "write the fixture dataset to postgres before replaying")
	flag.Parse()

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, "journey-replay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ds, err := loadDataset(ctx, cfg, *seed, log)
	if err != nil {
		log.Fatal("load dataset", zap.Error(err))
	}
	log.Info("dataset loaded",
		zap.String("source", cfg.JourneySource),
		zap.Int("groups", len(ds.Groups)),
		zap.Int("journeys", len(ds.Journeys)))

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.LoopDuration, cfg.TickInterval, cfg.FrameInterval, cfg.FrameEvery)
		srv := mcol.Serve(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), log)
	if err != nil {
		log.Fatal("nats error", zap.Error(err))
	}
	defer pub.Close()

	opts := replay.Options{
		LoopDuration:  cfg.LoopDuration,
		TickInterval:  cfg.TickInterval,
		FrameInterval: cfg.FrameInterval,
		FrameEvery:    cfg.FrameEvery,
		AlertLabel:    cfg.AlertLabel,
	}
	driver, err := replay.NewDriver(ds, cfg.GroupID, pub, opts, wrapReplayMetrics(mcol), log)
	if err != nil {
		log.Fatal("start replay", zap.Error(err))
	}

	sub, err := pub.SubscribeControl(func(msg publisher.ControlMessage) {
		handleControl(ctx, driver, msg, mcol, log)
	})
	if err != nil {
		log.Fatal("subscribe control", zap.Error(err))
	}
	defer func() { _ = sub.Unsubscribe() }()

	log.Info("replaying",
		zap.String("group", driver.GroupID()),
		zap.String("session", pub.SessionID()),
		zap.String("control", publisher.ControlSubject(cfg.NATSSubjectPrefix)))

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("replay stopped", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func loadDataset(ctx context.Context, cfg *config.Config, seed bool, log *zap.Logger) (*fixtures.Dataset, error) {
	fromFixtures := func() (*fixtures.Dataset, error) {
		if cfg.FixturesPath != "" {
			return fixtures.LoadFile(cfg.FixturesPath, time.Now())
		}
		return fixtures.Default(time.Now())
	}
	if cfg.JourneySource != config.SourcePostgres {
		return fromFixtures()
	}

	dsn := cfg.DatabaseURL
	if cfg.ReplayDatabase != "" {
		var err error
		if dsn, err = db.WithDBName(dsn, cfg.ReplayDatabase); err != nil {
			return nil, fmt.Errorf("compose DSN: %w", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		return nil, err
	}

	imp, err := db.LatestImport(ctx, sqlDB)
	switch {
	case errors.Is(err, db.ErrNoJourneys):
		log.Info("journey store is empty, seeding from fixtures")
		seed = true
	case err != nil:
		return nil, fmt.Errorf("latest import: %w", err)
	default:
		log.Info("journey store",
			zap.String("source", imp.Source),
			zap.Int("groups", imp.Groups),
			zap.Int("journeys", imp.Journeys),
			zap.Time("seeded_at", imp.SeededAt))
	}
	if seed {
		if err := seedStore(ctx, sqlDB, cfg, fromFixtures); err != nil {
			return nil, err
		}
	}
	return db.FetchDataset(ctx, sqlDB)
}

func seedStore(ctx context.Context, sqlDB *sql.DB, cfg *config.Config, load func() (*fixtures.Dataset, error)) error {
	ds, err := load()
	if err != nil {
		return err
	}
	source := "embedded"
	if cfg.FixturesPath != "" {
		source = cfg.FixturesPath
	}
	return db.SeedDataset(ctx, sqlDB, ds, source)
}

func handleControl(ctx context.Context, driver *replay.Driver, msg publisher.ControlMessage, mcol *metrics.Collector, log *zap.Logger) {
	if mcol != nil {
		mcol.ControlMessages.WithLabelValues(msg.Action).Inc()
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var err error
	switch msg.Action {
	case publisher.ActionDismiss:
		err = driver.Dismiss(cctx, msg.MemberID)
	case publisher.ActionSwitchGroup:
		err = driver.SwitchGroup(cctx, msg.GroupID)
	}
	if err != nil {
		log.Warn("control message failed",
			zap.String("action", msg.Action),
			zap.String("member", msg.MemberID),
			zap.String("group", msg.GroupID),
			zap.Error(err))
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

func wrapReplayMetrics(c *metrics.Collector) replay.Metrics {
	if c == nil {
		return nil
	}
	return metrics.ReplayMetrics{C: c}
}
