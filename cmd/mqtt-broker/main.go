package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/life-stream-dev/lifestream-broker/internal/broker"
	"github.com/life-stream-dev/lifestream-broker/internal/config"
	"github.com/life-stream-dev/lifestream-broker/internal/database"
	"github.com/life-stream-dev/lifestream-broker/internal/event"
	"github.com/life-stream-dev/lifestream-broker/internal/logger"
	"github.com/life-stream-dev/lifestream-broker/internal/metrics"
	"github.com/life-stream-dev/lifestream-broker/internal/server"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const statsInterval = time.Minute

func main() {
	configPath := flag.String("config", config.DefaultPath, "path of the YAML configuration file")
	flag.Parse()

	cfg, err := config.ReadConfig(*configPath)
	if err != nil {
		logger.FatalF("Error occured while reading config %v", err)
		os.Exit(1)
	}

	loggerCallback := logger.Init(cfg.App.DebugMode, cfg.App.LogDir)
	logger.Debug("Application initializing...")

	err = run(cfg)
	if err != nil {
		logger.ErrorF("Server exited with error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := loggerCallback.Invoke(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "LOGGER SHUTDOWN ERROR: %v\n", err)
	}
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	cleaner := event.NewCleaner()
	defer func() {
		if err := cleaner.Clean(); err != nil {
			logger.ErrorF("Cleanup finished with errors: %v", err)
		}
		logger.Info("Cleanup finished, server offline")
	}()

	ctx, stop := cleaner.Watch(context.Background())
	defer stop()

	m, err := metrics.New(otel.GetMeterProvider().Meter(metrics.MeterName))
	if err != nil {
		return fmt.Errorf("error occured while registering metrics: %w", err)
	}

	opts := []broker.Option{
		broker.WithMaxPending(cfg.Broker.MaxPendingMessages),
		broker.WithMaxRetained(cfg.Broker.MaxRetainedMessages),
		broker.WithKeepAliveGrace(cfg.Broker.KeepAliveGrace),
		broker.WithMetrics(m),
	}
	if cfg.Database.Enabled {
		acl, err := connectACL(ctx, cfg, cleaner)
		if err != nil {
			return err
		}
		opts = append(opts, broker.WithAuthorizer(acl))
	}
	b := broker.New(opts...)

	srv := server.New(b, server.Options{
		Address:        cfg.App.Listen,
		OutboxSize:     cfg.Broker.OutboxSize,
		KeepAliveGrace: cfg.Broker.KeepAliveGrace,
		PublishRate:    cfg.Broker.PublishRate,
		PublishBurst:   cfg.Broker.PublishBurst,
		MaxConnections: cfg.Broker.MaxConnections,
		Metrics:        m,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return broker.NewReaper(b, cfg.Broker.ReapIntervalDuration()).Run(ctx)
	})
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})
	g.Go(func() error {
		reportStats(ctx, b)
		return nil
	})

	logger.InfoF("%s started", cfg.App.Name)
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func connectACL(ctx context.Context, cfg *config.Config, cleaner *event.Cleaner) (*database.ACL, error) {
	client, err := database.Connect(ctx, &cfg.Database, cfg.App.Name)
	if err != nil {
		return nil, fmt.Errorf("error occured while initializing database, details: %w", err)
	}
	cleaner.Add(client)

	collection, err := client.ACLCollection(ctx, cfg.Database.ACLCollection)
	if err != nil {
		return nil, err
	}
	source := database.NewMongoRules(collection, cfg.Database.OperationTimeoutDuration())
	return database.NewACL(source, cfg.Database.ACLCacheSize, cfg.Database.ACLCacheTTLDuration(), cfg.Database.DefaultAllow), nil
}

func reportStats(ctx context.Context, b *broker.Broker) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := b.Stats()
			logger.InfoF("Uptime %s, clients %d, sessions %d, subscriptions %d, retained %d, published %d, delivered %d, queued %d, dropped %d",
				stats.Uptime.Round(time.Second), stats.ConnectedClients, stats.Sessions, stats.Subscriptions, stats.Retained,
				stats.MessagesPublished, stats.MessagesDelivered, stats.MessagesQueued, stats.MessagesDropped)
		}
	}
}
