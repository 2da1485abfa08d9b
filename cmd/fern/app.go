package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

const shutdownTimeout = 10 * time.Second

// app holds everything a command needs once the process is configured.
type app struct {
	cfg       *config.Config
	logger    ectologger.Logger
	metrics   *metrics.Metrics
	deps      *startup.Manager
	db        database.DB
	publisher events.Publisher

	closers []func(context.Context) error
}

type appOptions struct {
	database bool
	events   bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, syncLogs, err := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.PrettyLogs,
		LogsDir: cfg.LogsDir,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.New(),
		deps:      startup.NewManager(logger, cfg.StartupMaxAttempts),
		publisher: events.NoopPublisher{},
	}
	a.closers = append(a.closers, func(context.Context) error { return syncLogs() })

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Exporter:    cfg.TraceExporter,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  cfg.OTLPExportTimeout,
		},
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, shutdownTracing)

	if opts.database {
		if err := cfg.ValidateDatabase(); err != nil {
			a.close()
			return nil, err
		}
		a.deps.Add(startup.Func{
			DependencyName: "database",
			StartFunc: func(ctx context.Context) error {
				db, err := database.Connect(ctx, database.Config{
					Host:            cfg.DatabaseHost,
					Port:            cfg.DatabasePort,
					User:            cfg.DatabaseUserName,
					Password:        cfg.DatabasePassword,
					Name:            cfg.DatabaseName,
					SSLMode:         cfg.DatabaseSSLMode,
					MaxOpenConns:    cfg.DatabaseMaxOpenConns,
					ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
				}, logger)
				if err != nil {
					return err
				}
				a.db = db
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.db == nil {
					return nil
				}
				return a.db.Close()
			},
		})
	}

	if opts.events && cfg.EventsEnabled() {
		a.deps.Add(startup.Func{
			DependencyName: "events",
			StartFunc: func(context.Context) error {
				a.publisher = events.NewProducer(events.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaTopic,
					BatchTimeout: cfg.KafkaBatchTimeout,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, logger)
				return nil
			},
			StopFunc: func(context.Context) error {
				return a.publisher.Close()
			},
		})
	}

	if err := a.deps.Start(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("start dependencies: %w", err)
	}
	a.closers = append(a.closers, a.deps.Stop)
	return a, nil
}

// pushMetrics sends the run's metrics to the Pushgateway when one is set.
func (a *app) pushMetrics(ctx context.Context) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, a.cfg.PushgatewayJob, a.cfg.PushgatewayTimeout); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warn("Failed to push metrics")
	}
}

// close releases resources in reverse acquisition order.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
