// Package main is the entrypoint for the event ingestion pipeline.
//
// Startup:
//  1. Initialize structured logger.
//  2. Load configuration (dotenv, SSM secrets, env, validation).
//  3. Build the pgx pool used by the persistence workers (lazy connect).
//  4. Build metrics recorders, forwarders and the optional dead-letter queue.
//  5. Start the pipeline and the ops HTTP server.
//  6. Block until SIGINT/SIGTERM or an unexpected pipeline exit, then stop
//     within the configured grace period.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"eventpipe/internal/config"
	"eventpipe/internal/core"
	"eventpipe/internal/db"
	"eventpipe/internal/deadletter"
	"eventpipe/internal/fanout"
	"eventpipe/internal/metrics"
	"eventpipe/internal/pipeline"
	"eventpipe/internal/transport"
	"eventpipe/internal/types"
)

// slogAdapter wraps *slog.Logger to implement types.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	logger := newLogger(os.Getenv("LOG_LEVEL"))

	if err := run(); err != nil {
		logger.Error("pipeline exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	provider := config.ProviderFor(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return err
	}

	logger := (&slogAdapter{logger: newLogger(cfg.LogLevel)}).With("env", cfg.Environment)
	logger.Info("starting eventpipe", "build", cfg.Build.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom, err := metrics.NewPrometheus(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	recorders := metrics.Multi{prom}

	var awsCfg aws.Config
	if cfg.Observability.EnableCloudWatch || cfg.AWS.DeadLetterQueueURL != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
	}

	var cw *metrics.CloudWatch
	if cfg.Observability.EnableCloudWatch {
		client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		cw = metrics.NewCloudWatch(client, cfg.Observability.MetricNamespace, logger.With("component", "cloudwatch"))
		recorders = append(recorders, cw)
	}

	hub := fanout.NewHub(logger.With("component", "hub"))
	forwarders := fanout.Multi{hub}
	var webhook *fanout.WebhookForwarder
	if cfg.Forwarding.WebhookURL != "" {
		webhook = fanout.NewWebhookForwarder(cfg.Forwarding.WebhookURL, cfg.Forwarding.WebhookTimeout)
		forwarders = append(forwarders, webhook)
		logger.Info("webhook forwarding enabled")
	}

	deps := pipeline.Deps{
		Dialer:    transport.NewPgDialer(cfg.Database.URL.Unmask()),
		Store:     db.NewStore(pool),
		Forwarder: forwarders,
		Recorder:  recorders,
		Logger:    logger,
	}
	if cfg.AWS.DeadLetterQueueURL != "" {
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		deps.DeadLetter = deadletter.NewSQSDeadLetter(client, cfg.AWS.DeadLetterQueueURL, logger.With("component", "deadletter"))
		logger.Info("dead-letter queue enabled")
	}

	p := pipeline.New(pipelineConfig(cfg), deps)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting pipeline: %w", err)
	}

	srv, err := core.NewServer(logger.With("component", "ops"))
	if err != nil {
		return err
	}
	srv.HealthProbes = []core.HealthProbe{
		core.NewProbe("database", pool.Ping),
		core.NewProbe("transport", func(context.Context) error {
			if !p.Connected() {
				return errors.New("notification connection is down")
			}
			return nil
		}),
	}
	if webhook != nil {
		srv.HealthProbes = append(srv.HealthProbes, webhook)
	}
	srv.Stats = statsFunc(p, webhook)
	srv.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	srv.Stream = hub
	srv.MountRoutes()

	// Background services stop with bgCtx, after the pipeline has drained.
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(bgCtx)
	g.Go(func() error { return srv.Serve(gctx, ":"+cfg.Server.Port) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if cw != nil {
		g.Go(func() error {
			cw.Run(gctx, cfg.Observability.FlushInterval)
			return nil
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-p.Wait():
		logger.Error("pipeline stopped unexpectedly", "error", runErr)
	case <-gctx.Done():
		logger.Error("ops services stopped unexpectedly")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.GracePeriod+shutdownSlack)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		runErr = errors.Join(runErr, err)
	}

	bgCancel()
	if err := g.Wait(); err != nil {
		runErr = errors.Join(runErr, err)
	}

	logger.Info("eventpipe stopped", "stats", p.Stats())
	return runErr
}
