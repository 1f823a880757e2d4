package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"eventpipe/internal/config"
	"eventpipe/internal/fanout"
	"eventpipe/internal/pipeline"
)

// shutdownSlack is added on top of the grace period so Stop can close the
// transport after cancelling workers.
const shutdownSlack = 5 * time.Second

// openPool builds the store pool without dialing. Connections are made on
// first use; an unreachable database at boot is handled by the transport's
// connect retry and reported by /health.
func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	return pool, nil
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		EventChannel:        cfg.Transport.EventChannel,
		AlertChannel:        cfg.Transport.AlertChannel,
		EventQueueCapacity:  cfg.Pipeline.EventQueueCapacity,
		AlertQueueCapacity:  cfg.Pipeline.AlertQueueCapacity,
		EventWorkers:        cfg.Pipeline.EventWorkers,
		AlertWorkers:        cfg.Pipeline.AlertWorkers,
		PollInterval:        cfg.Pipeline.PollInterval,
		AlertEnqueueTimeout: cfg.Pipeline.AlertEnqueueTimeout,
		PersistTimeout:      cfg.Pipeline.PersistTimeout,
		GracePeriod:         cfg.Pipeline.GracePeriod,
		ReconnectBackoff:    cfg.Transport.ReconnectBackoff,
		ConnectMaxAttempts:  cfg.Transport.ConnectMaxAttempts,
	}
}

// opsStats is the /stats document: the pipeline snapshot plus the state of
// optional forwarders.
type opsStats struct {
	pipeline.Snapshot
	WebhookBreaker string `json:"webhook_breaker,omitempty"`
}

type snapshotter interface {
	Stats() pipeline.Snapshot
}

func statsFunc(p snapshotter, webhook *fanout.WebhookForwarder) func() any {
	return func() any {
		s := opsStats{Snapshot: p.Stats()}
		if webhook != nil {
			s.WebhookBreaker = webhook.State()
		}
		return s
	}
}
