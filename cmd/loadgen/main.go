// Package main implements the loadgen CLI, which publishes synthetic events
// on the notification channel so the pipeline can be exercised end to end.
//
// Usage:
//
//	go run ./cmd/loadgen --count=5000
//	go run ./cmd/loadgen --count=200 --critical=0.5 --interval=10ms
//	go run ./cmd/loadgen --channel=alerts_channel --critical=1
//	go run ./cmd/loadgen --dry-run --count=3
//
// The tool reads DATABASE_URL from the environment (or a .env file via
// godotenv). Each event is sent with SELECT pg_notify(channel, payload).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"eventpipe/internal/types"
)

// maxPayloadBytes is the NOTIFY payload limit in the default Postgres build.
const maxPayloadBytes = 8000

type options struct {
	count    int
	critical float64
	invalid  float64
	channel  string
	interval time.Duration
	app      string
	dryRun   bool
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var opts options
	flag.IntVar(&opts.count, "count", 1000, "number of notifications to publish")
	flag.Float64Var(&opts.critical, "critical", 0.1, "fraction of events with error or fatal severity")
	flag.Float64Var(&opts.invalid, "invalid", 0, "fraction of malformed payloads")
	flag.StringVar(&opts.channel, "channel", "events_channel", "notification channel")
	flag.DurationVar(&opts.interval, "interval", 0, "pause between notifications")
	flag.StringVar(&opts.app, "app", "loadgen", "app_name stamped on every event")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "print payloads instead of publishing")
	flag.Parse()

	if err := opts.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("loadgen failed", "error", err)
		os.Exit(1)
	}
}

func (o options) validate() error {
	switch {
	case o.count < 1:
		return errors.New("--count must be at least 1")
	case o.critical < 0 || o.critical > 1:
		return errors.New("--critical must be within [0, 1]")
	case o.invalid < 0 || o.invalid > 1:
		return errors.New("--invalid must be within [0, 1]")
	case o.channel == "":
		return errors.New("--channel is required")
	}
	return nil
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	gen := newGenerator(opts, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), time.Now)

	if opts.dryRun {
		for range opts.count {
			fmt.Println(string(gen.next()))
		}
		return nil
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return errors.New("DATABASE_URL is not set")
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	start := time.Now()
	sent := 0
	for sent < opts.count {
		if err := ctx.Err(); err != nil {
			break
		}
		if _, err := conn.Exec(ctx, "SELECT pg_notify($1, $2)", opts.channel, string(gen.next())); err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("publishing notification %d: %w", sent+1, err)
		}
		sent++
		if opts.interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(opts.interval):
			}
		}
	}

	elapsed := time.Since(start)
	logger.Info("load generation finished",
		"channel", opts.channel,
		"sent", sent,
		"critical", gen.critical,
		"invalid", gen.invalid,
		"elapsed", elapsed.String(),
		"rate_per_sec", float64(sent)/max(elapsed.Seconds(), 1e-9),
	)
	return nil
}

var (
	resources  = []string{"/checkout", "/cart", "/login", "/search", "/api/orders", "/api/users"}
	eventTypes = []string{"TypeError", "NetworkError", "Timeout", "ReferenceError", "PageView"}
	countries  = []string{"US", "DE", "FR", "BR", "JP", "IN"}
)

var platforms = []struct{ platform, os string }{
	{"ios", "iOS"}, {"android", "Android"}, {"web", "Linux"}, {"web", "Windows"},
}

type generator struct {
	opts options
	rnd  *rand.Rand
	now  func() time.Time

	critical int
	invalid  int
}

func newGenerator(opts options, rnd *rand.Rand, now func() time.Time) *generator {
	return &generator{opts: opts, rnd: rnd, now: now}
}

// next returns one NOTIFY payload.
func (g *generator) next() []byte {
	if g.rnd.Float64() < g.opts.invalid {
		g.invalid++
		if g.rnd.IntN(2) == 0 {
			return []byte(`{"id":`)
		}
		// Decodes but fails validation.
		return []byte(`{"id":"` + uuid.NewString() + `","severity":"loud"}`)
	}

	ev := g.event()
	if ev.Severity.Critical() {
		g.critical++
	}
	data, err := json.Marshal(ev)
	if err != nil || len(data) > maxPayloadBytes {
		ev.Stack = ""
		data, _ = json.Marshal(ev)
	}
	return data
}

func (g *generator) event() *types.Event {
	sev := pick(g.rnd, []types.Severity{types.SeverityDebug, types.SeverityInfo, types.SeverityWarning})
	if g.rnd.Float64() < g.opts.critical {
		sev = pick(g.rnd, []types.Severity{types.SeverityError, types.SeverityFatal})
	}

	ev := &types.Event{
		ID:         uuid.NewString(),
		Severity:   sev,
		Type:       pick(g.rnd, eventTypes),
		Timestamp:  g.now().UnixMilli(),
		Resource:   pick(g.rnd, resources),
		AppName:    g.opts.app,
		AppVersion: "1.0.0",
		AppStage:   "loadtest",
		Tags:       map[string]any{"generator": "loadgen"},
	}
	if sev.Critical() {
		ev.Stack = fmt.Sprintf("%s: synthetic failure\n    at handler (%s:%d)", ev.Type, ev.Resource, g.rnd.IntN(400)+1)
	}
	if g.rnd.IntN(4) != 0 {
		pl := platforms[g.rnd.IntN(len(platforms))]
		ev.Endpoint = types.Endpoint{
			ID:       "dev-" + uuid.NewString()[:8],
			Platform: pl.platform,
			OS:       pl.os,
			Country:  pick(g.rnd, countries),
		}
	}
	return ev
}

func pick[T any](rnd *rand.Rand, xs []T) T {
	return xs[rnd.IntN(len(xs))]
}
