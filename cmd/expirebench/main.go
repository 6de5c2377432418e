// Command expirebench runs a put/remove/clear churn workload against a timed
// map and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/timedmap/internal/config"
	pmet "github.com/IvanBrykalov/timedmap/metrics/prom"
	"github.com/IvanBrykalov/timedmap/ttl"
)

// BuildVersion is set at link time.
var BuildVersion string

func main() {
	app := cli.NewApp()
	app.Name = "expirebench"
	app.Usage = "churn load generator for the timed map"
	app.Version = BuildVersion
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config,c",
			Usage: "config file (empty = defaults + TIMEDMAP_* env)",
			Value: "",
		},
		cli.StringFlag{
			Name:  "scheduler,s",
			Usage: "override scheduler.kind: timer | pool",
		},
		cli.DurationFlag{
			Name:  "duration,d",
			Usage: "override bench.duration",
		},
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		logrus.Errorf("expirebench: %v", err)
		os.Exit(1)
	}
}

// counters tallies workload outcomes.
type counters struct {
	puts, removes, removeHits, clears, reads, hits, expired atomic.Uint64
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if k := c.String("scheduler"); k != "" {
		cfg.Scheduler.Kind = k
	}
	if d := c.Duration("duration"); d > 0 {
		cfg.Bench.Duration = d
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := cfg.Log.NewLogger()
	if err != nil {
		return err
	}

	// ---- pprof server (on DefaultServeMux) ----
	if cfg.Pprof.Addr != "" {
		go func() {
			log.Infof("pprof: serving at %s", cfg.Pprof.Addr)
			log.Warn(http.ListenAndServe(cfg.Pprof.Addr, nil))
		}()
	}

	// ---- Prometheus metrics ----
	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Infof("metrics: serving at %s", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("metrics server: %v", err)
			}
		}()
	}

	// ---- Build map ----
	sched, err := cfg.Scheduler.Build(log, nil)
	if err != nil {
		return err
	}
	var st counters
	m := ttl.New[string, int](ttl.Options[string, int]{
		Sink:       ttl.SinkFunc[int](func(int) { st.expired.Add(1) }),
		DefaultTTL: cfg.Map.DefaultTTL,
		Shards:     cfg.Map.Shards,
		Scheduler:  sched,
		Metrics:    pmet.New(nil, "timedmap", "bench", nil),
		Logger:     log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bench.Duration)
	defer cancel()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			log.Info("received shutdown signal, stopping workload")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.WithFields(logrus.Fields{
		"scheduler": cfg.Scheduler.Kind,
		"workers":   cfg.Bench.Workers,
		"keys":      cfg.Bench.Keys,
		"duration":  cfg.Bench.Duration,
	}).Info("starting churn")

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < cfg.Bench.Workers; w++ {
		id := w
		g.Go(func() error { return churn(ctx, m, cfg.Bench, id, &st) })
	}
	werr := g.Wait()
	elapsed := time.Since(start)

	// let the remaining entries expire before reporting
	drainBy := time.Now().Add(cfg.Bench.MaxTTL + cfg.Map.DefaultTTL + time.Second)
	for m.Len() > 0 && time.Now().Before(drainBy) {
		time.Sleep(10 * time.Millisecond)
	}
	report(m.Stats(), &st, elapsed)

	// ---- Shutdown ----
	err = multierr.Combine(werr, m.Close())
	if srv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		err = multierr.Append(err, srv.Shutdown(sctx))
	}
	return err
}

// churn runs one worker until ctx is done. Each worker gets its own RNG
// (rand.Rand is not goroutine-safe).
func churn(ctx context.Context, m ttl.Map[string, int], b config.BenchS, id int, st *counters) error {
	r := rand.New(rand.NewSource(b.Seed + int64(id)*9973))
	span := int64(b.MaxTTL - b.MinTTL)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		k := "k:" + strconv.Itoa(r.Intn(b.Keys))
		n := r.Intn(100)
		switch {
		case b.ClearPerMillion > 0 && r.Intn(1_000_000) < b.ClearPerMillion:
			m.Clear()
			st.clears.Add(1)
		case n < b.PutPct:
			ttlv := b.MinTTL
			if span > 0 {
				ttlv += time.Duration(r.Int63n(span + 1))
			}
			if err := m.PutWithTTL(k, r.Int(), ttlv); err != nil {
				return err
			}
			st.puts.Add(1)
		case n < b.PutPct+b.RemovePct:
			if _, ok := m.Remove(k); ok {
				st.removeHits.Add(1)
			}
			st.removes.Add(1)
		default:
			if _, ok := m.Get(k); ok {
				st.hits.Add(1)
			}
			st.reads.Add(1)
		}
	}
}

func report(s ttl.Stats, st *counters, elapsed time.Duration) {
	ops := st.puts.Load() + st.removes.Load() + st.reads.Load() + st.clears.Load()
	fmt.Printf("dur=%v ops=%d (%.0f ops/s)\n", elapsed, ops, float64(ops)/elapsed.Seconds())
	fmt.Printf("puts=%d removes=%d (hit %d) reads=%d (hit %d) clears=%d\n",
		st.puts.Load(), st.removes.Load(), st.removeHits.Load(), st.reads.Load(), st.hits.Load(), st.clears.Load())
	fmt.Printf("scheduled=%d expired=%d removed=%d replaced=%d cleared=%d stale=%d sink-panics=%d\n",
		s.Scheduled, s.Expired, s.Removed, s.Replaced, s.Cleared, s.StaleFires, s.SinkPanics)
	fmt.Printf("sink-calls=%d live=%d pending=%d\n", st.expired.Load(), s.Entries, s.Pending)
}
