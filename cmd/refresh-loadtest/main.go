// Command refresh-loadtest drives concurrent refresh rotations against an
// engine backed by Redis (or miniredis) or the in-process store.
//
// Each round logs in once and fires -racers refreshes of the same token at
// the same instant. Exactly one must win per round.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadtestSecret = "refresh-loadtest-secret-0123456789abcdef"

type staticVerifier struct{}

func (staticVerifier) VerifyCredentials(_ context.Context, identifier, _ string) (goSession.Principal, error) {
	return goSession.Principal{UserID: "lt-" + identifier, Username: identifier}, nil
}

func main() {
	var (
		rounds      = flag.Int("rounds", 2000, "number of login + refresh race rounds")
		racers      = flag.Int("racers", 8, "concurrent refreshes of the same token per round")
		concurrency = flag.Int("concurrency", 64, "rounds running in parallel")
		backend     = flag.String("store", "redis", "refresh store: redis or memory")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix")
		grace       = flag.Duration("grace", 2*time.Second, "replay grace window; 0 treats every loser as a replay")
	)
	flag.Parse()

	if *rounds <= 0 || *racers <= 0 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "rounds, racers, and concurrency must be > 0")
		os.Exit(2)
	}

	cfg := goSession.DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(loadtestSecret)
	cfg.Security.EnableLoginThrottle = false
	cfg.Refresh.ReplayGrace = *grace
	cfg.Store.RedisPrefix = *prefix

	builder := goSession.New().
		WithConfig(cfg).
		WithCredentialVerifier(staticVerifier{}).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true)

	switch *backend {
	case "redis":
		client, cleanup, err := connectRedis(*redisAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		builder.WithRedis(client)
	case "memory":
		fmt.Println("using in-process store")
	default:
		fmt.Fprintf(os.Stderr, "unknown store %q\n", *backend)
		os.Exit(2)
	}

	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	res := runRaces(context.Background(), engine, *rounds, *racers, *concurrency)

	fmt.Println("---- results ----")
	printStats("refresh", res)
	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: success=%d race_lost=%d replayed=%d\n",
		snap.Counters[goSession.MetricRefreshSuccess],
		snap.Counters[goSession.MetricRefreshRaceLost],
		snap.Counters[goSession.MetricRefreshReplayed],
	)
	if res.violations > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d rounds did not have exactly one winner\n", res.violations)
		os.Exit(1)
	}
}

func connectRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		fmt.Printf("using miniredis at %s\n", mr.Addr())
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	fmt.Printf("using redis at %s\n", addr)
	return client, func() { _ = client.Close() }, nil
}

type raceStats struct {
	total      time.Duration
	ops        int
	winners    int64
	losers     int64
	errors     int64
	violations int64
	p50        time.Duration
	p95        time.Duration
	p99        time.Duration
	opsPerS    float64
}

func runRaces(ctx context.Context, engine *goSession.Engine, rounds, racers, concurrency int) raceStats {
	var (
		wg         sync.WaitGroup
		cursor     int64
		winners    int64
		losers     int64
		failures   int64
		violations int64
		latencies  = make([]time.Duration, 0, rounds*racers)
		mu         sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= rounds {
					return
				}
				login, err := engine.Login(ctx, goSession.Credentials{
					UsernameOrEmail: fmt.Sprintf("user-%d-%d", worker, i),
					Password:        "unused",
				})
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}

				won, lost, errs, samples := raceOnce(ctx, engine, login.RefreshToken, racers)
				atomic.AddInt64(&winners, won)
				atomic.AddInt64(&losers, lost)
				atomic.AddInt64(&failures, errs)
				if won != 1 {
					atomic.AddInt64(&violations, 1)
				}

				mu.Lock()
				latencies = append(latencies, samples...)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	s := computeStats(time.Since(start), latencies)
	s.winners, s.losers, s.errors, s.violations = winners, losers, failures, violations
	return s
}

// raceOnce releases racers refreshes of token together.
func raceOnce(ctx context.Context, engine *goSession.Engine, token string, racers int) (won, lost, errs int64, samples []time.Duration) {
	var wg sync.WaitGroup
	gate := make(chan struct{})
	samples = make([]time.Duration, racers)

	for r := 0; r < racers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			<-gate
			t0 := time.Now()
			_, err := engine.Refresh(ctx, token)
			samples[r] = time.Since(t0)
			switch {
			case err == nil:
				atomic.AddInt64(&won, 1)
			case goSession.IsRefreshRejection(err):
				atomic.AddInt64(&lost, 1)
			default:
				atomic.AddInt64(&errs, 1)
			}
		}(r)
	}
	close(gate)
	wg.Wait()
	return won, lost, errs, samples
}

func computeStats(total time.Duration, samples []time.Duration) raceStats {
	if len(samples) == 0 {
		return raceStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return raceStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s raceStats) {
	fmt.Printf("%s: ops=%d winners=%d losers=%d errors=%d violations=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.winners,
		s.losers,
		s.errors,
		s.violations,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
