// Command lovelace-loadtest measures authenticate and refresh-rotation throughput of the engine
// and checks that concurrent presentations of one refresh token yield exactly one success.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/password"
	"github.com/aloneinabyss/lovelace/store/memstore"
	"github.com/redis/go-redis/v9"
)

const loadtestPassword = "loadtest-password"

// chain is one login's refresh token lineage. Rotation replaces token under mu.
type chain struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		users       = flag.Int("users", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		racers      = flag.Int("racers", 32, "goroutines presenting the same refresh token in the reuse phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "users, concurrency and ops must be > 0 and racers > 1")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := lovelace.DefaultConfig()
	cfg.JWT.Secret = []byte(strings.Repeat("L", 32))
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.RateLimit.Enabled = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	store := memstore.New()
	engine, err := lovelace.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(store).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", *users)
	startSeed := time.Now()
	chains, err := seed(ctx, engine, store, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runAuthenticatePhase(ctx, engine, chains, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, chains, *ops, *concurrency)
	winners, reuse := runReusePhase(ctx, engine, chains[0], *racers)

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("refresh", refreshStats)
	fmt.Printf("reuse: racers=%d successes=%d reuse_detected=%d\n", *racers, winners, reuse)
	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: refresh_success=%d refresh_reuse=%d\n",
		snap.Counters[lovelace.MetricRefreshSuccess], snap.Counters[lovelace.MetricRefreshReuseDetected])
	for _, id := range []lovelace.MetricID{lovelace.MetricAuthenticateLatency, lovelace.MetricRefreshLatency} {
		var n uint64
		for _, v := range snap.Histograms[id] {
			n += v
		}
		if n > 0 {
			fmt.Printf("metrics: latency id=%d observations=%d mean=%s\n", id, n, (snap.HistogramSums[id] / time.Duration(n)).Round(time.Microsecond))
		}
	}

	if winners != 1 {
		fmt.Fprintln(os.Stderr, "FAIL: concurrent refresh of one token must succeed exactly once")
		os.Exit(1)
	}
}

func seed(ctx context.Context, engine *lovelace.Engine, store *memstore.Store, n int) ([]*chain, error) {
	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadtestPassword)
	if err != nil {
		return nil, err
	}

	chains := make([]*chain, n)
	for i := range n {
		username := fmt.Sprintf("user%d", i)
		_, err := store.CreateUser(ctx, lovelace.UserRecord{
			ID:            fmt.Sprintf("u-%d", i),
			Username:      username,
			Email:         username + "@loadtest.invalid",
			PasswordHash:  hash,
			EmailVerified: true,
			Enabled:       true,
			Roles:         []string{"ROLE_USER"},
		})
		if err != nil {
			return nil, err
		}
		res, err := engine.Login(ctx, username, loadtestPassword)
		if err != nil {
			return nil, err
		}
		chains[i] = &chain{access: res.Tokens.AccessToken, refresh: res.Tokens.RefreshToken}
	}
	return chains, nil
}

func runAuthenticatePhase(ctx context.Context, engine *lovelace.Engine, chains []*chain, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand) error {
		c := chains[r.Intn(len(chains))]
		c.mu.Lock()
		token := c.access
		c.mu.Unlock()
		_, err := engine.Authenticate(ctx, token)
		return err
	})
}

func runRefreshPhase(ctx context.Context, engine *lovelace.Engine, chains []*chain, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand) error {
		c := chains[r.Intn(len(chains))]
		c.mu.Lock()
		defer c.mu.Unlock()
		res, err := engine.Refresh(ctx, c.refresh)
		if err != nil {
			return err
		}
		c.access = res.Tokens.AccessToken
		c.refresh = res.Tokens.RefreshToken
		return nil
	})
}

// runReusePhase presents one refresh token from racers goroutines at once.
func runReusePhase(ctx context.Context, engine *lovelace.Engine, c *chain, racers int) (int64, int64) {
	c.mu.Lock()
	token := c.refresh
	c.mu.Unlock()

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		winners int64
		reuse   int64
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := engine.Refresh(ctx, token)
			switch {
			case err == nil:
				atomic.AddInt64(&winners, 1)
			case errors.Is(err, lovelace.ErrRefreshReuse):
				atomic.AddInt64(&reuse, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return winners, reuse
}

func runPhase(ops, concurrency int, seedStride int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedStride))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
