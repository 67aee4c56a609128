// Command credauth-loadtest measures session token validation and rotation
// token refresh throughput of an in-process engine.
//
// Principals and rotation tokens live in the memory stores; the login
// throttle uses Redis (REDIS_ADDR, --redis-addr, or an embedded miniredis).
package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/alebarre/credauth"
	"github.com/alebarre/credauth/credential"
	"github.com/alebarre/credauth/password"
	"github.com/alebarre/credauth/store/memory"
)

const loadPassword = "Load-Test-Passw0rd"

// principalState holds the live token pair of one principal. Refreshes of
// the same principal are serialized so every rotation presents a live token.
type principalState struct {
	mu       sync.Mutex
	session  string
	rotation string
}

type options struct {
	principals  int
	concurrency int
	ops         int
	redisAddr   string
	argonMemory uint32
}

func main() {
	var opts options
	fs := pflag.NewFlagSet("credauth-loadtest", pflag.ExitOnError)
	fs.IntVar(&opts.principals, "principals", 1000, "number of principals to log in")
	fs.IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	fs.IntVar(&opts.ops, "ops", 50000, "operations per phase (validate + refresh)")
	fs.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	fs.Uint32Var(&opts.argonMemory, "argon2-memory", 8*1024, "argon2id memory in KiB used while seeding")
	_ = fs.Parse(os.Args[1:]) //nolint:errcheck // ExitOnError

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.principals <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return fmt.Errorf("principals, concurrency, and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	argon := password.DefaultConfig()
	argon.Memory = opts.argonMemory
	argon.Time = 1

	cfg := credauth.DefaultConfig()
	cfg.JWT.Secret = []byte("load-test-signing-key-0123456789abcdef")
	cfg.Password.Argon2 = argon
	cfg.Metrics.Enabled = true

	stores := memory.New()
	engine, err := credauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithMemoryStores(stores).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	states, err := seed(ctx, engine, stores, argon, opts.principals)
	if err != nil {
		return err
	}

	validateStats := runPhase(opts.ops, opts.concurrency, len(states), func(_ int, idx int) error {
		st := &states[idx]
		st.mu.Lock()
		token := st.session
		st.mu.Unlock()
		_, err := engine.ValidateSessionToken(ctx, token)
		return err
	})
	refreshStats := runPhase(opts.ops, opts.concurrency, len(states), func(_ int, idx int) error {
		st := &states[idx]
		st.mu.Lock()
		defer st.mu.Unlock()
		res, err := engine.Refresh(ctx, st.rotation)
		if err != nil {
			return err
		}
		st.session, st.rotation = res.SessionToken, res.RotationToken
		return nil
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("counters: login_success=%d refresh_success=%d refresh_failure=%d\n",
		snap.Counters[credauth.MetricLoginSuccess],
		snap.Counters[credauth.MetricRefreshSuccess],
		snap.Counters[credauth.MetricRefreshFailure],
	)
	return nil
}

// seed stores n enabled principals sharing one hash, then logs each in.
func seed(ctx context.Context, engine *credauth.Engine, stores *memory.Stores, argon password.Config, n int) ([]principalState, error) {
	hasher, err := password.NewHasher(argon)
	if err != nil {
		return nil, err
	}
	hash, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	fmt.Printf("seeding %d principals...\n", n)
	start := time.Now()
	states := make([]principalState, n)
	for i := range states {
		handle := fmt.Sprintf("load-%d@example.com", i)
		now := time.Now().UTC()
		if err := stores.Credentials.Create(ctx, &credential.Credential{
			Handle:       handle,
			PasswordHash: hash,
			DisplayName:  fmt.Sprintf("Load %d", i),
			Email:        handle,
			Roles:        []credential.Role{credential.RoleUser},
			Enabled:      true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}); err != nil {
			return nil, fmt.Errorf("create %s: %w", handle, err)
		}
		res, err := engine.Login(ctx, handle, loadPassword)
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", handle, err)
		}
		states[i].session, states[i].rotation = res.SessionToken, res.RotationToken
	}
	fmt.Printf("seeded in %s\n", time.Since(start).Round(time.Millisecond))
	return states, nil
}

func runPhase(ops, concurrency, population int, op func(worker, idx int) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				idx := r.Intn(population)
				t0 := time.Now()
				err := op(worker, idx)
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
	return computeStats(time.Since(start), latencies, failures)
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

// percentile expects sorted samples.
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
	return samples[(len(samples)-1)*p/100]
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
