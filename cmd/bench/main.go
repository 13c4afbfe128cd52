// Command bench runs a synthetic workload against the store and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	pmet "github.com/IvanBrykalov/compoundstore/metrics/prom"
	"github.com/IvanBrykalov/compoundstore/store"
)

func main() {
	// ---- Flags ----
	var (
		segments = flag.Int("segments", 64, "number of lock stripes (rounded up to a power of two)")
		initCap  = flag.Int("initcap", 16, "initial bucket count per segment")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		faultPct = flag.Int("faults", 5, "fault percentage of the non-read share [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = keys/10)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "compoundstore", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build store ----
	st, err := store.New[string, string](store.Options[string, string]{
		NumSegments:     *segments,
		InitialCapacity: *initCap,
		Metrics:         metrics,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = st.Dispose() }()

	// ---- Preload part of the keyspace to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *keys / 10
	}
	now := time.Now().UnixNano()
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		st.Put(k, store.NewElement(k, "v"+strconv.Itoa(i), now), false)
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	faultPctVal := *faultPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, faults, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				switch {
				case int(localR.Int31n(100)) < readPctVal:
					atomic.AddUint64(&reads, 1)
					if _, ok := st.Get(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				case int(localR.Int31n(100)) < faultPctVal:
					atomic.AddUint64(&faults, 1)
					k := keyByZipf()
					if sub, ok := st.UnretrievedGet(k); ok {
						st.Fault(k, sub, "proxy:"+k)
					}
				default:
					atomic.AddUint64(&writes, 1)
					k := keyByZipf()
					st.Put(k, store.NewElement(k, "v"+strconv.Itoa(localR.Int()), now), false)
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	faultsN := atomic.LoadUint64(&faults)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("segments=%d workers=%d keys=%d dur=%v seed=%d\n",
		*segments, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  faults=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, faultsN)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("Size()=%d  heap-hit-rate=%.3f\n", st.Size(), st.ApproximateHeapHitRate())
}
