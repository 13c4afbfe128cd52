package store

import (
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/Get/Remove/Fault on random keys.
// Should pass under `-race` without detector reports.
func TestRace_MixedWorkload(t *testing.T) {
	st, err := New[string, int](Options[string, int]{NumSegments: 32})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = st.Dispose() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 5_000
	deadline := time.Now().Add(500 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Remove
					_, _ = st.Remove(k, nil, nil)
				case 5, 6, 7, 8, 9: // ~5% — Fault against whatever is currently resident
					if sub, ok := st.UnretrievedGet(k); ok {
						st.Fault(k, sub, "proxy:"+k)
					}
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% — Put
					_, _ = st.Put(k, NewElement(k, r.Int(), 0), false)
				default: // ~80% — Get
					st.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}

// Concurrent faults against the same key: exactly one of N proposals
// ever wins, verified across many repetitions with fresh keys.
func TestRace_ConcurrentFaultSameKey(t *testing.T) {
	const attempts = 200
	const faulters = 8

	st, err := New[string, int](Options[string, int]{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = st.Dispose() })

	for a := 0; a < attempts; a++ {
		k := "k:" + strconv.Itoa(a)
		if _, err := st.Put(k, NewElement(k, a, 0), false); err != nil {
			t.Fatalf("Put: %v", err)
		}
		expect, _ := st.UnretrievedGet(k)

		var wins int32Counter
		var wg sync.WaitGroup
		wg.Add(faulters)
		for i := 0; i < faulters; i++ {
			go func(i int) {
				defer wg.Done()
				if st.Fault(k, expect, "proxy:"+strconv.Itoa(i)) {
					wins.add(1)
				}
			}(i)
		}
		wg.Wait()
		if got := wins.load(); got != 1 {
			t.Fatalf("key %s: %d faulters won, want exactly 1", k, got)
		}
	}
}

type int32Counter struct {
	mu sync.Mutex
	n  int32
}

func (c *int32Counter) add(delta int32) {
	c.mu.Lock()
	c.n += delta
	c.mu.Unlock()
}

func (c *int32Counter) load() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
