// Package store provides a segmented, concurrent key/value store that
// keeps every key resident in memory while each value may be in one
// of several representations — an in-heap Element, an on-disk proxy,
// or any other user-defined Substitute — with atomic, race-free
// transitions between representations via Fault.
//
// Design
//
//   - Concurrency: the store is split into a fixed, power-of-two
//     number of segments (64 by default), each protected by its own
//     sync.RWMutex. Reads on the steady state never take that lock at
//     all: bucket heads and value slots are published through
//     atomic.Pointer, so a lookup only needs an acquire load.
//
//   - Hashing: a pluggable hashing.Hasher computes a raw 32-bit hash
//     per key; Spread mixes it before segment and bucket selection so
//     a poor Hasher still spreads reasonably across segments.
//
//   - Substitutes: values are never stored directly. A
//     SubstituteFactory encodes an Element into whatever
//     representation a segment should hold — IdentityFactory for
//     heap-only configurations, or a custom factory backed by disk,
//     a remote store, or anything else. Fault/TryFault
//     compare-and-swap one representation for another under the
//     segment's write lock, freeing the loser exactly once.
//
//   - Rehashing: a segment doubles its table once its entry count
//     exceeds capacity*loadFactor, reusing the longest chain suffix
//     whose target bucket is unchanged (the classic Doug Lea
//     ConcurrentHashMap resize), so most of a rehash touches only the
//     entries that actually move.
//
//   - Sampling: RandomSample walks segments in ring order from a
//     hash-derived or random starting point, collecting
//     filter-accepted entries without ever locking the whole store —
//     eviction policy and scheduling are left to the caller.
//
//   - Listeners: Listener.OnUpdate/OnRemove/OnEvict/OnFault fire
//     synchronously, in registration order, after a mutation commits.
//
// Basic usage
//
//	st, _ := store.New[string, []byte](store.Options[string, []byte]{})
//	st.Put("a", store.NewElement("a", []byte("1"), time.Now().UnixNano()), false)
//	if elem, ok := st.Get("a"); ok {
//	    _ = elem.Value
//	}
//	st.Remove("a", nil, nil)
//
// With a custom SubstituteFactory (e.g. on-disk proxies)
//
//	st, _ := store.New[string, []byte](store.Options[string, []byte]{
//	    Factory: myDiskFactory,
//	})
//
// Thread-safety & complexity
//
// Every Store method is safe for concurrent use by multiple
// goroutines. Per-key operations are amortized O(1): a spread hash, a
// segment lookup, and a bucket-chain walk bounded by the load factor.
// Whole-store operations (Size, RandomSample, Clear, ForEachKey,
// ForEachElement and the Approximate*Rate statistics) are the ones
// whose cost scales with the segment count rather than with a single
// key's chain.
package store
