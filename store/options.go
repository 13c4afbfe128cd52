package store

import (
	"github.com/IvanBrykalov/compoundstore/hashing"
)

// Options configures a Store at construction. Zero values are safe;
// sane defaults are applied in New:
//   - NumSegments <= 0     => 64, then rounded to the next power of two
//   - InitialCapacity <= 0 => 16
//   - LoadFactor <= 0      => 0.75
//   - Hasher == nil        => hashing.FNV32a[K]
//   - Factory == nil       => IdentityFactory[K,V]{}
//   - Metrics == nil       => NoopMetrics{}
type Options[K comparable, V any] struct {
	// NumSegments is the number of lock stripes. Rounded up to the
	// next power of two.
	NumSegments int

	// InitialCapacity is the starting bucket count per segment.
	// Rounded up to the next power of two.
	InitialCapacity int

	// LoadFactor controls when a segment rehashes: it doubles its
	// table once count exceeds the current table length * LoadFactor.
	LoadFactor float64

	// Hasher computes the raw 32-bit hash code for a key; Store mixes
	// it with Spread before segment/bucket selection.
	Hasher hashing.Hasher[K]

	// Factory decides how values are represented in the segments this
	// Store owns. Defaults to IdentityFactory, i.e. heap-only.
	Factory SubstituteFactory[K, V]

	// Metrics receives hit/miss/fault/eviction observations.
	Metrics Metrics
}
