package hashing

import "github.com/cespare/xxhash/v2"

// XXHashOf builds a Hasher from a function that renders a key to bytes,
// backed by github.com/cespare/xxhash/v2. The fastest of the bundled
// hashers on large keys; the 64-bit sum is truncated to 32 bits, which
// is all the segment/bucket selection ever consumes.
func XXHashOf[K comparable](toBytes func(K) []byte) Hasher[K] {
	return func(k K) uint32 {
		return uint32(xxhash.Sum64(toBytes(k)))
	}
}

// XXHashString is the common case of XXHashOf for string keys.
func XXHashString() Hasher[string] {
	return XXHashOf(func(s string) []byte { return []byte(s) })
}
