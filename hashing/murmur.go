package hashing

import "github.com/twmb/murmur3"

// Murmur3Of builds a Hasher from a function that renders a key to bytes,
// backed by github.com/twmb/murmur3. Useful when key distribution under
// FNV is poor, e.g. keys sharing long common prefixes.
func Murmur3Of[K comparable](toBytes func(K) []byte) Hasher[K] {
	return func(k K) uint32 {
		return murmur3.Sum32(toBytes(k))
	}
}

// Murmur3String is the common case of Murmur3Of for string keys.
func Murmur3String() Hasher[string] {
	return Murmur3Of(func(s string) []byte { return []byte(s) })
}
