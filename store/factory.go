package store

// SubstituteFactory turns an Element into whatever representation a
// segment should hold in its place (an identity substitute — the
// Element itself — an on-disk proxy, or any other user-defined
// stand-in) and back again. A segment never inspects a Substitute's
// concrete type; every interpretation goes through the factory that
// created it.
//
// Implementations may read or write external storage from any of
// these methods. The core treats that I/O as possibly expensive but
// non-failing: an error is propagated to the caller of the triggering
// store operation unchanged.
type SubstituteFactory[K comparable, V any] interface {
	// Create turns an Element into the Substitute this factory wants
	// resident in the segment (for IdentityFactory, the Element
	// itself).
	Create(element *Element[K, V]) (Substitute, error)

	// Decode reconstructs the Element view of a Substitute this
	// factory created, without necessarily touching external storage
	// (e.g. unwrapping a cached payload already held by a proxy).
	Decode(substitute Substitute) (*Element[K, V], error)

	// Retrieve is like Decode but records a retrieval: for a disk
	// factory this is where the read actually happens (and may be
	// slower than Decode); for IdentityFactory it additionally bumps
	// the Element's hit counter.
	Retrieve(substitute Substitute) (*Element[K, V], error)

	// Free releases whatever resources a Substitute holds (e.g. an
	// on-disk slot). Called exactly once per installed substitute:
	// by the segment for Fault/TryFault/Evict/Clear, and by the Store
	// after listener dispatch for Put/Replace/Remove.
	Free(substitute Substitute)

	// Created reports whether substitute was minted by this factory.
	// The store itself never calls it: every displaced substitute is
	// passed to Free regardless of which factory minted it.
	Created(substitute Substitute) bool

	// Bind is called once when a factory is attached to a store,
	// before any Create/Decode/Retrieve/Free call. The handle is the
	// factory's only way back into the store (e.g. faulting entries in
	// from a background scan); implementations that don't need it
	// ignore the argument.
	Bind(store BoundStore[K, V]) error

	// Unbind is called at most once, when the owning store disposes,
	// with the same handle Bind received.
	Unbind(store BoundStore[K, V]) error
}

// BoundStore is the narrow store-facing handle a SubstituteFactory
// receives from Bind and Unbind. It exposes just the operations a
// factory legitimately drives from its own machinery — faulting a
// representation swap, evicting an entry it can no longer back, and
// re-materializing entries discovered by an external scan — so a
// factory holds a capability, not the whole Store.
type BoundStore[K comparable, V any] interface {
	Fault(key K, expect, fault Substitute) bool
	Evict(key K, maybeSubstitute Substitute) (*Element[K, V], bool)
	PutRawIfAbsent(key K, substitute Substitute) bool
}

// identityTagged lets internal code recognize an IdentityFactory
// without a type assertion against the concrete generic type, so
// hit/miss accounting can attribute retrievals to the heap tier.
type identityTagged interface {
	isIdentitySubstituteFactory()
}

// IdentityFactory is the trivial SubstituteFactory: the Substitute it
// produces is the Element pointer itself, so nothing is ever
// serialized, copied, or freed. Segments default to this factory when
// no other SubstituteFactory is supplied at construction.
type IdentityFactory[K comparable, V any] struct{}

func (IdentityFactory[K, V]) isIdentitySubstituteFactory() {}

func (IdentityFactory[K, V]) Create(element *Element[K, V]) (Substitute, error) {
	return element, nil
}

// Decode returns nil for a substitute some other factory minted (a
// caller may Fault a foreign proxy into a slot even under an identity
// configuration); the store reports that entry as a miss rather than
// guessing at an interpretation.
func (IdentityFactory[K, V]) Decode(substitute Substitute) (*Element[K, V], error) {
	e, _ := substitute.(*Element[K, V])
	return e, nil
}

func (f IdentityFactory[K, V]) Retrieve(substitute Substitute) (*Element[K, V], error) {
	e, ok := substitute.(*Element[K, V])
	if !ok {
		return nil, nil
	}
	e.addHit()
	return e, nil
}

func (IdentityFactory[K, V]) Free(Substitute) {}

func (IdentityFactory[K, V]) Created(substitute Substitute) bool {
	_, ok := substitute.(*Element[K, V])
	return ok
}

func (IdentityFactory[K, V]) Bind(BoundStore[K, V]) error { return nil }

func (IdentityFactory[K, V]) Unbind(BoundStore[K, V]) error { return nil }
