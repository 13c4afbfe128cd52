package store

// KeyView is a live, mutation-capable view over a Store's keys. Add
// and AddAll fail with *unsupported* — a key view cannot construct an
// element on its own, so insertion is only meaningful through the
// Store's own Put/Replace methods.
type KeyView[K comparable, V any] struct {
	st *Store[K, V]
}

// NewKeyView wraps st in a KeyView.
func NewKeyView[K comparable, V any](st *Store[K, V]) *KeyView[K, V] {
	return &KeyView[K, V]{st: st}
}

func (v *KeyView[K, V]) Contains(key K) bool {
	return v.st.ContainsKey(key)
}

// Remove delegates to the Store, discarding the decoded element.
func (v *KeyView[K, V]) Remove(key K) bool {
	removed, err := v.st.Remove(key, nil, nil)
	return err == nil && removed != nil
}

// Iterate walks every live key; see Store.ForEachKey for ordering and
// consistency guarantees.
func (v *KeyView[K, V]) Iterate(visit func(K)) {
	v.st.ForEachKey(visit)
}

// Clear removes every entry, equivalent to Store.Clear.
func (v *KeyView[K, V]) Clear() {
	v.st.Clear()
}

func (v *KeyView[K, V]) Add(K) error {
	return errUnsupported("KeyView.Add")
}

func (v *KeyView[K, V]) AddAll([]K) error {
	return errUnsupported("KeyView.AddAll")
}

// Size delegates to Store.Size.
func (v *KeyView[K, V]) Size() int {
	return v.st.Size()
}

// ElementView is a read-only, decoded view over a Store's elements.
// Every mutating or set-algebra operation fails with *unsupported*:
// the decoded Element a caller would pass in has no connection back
// to a Substitute the underlying segment could install or compare
// against.
type ElementView[K comparable, V any] struct {
	st *Store[K, V]
}

// NewElementView wraps st in an ElementView.
func NewElementView[K comparable, V any](st *Store[K, V]) *ElementView[K, V] {
	return &ElementView[K, V]{st: st}
}

// Iterate walks every live entry, decoding each via the Store's
// factory; see Store.ForEachElement for ordering, consistency, and
// error-handling guarantees.
func (v *ElementView[K, V]) Iterate(visit func(*Element[K, V]), onError func(key K, err error)) {
	v.st.ForEachElement(visit, onError)
}

// Clear removes every entry, equivalent to Store.Clear.
func (v *ElementView[K, V]) Clear() {
	v.st.Clear()
}

// Size delegates to Store.Size.
func (v *ElementView[K, V]) Size() int {
	return v.st.Size()
}

func (v *ElementView[K, V]) Contains(*Element[K, V]) (bool, error) {
	return false, errUnsupported("ElementView.Contains")
}

func (v *ElementView[K, V]) Add(*Element[K, V]) error {
	return errUnsupported("ElementView.Add")
}

func (v *ElementView[K, V]) Remove(*Element[K, V]) error {
	return errUnsupported("ElementView.Remove")
}

func (v *ElementView[K, V]) RetainAll([]*Element[K, V]) error {
	return errUnsupported("ElementView.RetainAll")
}

func (v *ElementView[K, V]) RemoveAll(elements []*Element[K, V]) error {
	return errUnsupported("ElementView.RemoveAll")
}
