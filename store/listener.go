package store

import "sync"

// Listener receives synchronous, registration-ordered notification of
// every committed Store mutation. Implementations must not call back
// into the Store for the same key from within a callback: the store
// does not detect that reentrancy and a write-lock callback would
// deadlock.
type Listener[K comparable, V any] interface {
	// OnUpdate fires after Put/Replace overwrites an existing entry.
	// displaced is the raw representation that was resident before the
	// overwrite — the Element itself under an identity configuration,
	// the undecoded proxy otherwise — observed before it is freed.
	OnUpdate(key K, displaced Substitute, new *Element[K, V])
	// OnRemove fires after a successful Remove. displaced is the raw
	// representation the removal displaced, as for OnUpdate; removed is
	// its decoded Element view.
	OnRemove(key K, displaced Substitute, removed *Element[K, V])
	// OnEvict fires after a successful Evict.
	OnEvict(key K, evicted *Element[K, V])
	// OnFault fires after a successful Fault/TryFault.
	OnFault(key K, expect, fault Substitute)
}

// ListenerFuncs adapts plain functions to the Listener interface; any
// nil field is treated as a no-op for that event.
type ListenerFuncs[K comparable, V any] struct {
	Update func(key K, displaced Substitute, new *Element[K, V])
	Remove func(key K, displaced Substitute, removed *Element[K, V])
	Evict  func(key K, evicted *Element[K, V])
	Fault  func(key K, expect, fault Substitute)
}

func (f ListenerFuncs[K, V]) OnUpdate(key K, displaced Substitute, new *Element[K, V]) {
	if f.Update != nil {
		f.Update(key, displaced, new)
	}
}

func (f ListenerFuncs[K, V]) OnRemove(key K, displaced Substitute, removed *Element[K, V]) {
	if f.Remove != nil {
		f.Remove(key, displaced, removed)
	}
}

func (f ListenerFuncs[K, V]) OnEvict(key K, evicted *Element[K, V]) {
	if f.Evict != nil {
		f.Evict(key, evicted)
	}
}

func (f ListenerFuncs[K, V]) OnFault(key K, expect, fault Substitute) {
	if f.Fault != nil {
		f.Fault(key, expect, fault)
	}
}

// listenerBus holds a registration-ordered list of Listeners and
// dispatches each event to all of them, synchronously, in order.
type listenerBus[K comparable, V any] struct {
	mu        sync.Mutex
	listeners []Listener[K, V]
}

func (b *listenerBus[K, V]) register(l Listener[K, V]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *listenerBus[K, V]) snapshot() []Listener[K, V] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Listener[K, V], len(b.listeners))
	copy(out, b.listeners)
	return out
}

func (b *listenerBus[K, V]) fireUpdate(key K, displaced Substitute, new *Element[K, V]) {
	for _, l := range b.snapshot() {
		l.OnUpdate(key, displaced, new)
	}
}

func (b *listenerBus[K, V]) fireRemove(key K, displaced Substitute, removed *Element[K, V]) {
	for _, l := range b.snapshot() {
		l.OnRemove(key, displaced, removed)
	}
}

func (b *listenerBus[K, V]) fireEvict(key K, evicted *Element[K, V]) {
	for _, l := range b.snapshot() {
		l.OnEvict(key, evicted)
	}
}

func (b *listenerBus[K, V]) fireFault(key K, expect, fault Substitute) {
	for _, l := range b.snapshot() {
		l.OnFault(key, expect, fault)
	}
}
