package store

import "go.uber.org/zap"

// WriterManager is an optional external collaborator a caller can
// wrap a Store's mutations with — typically a write-behind queue that
// persists puts and removes asynchronously. The store core never
// constructs one; WriteThrough below is a thin helper that calls a
// Store mutation and then the WriterManager, wrapping any
// WriterManager failure as a *store-update* error carrying whether
// the in-core mutation already went through.
type WriterManager[K comparable, V any] interface {
	Put(element *Element[K, V]) error
	Remove(key K, removed *Element[K, V]) error
}

// WriteThrough puts element into st and, if that succeeds, forwards
// it to wm. A wm failure is reported as a *store-update* error with
// MutationSucceeded true: the in-core state is not rolled back.
func WriteThrough[K comparable, V any](st *Store[K, V], wm WriterManager[K, V], key K, element *Element[K, V], onlyIfAbsent bool) (*Element[K, V], error) {
	old, err := st.Put(key, element, onlyIfAbsent)
	if err != nil {
		return nil, err
	}
	if wm == nil {
		return old, nil
	}
	if err := wm.Put(element); err != nil {
		zap.L().Warn("writer manager rejected put after in-core mutation", zap.Error(err))
		return old, errStoreUpdate("WriteThrough", true, err)
	}
	return old, nil
}

// RemoveThrough removes key from st and, if that succeeds, forwards
// the removed element to wm. A wm failure is reported as a
// *store-update* error with MutationSucceeded true.
func RemoveThrough[K comparable, V any](st *Store[K, V], wm WriterManager[K, V], key K) (*Element[K, V], error) {
	removed, err := st.Remove(key, nil, nil)
	if err != nil {
		return nil, err
	}
	if removed == nil || wm == nil {
		return removed, nil
	}
	if err := wm.Remove(key, removed); err != nil {
		zap.L().Warn("writer manager rejected remove after in-core mutation", zap.Error(err))
		return removed, errStoreUpdate("RemoveThrough", true, err)
	}
	return removed, nil
}
