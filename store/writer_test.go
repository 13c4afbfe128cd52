package store

import (
	"errors"
	"testing"
)

type failingWriter struct {
	putErr    error
	removeErr error
}

func (w *failingWriter) Put(*Element[string, int]) error { return w.putErr }

func (w *failingWriter) Remove(string, *Element[string, int]) error { return w.removeErr }

func TestWriteThrough_WriterFailureKeepsMutation(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	wm := &failingWriter{putErr: errors.New("queue full")}

	_, err := WriteThrough(st, wm, "a", NewElement("a", 1, 0), false)
	var se *StoreError
	if !errors.As(err, &se) || se.Kind != KindStoreUpdate {
		t.Fatalf("err = %v, want StoreError{Kind: KindStoreUpdate}", err)
	}
	if !se.MutationSucceeded {
		t.Fatal("MutationSucceeded must be true: the in-core put went through")
	}
	if got, ok := st.Get("a"); !ok || got.Value != 1 {
		t.Fatalf("in-core state must not roll back; Get(a) = %v, %v", got, ok)
	}
}

func TestRemoveThrough_WriterFailureKeepsRemoval(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	wm := &failingWriter{removeErr: errors.New("queue full")}

	removed, err := RemoveThrough(st, wm, "a")
	var se *StoreError
	if !errors.As(err, &se) || se.Kind != KindStoreUpdate || !se.MutationSucceeded {
		t.Fatalf("err = %v, want store-update with MutationSucceeded", err)
	}
	if removed == nil || removed.Value != 1 {
		t.Fatalf("RemoveThrough must still report the removed element, got %v", removed)
	}
	if _, ok := st.Get("a"); ok {
		t.Fatal("in-core removal must not roll back")
	}
}

func TestWriteThrough_NilWriterIsPlainPut(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	if _, err := WriteThrough[string, int](st, nil, "a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("WriteThrough without a writer: %v", err)
	}
	if got, ok := st.Get("a"); !ok || got.Value != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", got, ok)
	}
}

func TestRemoveThrough_AbsentKeySkipsWriter(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	wm := &failingWriter{removeErr: errors.New("must not be called")}

	removed, err := RemoveThrough(st, wm, "missing")
	if err != nil {
		t.Fatalf("RemoveThrough on an absent key: %v", err)
	}
	if removed != nil {
		t.Fatalf("removed = %v, want nil", removed)
	}
}
