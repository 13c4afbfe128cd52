package store

import "testing"

func newTestStore(t *testing.T) *Store[string, int] {
	t.Helper()
	st, err := New[string, int](Options[string, int]{NumSegments: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st
}

// S1: empty store; put returns new entry; get returns it; size is 1.
func TestStore_S1_PutGetSize(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	old, err := st.Put("a", NewElement("a", 1, 0), false)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if old != nil {
		t.Fatalf("Put on empty store must report no previous element, got %v", old)
	}
	got, ok := st.Get("a")
	if !ok || got.Value != 1 {
		t.Fatalf("Get(a) = %v, %v; want 1, true", got, ok)
	}
	if n := st.Size(); n != 1 {
		t.Fatalf("Size() = %d, want 1", n)
	}
}

// S2: put, then put again; the second call reports the displaced
// element and one OnUpdate fires.
func TestStore_S2_PutOverwriteFiresUpdate(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	updates := 0
	st.RegisterListener(ListenerFuncs[string, int]{
		Update: func(key string, displaced Substitute, new *Element[string, int]) {
			updates++
			// Identity configuration: the displaced representation is
			// the old Element itself.
			old, ok := displaced.(*Element[string, int])
			if !ok || old.Value != 1 || new.Value != 2 {
				t.Fatalf("OnUpdate displaced=%v new=%v, want 1, 2", displaced, new.Value)
			}
		},
	})

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put 1: %v", err)
	}
	old, err := st.Put("a", NewElement("a", 2, 0), false)
	if err != nil {
		t.Fatalf("Put 2: %v", err)
	}
	if old == nil || old.Value != 1 {
		t.Fatalf("Put 2 old = %v, want 1", old)
	}
	got, _ := st.Get("a")
	if got.Value != 2 {
		t.Fatalf("Get(a) after overwrite = %v, want 2", got.Value)
	}
	if updates != 1 {
		t.Fatalf("OnUpdate fired %d times, want 1", updates)
	}
}

// S3: put then remove; get returns absent; size is 0; one OnRemove fires.
func TestStore_S3_PutRemove(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	removes := 0
	st.RegisterListener(ListenerFuncs[string, int]{
		Remove: func(key string, displaced Substitute, removed *Element[string, int]) {
			removes++
		},
	})

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	removed, err := st.Remove("a", nil, nil)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed == nil || removed.Value != 1 {
		t.Fatalf("Remove returned %v, want element with value 1", removed)
	}
	if _, ok := st.Get("a"); ok {
		t.Fatal("Get(a) must miss after Remove")
	}
	if n := st.Size(); n != 0 {
		t.Fatalf("Size() = %d, want 0", n)
	}
	if removes != 1 {
		t.Fatalf("OnRemove fired %d times, want 1", removes)
	}
}

// S4: two keys sharing a segment and bucket; removing the first leaves
// the second reachable.
func TestStore_S4_RemoveOnePreservesChainmate(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	// Find a key that lands in the same segment and the same bucket as
	// "a". Two entries never trigger a rehash, so the segment keeps its
	// initial table of 16 buckets.
	ha := st.spreadHash("a")
	mate := ""
	for i := 0; mate == ""; i++ {
		k := intToKey(i)
		hk := st.spreadHash(k)
		if hk>>st.segmentShift == ha>>st.segmentShift && bucketIndex(hk, 16) == bucketIndex(ha, 16) {
			mate = k
		}
	}

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put(a): %v", err)
	}
	if _, err := st.Put(mate, NewElement(mate, 2, 0), false); err != nil {
		t.Fatalf("Put(%s): %v", mate, err)
	}
	if _, err := st.Remove("a", nil, nil); err != nil {
		t.Fatalf("Remove(a): %v", err)
	}
	if got, ok := st.Get(mate); !ok || got.Value != 2 {
		t.Fatalf("Get(%s) = %v, %v; want 2, true after removing its chainmate", mate, got, ok)
	}
}

// S5: concurrent fault(k, X, Y) and fault(k, X, Z); exactly one
// succeeds; the other's proposed substitute is freed; OnFault fires
// once.
func TestStore_S5_ConcurrentFaultExactlyOneWins(t *testing.T) {
	t.Parallel()
	var freed []Substitute
	f := &trackingFactory{IdentityFactory: IdentityFactory[string, int]{}, freed: &freed}
	st, err := New[string, int](Options[string, int]{NumSegments: 8, Factory: f})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := st.Put("k", NewElement("k", 0, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	x, _ := st.UnretrievedGet("k")
	y, z := "Y", "Z"

	faults := 0
	st.RegisterListener(ListenerFuncs[string, int]{
		Fault: func(key string, expect, fault Substitute) {
			faults++
		},
	})

	done := make(chan bool, 2)
	go func() { done <- st.Fault("k", x, y) }()
	go func() { done <- st.Fault("k", x, z) }()
	r1, r2 := <-done, <-done

	if r1 == r2 {
		t.Fatalf("exactly one fault must win, got %v and %v", r1, r2)
	}

	if faults != 1 {
		t.Fatalf("OnFault fired %d times, want 1", faults)
	}
	final, _ := st.UnretrievedGet("k")
	if final != y && final != z {
		t.Fatalf("final substitute = %v, want Y or Z", final)
	}
	// The winner frees the displaced X; the loser frees its own proposal.
	loser := z
	if final == z {
		loser = y
	}
	if len(freed) != 2 || freed[0] != x || freed[1] != loser {
		t.Fatalf("freed = %v, want [X, losing proposal %v]", freed, loser)
	}
}

// S6: populate many keys across many segments; RandomSample returns
// at least the target size (when available). Which segment a call
// starts from is not observable from here and is not checked.
func TestStore_S6_RandomSampleCoversTarget(t *testing.T) {
	t.Parallel()
	st, err := New[string, int](Options[string, int]{NumSegments: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 10_000; i++ {
		k := intToKey(i)
		if _, err := st.Put(k, NewElement(k, i, 0), false); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}

	samples := st.RandomSample(AcceptAll, 100, "", false)
	if len(samples) < 100 {
		t.Fatalf("RandomSample returned %d entries, want >= 100", len(samples))
	}
}

func intToKey(i int) string {
	const digits = "0123456789"
	if i == 0 {
		return "0"
	}
	buf := make([]byte, 0, 8)
	for i > 0 {
		buf = append(buf, digits[i%10])
		i /= 10
	}
	for l, r := 0, len(buf)-1; l < r; l, r = l+1, r-1 {
		buf[l], buf[r] = buf[r], buf[l]
	}
	return string(buf)
}

func TestStore_OnlyIfAbsentLeavesExistingValue(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	old, err := st.Put("a", NewElement("a", 2, 0), true)
	if err != nil {
		t.Fatalf("Put onlyIfAbsent: %v", err)
	}
	if old == nil || old.Value != 1 {
		t.Fatalf("Put onlyIfAbsent old = %v, want element with value 1", old)
	}
	got, _ := st.Get("a")
	if got.Value != 1 {
		t.Fatalf("Get(a) after onlyIfAbsent put = %v, want 1", got.Value)
	}
}

func TestStore_ContainsKeyDoesNotAffectStats(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	if st.ContainsKey("missing") {
		t.Fatal("ContainsKey on empty store must be false")
	}
	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !st.ContainsKey("a") {
		t.Fatal("ContainsKey(a) must be true")
	}
	if hit, miss := st.ApproximateHeapHitRate(), st.ApproximateHeapMissRate(); hit != 0 || miss != 0 {
		t.Fatalf("ContainsKey recorded statistics: hit rate %v, miss rate %v; want 0, 0", hit, miss)
	}
}

func TestStore_DisposeIsIdempotent(t *testing.T) {
	t.Parallel()
	unbinds := 0
	f := &countingUnbindFactory{IdentityFactory: IdentityFactory[string, int]{}, unbinds: &unbinds}
	st, err := New[string, int](Options[string, int]{Factory: f})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := st.Dispose(); err != nil {
		t.Fatalf("Dispose 1: %v", err)
	}
	if err := st.Dispose(); err != nil {
		t.Fatalf("Dispose 2: %v", err)
	}
	if unbinds != 1 {
		t.Fatalf("Unbind called %d times, want 1", unbinds)
	}
	if st.Status() != StatusShutdown {
		t.Fatalf("Status() = %v, want %v", st.Status(), StatusShutdown)
	}
}

type countingUnbindFactory struct {
	IdentityFactory[string, int]
	unbinds *int
}

func (f *countingUnbindFactory) Unbind(BoundStore[string, int]) error {
	*f.unbinds++
	return nil
}

func TestStore_PutRawIfAbsent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	raw := NewElement("a", 7, 0)
	if !st.PutRawIfAbsent("a", raw) {
		t.Fatal("PutRawIfAbsent on an absent key must succeed")
	}
	if st.PutRawIfAbsent("a", NewElement("a", 8, 0)) {
		t.Fatal("PutRawIfAbsent on a present key must refuse")
	}
	got, ok := st.Get("a")
	if !ok || got.Value != 7 {
		t.Fatalf("Get(a) = %v, %v; want 7, true", got, ok)
	}
}

func TestStore_EvictMatchesSubstitute(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	evicts := 0
	st.RegisterListener(ListenerFuncs[string, int]{
		Evict: func(key string, evicted *Element[string, int]) { evicts++ },
	})

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	current, _ := st.UnretrievedGet("a")

	if _, ok := st.Evict("a", "some-other-substitute"); ok {
		t.Fatal("Evict with a mismatched substitute must refuse")
	}
	elem, ok := st.Evict("a", current)
	if !ok || elem.Value != 1 {
		t.Fatalf("Evict = %v, %v; want element 1, true", elem, ok)
	}
	if st.ContainsKey("a") {
		t.Fatal("key must be absent after Evict")
	}
	if evicts != 1 {
		t.Fatalf("OnEvict fired %d times, want 1", evicts)
	}
}

func TestStore_ReplaceOnlyIfPresent(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	old, err := st.Replace("a", NewElement("a", 1, 0))
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if old != nil {
		t.Fatal("Replace on an absent key must be a no-op")
	}
	if st.ContainsKey("a") {
		t.Fatal("Replace must not insert")
	}

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	old, err = st.Replace("a", NewElement("a", 2, 0))
	if err != nil || old == nil || old.Value != 1 {
		t.Fatalf("Replace = %v, %v; want displaced 1", old, err)
	}
}

func TestStore_ReplaceCASRequiresMatch(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	eq := func(a, b int) bool { return a == b }

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	old, err := st.ReplaceCAS("a", NewElement("a", 9, 0), NewElement("a", 2, 0), eq)
	if err != nil {
		t.Fatalf("ReplaceCAS: %v", err)
	}
	if old != nil {
		t.Fatal("ReplaceCAS with a stale expected value must refuse")
	}
	old, err = st.ReplaceCAS("a", NewElement("a", 1, 0), NewElement("a", 2, 0), eq)
	if err != nil || old == nil || old.Value != 1 {
		t.Fatalf("ReplaceCAS = %v, %v; want displaced 1", old, err)
	}
	got, _ := st.Get("a")
	if got.Value != 2 {
		t.Fatalf("Get(a) = %v, want 2", got.Value)
	}
}

func TestStore_ForEachKeyVisitsAll(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	want := map[string]bool{"a": true, "b": true, "c": true}
	for k := range want {
		if _, err := st.Put(k, NewElement(k, 0, 0), false); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	got := map[string]bool{}
	st.ForEachKey(func(k string) { got[k] = true })
	if len(got) != len(want) {
		t.Fatalf("ForEachKey visited %v, want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("ForEachKey missed key %q", k)
		}
	}
}
