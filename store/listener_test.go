package store

import "testing"

// proxySub is an opaque stand-in the proxyFactory mints for every
// value, so listener dispatch can be checked against the raw
// representation rather than its decoded view.
type proxySub struct {
	key     string
	payload int
}

type proxyFactory struct {
	freed []Substitute
}

func (f *proxyFactory) Create(e *Element[string, int]) (Substitute, error) {
	return &proxySub{key: e.Key, payload: e.Value}, nil
}

func (f *proxyFactory) Decode(sub Substitute) (*Element[string, int], error) {
	p, ok := sub.(*proxySub)
	if !ok {
		return nil, nil
	}
	return NewElement(p.key, p.payload, 0), nil
}

func (f *proxyFactory) Retrieve(sub Substitute) (*Element[string, int], error) {
	return f.Decode(sub)
}

func (f *proxyFactory) Free(sub Substitute) { f.freed = append(f.freed, sub) }

func (f *proxyFactory) Created(sub Substitute) bool {
	_, ok := sub.(*proxySub)
	return ok
}

func (f *proxyFactory) Bind(BoundStore[string, int]) error { return nil }

func (f *proxyFactory) Unbind(BoundStore[string, int]) error { return nil }

// Listeners must observe the raw displaced representation: under a
// proxy factory, OnUpdate/OnRemove see the undecoded proxy itself, and
// they see it before Free reclaims it.
func TestListener_SeesRawDisplacedSubstitute(t *testing.T) {
	t.Parallel()
	f := &proxyFactory{}
	st, err := New[string, int](Options[string, int]{NumSegments: 4, Factory: f})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var updateDisplaced, removeDisplaced Substitute
	st.RegisterListener(ListenerFuncs[string, int]{
		Update: func(key string, displaced Substitute, new *Element[string, int]) {
			updateDisplaced = displaced
			if len(f.freed) != 0 {
				t.Error("OnUpdate must fire before the displaced substitute is freed")
			}
		},
		Remove: func(key string, displaced Substitute, removed *Element[string, int]) {
			removeDisplaced = displaced
		},
	})

	if _, err := st.Put("a", NewElement("a", 1, 0), false); err != nil {
		t.Fatalf("Put 1: %v", err)
	}
	firstSub, _ := st.UnretrievedGet("a")

	if _, err := st.Put("a", NewElement("a", 2, 0), false); err != nil {
		t.Fatalf("Put 2: %v", err)
	}
	p, ok := updateDisplaced.(*proxySub)
	if !ok || updateDisplaced != firstSub {
		t.Fatalf("OnUpdate displaced = %v, want the raw proxy %v", updateDisplaced, firstSub)
	}
	if p.payload != 1 {
		t.Fatalf("displaced proxy payload = %d, want 1", p.payload)
	}

	secondSub, _ := st.UnretrievedGet("a")
	removed, err := st.Remove("a", nil, nil)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removeDisplaced != secondSub {
		t.Fatalf("OnRemove displaced = %v, want the raw proxy %v", removeDisplaced, secondSub)
	}
	if removed == nil || removed.Value != 2 {
		t.Fatalf("Remove decoded %v, want element 2", removed)
	}

	// Both displaced proxies reached Free exactly once, after dispatch.
	if len(f.freed) != 2 || f.freed[0] != firstSub || f.freed[1] != secondSub {
		t.Fatalf("freed = %v, want [first, second] proxies", f.freed)
	}
}
