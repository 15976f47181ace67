package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestStore_CreateAndGet(t *testing.T) {
	st := NewStore()

	s := st.Create("call-1", map[string]string{"caller": "+15550100"})
	if s == nil {
		t.Fatal("expected non-nil session")
	}
	if st.Get("call-1") != s {
		t.Error("Get should return the created session")
	}
	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1", st.Len())
	}
}

func TestStore_CreateIsIdempotent(t *testing.T) {
	st := NewStore()

	first := st.Create("call-1", nil)
	second := st.Create("call-1", nil)

	if first != second {
		t.Error("duplicate create should return the existing session")
	}
	if st.Len() != 1 {
		t.Errorf("Len() = %d, want 1", st.Len())
	}
}

func TestStore_Get_Unknown(t *testing.T) {
	st := NewStore()

	if st.Get("nope") != nil {
		t.Error("expected nil for unknown call")
	}
}

func TestStore_Destroy(t *testing.T) {
	st := NewStore()
	s := st.Create("call-1", nil)

	ran := false
	s.OnTeardown(func() { ran = true })

	st.Destroy("call-1")

	if st.Get("call-1") != nil {
		t.Error("expected session removed")
	}
	if !ran {
		t.Error("expected teardown hook to run")
	}
	if !s.Ended() {
		t.Error("expected session to be ended")
	}
}

func TestStore_Destroy_Unknown(t *testing.T) {
	st := NewStore()

	// Must not panic
	st.Destroy("nope")
}

func TestStore_Destroy_Idempotent(t *testing.T) {
	st := NewStore()
	s := st.Create("call-1", nil)

	runs := 0
	s.OnTeardown(func() { runs++ })

	st.Destroy("call-1")
	st.Destroy("call-1")

	if runs != 1 {
		t.Errorf("teardown ran %d times, want 1", runs)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	st := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("call-%d", n)
			st.Create(id, nil)
			st.Get(id)
			st.Destroy(id)
		}(i)
	}
	wg.Wait()

	if st.Len() != 0 {
		t.Errorf("Len() = %d, want 0", st.Len())
	}
}
