package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestIdentity_Validate(t *testing.T) {
	if err := (Identity{ClientKey: "c1", PersonaID: "lina"}).Validate(); err != nil {
		t.Errorf("Expected valid identity, got %v", err)
	}
	if err := (Identity{PersonaID: "lina"}).Validate(); err != ErrInvalidIdentity {
		t.Errorf("Expected ErrInvalidIdentity, got %v", err)
	}
	if err := (Identity{ClientKey: "c1"}).Validate(); err != ErrInvalidIdentity {
		t.Errorf("Expected ErrInvalidIdentity, got %v", err)
	}
}

func TestTable_GetSetDelete(t *testing.T) {
	tbl := NewTable[string]()
	id := Identity{ClientKey: "c1", PersonaID: "lina"}

	if _, ok := tbl.Get(id); ok {
		t.Fatal("Expected empty table")
	}

	tbl.Set(id, "v1")
	got, ok := tbl.Get(id)
	if !ok || got != "v1" {
		t.Errorf("Expected v1, got %v (ok=%v)", got, ok)
	}

	tbl.Set(id, "v2")
	if got, _ := tbl.Get(id); got != "v2" {
		t.Errorf("Expected overwrite to v2, got %v", got)
	}

	tbl.Delete(id)
	if _, ok := tbl.Get(id); ok {
		t.Error("Record should have been deleted")
	}
}

func TestTable_UpdateGetOrCreate(t *testing.T) {
	tbl := NewTable[int]()
	id := Identity{ClientKey: "c1", PersonaID: "lina"}

	created := tbl.Update(id, func(cur int, ok bool) int {
		if ok {
			t.Error("Expected absent record on first update")
		}
		return cur + 1
	})
	if created != 1 {
		t.Errorf("Expected 1, got %d", created)
	}

	next := tbl.Update(id, func(cur int, ok bool) int {
		if !ok {
			t.Error("Expected existing record on second update")
		}
		return cur + 1
	})
	if next != 2 {
		t.Errorf("Expected 2, got %d", next)
	}
}

func TestTable_ConcurrentUpdate(t *testing.T) {
	tbl := NewTable[int]()
	id := Identity{ClientKey: "c1", PersonaID: "lina"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tbl.Update(id, func(cur int, _ bool) int { return cur + 1 })
		}()
	}
	wg.Wait()

	if got, _ := tbl.Get(id); got != 50 {
		t.Errorf("Expected 50, got %d", got)
	}
}

func TestTable_Identities(t *testing.T) {
	tbl := NewTable[bool]()
	tbl.Set(Identity{ClientKey: "b", PersonaID: "lina"}, true)
	tbl.Set(Identity{ClientKey: "a", PersonaID: "mira"}, true)
	tbl.Set(Identity{ClientKey: "a", PersonaID: "defne"}, true)

	got := fmt.Sprint(tbl.Identities())
	want := "[a/defne a/mira b/lina]"
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if tbl.Len() != 3 {
		t.Errorf("Expected 3 records, got %d", tbl.Len())
	}
}

func TestKeyedMutex_SerializesSameIdentity(t *testing.T) {
	km := NewKeyedMutex()
	id := Identity{ClientKey: "c1", PersonaID: "lina"}

	unlock := km.Lock(id)
	acquired := make(chan struct{})
	go func() {
		u := km.Lock(id)
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("Second Lock should block while the first is held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Second Lock was never granted")
	}

	// Entries are released once nobody holds them.
	deadline := time.Now().Add(time.Second)
	for km.held() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := km.held(); n != 0 {
		t.Errorf("Expected no live entries, got %d", n)
	}
}

func TestKeyedMutex_IndependentIdentities(t *testing.T) {
	km := NewKeyedMutex()
	u1 := km.Lock(Identity{ClientKey: "c1", PersonaID: "lina"})
	defer u1()

	done := make(chan struct{})
	go func() {
		u2 := km.Lock(Identity{ClientKey: "c2", PersonaID: "lina"})
		u2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Different identities must not block each other")
	}
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	km := NewKeyedMutex()
	id := Identity{ClientKey: "c1", PersonaID: "lina"}
	unlock := km.Lock(id)
	unlock()
	unlock()

	u := km.Lock(id)
	u()
}
