package position

import (
	"fmt"
	"sync"
	"testing"

	"github.com/atmx/synthetic-ledger/internal/custody"
	"github.com/atmx/synthetic-ledger/internal/store"
)

func TestStripe_StableAndBounded(t *testing.T) {
	l := NewLedger(store.NewMemoryStore(), custody.NewMemoryCustodian(""), Options{})

	if l.stripe("alice") != l.stripe("alice") {
		t.Fatal("an owner must always map to the same lock")
	}

	table := make(map[*sync.Mutex]bool, lockStripes)
	for i := range l.locks {
		table[&l.locks[i]] = true
	}
	for i := 0; i < 10000; i++ {
		if !table[l.stripe(fmt.Sprintf("owner-%d", i))] {
			t.Fatalf("lock for owner-%d is outside the stripe table", i)
		}
	}
}

func TestLock_ReleaseAllowsReacquire(t *testing.T) {
	l := NewLedger(store.NewMemoryStore(), custody.NewMemoryCustodian(""), Options{})

	unlock := l.lock("alice")
	if l.stripe("alice").TryLock() {
		t.Fatal("stripe should be held")
	}
	unlock()

	if !l.stripe("alice").TryLock() {
		t.Fatal("stripe should be free after release")
	}
	l.stripe("alice").Unlock()
}
