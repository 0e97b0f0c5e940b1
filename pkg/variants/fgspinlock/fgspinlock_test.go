package fgspinlock

import (
	"sync"
	"testing"

	"github.com/bobboyms/ctreebench/pkg/types"
)

func TestEmptyTree(t *testing.T) {
	tr := New(16)
	td := tr.NewThreadData(0)
	if tr.Lookup(td, 42) {
		t.Fatal("expected lookup on empty tree to return false")
	}
}

func TestSingleInsertLookup(t *testing.T) {
	tr := New(16)
	td := tr.NewThreadData(0)
	if !tr.Insert(td, 5, "v") {
		t.Fatal("expected insert to succeed")
	}
	if !tr.Lookup(td, 5) {
		t.Fatal("expected lookup(5) true")
	}
	if tr.Lookup(td, 4) {
		t.Fatal("expected lookup(4) false")
	}
	if !tr.Validate() {
		t.Fatal("expected validate true")
	}
}

func TestInsertDuplicateReturnsFalse(t *testing.T) {
	tr := New(16)
	td := tr.NewThreadData(0)
	tr.Insert(td, 7, nil)
	if tr.Insert(td, 7, nil) {
		t.Fatal("expected duplicate insert to return false")
	}
}

func TestInsertDeleteRoundTrip(t *testing.T) {
	tr := New(16)
	td := tr.NewThreadData(0)
	tr.Insert(td, 10, nil)
	if !tr.Delete(td, 10) {
		t.Fatal("expected delete to return true")
	}
	if tr.Lookup(td, 10) {
		t.Fatal("expected key gone")
	}
}

func TestMonotoneInsertThenDelete(t *testing.T) {
	tr := New(4096)
	td := tr.NewThreadData(0)
	const n = 1000
	for i := types.Key(1); i <= n; i++ {
		if !tr.Insert(td, i, nil) {
			t.Fatalf("insert %d failed", i)
		}
	}
	if !tr.Validate() {
		t.Fatal("expected valid tree after monotone insert")
	}
	for i := types.Key(1); i <= n; i++ {
		if !tr.Delete(td, i) {
			t.Fatalf("delete %d failed", i)
		}
	}
	if !tr.Validate() {
		t.Fatal("expected valid (empty) tree")
	}
}

func TestWarmupThenValidate(t *testing.T) {
	tr := New(100_000)
	inserted, err := tr.Warmup(10_000, 20_000, 1, false)
	if err != nil {
		t.Fatalf("warmup error: %v", err)
	}
	if inserted == 0 {
		t.Fatal("expected positive insertion count")
	}
	if !tr.Validate() {
		t.Fatal("expected validate true after warmup")
	}
}

func TestConcurrentMix(t *testing.T) {
	tr := New(200_000)
	if _, err := tr.Warmup(512, 1024, 1, false); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	const goroutines = 8
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		g := g
		go func() {
			defer wg.Done()
			td := tr.NewThreadData(g)
			for i := 0; i < 2000; i++ {
				key := types.Key((i*7 + g*13) % 1024)
				switch i % 10 {
				case 0, 1:
					tr.Insert(td, key, nil)
				case 2:
					tr.Delete(td, key)
				default:
					tr.Lookup(td, key)
				}
			}
		}()
	}
	wg.Wait()

	if !tr.Validate() {
		t.Fatal("expected valid tree after concurrent mixed workload")
	}
}
