package relaxed

import (
	"sync"
	"testing"
	"time"

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

func TestResurrection(t *testing.T) {
	tr := New(16)
	td := tr.NewThreadData(0)
	tr.Insert(td, 5, "v1")
	tr.Delete(td, 5)
	if tr.Lookup(td, 5) {
		t.Fatal("expected key to read as absent once tombstoned")
	}
	resurrected := tr.Insert(td, 5, "v2")
	if !resurrected {
		t.Fatal("expected re-insert of a tombstoned key to report resurrection")
	}
	if !tr.Lookup(td, 5) {
		t.Fatal("expected key present again after resurrection")
	}
}

func TestMaintainerPhysicallyRemovesTombstones(t *testing.T) {
	tr := New(4096)
	td := tr.NewThreadData(0)
	tr.StartMaintainer(time.Millisecond)

	for i := types.Key(1); i <= 200; i++ {
		tr.Insert(td, i, nil)
	}
	for i := types.Key(1); i <= 100; i++ {
		tr.Delete(td, i)
	}

	time.Sleep(50 * time.Millisecond)
	tr.StopMaintainer()

	if !tr.Validate() {
		t.Fatal("expected valid tree after maintainer drains tombstones")
	}
	for i := types.Key(1); i <= 100; i++ {
		if tr.Lookup(td, i) {
			t.Fatalf("expected key %d to read as deleted", i)
		}
	}
	for i := types.Key(101); i <= 200; i++ {
		if !tr.Lookup(td, i) {
			t.Fatalf("expected key %d to still be present", i)
		}
	}
}

func TestConcurrentMixWithMaintainer(t *testing.T) {
	tr := New(200_000)
	tr.StartMaintainer(time.Millisecond)

	const goroutines = 8
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		g := g
		go func() {
			defer wg.Done()
			td := tr.NewThreadData(g)
			for i := 0; i < 1000; i++ {
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
	tr.StopMaintainer()

	if !tr.Validate() {
		t.Fatal("expected valid tree after concurrent workload and maintainer drain")
	}
}
