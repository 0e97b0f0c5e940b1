package arena

import (
	"testing"

	"github.com/bobboyms/ctreebench/pkg/treenode"
)

func TestAllocAssignsDistinctHandles(t *testing.T) {
	a := New(4)
	h1 := a.Alloc(1, nil, true)
	h2 := a.Alloc(2, nil, true)
	if h1 == h2 {
		t.Fatalf("expected distinct handles, got %d and %d", h1, h2)
	}
	if a.At(h1).Key != 1 || a.At(h2).Key != 2 {
		t.Fatalf("unexpected keys: %d, %d", a.At(h1).Key, a.At(h2).Key)
	}
}

func TestAllocPanicsWhenExhausted(t *testing.T) {
	a := New(1)
	a.Alloc(1, nil, true)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on arena exhaustion")
		}
	}()
	a.Alloc(2, nil, true)
}

func TestFreeRecyclesSlot(t *testing.T) {
	a := New(1)
	h := a.Alloc(1, nil, true)
	a.Free(h)
	h2 := a.Alloc(2, nil, true)
	if h2 != h {
		t.Fatalf("expected freed slot %d to be reused, got %d", h, h2)
	}
}

func TestResetReclaimsEverything(t *testing.T) {
	a := New(2)
	a.Alloc(1, nil, true)
	a.Alloc(2, nil, true)
	a.Reset()
	if a.Len() != 0 {
		t.Fatalf("expected Len 0 after Reset, got %d", a.Len())
	}
	h := a.Alloc(3, nil, true)
	if h != 0 {
		t.Fatalf("expected bump cursor to restart at 0, got %d", h)
	}
}

func TestReinitZeroesStaleFields(t *testing.T) {
	a := New(1)
	h := a.Alloc(1, "first", true)
	a.At(h).Version = 42
	a.Free(h)

	h2 := a.Alloc(2, "second", false)
	if h2 != h {
		t.Fatalf("expected slot reuse")
	}
	if a.At(h2).Version != 0 {
		t.Fatalf("expected reinit to zero Version, got %d", a.At(h2).Version)
	}
	if a.At(h2).Left != treenode.Nil || a.At(h2).Right != treenode.Nil {
		t.Fatalf("expected reinit to reset child links to Nil")
	}
	if a.At(h2).Color != treenode.Red {
		t.Fatalf("expected reinit default color Red")
	}
}
