package rotate

import (
	"testing"

	"github.com/bobboyms/ctreebench/pkg/arena"
	"github.com/bobboyms/ctreebench/pkg/treenode"
)

// buildRightChain creates n -> right(n) -> right(right(n)), a right-heavy
// chain used to test rotate-single-left restores balance.
func buildRightChain(a *arena.Arena) treenode.Handle {
	root := a.Alloc(1, nil, false)
	mid := a.Alloc(2, nil, false)
	leafA := a.Alloc(0, nil, true)
	leafB := a.Alloc(3, nil, true)
	leafC := a.Alloc(4, nil, true)

	a.At(root).Left, a.At(root).Right = leafA, mid
	a.At(mid).Left, a.At(mid).Right = leafB, leafC
	return root
}

func TestRotateSingleLeft(t *testing.T) {
	a := arena.New(8)
	root := buildRightChain(a)

	newRoot := RotateSingle(a, root, Left)
	if newRoot == root {
		t.Fatal("expected a new subtree root after rotation")
	}
	if a.At(newRoot).Left != root {
		t.Fatalf("expected old root to become new root's left child")
	}
	if a.At(root).Right == treenode.Nil || a.At(a.At(root).Right).Key != 3 {
		t.Fatal("expected old root to inherit the rotated node's left child")
	}
}

func TestRotateDoubleRestructures(t *testing.T) {
	a := arena.New(8)
	root := a.Alloc(1, nil, false)
	left := a.Alloc(0, nil, false)
	leafA := a.Alloc(-1, nil, true)
	mid := a.Alloc(2, nil, true)
	leafC := a.Alloc(3, nil, true)

	a.At(root).Left, a.At(root).Right = left, leafC
	a.At(left).Left, a.At(left).Right = leafA, mid

	newRoot := RotateDouble(a, root, Right)
	if newRoot != mid {
		t.Fatalf("expected double rotation to pivot on the inner child, got handle %d want %d", newRoot, mid)
	}
}

func TestAVLFixupSingleRotationOnInsert(t *testing.T) {
	a := arena.New(8)
	// Build a left-left heavy internal chain: grandparent -> parent -> child
	grandparent := a.Alloc(3, nil, false)
	parent := a.Alloc(2, nil, false)
	child := a.Alloc(1, nil, false)
	leaf1 := a.Alloc(0, nil, true)
	leaf2 := a.Alloc(1, nil, true)
	leaf3 := a.Alloc(2, nil, true)
	leaf4 := a.Alloc(4, nil, true)

	a.At(child).Left, a.At(child).Right = leaf1, leaf2
	a.At(parent).Left, a.At(parent).Right = child, leaf3
	a.At(grandparent).Left, a.At(grandparent).Right = parent, leaf4

	UpdateHeight(a, child)
	UpdateHeight(a, parent)
	UpdateHeight(a, grandparent)

	path := []treenode.Handle{grandparent, parent, child}
	dirs := []Dir{Left, Left}

	newSubRoot := AVLFixup(a, path, dirs, true)
	if newSubRoot != parent {
		t.Fatalf("expected parent to become the new subtree root, got %d want %d", newSubRoot, parent)
	}
	if Balance(a, parent) < -1 || Balance(a, parent) > 1 {
		t.Fatalf("expected parent balanced after fixup, got %d", Balance(a, parent))
	}
}

func TestDirOf(t *testing.T) {
	if DirOf(5, 10) != Left {
		t.Fatal("expected Left for key < routingKey")
	}
	if DirOf(10, 10) != Right {
		t.Fatal("expected Right for key >= routingKey")
	}
}
