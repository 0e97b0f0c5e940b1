// Package arena provides the fixed-capacity, index-addressed node storage
// every tree variant allocates from. Nodes are never freed back to the Go
// heap individually. A node a delete removes keeps its slot for the life
// of the arena; Reset bulk-frees the whole slab, but nothing in the module
// outside this package's tests calls it.
package arena

import (
	"sync"
	"sync/atomic"

	"github.com/bobboyms/ctreebench/pkg/errors"
	"github.com/bobboyms/ctreebench/pkg/treenode"
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Arena is a fixed-capacity slab of tree nodes addressed by treenode.Handle.
// The slab is sized once at construction and never grows, so a *Node
// obtained via At never dangles across a concurrent Alloc — this is what
// lets every variant hand out *treenode.Node pointers into the slab while
// other goroutines are allocating.
type Arena struct {
	slab []treenode.Node

	next int32 // bump allocator cursor, atomic

	freeMu sync.Mutex
	free   []treenode.Handle
}

// New creates an arena with room for exactly capacity nodes. Exceeding it
// is an allocation failure, fatal to the process — callers size capacity
// from the harness config (init_tree_size + the maximum number of nodes a
// run's inserts can add).
func New(capacity int) *Arena {
	return &Arena{
		slab: make([]treenode.Node, capacity),
	}
}

// Alloc reserves a node, preferring a freed slot over extending the bump
// cursor, and initializes it with the given key/value/leaf flag. All other
// fields are left at their zero value (Red, Nil links, Live=0, etc.) —
// each variant's insert path sets whatever else it needs.
func (a *Arena) Alloc(key types.Key, value types.Value, leaf bool) treenode.Handle {
	if h, ok := a.popFree(); ok {
		a.reinit(h, key, value, leaf)
		return h
	}

	idx := atomic.AddInt32(&a.next, 1) - 1
	if int(idx) >= len(a.slab) {
		panic(errors.ErrArenaExhausted)
	}
	a.reinit(treenode.Handle(idx), key, value, leaf)
	return treenode.Handle(idx)
}

func (a *Arena) reinit(h treenode.Handle, key types.Key, value types.Value, leaf bool) {
	n := &a.slab[h]
	*n = treenode.Node{
		Key:   key,
		Value: value,
		Left:  treenode.Nil,
		Right: treenode.Nil,
		Parent: treenode.Nil,
		Prev:  treenode.Nil,
		Succ:  treenode.Nil,
		Leaf:  leaf,
		Color: treenode.Red,
	}
}

func (a *Arena) popFree() (treenode.Handle, bool) {
	a.freeMu.Lock()
	defer a.freeMu.Unlock()
	if len(a.free) == 0 {
		return treenode.Nil, false
	}
	h := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	return h, true
}

// Free returns a node's slot to the free list. It is the caller's
// responsibility to prove no concurrent reader can still reach the node.
// The only caller is cop's insert, which frees a leaf it allocated but
// never linked into the tree; no variant frees the nodes its delete
// removes (see DESIGN.md).
func (a *Arena) Free(h treenode.Handle) {
	if h == treenode.Nil {
		return
	}
	a.freeMu.Lock()
	a.free = append(a.free, h)
	a.freeMu.Unlock()
}

// At returns the node at h. Safe to call concurrently with Alloc/Free —
// the slab itself never moves; only field contents and free-list
// membership change.
func (a *Arena) At(h treenode.Handle) *treenode.Node {
	return &a.slab[h]
}

// Reset bulk-frees the entire arena for reuse in the next benchmark phase.
func (a *Arena) Reset() {
	atomic.StoreInt32(&a.next, 0)
	a.freeMu.Lock()
	a.free = a.free[:0]
	a.freeMu.Unlock()
}

// Len reports how many slots have ever been handed out by the bump cursor
// (including ones since freed) — used by validators that need to bound
// traversal/recursion.
func (a *Arena) Len() int {
	return int(atomic.LoadInt32(&a.next))
}

// Cap reports the arena's fixed capacity.
func (a *Arena) Cap() int {
	return len(a.slab)
}
