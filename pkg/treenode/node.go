// Package treenode defines the single node representation shared by every
// tree variant in this module. Each variant only touches the subset of
// fields its concurrency algorithm needs — a fine-grained-lock RB tree never
// reads Version, a versioned-window tree never touches Lock, and so on —
// but allocation, padding, and handle indirection are written exactly once.
package treenode

import (
	"github.com/bobboyms/ctreebench/pkg/spinlock"
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Handle is a stable index into an arena's node slab. It replaces raw
// pointers for every inter-node reference (child, parent, prev/succ) so the
// tree's graph never aliases the Go garbage collector's pointer graph —
// see DESIGN.md's note on arena-indexed nodes.
type Handle int32

// Nil is the handle equivalent of a null child/parent/prev/succ link.
const Nil Handle = -1

// Color is the red-black color of a node. The zero value is Red so that a
// freshly spliced-in external leaf — which external-layout inserts always
// create red — needs no explicit initialization.
type Color uint8

const (
	Red Color = iota
	Black
)

// RemState records the relaxed variant's two-valued physical-removal
// marker: a reader that hits Rem != RemNone mid-descent
// knows the node was superseded by the maintainer and how to re-route.
type RemState uint32

const (
	RemNone RemState = iota
	RemNormal
	RemByLeftRotation
)

// Node is the cache-line-padded representation backing every variant.
// Fields are grouped by the concurrency scheme that owns them; see the
// field-level comments for which variants read/write what.
type Node struct {
	Key   types.Key
	Value types.Value

	Left, Right Handle
	Parent      Handle // back-link; only cop maintains this during rotations/splices

	Leaf bool // external-layout variants: true iff this node carries a user key

	Color Color // RB variants

	Height        int32 // AVL full height (sequential/fg-htm AVL windows)
	LeftH, RightH int32 // relaxed variant's cached per-subtree heights
	LocalH        int32 // relaxed variant's own cached height

	Lock spinlock.Spinlock // fgspinlock/citrus/relaxed per-node latch

	Version uint64 // fghtm per-node version counter, accessed via sync/atomic

	Del RemState // relaxed/citrus: logical tombstone (lock-guarded access)
	Rem RemState // relaxed variant: physical-removal marker (lock-guarded access)

	Live uint32 // cop variant: atomic bool, leaf liveness

	Prev, Succ Handle // cop variant: ordered-leaf doubly-linked list

	// Padding keeps a contended node's lock/version/del/rem fields from
	// sharing a cache line with an unrelated node packed next to it in
	// the arena slab.
	_ [24]byte
}

// Child returns the handle of the node's child in the given direction
// (0 = left, 1 = right). Shared by every rotation primitive in pkg/rotate.
func (n *Node) Child(dir int) Handle {
	if dir == 0 {
		return n.Left
	}
	return n.Right
}

// SetChild sets the node's child in the given direction.
func (n *Node) SetChild(dir int, h Handle) {
	if dir == 0 {
		n.Left = h
	} else {
		n.Right = h
	}
}
