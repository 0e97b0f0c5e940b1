// Package citrus implements the naive internal-BST baseline (a
// supplemented feature alongside the six named concurrency cores):
// readers
// walk the tree with no synchronization at all, and writers lock-couple
// along the path to their landing point, validating the parent/child
// relationship and a "marked" logical-deletion bit before committing.
//
// Grounded on bst-citrus-mine.c. The original additionally wraps reads in
// a userspace-RCU epoch (urcu_read_lock/unlock) so a concurrent delete's
// physical unlink can be safely deferred; this module carries no RCU
// library (none of the example repos in the pack vendor one), so reads
// here are genuinely unsynchronized raw pointer chasing, same hazard the
// original's RCU read-section exists to close. This is a deliberate
// baseline-only simplification — see DESIGN.md.
package citrus

import (
	"fmt"
	"math/rand"

	"github.com/bobboyms/ctreebench/pkg/arena"
	"github.com/bobboyms/ctreebench/pkg/spinlock"
	"github.com/bobboyms/ctreebench/pkg/treenode"
	"github.com/bobboyms/ctreebench/pkg/tree"
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Tree is the naive internal-BST baseline: an ordinary (non-external)
// binary search tree with a dummy root whose left child is the real
// root, so inserting/removing the topmost key never needs special-
// casing.
type Tree struct {
	arena *arena.Arena
	dummy treenode.Handle
	gl    spinlock.Spinlock // not taken by any operation; writers lock the dummy's own per-node Lock
}

func New(capacity int) *Tree {
	a := arena.New(capacity)
	dummy := a.Alloc(0, nil, false)
	a.At(dummy).Left, a.At(dummy).Right = treenode.Nil, treenode.Nil
	return &Tree{arena: a, dummy: dummy}
}

func (t *Tree) Name() string { return "citrus-baseline" }

type ThreadData struct {
	tid      int
	Lookups  uint64
	Inserts  uint64
	Deletes  uint64
	Retries  uint64
}

func NewThreadData(tid int) *ThreadData { return &ThreadData{tid: tid} }
func (td *ThreadData) TID() int         { return td.tid }
func (td *ThreadData) Print() {
	fmt.Printf("TID %3d: lookups %d inserts %d deletes %d retries %d\n", td.tid, td.Lookups, td.Inserts, td.Deletes, td.Retries)
}
func (td *ThreadData) Add(other tree.ThreadData) {
	o := other.(*ThreadData)
	td.Lookups += o.Lookups
	td.Inserts += o.Inserts
	td.Deletes += o.Deletes
	td.Retries += o.Retries
}

func (t *Tree) NewThreadData(tid int) tree.ThreadData { return NewThreadData(tid) }

// traverseWithDirection walks unsynchronized from the dummy root,
// returning the last node visited (prev), the node matching key if
// found (curr, else Nil), and which child direction curr hangs off prev
// (0 = left, 1 = right).
func (t *Tree) traverseWithDirection(key types.Key) (prev, curr treenode.Handle, dir int) {
	a := t.arena
	prev = t.dummy
	curr = a.At(prev).Left
	for curr != treenode.Nil {
		ck := a.At(curr).Key
		if ck == key {
			return prev, curr, dir
		}
		prev = curr
		if ck > key {
			curr = a.At(curr).Left
			dir = 0
		} else {
			curr = a.At(curr).Right
			dir = 1
		}
	}
	return prev, treenode.Nil, dir
}

func validate(a *arena.Arena, prev, curr treenode.Handle, dir int) bool {
	pn := a.At(prev)
	if pn.Del != treenode.RemNone {
		return false
	}
	var child treenode.Handle
	if dir == 0 {
		child = pn.Left
	} else {
		child = pn.Right
	}
	if child != curr {
		return false
	}
	if curr != treenode.Nil && a.At(curr).Del != treenode.RemNone {
		return false
	}
	return true
}

func (t *Tree) Lookup(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Lookups++
	_, curr, _ := t.traverseWithDirection(key)
	return curr != treenode.Nil
}

func (t *Tree) Insert(tdi tree.ThreadData, key types.Key, value types.Value) bool {
	td := tdi.(*ThreadData)
	td.Inserts++
	a := t.arena
	for {
		prev, curr, dir := t.traverseWithDirection(key)
		if curr != treenode.Nil {
			return false
		}

		pn := a.At(prev)
		pn.Lock.Lock()
		if !validate(a, prev, curr, dir) {
			pn.Lock.Unlock()
			td.Retries++
			continue
		}

		h := a.Alloc(key, value, false)
		if dir == 0 {
			pn.Left = h
		} else {
			pn.Right = h
		}
		pn.Lock.Unlock()
		return true
	}
}

// Delete splices out a 0- or 1-child node directly; a 2-child node is
// replaced by its in-order successor's key/value and the (0- or 1-child)
// successor is then spliced out in its own right. This is a direct
// simplification of the original's lock-coupled successor walk (see the
// package doc). A 0- or 1-child delete locks the target and its parent;
// a 2-child delete also locks the successor and, when it is not the
// target's own child, the successor's parent.
func (t *Tree) Delete(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Deletes++
	a := t.arena

	for {
		prev, curr, dir := t.traverseWithDirection(key)
		if curr == treenode.Nil {
			return false
		}

		pn := a.At(prev)
		cn := a.At(curr)
		pn.Lock.Lock()
		cn.Lock.Lock()
		if !validate(a, prev, curr, dir) {
			cn.Lock.Unlock()
			pn.Lock.Unlock()
			td.Retries++
			continue
		}

		if cn.Left == treenode.Nil {
			cn.Del = treenode.RemNormal
			setChild(a, prev, dir, cn.Right)
			cn.Lock.Unlock()
			pn.Lock.Unlock()
			return true
		}
		if cn.Right == treenode.Nil {
			cn.Del = treenode.RemNormal
			setChild(a, prev, dir, cn.Left)
			cn.Lock.Unlock()
			pn.Lock.Unlock()
			return true
		}

		succParent := curr
		succ := cn.Right
		for a.At(succ).Left != treenode.Nil {
			succParent = succ
			succ = a.At(succ).Left
		}
		sn := a.At(succ)
		if succParent != curr {
			a.At(succParent).Lock.Lock()
		}
		sn.Lock.Lock()

		cn.Key, cn.Value = sn.Key, sn.Value
		sn.Del = treenode.RemNormal
		if succParent == curr {
			cn.Right = sn.Right
		} else {
			a.At(succParent).Left = sn.Right
		}

		sn.Lock.Unlock()
		if succParent != curr {
			a.At(succParent).Lock.Unlock()
		}
		cn.Lock.Unlock()
		pn.Lock.Unlock()
		return true
	}
}

func setChild(a *arena.Arena, parent treenode.Handle, dir int, child treenode.Handle) {
	if dir == 0 {
		a.At(parent).Left = child
	} else {
		a.At(parent).Right = child
	}
}

// Validate checks plain BST ordering over non-tombstoned nodes.
func (t *Tree) Validate() bool {
	a := t.arena
	root := a.At(t.dummy).Left
	if root == treenode.Nil {
		return true
	}
	return validateRec(a, root, nil, nil)
}

func validateRec(a *arena.Arena, h treenode.Handle, lo, hi *types.Key) bool {
	if h == treenode.Nil {
		return true
	}
	n := a.At(h)
	if lo != nil && n.Key < *lo {
		return false
	}
	if hi != nil && n.Key > *hi {
		return false
	}
	key := n.Key
	return validateRec(a, n.Left, lo, &key) && validateRec(a, n.Right, &key, hi)
}

func (t *Tree) Warmup(n int, maxKey types.Key, seed int64, force bool) (int, error) {
	rng := rand.New(rand.NewSource(seed))
	td := NewThreadData(-1)
	inserted := 0
	budget := n * 4
	if force {
		budget = n * 64
	}
	for attempts := 0; inserted < n && attempts < budget; attempts++ {
		key := types.Key(rng.Int63n(int64(maxKey)))
		if t.Insert(td, key, nil) {
			inserted++
		}
	}
	return inserted, nil
}
