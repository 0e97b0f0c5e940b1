// Package relaxed implements the contention-friendly relaxed AVL core
// mutators only touch the node they land on — insert links
// a new child (or resurrects a tombstone), delete just sets a tombstone
// bit — and a dedicated background maintainer goroutine does all the
// expensive work of physically unlinking tombstoned nodes and
// rebalancing, off the critical path of every reader and writer.
//
// Grounded on avl-contention-friendly.c: a dummy super-root with key -1,
// per-node spinlocks taken only briefly by the maintainer and by writers
// validating their landing point, and the del/rem two-bit scheme that
// lets an in-flight reader detect a node the maintainer superseded mid-
// descent without restarting its traversal.
package relaxed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/bobboyms/ctreebench/pkg/arena"
	"github.com/bobboyms/ctreebench/pkg/treenode"
	"github.com/bobboyms/ctreebench/pkg/tree"
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Tree is the relaxed contention-friendly AVL variant. root is a dummy
// super-root (key -1) whose Right child is the real tree; this avoids
// special-casing rotations and removals that would otherwise touch the
// tree's top.
type Tree struct {
	arena *arena.Arena
	root  treenode.Handle

	maintainerDone chan struct{}
	maintainerStop chan struct{}
}

func New(capacity int) *Tree {
	a := arena.New(capacity)
	dummy := a.Alloc(-1, nil, false)
	a.At(dummy).Left, a.At(dummy).Right = treenode.Nil, treenode.Nil
	return &Tree{arena: a, root: dummy}
}

func (t *Tree) Name() string { return "relaxed-avl-contention-friendly" }

type ThreadData struct {
	tid         int
	Inserts     uint64
	Deletes     uint64
	Lookups     uint64
	Resurrected uint64
}

func NewThreadData(tid int) *ThreadData { return &ThreadData{tid: tid} }
func (td *ThreadData) TID() int         { return td.tid }
func (td *ThreadData) Print() {
	fmt.Printf("TID %3d: lookups %d inserts %d deletes %d resurrected %d\n", td.tid, td.Lookups, td.Inserts, td.Deletes, td.Resurrected)
}
func (td *ThreadData) Add(other tree.ThreadData) {
	o := other.(*ThreadData)
	td.Inserts += o.Inserts
	td.Deletes += o.Deletes
	td.Lookups += o.Lookups
	td.Resurrected += o.Resurrected
}

func (t *Tree) NewThreadData(tid int) tree.ThreadData { return NewThreadData(tid) }

// StartMaintainer launches the background balancing goroutine. It is
// not part of the tree.Tree contract since it has no per-operation
// counterpart; the harness starts exactly one of these per
// relaxed-variant run and stops it before calling Validate.
func (t *Tree) StartMaintainer(period time.Duration) {
	t.maintainerStop = make(chan struct{})
	t.maintainerDone = make(chan struct{})
	go t.maintain(period)
}

// StopMaintainer signals the maintainer to run two more passes over the
// tree and exit, then waits for it — after this returns the tree is safe
// to Validate sequentially.
func (t *Tree) StopMaintainer() {
	if t.maintainerStop == nil {
		return
	}
	close(t.maintainerStop)
	<-t.maintainerDone
}

func (t *Tree) maintain(period time.Duration) {
	defer close(t.maintainerDone)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	extraPasses := 2
	for {
		select {
		case <-t.maintainerStop:
			for i := 0; i < extraPasses; i++ {
				t.maintainPass(t.root)
			}
			return
		case <-ticker.C:
			t.maintainPass(t.root)
		}
	}
}

// maintainPass walks the tree performing physical removal and rotation
// at every node it briefly holds.
func (t *Tree) maintainPass(h treenode.Handle) {
	if h == treenode.Nil {
		return
	}
	a := t.arena
	n := a.At(h)

	t.tryRemoveChild(h, true)
	t.tryRemoveChild(h, false)
	t.tryRotate(h)

	if n.Left != treenode.Nil {
		t.maintainPass(n.Left)
	}
	if n.Right != treenode.Nil {
		t.maintainPass(n.Right)
	}
	t.updateLocalHeight(h)
}

// tryRemoveChild physically unlinks a tombstoned child of h that has at
// most one non-nil grandchild, relinking h directly to it.
func (t *Tree) tryRemoveChild(parent treenode.Handle, left bool) {
	a := t.arena
	pn := a.At(parent)
	if pn.Rem != treenode.RemNone {
		return
	}
	var child treenode.Handle
	if left {
		child = pn.Left
	} else {
		child = pn.Right
	}
	if child == treenode.Nil {
		return
	}
	cn := a.At(child)
	pn.Lock.Lock()
	cn.Lock.Lock()
	defer cn.Lock.Unlock()
	defer pn.Lock.Unlock()

	if cn.Del == treenode.RemNone {
		return
	}
	if cn.Left != treenode.Nil && cn.Right != treenode.Nil {
		return // two live children: leave it for a rotation to absorb first
	}

	var grandchild treenode.Handle
	remMark := treenode.RemByLeftRotation
	if cn.Left != treenode.Nil {
		grandchild = cn.Left
		remMark = treenode.RemNormal
	} else {
		grandchild = cn.Right
	}

	if left {
		pn.Left = grandchild
	} else {
		pn.Right = grandchild
	}
	cn.Rem = remMark
}

// tryRotate applies a single or double rotation at h if its cached
// heights show an imbalance, copying h into a fresh node so in-flight
// readers holding a pointer to the old h still see a consistent subtree.
func (t *Tree) tryRotate(h treenode.Handle) {
	if h == t.root {
		return
	}
	a := t.arena
	n := a.At(h)
	n.Lock.Lock()
	defer n.Lock.Unlock()
	if n.Rem != treenode.RemNone {
		return
	}

	balance := n.LeftH - n.RightH
	if balance >= -1 && balance <= 1 {
		return
	}

	if balance > 1 {
		t.rotateRightAt(h, n)
	} else {
		t.rotateLeftAt(h, n)
	}
}

func (t *Tree) rotateRightAt(h treenode.Handle, n *treenode.Node) {
	a := t.arena
	left := n.Left
	if left == treenode.Nil {
		return
	}
	ln := a.At(left)

	replacement := a.Alloc(n.Key, n.Value, false)
	rn := a.At(replacement)
	rn.Left = ln.Right
	rn.Right = n.Right
	rn.LeftH = ln.RightH
	rn.RightH = n.RightH
	rn.Del = n.Del
	t.updateLocalHeight(replacement)

	newTop := a.Alloc(ln.Key, ln.Value, false)
	tn := a.At(newTop)
	tn.Left = ln.Left
	tn.Right = replacement
	tn.LeftH = ln.LeftH
	tn.RightH = rn.LocalH
	tn.Del = ln.Del
	t.updateLocalHeight(newTop)

	t.relinkParent(h, newTop)
	n.Rem = treenode.RemNormal
}

func (t *Tree) rotateLeftAt(h treenode.Handle, n *treenode.Node) {
	a := t.arena
	right := n.Right
	if right == treenode.Nil {
		return
	}
	rn := a.At(right)

	replacement := a.Alloc(n.Key, n.Value, false)
	rep := a.At(replacement)
	rep.Left = n.Left
	rep.Right = rn.Left
	rep.LeftH = n.LeftH
	rep.RightH = rn.LeftH
	rep.Del = n.Del
	t.updateLocalHeight(replacement)

	newTop := a.Alloc(rn.Key, rn.Value, false)
	tn := a.At(newTop)
	tn.Left = replacement
	tn.Right = rn.Right
	tn.LeftH = rep.LocalH
	tn.RightH = rn.RightH
	tn.Del = rn.Del
	t.updateLocalHeight(newTop)

	t.relinkParent(h, newTop)
	n.Rem = treenode.RemByLeftRotation
}

// relinkParent finds old's parent by a fresh descent from the super-root
// and retargets its link to replacement. The maintainer runs one pass at
// a time so this race is benign: at worst a concurrent structural change
// delays this rotation to the next pass.
func (t *Tree) relinkParent(old, replacement treenode.Handle) {
	a := t.arena
	parent := t.root
	curr := a.At(parent).Right
	for curr != treenode.Nil && curr != old {
		if a.At(curr).Key > a.At(old).Key {
			parent = curr
			curr = a.At(curr).Left
		} else {
			parent = curr
			curr = a.At(curr).Right
		}
	}
	if curr != old {
		return
	}
	pn := a.At(parent)
	pn.Lock.Lock()
	defer pn.Lock.Unlock()
	if pn.Left == old {
		pn.Left = replacement
	} else if pn.Right == old {
		pn.Right = replacement
	} else if parent == t.root {
		pn.Right = replacement
	}
}

func (t *Tree) updateLocalHeight(h treenode.Handle) {
	a := t.arena
	n := a.At(h)
	if n.Left != treenode.Nil {
		n.LeftH = a.At(n.Left).LocalH + 1
	} else {
		n.LeftH = 0
	}
	if n.Right != treenode.Nil {
		n.RightH = a.At(n.Right).LocalH + 1
	} else {
		n.RightH = 0
	}
	if n.LeftH > n.RightH {
		n.LocalH = n.LeftH
	} else {
		n.LocalH = n.RightH
	}
}

// follow re-routes a reader around a node the maintainer has physically
// removed, per the rem convention above.
func follow(a *arena.Arena, h treenode.Handle) treenode.Handle {
	for h != treenode.Nil && a.At(h).Rem != treenode.RemNone {
		if a.At(h).Rem == treenode.RemByLeftRotation {
			h = a.At(h).Right
		} else {
			h = a.At(h).Left
		}
	}
	return h
}

func (t *Tree) Lookup(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Lookups++
	a := t.arena
	curr := follow(a, t.root)
	curr = a.At(curr).Right
	for curr != treenode.Nil {
		curr = follow(a, curr)
		if curr == treenode.Nil {
			return false
		}
		n := a.At(curr)
		if n.Key == key {
			return n.Del == treenode.RemNone
		}
		if key < n.Key {
			curr = n.Left
		} else {
			curr = n.Right
		}
	}
	return false
}

// Insert descends to the landing position, locks the parent, re-validates
// it is still on the path and not rem'd, and either resurrects a
// tombstone or links in a new node.
func (t *Tree) Insert(tdi tree.ThreadData, key types.Key, value types.Value) bool {
	td := tdi.(*ThreadData)
	td.Inserts++
	a := t.arena

	for {
		parent := t.root
		curr := a.At(parent).Right
		for curr != treenode.Nil {
			resolved := follow(a, curr)
			if resolved != curr {
				curr = resolved
				continue
			}
			n := a.At(curr)
			if n.Key == key {
				parent = curr
				break
			}
			parent = curr
			if key < n.Key {
				curr = n.Left
			} else {
				curr = n.Right
			}
		}

		pn := a.At(parent)
		pn.Lock.Lock()
		if pn.Rem != treenode.RemNone {
			pn.Lock.Unlock()
			continue
		}

		if parent != t.root && pn.Key == key {
			resurrected := pn.Del != treenode.RemNone
			pn.Del = treenode.RemNone
			pn.Value = value
			pn.Lock.Unlock()
			if resurrected {
				td.Resurrected++
			}
			return resurrected
		}

		left := parent != t.root && key < pn.Key
		var existing treenode.Handle
		if left {
			existing = pn.Left
		} else {
			existing = pn.Right
		}
		if existing != treenode.Nil {
			pn.Lock.Unlock()
			continue // lost the race to a concurrent insert; retry the descent
		}

		h := a.Alloc(key, value, false)
		if left {
			pn.Left = h
		} else {
			pn.Right = h
		}
		pn.Lock.Unlock()
		return true
	}
}

// Delete descends to the target and tombstones it; the maintainer does
// the physical unlinking later.
func (t *Tree) Delete(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Deletes++
	a := t.arena

	curr := follow(a, a.At(t.root).Right)
	for curr != treenode.Nil {
		n := a.At(curr)
		if n.Key == key {
			n.Lock.Lock()
			already := n.Del != treenode.RemNone
			n.Del = treenode.RemNormal
			n.Lock.Unlock()
			return !already
		}
		if key < n.Key {
			curr = follow(a, n.Left)
		} else {
			curr = follow(a, n.Right)
		}
	}
	return false
}

// Validate checks BST ordering over every node reachable from the
// super-root, tombstoned ones included. Call only after StopMaintainer.
func (t *Tree) Validate() bool {
	a := t.arena
	root := a.At(t.root).Right
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
