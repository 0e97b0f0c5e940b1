// Package cop implements the lookup-verification concurrency scheme:
// readers traverse the external-leaf red-black tree unsynchronized, then
// validate the reached leaf against its prev/succ neighbors before
// trusting the answer. It is grounded directly on the benchmark suite's
// rbt_links_bu_ext_cop.c (bottom-up CLRS fixup, parent-linked external
// leaves, prev/succ ordered-leaf list).
//
// Real hardware transactional memory gives a concurrent writer isolation
// for free; this module has none (see pkg/htmtx), so writes here always
// commit their structural mutation while holding the tree's global
// spinlock — reads stay genuinely lock-free and optimistic. See
// DESIGN.md for the full rationale.
package cop

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/bobboyms/ctreebench/pkg/arena"
	"github.com/bobboyms/ctreebench/pkg/htmtx"
	"github.com/bobboyms/ctreebench/pkg/treenode"
	"github.com/bobboyms/ctreebench/pkg/tree"
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Tree is the cop-external variant: a red-black tree in external-leaf
// layout with prev/succ ordered-leaf links for boundary validation.
type Tree struct {
	arena  *arena.Arena
	root   atomic.Int32 // treenode.Handle; treenode.Nil means empty
	gl     htmtx.GlobalLock
	budget htmtx.RetryBudget
}

// New creates an empty cop-external tree backed by an arena with the
// given node capacity.
func New(capacity int) *Tree {
	t := &Tree{
		arena:  arena.New(capacity),
		budget: htmtx.DefaultRetryBudget(),
	}
	t.root.Store(int32(treenode.Nil))
	return t
}

func (t *Tree) Name() string { return "cop-external" }

func (t *Tree) loadRoot() treenode.Handle { return treenode.Handle(t.root.Load()) }
func (t *Tree) storeRoot(h treenode.Handle) { t.root.Store(int32(h)) }

// ThreadData tracks the per-thread counters the original tdata_t struct
// carries: transaction attempts, aborts (split out for validation
// failures specifically), and fallback-lock acquisitions.
type ThreadData struct {
	tid                int
	TxStarts           uint64
	TxAborts           uint64
	TxAbortsValidation uint64
	LockAcqs           uint64
}

func NewThreadData(tid int) *ThreadData { return &ThreadData{tid: tid} }

func (td *ThreadData) TID() int { return td.tid }

func (td *ThreadData) Print() {
	fmt.Printf("TID %3d: %d %d %d ( %d )\n", td.tid, td.TxStarts, td.TxAborts, td.TxAbortsValidation, td.LockAcqs)
}

func (td *ThreadData) Add(other tree.ThreadData) {
	o := other.(*ThreadData)
	td.TxStarts += o.TxStarts
	td.TxAborts += o.TxAborts
	td.TxAbortsValidation += o.TxAbortsValidation
	td.LockAcqs += o.LockAcqs
}

func (t *Tree) NewThreadData(tid int) tree.ThreadData { return NewThreadData(tid) }

// traverse performs the unsynchronized root-to-leaf walk. It may land
// on a stale or dead leaf; the caller must validate.
func (t *Tree) traverse(key types.Key) treenode.Handle {
	curr := t.loadRoot()
	for curr != treenode.Nil {
		n := t.arena.At(curr)
		if n.Leaf {
			break
		}
		if key <= n.Key {
			curr = n.Left
		} else {
			curr = n.Right
		}
	}
	return curr
}

// validateLeaf checks that the reached leaf is non-null and live, is
// actually a leaf, and its key (or prev/succ boundary) agrees with key.
func (t *Tree) validateLeaf(place treenode.Handle, key types.Key) htmtx.AbortCode {
	if place == treenode.Nil {
		return htmtx.AbortValidation
	}
	n := t.arena.At(place)
	if atomic.LoadUint32(&n.Live) == 0 {
		return htmtx.AbortValidation
	}
	if !n.Leaf {
		return htmtx.AbortValidation
	}
	if n.Key == key {
		return htmtx.AbortNone
	}
	if key < n.Key {
		if n.Prev != treenode.Nil && key <= t.arena.At(n.Prev).Key {
			return htmtx.AbortValidation
		}
	} else if n.Succ != treenode.Nil && key >= t.arena.At(n.Succ).Key {
		return htmtx.AbortValidation
	}
	return htmtx.AbortNone
}

// Lookup walks the tree lock-free and validates the leaf it lands on,
// retrying until the retry budget is exhausted and falling back to the
// global lock.
func (t *Tree) Lookup(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	for attempt := 0; ; attempt++ {
		if t.budget.Exhausted(htmtx.AbortValidation, attempt) {
			td.LockAcqs++
			t.gl.Lock()
			place := t.traverse(key)
			ret := place != treenode.Nil && t.arena.At(place).Key == key
			t.gl.Unlock()
			return ret
		}

		place := t.traverse(key)
		for t.gl.Held() {
			// spin until the fallback lock is free
		}

		td.TxStarts++
		if t.gl.CheckAbort() == htmtx.AbortGLTaken {
			td.TxAborts++
			continue
		}
		if t.validateLeaf(place, key) != htmtx.AbortNone {
			td.TxAborts++
			td.TxAbortsValidation++
			continue
		}
		return place != treenode.Nil && t.arena.At(place).Key == key
	}
}

// Insert performs an optimistic traversal and validation, then commits
// under the global fallback lock (see the
// package doc for why the commit always takes the real lock here).
func (t *Tree) Insert(tdi tree.ThreadData, key types.Key, value types.Value) bool {
	td := tdi.(*ThreadData)
	for attempt := 0; ; attempt++ {
		place := t.traverse(key)
		for t.gl.Held() {
		}

		td.TxStarts++
		if t.gl.CheckAbort() == htmtx.AbortGLTaken {
			td.TxAborts++
			if t.budget.Exhausted(htmtx.AbortGLTaken, attempt) {
				td.LockAcqs++
				return t.insertLocked(key, value)
			}
			continue
		}
		if place != treenode.Nil && t.validateLeaf(place, key) != htmtx.AbortNone {
			td.TxAborts++
			td.TxAbortsValidation++
			if t.budget.Exhausted(htmtx.AbortValidation, attempt) {
				td.LockAcqs++
				return t.insertLocked(key, value)
			}
			continue
		}

		td.LockAcqs++
		return t.insertLocked(key, value)
	}
}

// insertLocked performs the real structural mutation while holding the
// global lock: re-traverses (state may have changed), then replaces the
// external leaf with a red internal node and two leaves, fixing up
// red-red violations bottom-up.
func (t *Tree) insertLocked(key types.Key, value types.Value) bool {
	t.gl.Lock()
	defer t.gl.Unlock()

	place := t.traverse(key)

	newLeaf := t.arena.Alloc(key, value, true)
	t.arena.At(newLeaf).Color = treenode.Black
	atomic.StoreUint32(&t.arena.At(newLeaf).Live, 1)

	if place == treenode.Nil {
		t.storeRoot(newLeaf)
		return true
	}
	if t.arena.At(place).Key == key {
		t.arena.Free(newLeaf)
		return false
	}

	otherLeaf := t.arena.Alloc(0, nil, true)
	t.replaceExternal(place, newLeaf, otherLeaf)
	t.insertFixup(place)
	return true
}

// replaceExternal expands leaf `root` (handle) into a red internal node
// with children newLeaf and a throwaway sibling, keeping whichever of the
// two carries the smaller key on the left — the external-leaf insert,
// with prev/succ relinking.
func (t *Tree) replaceExternal(root, newLeaf, spare treenode.Handle) {
	a := t.arena
	r := a.At(root)
	nl := a.At(newLeaf)

	left, right := newLeaf, spare
	*a.At(spare) = *a.At(root) // spare becomes a copy of the old leaf (value/prev/succ carried below, overwritten)
	oldKey := r.Key
	oldValue := r.Value
	oldPrev := r.Prev
	oldSucc := r.Succ

	if oldKey > nl.Key {
		// old leaf's key is larger: new leaf goes left, old value+key on the right (in spare)
		a.At(spare).Key = oldKey
		a.At(spare).Value = oldValue
	} else {
		left, right = spare, newLeaf
		a.At(spare).Key = oldKey
		a.At(spare).Value = oldValue
	}

	r.Left, r.Right = left, right
	r.Color = treenode.Red
	r.Leaf = false
	a.At(left).Color = treenode.Black
	a.At(right).Color = treenode.Black
	atomic.StoreUint32(&a.At(left).Live, 1)
	atomic.StoreUint32(&a.At(right).Live, 1)
	a.At(left).Parent = root
	a.At(right).Parent = root

	if oldPrev != treenode.Nil {
		a.At(oldPrev).Succ = left
	}
	if oldSucc != treenode.Nil {
		a.At(oldSucc).Prev = right
	}
	a.At(left).Prev = oldPrev
	a.At(left).Succ = right
	a.At(right).Prev = left
	a.At(right).Succ = oldSucc

	r.Prev, r.Succ = treenode.Nil, treenode.Nil
	if r.Key > nl.Key {
		r.Key = nl.Key
	} else {
		r.Key = a.At(left).Key
	}
}

// insertFixup is the bottom-up RB fixup after an external-leaf insert,
// operating via parent pointers exactly as the CLRS algorithm does.
func (t *Tree) insertFixup(z treenode.Handle) {
	a := t.arena
	for {
		p := a.At(z).Parent
		if p == treenode.Nil || a.At(p).Color == treenode.Black {
			break
		}
		gp := a.At(p).Parent
		if gp == treenode.Nil {
			break
		}
		if p == a.At(gp).Left {
			uncle := a.At(gp).Right
			if uncle != treenode.Nil && a.At(uncle).Color == treenode.Red {
				a.At(p).Color = treenode.Black
				a.At(uncle).Color = treenode.Black
				a.At(gp).Color = treenode.Red
				z = gp
				continue
			}
			if z == a.At(p).Right {
				z = p
				t.rotateLeft(z)
				p = a.At(z).Parent
				gp = a.At(p).Parent
			}
			a.At(p).Color = treenode.Black
			a.At(gp).Color = treenode.Red
			t.rotateRight(gp)
		} else {
			uncle := a.At(gp).Left
			if uncle != treenode.Nil && a.At(uncle).Color == treenode.Red {
				a.At(p).Color = treenode.Black
				a.At(uncle).Color = treenode.Black
				a.At(gp).Color = treenode.Red
				z = gp
				continue
			}
			if z == a.At(p).Left {
				z = p
				t.rotateRight(z)
				p = a.At(z).Parent
				gp = a.At(p).Parent
			}
			a.At(p).Color = treenode.Black
			a.At(gp).Color = treenode.Red
			t.rotateLeft(gp)
		}
		break
	}
	root := t.loadRoot()
	if a.At(root).Color == treenode.Red {
		a.At(root).Color = treenode.Black
	}
}

// rotateLeft/rotateRight are parent-pointer-maintaining rotations (unlike
// pkg/rotate's handle-only primitives, this variant needs Parent kept
// consistent for the CLRS-style fixups above) — grounded directly on
// rbt_links_bu_ext_cop.c's rbt_rotate_left/right.
func (t *Tree) rotateLeft(x treenode.Handle) {
	a := t.arena
	xn := a.At(x)
	y := xn.Right
	yn := a.At(y)

	xn.Right = yn.Left
	if yn.Left != treenode.Nil {
		a.At(yn.Left).Parent = x
	}
	yn.Parent = xn.Parent
	if xn.Parent == treenode.Nil {
		t.storeRoot(y)
	} else if x == a.At(xn.Parent).Left {
		a.At(xn.Parent).Left = y
	} else {
		a.At(xn.Parent).Right = y
	}
	yn.Left = x
	xn.Parent = y
}

func (t *Tree) rotateRight(y treenode.Handle) {
	a := t.arena
	yn := a.At(y)
	x := yn.Left
	xn := a.At(x)

	yn.Left = xn.Right
	if xn.Right != treenode.Nil {
		a.At(xn.Right).Parent = y
	}
	xn.Parent = yn.Parent
	if yn.Parent == treenode.Nil {
		t.storeRoot(x)
	} else if y == a.At(yn.Parent).Right {
		a.At(yn.Parent).Right = x
	} else {
		a.At(yn.Parent).Left = x
	}
	xn.Right = y
	yn.Parent = x
}

// Delete mirrors Insert's optimistic-traversal-then-global-lock-commit
// shape.
func (t *Tree) Delete(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	for attempt := 0; ; attempt++ {
		place := t.traverse(key)
		for t.gl.Held() {
		}

		td.TxStarts++
		if t.gl.CheckAbort() == htmtx.AbortGLTaken {
			td.TxAborts++
			if t.budget.Exhausted(htmtx.AbortGLTaken, attempt) {
				td.LockAcqs++
				return t.deleteLocked(key)
			}
			continue
		}
		if place != treenode.Nil && t.validateLeaf(place, key) != htmtx.AbortNone {
			td.TxAborts++
			td.TxAbortsValidation++
			if t.budget.Exhausted(htmtx.AbortValidation, attempt) {
				td.LockAcqs++
				return t.deleteLocked(key)
			}
			continue
		}

		td.LockAcqs++
		return t.deleteLocked(key)
	}
}

// deleteLocked splices leaf z (plus its internal parent) out of the tree
// and runs the RB delete fixup, under the global lock.
func (t *Tree) deleteLocked(key types.Key) bool {
	t.gl.Lock()
	defer t.gl.Unlock()

	a := t.arena
	z := t.traverse(key)
	if z == treenode.Nil || a.At(z).Key != key {
		return false
	}

	if z == t.loadRoot() {
		t.storeRoot(treenode.Nil)
		atomic.StoreUint32(&a.At(z).Live, 0)
		return true
	}

	zn := a.At(z)
	p := zn.Parent
	pn := a.At(p)
	deletedWasBlack := pn.Color == treenode.Black

	var sibling treenode.Handle
	if z == pn.Left {
		sibling = pn.Right
	} else {
		sibling = pn.Left
	}
	sn := a.At(sibling)

	gp := pn.Parent
	if gp == treenode.Nil {
		sn.Parent = treenode.Nil
		t.storeRoot(sibling)
		if sn.Leaf {
			sn.Prev, sn.Succ = treenode.Nil, treenode.Nil
		} else {
			if z == pn.Left {
				a.At(sn.Left).Prev = treenode.Nil
			} else {
				a.At(sn.Right).Succ = treenode.Nil
			}
		}
	} else {
		gpn := a.At(gp)
		if p == gpn.Left {
			gpn.Left = sibling
		} else {
			gpn.Right = sibling
		}
		sn.Parent = gp
		if z == pn.Left {
			if sn.Leaf {
				sn.Prev = zn.Prev
				if zn.Prev != treenode.Nil {
					a.At(zn.Prev).Succ = sibling
				}
			} else {
				a.At(sn.Left).Prev = zn.Prev
				if zn.Prev != treenode.Nil {
					a.At(zn.Prev).Succ = sn.Left
				}
			}
		} else {
			if sn.Leaf {
				sn.Succ = zn.Succ
				if zn.Succ != treenode.Nil {
					a.At(zn.Succ).Prev = sibling
				}
			} else {
				a.At(sn.Right).Succ = zn.Succ
				if zn.Succ != treenode.Nil {
					a.At(zn.Succ).Prev = sn.Right
				}
			}
		}
	}

	// z and p are marked dead, not freed: a concurrent lock-free reader may
	// still hold their handles from an in-flight traverse. Their slots are
	// not reused.
	atomic.StoreUint32(&zn.Live, 0)
	atomic.StoreUint32(&pn.Live, 0)

	if deletedWasBlack {
		t.deleteFixup(sibling)
	}
	return true
}

// deleteFixup is the classic four-case RB delete fixup, operating on
// the node that inherited the deficit.
func (t *Tree) deleteFixup(x treenode.Handle) {
	a := t.arena
	for x != t.loadRoot() && (x == treenode.Nil || a.At(x).Color == treenode.Black) {
		xn := a.At(x)
		p := xn.Parent
		pn := a.At(p)
		if x == pn.Left {
			w := pn.Right
			wn := a.At(w)
			if wn.Color == treenode.Red {
				wn.Color = treenode.Black
				pn.Color = treenode.Red
				t.rotateLeft(p)
				w = pn.Right
				wn = a.At(w)
			}
			if isBlack(a, wn.Left) && isBlack(a, wn.Right) {
				wn.Color = treenode.Red
				x = p
				continue
			}
			if isBlack(a, wn.Right) {
				a.At(wn.Left).Color = treenode.Black
				wn.Color = treenode.Red
				t.rotateRight(w)
				w = pn.Right
				wn = a.At(w)
			}
			wn.Color = pn.Color
			pn.Color = treenode.Black
			a.At(wn.Right).Color = treenode.Black
			t.rotateLeft(p)
			x = t.loadRoot()
		} else {
			w := pn.Left
			wn := a.At(w)
			if wn.Color == treenode.Red {
				wn.Color = treenode.Black
				pn.Color = treenode.Red
				t.rotateRight(p)
				w = pn.Left
				wn = a.At(w)
			}
			if isBlack(a, wn.Right) && isBlack(a, wn.Left) {
				wn.Color = treenode.Red
				x = p
				continue
			}
			if isBlack(a, wn.Left) {
				a.At(wn.Right).Color = treenode.Black
				wn.Color = treenode.Red
				t.rotateLeft(w)
				w = pn.Left
				wn = a.At(w)
			}
			wn.Color = pn.Color
			pn.Color = treenode.Black
			a.At(wn.Left).Color = treenode.Black
			t.rotateRight(p)
			x = t.loadRoot()
		}
	}
	if x != treenode.Nil {
		a.At(x).Color = treenode.Black
	}
}

func isBlack(a *arena.Arena, h treenode.Handle) bool {
	return h == treenode.Nil || a.At(h).Color == treenode.Black
}

// Validate checks the BST property, RB coloring, and black-height
// balance; it also supplements the original's bh/total_paths
// diagnostics, returned here via a structured report for tests.
type ValidationReport struct {
	OK               bool
	TotalNodes       int
	RedNodes         int
	BlackNodes       int
	RedRedViolations int
	BSTViolations    int
	BlackHeightDiffs int
}

func (t *Tree) Validate() bool {
	return t.ValidateReport().OK
}

func (t *Tree) ValidateReport() ValidationReport {
	var rep ValidationReport
	root := t.loadRoot()
	if root == treenode.Nil {
		rep.OK = true
		return rep
	}
	bh := -1
	t.validateRec(root, 0, 0, &bh, &rep)
	rep.OK = rep.RedRedViolations == 0 && rep.BSTViolations == 0 && rep.BlackHeightDiffs == 0
	return rep
}

func (t *Tree) validateRec(h treenode.Handle, blackDepth int, parentKeyBound types.Key, bh *int, rep *ValidationReport) {
	a := t.arena
	n := a.At(h)
	rep.TotalNodes++
	if n.Color == treenode.Red {
		rep.RedNodes++
	} else {
		rep.BlackNodes++
		blackDepth++
	}

	if n.Leaf {
		if *bh == -1 {
			*bh = blackDepth
		} else if *bh != blackDepth {
			rep.BlackHeightDiffs++
		}
		return
	}

	if n.Color == treenode.Red {
		if n.Left != treenode.Nil && a.At(n.Left).Color == treenode.Red {
			rep.RedRedViolations++
		}
		if n.Right != treenode.Nil && a.At(n.Right).Color == treenode.Red {
			rep.RedRedViolations++
		}
	}

	if n.Left != treenode.Nil && a.At(n.Left).Key > n.Key {
		rep.BSTViolations++
	}
	if n.Right != treenode.Nil && a.At(n.Right).Key < n.Key {
		rep.BSTViolations++
	}

	if n.Left != treenode.Nil {
		t.validateRec(n.Left, blackDepth, n.Key, bh, rep)
	}
	if n.Right != treenode.Nil {
		t.validateRec(n.Right, blackDepth, n.Key, bh, rep)
	}
}

// Warmup single-threadedly populates the tree.
func (t *Tree) Warmup(n int, maxKey types.Key, seed int64, force bool) (int, error) {
	rng := rand.New(rand.NewSource(seed))
	inserted := 0
	budget := n * 4
	if force {
		budget = n * 64
	}
	for attempts := 0; inserted < n && attempts < budget; attempts++ {
		key := types.Key(rng.Int63n(int64(maxKey)))
		if t.insertLocked(key, nil) {
			inserted++
		}
	}
	return inserted, nil
}
