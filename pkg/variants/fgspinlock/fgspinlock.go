// Package fgspinlock implements the fine-grained lock core over the
// top-down Tarjan RB descent: every node carries its
// own spinlock, acquired hand-over-hand during lookups and held in a
// sliding window of {grandgrandparent, grandparent, parent, current}
// during writes, with the tree's global spinlock guarding only the brief
// span where that window still includes the root.
//
// Grounded directly on rbt_links_td_ext_fg_spinlock.c's
// _rbt_lookup_helper and _rbt_insert_helper_fg.
package fgspinlock

import (
	"fmt"
	"math/rand"

	"github.com/bobboyms/ctreebench/pkg/arena"
	"github.com/bobboyms/ctreebench/pkg/rotate"
	"github.com/bobboyms/ctreebench/pkg/spinlock"
	"github.com/bobboyms/ctreebench/pkg/treenode"
	"github.com/bobboyms/ctreebench/pkg/tree"
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Tree is the fine-grained per-node-spinlock variant.
type Tree struct {
	arena  *arena.Arena
	gl     spinlock.Spinlock
	root   treenode.Handle // only read/written while gl or root's own lock is held
}

func New(capacity int) *Tree {
	return &Tree{arena: arena.New(capacity), root: treenode.Nil}
}

func (t *Tree) Name() string { return "fg-spinlock-tarjan" }

type ThreadData struct {
	tid      int
	Lookups  uint64
	Inserts  uint64
	Deletes  uint64
	LockAcqs uint64
}

func NewThreadData(tid int) *ThreadData { return &ThreadData{tid: tid} }
func (td *ThreadData) TID() int         { return td.tid }
func (td *ThreadData) Print() {
	fmt.Printf("TID %3d: lookups %d inserts %d deletes %d locks %d\n", td.tid, td.Lookups, td.Inserts, td.Deletes, td.LockAcqs)
}
func (td *ThreadData) Add(other tree.ThreadData) {
	o := other.(*ThreadData)
	td.Lookups += o.Lookups
	td.Inserts += o.Inserts
	td.Deletes += o.Deletes
	td.LockAcqs += o.LockAcqs
}

func (t *Tree) NewThreadData(tid int) tree.ThreadData { return NewThreadData(tid) }

func lockOf(a *arena.Arena, h treenode.Handle) *spinlock.Spinlock {
	return &a.At(h).Lock
}

// Lookup acquires node locks hand-over-hand: hold at most one at a time,
// acquiring the child's before releasing the parent's.
func (t *Tree) Lookup(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Lookups++
	a := t.arena

	td.LockAcqs++
	t.gl.Lock()
	if t.root == treenode.Nil {
		t.gl.Unlock()
		return false
	}
	curr := t.root
	lockOf(a, curr).Lock()
	t.gl.Unlock()

	for {
		n := a.At(curr)
		if n.Leaf {
			found := n.Key == key
			lockOf(a, curr).Unlock()
			return found
		}
		var next treenode.Handle
		if key <= n.Key {
			next = n.Left
		} else {
			next = n.Right
		}
		td.LockAcqs++
		lockOf(a, next).Lock()
		lockOf(a, curr).Unlock()
		curr = next
	}
}

func isRed(a *arena.Arena, h treenode.Handle) bool {
	return h != treenode.Nil && a.At(h).Color == treenode.Red
}

// Insert descends top-down holding a window of up to four locks
// {gg, g, p, q}, matching rbt_links_td_ext_fg_spinlock.c's
// _rbt_insert_helper_fg exactly: lock q's two children before inspecting
// them, release whichever of the window falls off the back as the window
// slides down, and hold the tree's global lock only while the window
// still touches the root.
func (t *Tree) Insert(tdi tree.ThreadData, key types.Key, value types.Value) bool {
	td := tdi.(*ThreadData)
	td.Inserts++
	a := t.arena

	td.LockAcqs++
	t.gl.Lock()
	if t.root == treenode.Nil {
		leaf := a.Alloc(key, value, true)
		a.At(leaf).Color = treenode.Black
		t.root = leaf
		t.gl.Unlock()
		return true
	}

	var headChild [2]treenode.Handle
	headChild[1] = t.root

	gg, g, p, q := treenode.Nil, treenode.Nil, treenode.Nil, t.root
	ggIsHead := true
	dir, last := 0, 0
	inserted := false
	glHeld := true

	lockOf(a, q).Lock()
	td.LockAcqs++

	releaseGLIfHeld := func() {
		if glHeld {
			t.gl.Unlock()
			glHeld = false
		}
	}

	childOf := func(h treenode.Handle, d int) treenode.Handle { return a.At(h).Child(d) }
	setChildOf := func(ggH treenode.Handle, isHead bool, d int, v treenode.Handle) {
		if isHead {
			headChild[d] = v
		} else {
			a.At(ggH).SetChild(d, v)
		}
	}

	for {
		qn := a.At(q)
		if qn.Left != treenode.Nil {
			lockOf(a, qn.Left).Lock()
			td.LockAcqs++
		}
		if qn.Right != treenode.Nil {
			lockOf(a, qn.Right).Lock()
			td.LockAcqs++
		}

		if qn.Leaf {
			if qn.Key == key {
				break
			}
			newLeaf := a.Alloc(key, value, true)
			otherLeaf := a.Alloc(0, nil, true)
			qn.Left, qn.Right = newLeaf, otherLeaf
			qn.Color = treenode.Red
			qn.Leaf = false
			a.At(newLeaf).Color = treenode.Black
			a.At(otherLeaf).Color = treenode.Black
			if qn.Key > key {
				a.At(otherLeaf).Key, a.At(otherLeaf).Value = qn.Key, qn.Value
				a.At(newLeaf).Key, a.At(newLeaf).Value = key, value
				qn.Key = key
			} else {
				a.At(newLeaf).Key, a.At(newLeaf).Value = qn.Key, qn.Value
				a.At(otherLeaf).Key, a.At(otherLeaf).Value = key, value
			}
			inserted = true
			lockOf(a, newLeaf).Lock()
			lockOf(a, otherLeaf).Lock()
			td.LockAcqs += 2
		} else if isRed(a, qn.Left) && isRed(a, qn.Right) {
			qn.Color = treenode.Red
			a.At(qn.Left).Color = treenode.Black
			a.At(qn.Right).Color = treenode.Black
		}

		if isRed(a, q) && isRed(a, p) {
			dir2 := 0
			if (ggIsHead && headChild[1] == g) || (!ggIsHead && childOf(gg, 1) == g) {
				dir2 = 1
			}
			a.At(g).Color = treenode.Red
			if q == childOf(p, last) {
				a.At(p).Color = treenode.Black
				newSub := rotate.RotateSingle(a, g, rotate.Dir(1-last))
				setChildOf(gg, ggIsHead, dir2, newSub)
				if ggIsHead {
					t.root = headChild[1]
				}

				last = dir
				if a.At(q).Key < key {
					dir = 1
				} else {
					dir = 0
				}

				lockOf(a, g).Unlock()
				other := a.At(q).Child(1 - dir)
				if other != treenode.Nil {
					lockOf(a, other).Unlock()
				}
				releaseGLIfHeld()

				g = p
				p = q
				q = a.At(p).Child(dir)
				continue
			}
			a.At(q).Color = treenode.Black
			newSub := rotate.RotateDouble(a, g, rotate.Dir(1-last))
			setChildOf(gg, ggIsHead, dir2, newSub)
			if ggIsHead {
				t.root = headChild[1]
			}

			if a.At(q).Key < key {
				last = 1
			} else {
				last = 0
			}
			qLast := a.At(q).Child(last)
			if a.At(qLast).Key < key {
				dir = 1
			} else {
				dir = 0
			}

			qNotLast := a.At(q).Child(1 - last)
			if qNotLast != treenode.Nil {
				lockOf(a, qNotLast).Unlock()
				other := a.At(qNotLast).Child(1 - dir)
				if other != treenode.Nil {
					lockOf(a, other).Unlock()
				}
			}
			releaseGLIfHeld()

			g = q
			p = qLast
			q = a.At(p).Child(dir)
			continue
		}

		last = dir
		if a.At(q).Key < key {
			dir = 1
		} else {
			dir = 0
		}

		if glHeld && !ggIsHead && gg == t.root {
			if a.At(t.root).Color == treenode.Red {
				a.At(t.root).Color = treenode.Black
			}
			releaseGLIfHeld()
		}

		other := a.At(q).Child(1 - dir)
		if other != treenode.Nil {
			lockOf(a, other).Unlock()
		}
		if !ggIsHead && gg != treenode.Nil {
			lockOf(a, gg).Unlock()
		}

		if g != treenode.Nil {
			gg = g
			ggIsHead = false
		}
		g = p
		p = q
		q = a.At(p).Child(dir)
	}

	if t.root != headChild[1] {
		t.root = headChild[1]
	}
	if t.root != treenode.Nil && a.At(t.root).Color == treenode.Red {
		a.At(t.root).Color = treenode.Black
	}
	releaseGLIfHeld()

	for _, h := range []treenode.Handle{gg, g, p, q} {
		if h != treenode.Nil {
			lockOf(a, h).Unlock()
		}
	}
	return inserted
}

// Delete descends the same windowed way, splicing the target leaf and
// its internal parent out once the window reaches them.
func (t *Tree) Delete(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Deletes++
	a := t.arena

	td.LockAcqs++
	t.gl.Lock()
	if t.root == treenode.Nil {
		t.gl.Unlock()
		return false
	}
	if a.At(t.root).Leaf {
		found := a.At(t.root).Key == key
		if found {
			t.root = treenode.Nil
		}
		t.gl.Unlock()
		return found
	}

	gp := treenode.Nil
	parent := treenode.Nil
	curr := t.root
	lockOf(a, curr).Lock()
	glHeld := true
	releaseGL := func() {
		if glHeld {
			t.gl.Unlock()
			glHeld = false
		}
	}

	for !a.At(curr).Leaf {
		n := a.At(curr)
		var next treenode.Handle
		if key <= n.Key {
			next = n.Left
		} else {
			next = n.Right
		}
		td.LockAcqs++
		lockOf(a, next).Lock()
		if parent != treenode.Nil {
			lockOf(a, parent).Unlock()
		}
		if curr == t.root {
			releaseGL()
		}
		gp = parent
		parent = curr
		curr = next
	}

	found := a.At(curr).Key == key
	if found {
		pn := a.At(parent)
		var sibling treenode.Handle
		if curr == pn.Left {
			sibling = pn.Right
		} else {
			sibling = pn.Left
		}
		if gp == treenode.Nil {
			t.root = sibling
		} else if parent == a.At(gp).Left {
			a.At(gp).Left = sibling
		} else {
			a.At(gp).Right = sibling
		}
	}

	lockOf(a, curr).Unlock()
	if parent != treenode.Nil {
		lockOf(a, parent).Unlock()
	}
	releaseGL()
	return found
}

// Validate checks BST ordering and equal black-height on every path.
func (t *Tree) Validate() bool {
	if t.root == treenode.Nil {
		return true
	}
	bh := -1
	return t.validateRec(t.root, 0, &bh)
}

func (t *Tree) validateRec(h treenode.Handle, blackDepth int, bh *int) bool {
	a := t.arena
	n := a.At(h)
	if n.Color == treenode.Black {
		blackDepth++
	}
	if n.Leaf {
		if *bh == -1 {
			*bh = blackDepth
			return true
		}
		return *bh == blackDepth
	}
	if n.Left != treenode.Nil && a.At(n.Left).Key > n.Key {
		return false
	}
	if n.Right != treenode.Nil && a.At(n.Right).Key < n.Key {
		return false
	}
	ok := true
	if n.Left != treenode.Nil {
		ok = ok && t.validateRec(n.Left, blackDepth, bh)
	}
	if n.Right != treenode.Nil {
		ok = ok && t.validateRec(n.Right, blackDepth, bh)
	}
	return ok
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
