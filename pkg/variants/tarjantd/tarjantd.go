// Package tarjantd implements the sequential top-down red-black baseline
// every operation runs under one global lock, with no
// per-node synchronization at all. It exists so a benchmark run can
// measure the cost fine-grained locking (fgspinlock) and lock-free
// validation (cop, fghtm) buy over simply serializing everything — and
// fgspinlock's descent is this algorithm with per-node spinlocks
// interleaved into the same gg/g/p/q bookkeeping.
//
// Grounded directly on rbt_links_td_ext_fg_spinlock.c's
// _rbt_insert_helper_serial / _rbt_delete_helper_fg (with the per-node
// locking stripped, since nothing else can run concurrently here): a
// top-down pass that color-flips 4-nodes and rotates away red-red
// violations on the way down, so a single pass suffices with no
// bottom-up fixup phase.
package tarjantd

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/bobboyms/ctreebench/pkg/arena"
	"github.com/bobboyms/ctreebench/pkg/rotate"
	"github.com/bobboyms/ctreebench/pkg/treenode"
	"github.com/bobboyms/ctreebench/pkg/tree"
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Tree is the serial top-down red-black variant.
type Tree struct {
	arena *arena.Arena
	mu    sync.Mutex
	root  treenode.Handle
}

func New(capacity int) *Tree {
	return &Tree{
		arena: arena.New(capacity),
		root:  treenode.Nil,
	}
}

func (t *Tree) Name() string { return "tarjantd-serial" }

// ThreadData holds the plain operation counters the harness aggregates;
// there is no retry/abort machinery to report since every operation runs
// to completion under the global lock on its first and only attempt.
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

func (t *Tree) Lookup(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Lookups++
	td.LockAcqs++
	t.mu.Lock()
	defer t.mu.Unlock()

	a := t.arena
	curr := t.root
	for curr != treenode.Nil {
		n := a.At(curr)
		if n.Leaf {
			return n.Key == key
		}
		if key <= n.Key {
			curr = n.Left
		} else {
			curr = n.Right
		}
	}
	return false
}

func (t *Tree) Insert(tdi tree.ThreadData, key types.Key, value types.Value) bool {
	td := tdi.(*ThreadData)
	td.Inserts++
	td.LockAcqs++
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(key, value)
}

// headNode is the false tree root the top-down insert/delete use to avoid
// special-casing rotations at the real root; it is never stored in the
// arena since no reader ever reaches it.
type headNode struct {
	child [2]treenode.Handle
}

func (t *Tree) insertLocked(key types.Key, value types.Value) bool {
	a := t.arena

	if t.root == treenode.Nil {
		leaf := a.Alloc(key, value, true)
		a.At(leaf).Color = treenode.Black
		t.root = leaf
		return true
	}

	var head headNode
	head.child[1] = t.root

	var gg, g, p, q treenode.Handle = treenode.Nil, treenode.Nil, treenode.Nil, t.root
	ggIsHead := true
	dir, last := 0, 0
	inserted := false

	childOf := func(h treenode.Handle, d int) treenode.Handle {
		return a.At(h).Child(d)
	}
	setChildOf := func(ggHandle treenode.Handle, ggHead bool, d int, v treenode.Handle) {
		if ggHead {
			head.child[d] = v
		} else {
			a.At(ggHandle).SetChild(d, v)
		}
	}

	for {
		qn := a.At(q)
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
		} else if isRed(a, qn.Left) && isRed(a, qn.Right) {
			qn.Color = treenode.Red
			a.At(qn.Left).Color = treenode.Black
			a.At(qn.Right).Color = treenode.Black
		}

		if isRed(a, q) && isRed(a, p) {
			dir2 := 0
			if (ggIsHead && head.child[1] == g) || (!ggIsHead && childOf(gg, 1) == g) {
				dir2 = 1
			}
			gn := a.At(g)
			gn.Color = treenode.Red
			if q == childOf(p, last) {
				a.At(p).Color = treenode.Black
				newSub := rotate.RotateSingle(a, g, rotate.Dir(1-last))
				setChildOf(gg, ggIsHead, dir2, newSub)
				if ggIsHead {
					t.root = head.child[1]
				}

				last = dir
				qk := a.At(q).Key
				if qk < key {
					dir = 1
				} else {
					dir = 0
				}
				g = p
				p = q
				q = a.At(p).Child(dir)
				continue
			}
			a.At(q).Color = treenode.Black
			newSub := rotate.RotateDouble(a, g, rotate.Dir(1-last))
			setChildOf(gg, ggIsHead, dir2, newSub)
			if ggIsHead {
				t.root = head.child[1]
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

		if g != treenode.Nil {
			gg = g
			ggIsHead = false
		}
		g = p
		p = q
		q = a.At(p).Child(dir)
	}

	if t.root != head.child[1] {
		t.root = head.child[1]
	}
	if t.root != treenode.Nil && a.At(t.root).Color == treenode.Red {
		a.At(t.root).Color = treenode.Black
	}
	return inserted
}

func isRed(a *arena.Arena, h treenode.Handle) bool {
	return h != treenode.Nil && a.At(h).Color == treenode.Red
}

func (t *Tree) Delete(tdi tree.ThreadData, key types.Key) bool {
	td := tdi.(*ThreadData)
	td.Deletes++
	td.LockAcqs++
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deleteLocked(key)
}

func (t *Tree) deleteLocked(key types.Key) bool {
	a := t.arena

	if t.root == treenode.Nil {
		return false
	}
	if a.At(t.root).Leaf {
		if a.At(t.root).Key == key {
			t.root = treenode.Nil
			return true
		}
		return false
	}

	var head headNode
	head.child[1] = t.root

	g, p := treenode.Nil, treenode.Nil
	q := treenode.Nil
	qIsHead := true
	dir := 1

	childAtQ := func() treenode.Handle {
		if qIsHead {
			return head.child[dir]
		}
		return a.At(q).Child(dir)
	}

	for !a.At(childAtQ()).Leaf {
		last := dir

		g = p
		p = q
		q = childAtQ()
		qIsHead = false
		if a.At(q).Key < key {
			dir = 1
		} else {
			dir = 0
		}

		qn := a.At(q)
		if isBlack(a, q) && isBlack(a, qn.Child(dir)) {
			if isRed(a, qn.Child(1-dir)) {
				qn.Color = treenode.Red
				a.At(qn.Child(1 - dir)).Color = treenode.Black
				newSub := rotate.RotateSingle(a, q, rotate.Dir(dir))
				if p == treenode.Nil {
					head.child[last] = newSub
				} else {
					a.At(p).SetChild(last, newSub)
				}
				if q == t.root {
					t.root = newSub
				}
				p = newSub
			} else if isBlack(a, qn.Child(1-dir)) {
				s := a.At(p).Child(1 - last)
				if s != treenode.Nil {
					sn := a.At(s)
					if isBlack(a, sn.Child(1-last)) && isBlack(a, sn.Child(last)) {
						a.At(p).Color = treenode.Black
						qn.Color = treenode.Red
						sn.Color = treenode.Red
					} else {
						dir2 := 0
						if g != treenode.Nil && a.At(g).Child(1) == p {
							dir2 = 1
						}
						if isRed(a, sn.Child(last)) {
							newSub := rotate.RotateDouble(a, p, rotate.Dir(last))
							if g == treenode.Nil {
								head.child[dir2] = newSub
							} else {
								a.At(g).SetChild(dir2, newSub)
							}
							a.At(newSub).Color = treenode.Black
							qn.Color = treenode.Red
							if p == t.root {
								t.root = head.child[1]
							}
						} else if isRed(a, sn.Child(1-last)) {
							newSub := rotate.RotateSingle(a, p, rotate.Dir(last))
							if g == treenode.Nil {
								head.child[dir2] = newSub
							} else {
								a.At(g).SetChild(dir2, newSub)
							}
							a.At(newSub).Color = treenode.Black
							qn.Color = treenode.Red
							sn.Color = treenode.Red
							a.At(sn.Child(1 - last)).Color = treenode.Black
							if p == t.root {
								t.root = head.child[1]
							}
						}
					}
				}
			}
		}
	}

	leaf := childAtQ()
	found := a.At(leaf).Key == key
	if found {
		otherChild := 1 - dir
		var keep treenode.Handle
		if qIsHead {
			keep = a.At(head.child[dir]).Child(otherChild)
		} else {
			keep = a.At(q).Child(otherChild)
		}
		last := 0
		if a.At(p).Key < key {
			last = 1
		}
		a.At(p).SetChild(last, keep)
		if p == t.root || qIsHead {
			t.root = keep
		}
	}

	if t.root != treenode.Nil {
		a.At(t.root).Color = treenode.Black
	}
	return found
}

func isBlack(a *arena.Arena, h treenode.Handle) bool {
	return h == treenode.Nil || a.At(h).Color == treenode.Black
}

// Validate checks BST ordering, no red-red violations, and equal
// black-height on every root-to-leaf path.
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
	if n.Color == treenode.Red && (isRed(a, n.Left) || isRed(a, n.Right)) {
		return false
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
	t.mu.Lock()
	defer t.mu.Unlock()

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
