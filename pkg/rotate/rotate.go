// Package rotate implements the sequential tree algebra: pure,
// single-threaded rotation and rebalance primitives shared by every
// concurrent variant. None of these functions synchronize anything — each
// caller must already hold whatever locks, or be inside whatever
// transaction, its concurrency scheme requires before calling in.
package rotate

import (
	"github.com/bobboyms/ctreebench/pkg/arena"
	"github.com/bobboyms/ctreebench/pkg/treenode"
)

// Dir selects a rotation/traversal direction. Left/right code paths are a
// single implementation parameterized by Dir.
type Dir int

const (
	Left  Dir = 0
	Right Dir = 1
)

// Opp returns the opposite direction.
func (d Dir) Opp() Dir {
	return 1 - d
}

// DirOf returns the descent direction for key relative to a routing key,
// for the layout in which a node's key equals the minimum key of its right
// subtree: keys strictly less than go left, everything else goes right.
// The external-leaf variants in this module use the other layout (the
// routing key is the largest key of the left subtree, so equal keys go
// left) and do not call DirOf.
func DirOf(key, routingKey int32) Dir {
	if key < routingKey {
		return Left
	}
	return Right
}

// RotateSingle performs a single rotation of n in direction dir and returns
// the new subtree root. Precondition: n's child in the opposite direction
// is non-nil. Purely structural — colors and heights are the caller's
// responsibility, since the bottom-up (CLRS) and top-down (Tarjan) callers
// maintain them under different conventions.
func RotateSingle(a *arena.Arena, n treenode.Handle, dir Dir) treenode.Handle {
	root := a.At(n)
	save := root.Child(int(dir.Opp()))
	saveNode := a.At(save)

	root.SetChild(int(dir.Opp()), saveNode.Child(int(dir)))
	saveNode.SetChild(int(dir), n)

	return save
}

// RotateDouble performs rotate_single(n.Child(opp(dir)), opp(dir)) followed
// by rotate_single(n, dir).
func RotateDouble(a *arena.Arena, n treenode.Handle, dir Dir) treenode.Handle {
	nNode := a.At(n)
	nNode.SetChild(int(dir.Opp()), RotateSingle(a, nNode.Child(int(dir.Opp())), dir.Opp()))
	return RotateSingle(a, n, dir)
}

// UpdateHeight recomputes an AVL node's cached height from its children.
// External leaves (Leaf == true) always have height 0.
func UpdateHeight(a *arena.Arena, h treenode.Handle) {
	n := a.At(h)
	if n.Leaf {
		n.Height = 0
		return
	}
	n.Height = 1 + max32(HeightOf(a, n.Left), HeightOf(a, n.Right))
}

// HeightOf returns a node's cached height, or -1 for a nil handle so an
// external leaf's single real child still balances correctly against an
// absent sibling.
func HeightOf(a *arena.Arena, h treenode.Handle) int32 {
	if h == treenode.Nil {
		return -1
	}
	return a.At(h).Height
}

// Balance returns height(left) - height(right) for an internal node.
func Balance(a *arena.Arena, h treenode.Handle) int32 {
	n := a.At(h)
	return HeightOf(a, n.Left) - HeightOf(a, n.Right)
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

// AVLFixup restores the AVL balance invariant walking bottom-up along
// path (root-to-leaf order), recomputing each node's height. Nodes that
// are within balance are passed over and the walk goes on up, whether or
// not their height changed; an insert stops immediately after its first
// rotation, a delete walks all the way to path[0].
// dirs[i] is the direction taken from path[i] to reach path[i+1]; it must
// have len(dirs) == len(path)-1.
// onInsert distinguishes the insert/delete termination rule. Returns the
// new handle of path[0] (only changes if path[0] itself was the pivot of a
// rotation), which the caller re-links into its parent or tree root.
func AVLFixup(a *arena.Arena, path []treenode.Handle, dirs []Dir, onInsert bool) treenode.Handle {
	for i := len(path) - 1; i >= 0; i-- {
		n := path[i]
		UpdateHeight(a, n)
		bal := Balance(a, n)

		if bal >= -1 && bal <= 1 {
			if onInsert {
				// No rotation here yet; an ancestor may still be out of
				// balance, so keep walking up.
				continue
			}
			continue
		}

		// |bal| == 2: resolve via single or double rotation, chosen by
		// the heavy child's own balance sign.
		var dir Dir
		if bal > 0 {
			dir = Right // left-heavy: rotate right
		} else {
			dir = Left // right-heavy: rotate left
		}
		heavyChild := a.At(n).Child(int(dir.Opp()))
		childBal := Balance(a, heavyChild)

		var newSubRoot treenode.Handle
		if (dir == Right && childBal >= 0) || (dir == Left && childBal <= 0) {
			newSubRoot = RotateSingle(a, n, dir)
		} else {
			newSubRoot = RotateDouble(a, n, dir)
		}

		UpdateHeight(a, n)
		UpdateHeight(a, heavyChild)
		UpdateHeight(a, newSubRoot)

		if i == 0 {
			return newSubRoot
		}
		parent := a.At(path[i-1])
		parent.SetChild(int(dirs[i-1]), newSubRoot)
		path[i] = newSubRoot

		if onInsert {
			// A single rebalancing step restores the full AVL invariant
			// for an insert; no need to keep walking up.
			break
		}
		// Delete may need further rebalancing higher up; keep walking.
	}
	return path[0]
}
