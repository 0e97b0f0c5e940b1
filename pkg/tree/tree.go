// Package tree defines the uniform contract every concurrent ordered-map
// variant implements: lookup/insert/delete/validate/warmup, driven by an
// external workload harness.
package tree

import (
	"github.com/bobboyms/ctreebench/pkg/types"
)

// Tree is the contract the harness drives. Every operation returns a
// boolean result and nothing else — internal abort/retry/fallback
// machinery never escapes this boundary.
type Tree interface {
	// Lookup reports whether key is present in the map.
	Lookup(td ThreadData, key types.Key) bool

	// Insert adds key/value if key is absent. Returns true iff key was
	// new; on false the map is unchanged.
	Insert(td ThreadData, key types.Key, value types.Value) bool

	// Delete removes key if present. Returns true iff key was present;
	// on success the key is removed.
	Delete(td ThreadData, key types.Key) bool

	// Validate checks the tree's structural invariants (BST, and
	// AVL-height-balance or RB-coloring as applicable). Called
	// sequentially after all worker threads have stopped.
	Validate() bool

	// Warmup single-threadedly populates the tree with n random keys in
	// [0, maxKey), seeded by seed. Returns the number of keys actually
	// inserted (may be less than n if max_key collisions exhaust the
	// retry budget, unless force widens it). Safe to call only before
	// any concurrent access begins.
	Warmup(n int, maxKey types.Key, seed int64, force bool) (int, error)

	// Name returns the variant's identifier, used by the registry and by
	// result reporting.
	Name() string

	// NewThreadData creates the per-thread counters/scratch space a
	// worker goroutine passes to every operation it performs.
	NewThreadData(tid int) ThreadData
}

// ThreadData is opaque per-thread state: operation counters, retry/abort
// histograms, and any scratch space a variant's algorithm needs. The
// harness owns its lifecycle; it never inspects the contents directly,
// only Prints or Adds it.
type ThreadData interface {
	// Print renders the thread's statistics (operation counts, abort
	// classification, lock acquisitions) for end-of-run reporting.
	Print()

	// Add merges another thread's counters into this one, used when the
	// harness aggregates per-thread stats into a run-global total.
	Add(other ThreadData)

	// TID returns the thread identifier this data was created for.
	TID() int
}
