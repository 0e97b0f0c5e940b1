// Package htmtx holds the "hardware transactional memory" vocabulary the
// versioned-window and lookup-verification variants are built on: abort
// categories (AbortCode), per-category retry budgets (RetryBudget) and the
// global fallback lock every transactional step checks (GlobalLock).
//
// The package has no backend interface and no hardware backend: Go has no
// portable hardware-transactional-memory intrinsic and this module
// contains no cgo/assembly, so the variants use these types directly as a
// software emulation — see DESIGN.md.
//
// That emulation is "global lock with version checks": reads are
// lock-free (snapshot a version, validate, and either return or
// abort-and-retry — a seqlock, not a rollback-capable transaction), while
// the structural mutation a writer performs is always taken under the
// tree's real global spinlock, which is the fallback path every variant's
// hardware version degrades to once its retry budget is exhausted — here
// it is the only path.
package htmtx

import (
	"github.com/bobboyms/ctreebench/pkg/spinlock"
)

// AbortCode classifies why a transaction failed to commit, matching the
// per-category stats every variant tracks per thread for tuning.
type AbortCode int

const (
	AbortNone AbortCode = iota
	// AbortGLTaken: the global fallback lock was held when checked —
	// every transaction aborts immediately rather than race the writer
	// holding it.
	AbortGLTaken
	// AbortExplicitVersion: a node's version changed between snapshot
	// and validation — the software backend's only real conflict signal.
	AbortExplicitVersion
	// AbortValidation: the lookup-verification leaf check failed — stale
	// or dead leaf, or boundary mismatch.
	AbortValidation
	// AbortConflict and AbortCapacity are hardware-only abort reasons
	// (cache-line conflict, transactional read/write-set overflow) that
	// cannot occur in the software backend; the categories exist so
	// RetryBudget and stats stay shaped like the original per-category
	// scheme even though the software path never produces them.
	AbortConflict
	AbortCapacity
)

// RetryBudget bounds retries per abort category before a writer escalates
// to the next-outer retry scope, and ultimately to the global fallback
// lock. TX_NUM_RETRIES in the original source is 20; it applied
// uniformly, so every category defaults to the same budget here.
type RetryBudget struct {
	Explicit int
	Conflict int
	Capacity int
	Other    int
}

// DefaultRetryBudget matches the original source's TX_NUM_RETRIES.
func DefaultRetryBudget() RetryBudget {
	return RetryBudget{Explicit: 20, Conflict: 20, Capacity: 20, Other: 20}
}

// Exhausted reports whether code has used up its category's budget,
// given the number of attempts already made in that category.
func (b RetryBudget) Exhausted(code AbortCode, attempts int) bool {
	switch code {
	case AbortConflict:
		return attempts >= b.Conflict
	case AbortCapacity:
		return attempts >= b.Capacity
	case AbortExplicitVersion, AbortValidation:
		return attempts >= b.Explicit
	default:
		return attempts >= b.Other
	}
}

// GlobalLock is the fallback gate every transaction checks before
// committing and every escalated writer acquires to run serially.
type GlobalLock struct {
	sp spinlock.Spinlock
}

// Held reports whether the global lock is currently held, for the
// "abort with GL_TAKEN" check every transaction performs.
func (g *GlobalLock) Held() bool {
	return g.sp.Held()
}

// Lock acquires the global fallback lock for a serial fallback operation.
func (g *GlobalLock) Lock() {
	g.sp.Lock()
}

// Unlock releases the global fallback lock.
func (g *GlobalLock) Unlock() {
	g.sp.Unlock()
}

// CheckAbort returns AbortGLTaken if the global lock is held, else
// AbortNone — the first thing every transactional step does.
func (g *GlobalLock) CheckAbort() AbortCode {
	if g.sp.Held() {
		return AbortGLTaken
	}
	return AbortNone
}
