// Package spinlock implements the per-node and global test-and-test-and-set
// spinlocks the fine-grained and fallback-lock tree variants are built on.
// Real spinlocks, not a mutex wrapper: a thread that fails to acquire spins
// on a cheap atomic load (never making a syscall) until it observes the
// lock free, then retries the atomic swap that actually acquires it. This
// mirrors pthread_spin_lock as used throughout the original benchmark
// suite's _spinlock and _fg_htm variants.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

// spinBackoff is how many busy-spin iterations to try before yielding the
// OS thread with runtime.Gosched. Low because per-node critical sections
// in these trees are a handful of pointer writes.
const spinBackoff = 64

// Spinlock is a zero-value-ready test-and-test-and-set lock.
type Spinlock struct {
	state atomic.Bool
}

// Lock blocks until the lock is acquired.
func (s *Spinlock) Lock() {
	for {
		spins := 0
		for s.state.Load() {
			spins++
			if spins > spinBackoff {
				runtime.Gosched()
				spins = 0
			}
		}
		if s.state.CompareAndSwap(false, true) {
			return
		}
	}
}

// TryLock attempts to acquire the lock without blocking.
func (s *Spinlock) TryLock() bool {
	return s.state.CompareAndSwap(false, true)
}

// Unlock releases the lock. Unlocking an already-unlocked spinlock is
// undefined, same as pthread_spin_unlock.
func (s *Spinlock) Unlock() {
	s.state.Store(false)
}

// Held reports whether the lock is currently held, for the "global lock
// taken" check every transactional window must perform before
// committing: every transaction reads the lock and aborts if held.
func (s *Spinlock) Held() bool {
	return s.state.Load()
}
