package errors

import (
	"github.com/cockroachdb/errors"
)

// Re-exported so callers only ever import this package, never
// cockroachdb/errors directly — keeps the wrapping policy centralized.
var (
	New   = errors.New
	Newf  = errors.Newf
	Wrap  = errors.Wrap
	Wrapf = errors.Wrapf
	Is    = errors.Is
	As    = errors.As
)

// ErrArenaExhausted is the value arena.Alloc panics with when a
// fixed-capacity arena has no room left. Lookup/Insert/Delete stay boolean
// and never return it; an insert or a warmup that exhausts the arena
// panics, which is fatal to the run.
var ErrArenaExhausted = errors.New("arena: capacity exhausted")

// ErrUnknownVariant is returned by the variant registry when asked to
// construct a tree whose Name() was never registered.
var ErrUnknownVariant = errors.New("registry: unknown tree variant")

// ErrInvalidWorkloadMix is returned by harness.Config.Validate when the
// lookup/insert/delete fractions do not describe a valid workload.
var ErrInvalidWorkloadMix = errors.New("harness: invalid workload mix")

// ConfigError wraps a harness configuration problem with the offending
// field name, so CLI callers can print an actionable message.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Cause.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}
