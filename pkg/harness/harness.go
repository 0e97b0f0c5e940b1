// Package harness drives a tree.Tree through a concurrent benchmark run:
// it owns warmup, worker goroutine spawn and workload selection,
// statistics aggregation, and final sequential validation.
package harness

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobboyms/ctreebench/pkg/errors"
	"github.com/bobboyms/ctreebench/pkg/harness/metrics"
	"github.com/bobboyms/ctreebench/pkg/registry"
	"github.com/bobboyms/ctreebench/pkg/tree"
	"github.com/bobboyms/ctreebench/pkg/types"
	"github.com/bobboyms/ctreebench/pkg/variants/relaxed"

	"github.com/google/uuid"
)

// Workload selects how long worker goroutines run: either a fixed
// operation count per thread, or a fixed wall-clock duration.
type Workload struct {
	NrOperations int           // used when RunTime == 0
	RunTime      time.Duration // WORKLOAD_TIME when non-zero
}

// Config is the Go expression of the harness contract.
type Config struct {
	Variant string

	NumThreads int

	LookupFrac int // percent
	InsertFrac int // percent
	DeleteFrac int // percent; if LookupFrac+InsertFrac+DeleteFrac < 100 the remainder is treated as delete

	MaxKey       types.Key
	InitTreeSize int
	InitSeed     int64
	ThreadSeed   int64

	Workload Workload

	// MaintainerPeriod is only consulted for the relaxed variant.
	MaintainerPeriod time.Duration
}

// Validate checks the config for construction-time errors (bad config is
// outside the tree's own boolean contract).
func (c Config) Validate() error {
	if c.NumThreads <= 0 {
		return &errors.ConfigError{Field: "NumThreads", Cause: errors.Newf("must be positive, got %d", c.NumThreads)}
	}
	if c.LookupFrac+c.InsertFrac+c.DeleteFrac > 100 {
		return errors.ErrInvalidWorkloadMix
	}
	if c.MaxKey <= 0 {
		return &errors.ConfigError{Field: "MaxKey", Cause: errors.New("must be positive")}
	}
	if c.Workload.NrOperations <= 0 && c.Workload.RunTime <= 0 {
		return &errors.ConfigError{Field: "Workload", Cause: errors.New("one of NrOperations or RunTime must be set")}
	}
	return nil
}

// Affinity pins a worker goroutine to a logical CPU at spawn time. The
// only shipped implementation is a no-op: Go's scheduler exposes no
// portable thread-to-CPU pinning without cgo or a Linux-only
// golang.org/x/sys/unix syscall, and this module stays portable. A
// platform-specific implementation can satisfy this interface without
// the harness changing.
type Affinity interface {
	Pin(workerIndex int)
}

// NoAffinity is the portable default: it does nothing.
type NoAffinity struct{}

func (NoAffinity) Pin(int) {}

// Report is the outcome of one harness.Run: per-thread stats, wall time,
// and the sequential validator's verdict — the exit-code contract is
// "validator pass/fail", which cmd/bench reads off Valid.
type Report struct {
	RunID       string
	Variant     string
	Elapsed     time.Duration
	ThreadData  []tree.ThreadData
	Valid       bool
	FinalSize   int
	Inserted    int64
	Deleted     int64
}

// Run executes one complete benchmark: construct, warmup, spawn workers,
// run the selected workload, join, validate.
func Run(cfg Config, affinity Affinity) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	if affinity == nil {
		affinity = NoAffinity{}
	}

	runID := uuid.NewString()
	metricsReg := metrics.New(runID, cfg.Variant)

	capacity := cfg.InitTreeSize*2 + cfg.NumThreads*estimateOpsCapacity(cfg) + 1024
	t, err := registry.New(cfg.Variant, capacity)
	if err != nil {
		return Report{}, err
	}

	if _, err := t.Warmup(cfg.InitTreeSize, cfg.MaxKey, cfg.InitSeed, false); err != nil {
		return Report{}, err
	}

	var maintainer *relaxed.Tree
	if registry.IsRelaxed(cfg.Variant) {
		maintainer = t.(*relaxed.Tree)
		period := cfg.MaintainerPeriod
		if period <= 0 {
			period = time.Millisecond
		}
		maintainer.StartMaintainer(period)
	}

	var inserted, deleted int64
	threadDatas := make([]tree.ThreadData, cfg.NumThreads)
	var wg sync.WaitGroup
	wg.Add(cfg.NumThreads)

	start := time.Now()
	for i := 0; i < cfg.NumThreads; i++ {
		i := i
		go func() {
			defer wg.Done()
			affinity.Pin(i)
			td := t.NewThreadData(i)
			threadDatas[i] = td
			rng := rand.New(rand.NewSource(cfg.ThreadSeed + int64(i)))
			ins, del := runWorker(t, td, cfg, rng, start, metricsReg)
			addInt64(&inserted, ins)
			addInt64(&deleted, del)
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if maintainer != nil {
		maintainer.StopMaintainer()
	}

	valid := t.Validate()

	agg := t.NewThreadData(-1)
	for _, td := range threadDatas {
		agg.Add(td)
	}

	return Report{
		RunID:      runID,
		Variant:    cfg.Variant,
		Elapsed:    elapsed,
		ThreadData: append(threadDatas, agg),
		Valid:      valid,
		FinalSize:  cfg.InitTreeSize + int(inserted-deleted),
		Inserted:   inserted,
		Deleted:    deleted,
	}, nil
}

func estimateOpsCapacity(cfg Config) int {
	if cfg.Workload.RunTime > 0 {
		return 1_000_000 / max(cfg.NumThreads, 1)
	}
	return cfg.Workload.NrOperations
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func addInt64(dst *int64, delta int64) {
	atomic.AddInt64(dst, delta)
}

// runWorker executes one thread's share of the selected workload,
// picking an operation kind per draw from the configured fractions.
func runWorker(t tree.Tree, td tree.ThreadData, cfg Config, rng *rand.Rand, start time.Time, metricsReg *metrics.Registry) (inserted, deleted int64) {
	op := func() {
		key := types.Key(rng.Int63n(int64(cfg.MaxKey)))
		roll := rng.Intn(100)
		opStart := time.Now()
		switch {
		case roll < cfg.LookupFrac:
			found := t.Lookup(td, key)
			metricsReg.Operations.WithLabelValues("lookup", outcomeLabel(found)).Inc()
		case roll < cfg.LookupFrac+cfg.InsertFrac:
			ok := t.Insert(td, key, nil)
			if ok {
				inserted++
			}
			metricsReg.Operations.WithLabelValues("insert", outcomeLabel(ok)).Inc()
		default:
			ok := t.Delete(td, key)
			if ok {
				deleted++
			}
			metricsReg.Operations.WithLabelValues("delete", outcomeLabel(ok)).Inc()
		}
		metricsReg.OpLatency.Observe(time.Since(opStart).Seconds())
	}

	if cfg.Workload.RunTime > 0 {
		for time.Since(start) < cfg.Workload.RunTime {
			op()
		}
		return
	}
	for i := 0; i < cfg.Workload.NrOperations; i++ {
		op()
	}
	return
}

func outcomeLabel(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}
