// Command bench drives one concurrent ordered-map benchmark run: parse
// the harness config from flags, run it, print per-thread stats, and
// exit with a status reflecting the sequential validator's verdict.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/ctreebench/pkg/errors"
	"github.com/bobboyms/ctreebench/pkg/harness"
	"github.com/bobboyms/ctreebench/pkg/registry"
	"github.com/bobboyms/ctreebench/pkg/types"
)

func main() {
	variant := flag.String("variant", "tarjantd", fmt.Sprintf("tree variant to benchmark (one of: %v)", registry.Names()))
	numThreads := flag.Int("threads", 4, "number of concurrent worker goroutines")
	lookupFrac := flag.Int("lookup-frac", 80, "percentage of operations that are lookups")
	insertFrac := flag.Int("insert-frac", 10, "percentage of operations that are inserts")
	deleteFrac := flag.Int("delete-frac", 10, "percentage of operations that are deletes")
	maxKey := flag.Int("max-key", 1_000_000, "exclusive upper bound on generated keys")
	initTreeSize := flag.Int("init-size", 10_000, "number of keys to warm up before the timed run")
	initSeed := flag.Int64("init-seed", 1, "RNG seed for warmup")
	threadSeed := flag.Int64("thread-seed", 2, "base RNG seed for worker threads")
	nrOperations := flag.Int("nr-operations", 0, "fixed operation count per thread (mutually exclusive with -run-time)")
	runTime := flag.Duration("run-time", 5*time.Second, "wall-clock duration to run the timed workload")
	maintainerPeriod := flag.Duration("maintainer-period", time.Millisecond, "relaxed variant: background maintainer pass interval")
	reportPath := flag.String("report", "", "optional path to write a BSON-encoded run report")
	flag.Parse()

	workload := harness.Workload{RunTime: *runTime}
	if *nrOperations > 0 {
		workload = harness.Workload{NrOperations: *nrOperations}
	}

	cfg := harness.Config{
		Variant:          *variant,
		NumThreads:       *numThreads,
		LookupFrac:       *lookupFrac,
		InsertFrac:       *insertFrac,
		DeleteFrac:       *deleteFrac,
		MaxKey:           types.Key(*maxKey),
		InitTreeSize:     *initTreeSize,
		InitSeed:         *initSeed,
		ThreadSeed:       *threadSeed,
		Workload:         workload,
		MaintainerPeriod: *maintainerPeriod,
	}

	report, err := harness.Run(cfg, harness.NoAffinity{})
	if err != nil {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, "benchmark run failed"))
		os.Exit(2)
	}

	fmt.Printf("run %s variant=%s elapsed=%s inserted=%d deleted=%d final_size=%d valid=%v\n",
		report.RunID, report.Variant, report.Elapsed, report.Inserted, report.Deleted, report.FinalSize, report.Valid)
	for _, td := range report.ThreadData {
		td.Print()
	}

	if *reportPath != "" {
		if err := writeReport(*reportPath, report); err != nil {
			fmt.Fprintln(os.Stderr, errors.Wrap(err, "writing report"))
			os.Exit(2)
		}
	}

	if !report.Valid {
		os.Exit(1)
	}
}

// summaryReport is the BSON-serializable shape of a harness.Report; it
// exists separately from harness.Report because ThreadData is an opaque
// tree.ThreadData interface with no stable field layout to marshal.
type summaryReport struct {
	RunID     string `bson:"run_id"`
	Variant   string `bson:"variant"`
	ElapsedMs int64  `bson:"elapsed_ms"`
	Inserted  int64  `bson:"inserted"`
	Deleted   int64  `bson:"deleted"`
	FinalSize int    `bson:"final_size"`
	Valid     bool   `bson:"valid"`
}

func writeReport(path string, report harness.Report) error {
	doc := summaryReport{
		RunID:     report.RunID,
		Variant:   report.Variant,
		ElapsedMs: report.Elapsed.Milliseconds(),
		Inserted:  report.Inserted,
		Deleted:   report.Deleted,
		FinalSize: report.FinalSize,
		Valid:     report.Valid,
	}
	data, err := bson.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshaling report")
	}
	return os.WriteFile(path, data, 0o644)
}
