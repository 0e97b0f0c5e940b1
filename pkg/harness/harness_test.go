package harness

import (
	"testing"
	"time"
)

func baseConfig() Config {
	return Config{
		Variant:      "tarjantd",
		NumThreads:   4,
		LookupFrac:   70,
		InsertFrac:   20,
		DeleteFrac:   10,
		MaxKey:       1024,
		InitTreeSize: 256,
		InitSeed:     1,
		ThreadSeed:   2,
		Workload:     Workload{NrOperations: 500},
	}
}

func TestConfigValidateAcceptsBaseConfig(t *testing.T) {
	if err := baseConfig().Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}
}

func TestConfigValidateRejectsZeroThreads(t *testing.T) {
	cfg := baseConfig()
	cfg.NumThreads = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for zero threads")
	}
}

func TestConfigValidateRejectsOverfullWorkloadMix(t *testing.T) {
	cfg := baseConfig()
	cfg.LookupFrac, cfg.InsertFrac, cfg.DeleteFrac = 60, 30, 20
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a workload mix summing over 100")
	}
}

func TestConfigValidateRejectsNonPositiveMaxKey(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxKey = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a non-positive MaxKey")
	}
}

func TestConfigValidateRejectsEmptyWorkload(t *testing.T) {
	cfg := baseConfig()
	cfg.Workload = Workload{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when neither NrOperations nor RunTime is set")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.NumThreads = 0
	if _, err := Run(cfg, nil); err == nil {
		t.Fatal("expected Run to surface the config validation error")
	}
}

func TestRunRejectsUnknownVariant(t *testing.T) {
	cfg := baseConfig()
	cfg.Variant = "does-not-exist"
	if _, err := Run(cfg, nil); err == nil {
		t.Fatal("expected Run to surface the registry lookup error")
	}
}

func TestRunEndToEndOperationCount(t *testing.T) {
	cfg := baseConfig()
	cfg.Variant = "tarjantd"
	report, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if !report.Valid {
		t.Fatal("expected the final tree to validate")
	}
	if report.RunID == "" {
		t.Fatal("expected a non-empty RunID")
	}
	if len(report.ThreadData) != cfg.NumThreads+1 {
		t.Fatalf("expected %d thread reports (per-thread + aggregate), got %d", cfg.NumThreads+1, len(report.ThreadData))
	}
}

func TestRunEndToEndCitrus(t *testing.T) {
	cfg := baseConfig()
	cfg.Variant = "citrus"
	report, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if !report.Valid {
		t.Fatal("expected the final tree to validate")
	}
}

func TestRunEndToEndRelaxedStartsAndStopsMaintainer(t *testing.T) {
	cfg := baseConfig()
	cfg.Variant = "relaxed"
	cfg.MaintainerPeriod = time.Millisecond
	report, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if !report.Valid {
		t.Fatal("expected the final tree to validate once the maintainer has drained")
	}
}

func TestRunRunTimeBoundedWorkload(t *testing.T) {
	cfg := baseConfig()
	cfg.Workload = Workload{RunTime: 20 * time.Millisecond}
	report, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("Run: unexpected error: %v", err)
	}
	if report.Elapsed <= 0 {
		t.Fatal("expected a positive elapsed duration")
	}
}
