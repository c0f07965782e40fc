package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseBenchmarkFileKeepsTrackedBenchmarks(t *testing.T) {
	out := `goos: linux
BenchmarkCreateSession-8   	   50000	     23000 ns/op	    4096 B/op	      48 allocs/op
BenchmarkCreateSession-8   	   50000	     25000 ns/op	    4096 B/op	      50 allocs/op
BenchmarkMetricsInc-8      	100000000	        10.5 ns/op	       0 B/op	       0 allocs/op
PASS
`
	path := filepath.Join(t.TempDir(), "bench.txt")
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	samples, err := parseBenchmarkFile(path)
	if err != nil {
		t.Fatalf("parseBenchmarkFile failed: %v", err)
	}
	if _, ok := samples["BenchmarkMetricsInc"]; ok {
		t.Fatal("untracked benchmark must be skipped")
	}
	ns := samples["BenchmarkCreateSession"]["ns/op"]
	if len(ns) != 2 || median(ns) != 24000 {
		t.Fatalf("unexpected ns/op samples %v", ns)
	}
	if median(samples["BenchmarkCreateSession"]["allocs/op"]) != 49 {
		t.Fatalf("unexpected allocs/op samples %v", samples["BenchmarkCreateSession"]["allocs/op"])
	}
}

func TestNormalizeBenchmarkName(t *testing.T) {
	tests := map[string]string{
		"BenchmarkCreateSession-8":      "BenchmarkCreateSession",
		"BenchmarkCreateSession":        "BenchmarkCreateSession",
		"BenchmarkResume-cookie":        "BenchmarkResume-cookie",
		"BenchmarkResumeSessionFrom-16": "BenchmarkResumeSessionFrom",
	}
	for in, want := range tests {
		if got := normalizeBenchmarkName(in); got != want {
			t.Fatalf("normalizeBenchmarkName(%q) = %q, want %q", in, got, want)
		}
	}
}

func fullSamples(ns float64) sampleSet {
	set := sampleSet{}
	for name, metrics := range trackedMetrics {
		set[name] = map[string][]float64{}
		for _, metric := range metrics {
			set[name][metric] = []float64{ns}
		}
		if _, ok := allocCeilings[name]; ok {
			set[name]["allocs/op"] = []float64{0}
		}
	}
	set["BenchmarkCreateSession"]["allocs/op"] = []float64{40}
	return set
}

func TestCompareWithinThreshold(t *testing.T) {
	rows, failures := compare(fullSamples(100), fullSamples(120), defaultThreshold)
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
	if len(rows) == 0 {
		t.Fatal("expected report rows")
	}
}

func TestCompareFlagsRegression(t *testing.T) {
	_, failures := compare(fullSamples(100), fullSamples(200), defaultThreshold)
	if len(failures) == 0 {
		t.Fatal("expected a regression failure")
	}
}

func TestCompareAllocCeiling(t *testing.T) {
	candidate := fullSamples(100)
	candidate["BenchmarkResumeSessionShortCircuit"]["allocs/op"] = []float64{1}

	_, failures := compare(fullSamples(100), candidate, defaultThreshold)
	found := false
	for _, f := range failures {
		if strings.Contains(f, "BenchmarkResumeSessionShortCircuit allocates 1/op") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an allocation ceiling failure, got %v", failures)
	}
}

func TestCompareNewBenchmarkIsReported(t *testing.T) {
	baseline := fullSamples(100)
	delete(baseline, "BenchmarkMetricsObserveLatencyParallel")

	rows, failures := compare(baseline, fullSamples(100), defaultThreshold)
	if len(failures) != 0 {
		t.Fatalf("a benchmark missing from the baseline must not fail, got %v", failures)
	}
	found := false
	for _, row := range rows {
		if strings.HasPrefix(row, "BenchmarkMetricsObserveLatencyParallel ns/op -") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a row for the new benchmark, got %v", rows)
	}
}
