// Command perf-regression compares two `go test -bench` outputs and fails
// when a tracked broker benchmark regressed past the threshold, or when a
// hot path that must not allocate starts allocating.
//
//	go test -run '^$' -bench . -count 5 . > new.txt
//	go run ./cmd/perf-regression -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultThreshold = 0.30

// trackedMetrics lists the broker hot-path benchmarks gated in CI.
var trackedMetrics = map[string][]string{
	"BenchmarkCreateSession":                 {"ns/op", "allocs/op"},
	"BenchmarkResumeSessionShortCircuit":     {"ns/op", "allocs/op"},
	"BenchmarkResumeSessionFromCookie":       {"ns/op"},
	"BenchmarkMetricsIncParallel":            {"ns/op"},
	"BenchmarkMetricsObserveLatencyParallel": {"ns/op"},
}

// allocCeilings are absolute allocs/op limits checked on the candidate alone.
// Answering from the host session and bumping a metric must never allocate.
var allocCeilings = map[string]float64{
	"BenchmarkResumeSessionShortCircuit":     0,
	"BenchmarkMetricsIncParallel":            0,
	"BenchmarkMetricsObserveLatencyParallel": 0,
}

type sampleSet map[string]map[string][]float64

func main() {
	var (
		baselinePath  string
		candidatePath string
		threshold     float64
	)

	flag.StringVar(&baselinePath, "baseline", "", "path to baseline benchmark output")
	flag.StringVar(&candidatePath, "candidate", "", "path to candidate benchmark output")
	flag.Float64Var(&threshold, "threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	flag.Parse()

	if baselinePath == "" || candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	baseline, err := parseBenchmarkFile(baselinePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse baseline: %v\n", err)
		os.Exit(1)
	}
	candidate, err := parseBenchmarkFile(candidatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse candidate: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("broker perf check:")
	fmt.Println("benchmark metric baseline candidate delta")
	rows, failures := compare(baseline, candidate, threshold)
	for _, row := range rows {
		fmt.Println(row)
	}

	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "broker performance gate failed:")
		for _, failure := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", failure)
		}
		os.Exit(1)
	}
}

// compare checks every tracked metric against the baseline median and the
// allocation ceilings. It returns report rows and failures, both sorted.
func compare(baseline, candidate sampleSet, threshold float64) (rows, failures []string) {
	names := make([]string, 0, len(trackedMetrics))
	for name := range trackedMetrics {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, metric := range trackedMetrics[name] {
			baseSamples := baseline[name][metric]
			candidateSamples := candidate[name][metric]
			if len(candidateSamples) == 0 {
				failures = append(failures, fmt.Sprintf("missing candidate samples for %s %s", name, metric))
				continue
			}
			candidateMedian := median(candidateSamples)

			if len(baseSamples) == 0 {
				// New benchmark: nothing to compare against yet.
				rows = append(rows, fmt.Sprintf("%s %s - %.3f new", name, metric, candidateMedian))
				continue
			}
			baseMedian := median(baseSamples)
			if baseMedian <= 0 {
				// Zero-alloc baselines are held by allocCeilings instead.
				rows = append(rows, fmt.Sprintf("%s %s %.3f %.3f n/a", name, metric, baseMedian, candidateMedian))
				continue
			}

			delta := (candidateMedian - baseMedian) / baseMedian
			rows = append(rows, fmt.Sprintf("%s %s %.3f %.3f %+0.2f%%", name, metric, baseMedian, candidateMedian, delta*100))
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, metric, delta*100, threshold*100))
			}
		}

		if ceiling, ok := allocCeilings[name]; ok {
			allocs := candidate[name]["allocs/op"]
			if len(allocs) > 0 && median(allocs) > ceiling {
				failures = append(failures, fmt.Sprintf("%s allocates %.0f/op (ceiling %.0f)", name, median(allocs), ceiling))
			}
		}
	}
	return rows, failures
}

func parseBenchmarkFile(path string) (sampleSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	samples := sampleSet{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeBenchmarkName(fields[0])
		if _, ok := trackedMetrics[name]; !ok {
			continue
		}

		if _, ok := samples[name]; !ok {
			samples[name] = map[string][]float64{}
		}

		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			unit := fields[i+1]
			samples[name][unit] = append(samples[name][unit], value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

func normalizeBenchmarkName(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	copied := make([]float64, len(values))
	copy(copied, values)
	sort.Float64s(copied)

	mid := len(copied) / 2
	if len(copied)%2 == 1 {
		return copied[mid]
	}
	return (copied[mid-1] + copied[mid]) / 2
}
