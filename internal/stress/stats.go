package stress

import "sort"

// Stats is the terminal aggregate of a load run. It is populated only
// after every worker has stopped; nothing reads it mid-run.
type Stats struct {
	Completed    int
	Errors       int
	StatusCounts map[int]int
	Durations    []int64

	TotalDurationMs int64
	MinDurationMs   int64
	MaxDurationMs   int64
	ElapsedMs       int64
	RPS             float64
}

func newStats() *Stats {
	return &Stats{
		StatusCounts:  make(map[int]int),
		Durations:     make([]int64, 0, 1024),
		MinDurationMs: -1,
		MaxDurationMs: -1,
	}
}

// add records one completed invocation. status is 0 for transport or
// script failures.
func (s *Stats) add(durationMs int64, status int, failed bool) {
	s.Completed++
	s.TotalDurationMs += durationMs
	s.Durations = append(s.Durations, durationMs)
	if failed {
		s.Errors++
	}
	if status != 0 {
		s.StatusCounts[status]++
	}
	if s.MinDurationMs == -1 || durationMs < s.MinDurationMs {
		s.MinDurationMs = durationMs
	}
	if durationMs > s.MaxDurationMs {
		s.MaxDurationMs = durationMs
	}
}

// AvgDurationMs returns the mean latency in milliseconds.
func (s *Stats) AvgDurationMs() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.TotalDurationMs) / float64(s.Completed)
}

// Min returns the minimum latency, or 0 when nothing completed.
func (s *Stats) Min() int64 {
	if s.MinDurationMs == -1 {
		return 0
	}
	return s.MinDurationMs
}

// Max returns the maximum latency, or 0 when nothing completed.
func (s *Stats) Max() int64 {
	if s.MaxDurationMs == -1 {
		return 0
	}
	return s.MaxDurationMs
}

// Percentile computes the p-th latency percentile with linear
// interpolation between the two nearest samples.
func (s *Stats) Percentile(p float64) int64 {
	if len(s.Durations) == 0 {
		return 0
	}

	sorted := make([]int64, len(s.Durations))
	copy(sorted, s.Durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := (p / 100.0) * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := index - float64(lower)
	return int64(float64(sorted[lower])*(1-weight) + float64(sorted[upper])*weight)
}

// P50 returns the median latency.
func (s *Stats) P50() int64 { return s.Percentile(50) }

// P90 returns the 90th percentile latency.
func (s *Stats) P90() int64 { return s.Percentile(90) }

// P95 returns the 95th percentile latency.
func (s *Stats) P95() int64 { return s.Percentile(95) }

// P99 returns the 99th percentile latency.
func (s *Stats) P99() int64 { return s.Percentile(99) }
