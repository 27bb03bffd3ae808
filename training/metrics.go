package training

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// IterationRecord captures one iteration's density-control outcome.
type IterationRecord struct {
	Iteration  int
	Population int
	Relocated  int
	Added      int
	MeansLR    float64
}

// MetricsCollector accumulates per-iteration records for analysis and
// plotting. Collection is disabled until Enable is called so the hot loop
// pays nothing by default.
type MetricsCollector struct {
	mu        sync.Mutex
	enabled   bool
	records   []IterationRecord
	stepTimes []time.Duration
}

// NewMetricsCollector creates a disabled collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		records:   make([]IterationRecord, 0),
		stepTimes: make([]time.Duration, 0),
	}
}

// Enable enables metrics collection
func (mc *MetricsCollector) Enable() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = true
}

// Disable disables metrics collection
func (mc *MetricsCollector) Disable() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.enabled = false
}

// IsEnabled returns whether metrics collection is enabled
func (mc *MetricsCollector) IsEnabled() bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.enabled
}

// RecordIteration appends one iteration record.
func (mc *MetricsCollector) RecordIteration(rec IterationRecord) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if !mc.enabled {
		return
	}
	mc.records = append(mc.records, rec)
}

// RecordStepTime appends one optimizer-step duration.
func (mc *MetricsCollector) RecordStepTime(d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if !mc.enabled {
		return
	}
	mc.stepTimes = append(mc.stepTimes, d)
}

// Records returns a copy of the collected iteration records.
func (mc *MetricsCollector) Records() []IterationRecord {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	out := make([]IterationRecord, len(mc.records))
	copy(out, mc.records)
	return out
}

// Clear resets all collected data.
func (mc *MetricsCollector) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.records = mc.records[:0]
	mc.stepTimes = mc.stepTimes[:0]
}

// Summary condenses a run's records into aggregate statistics.
type Summary struct {
	Iterations      int
	FinalPopulation int
	MeanPopulation  float64
	TotalRelocated  int
	TotalAdded      int
	FinalMeansLR    float64
	MeanStepTime    time.Duration
	StdDevStepTime  time.Duration
}

// Summarize computes aggregate statistics over everything recorded so far.
func (mc *MetricsCollector) Summarize() Summary {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	var s Summary
	s.Iterations = len(mc.records)
	if len(mc.records) > 0 {
		last := mc.records[len(mc.records)-1]
		s.FinalPopulation = last.Population
		s.FinalMeansLR = last.MeansLR

		populations := make([]float64, len(mc.records))
		for i, rec := range mc.records {
			populations[i] = float64(rec.Population)
			s.TotalRelocated += rec.Relocated
			s.TotalAdded += rec.Added
		}
		s.MeanPopulation = stat.Mean(populations, nil)
	}

	if len(mc.stepTimes) > 0 {
		seconds := make([]float64, len(mc.stepTimes))
		for i, d := range mc.stepTimes {
			seconds[i] = d.Seconds()
		}
		s.MeanStepTime = time.Duration(stat.Mean(seconds, nil) * float64(time.Second))
		if len(seconds) > 1 {
			s.StdDevStepTime = time.Duration(stat.StdDev(seconds, nil) * float64(time.Second))
		}
	}
	return s
}
