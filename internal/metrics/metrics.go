package metrics

// Per-operation RTT collection for device sessions

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// OperationType represents the type of operation
type OperationType string

const (
	OperationIdentify      OperationType = "IDENTIFY"
	OperationPing          OperationType = "PING"
	OperationReset         OperationType = "RESET"
	OperationReadRegister  OperationType = "READ_REGISTER"
	OperationWriteRegister OperationType = "WRITE_REGISTER"
	OperationCommand       OperationType = "COMMAND"
)

// Metric represents a single operation metric
type Metric struct {
	Timestamp time.Time
	Operation OperationType
	Target    string
	Success   bool
	RTTMs     float64
	JitterMs  float64
	Value     float64
	Error     string
}

// Sink collects and aggregates metrics
type Sink struct {
	mu      sync.RWMutex
	metrics []Metric
	summary *Summary
}

func newSummary() *Summary {
	return &Summary{
		RTTBuckets:     make(map[string]int),
		RTTByOperation: make(map[OperationType]*OperationStats),
		RTTByTarget:    make(map[string]*OperationStats),
	}
}

// Summary contains aggregated statistics
type Summary struct {
	TotalOperations    int
	SuccessfulOps      int
	FailedOps          int
	TimeoutCount       int
	ConnectionFailures int
	MinRTT             float64
	MaxRTT             float64
	AvgRTT             float64
	P50RTT             float64
	P90RTT             float64
	P95RTT             float64
	P99RTT             float64
	MaxJitter          float64
	AvgJitter          float64
	jitterCount        int
	RTTBuckets         map[string]int
	RTTByOperation     map[OperationType]*OperationStats
	RTTByTarget        map[string]*OperationStats
}

// OperationStats contains statistics for one operation type or target
type OperationStats struct {
	Count   int
	Success int
	Failed  int
	MinRTT  float64
	MaxRTT  float64
	AvgRTT  float64
	SumRTT  float64
}

// NewSink creates a new metrics sink
func NewSink() *Sink {
	return &Sink{
		metrics: make([]Metric, 0),
		summary: newSummary(),
	}
}

// Record records a new metric
func (s *Sink) Record(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics = append(s.metrics, m)
	s.updateSummary(m)
}

// GetMetrics returns a copy of all recorded metrics
func (s *Sink) GetMetrics() []Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make([]Metric, len(s.metrics))
	copy(metrics, s.metrics)
	return metrics
}

// GetSummary returns the aggregated summary
func (s *Sink) GetSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{
		TotalOperations:    s.summary.TotalOperations,
		SuccessfulOps:      s.summary.SuccessfulOps,
		FailedOps:          s.summary.FailedOps,
		TimeoutCount:       s.summary.TimeoutCount,
		ConnectionFailures: s.summary.ConnectionFailures,
		MinRTT:             s.summary.MinRTT,
		MaxRTT:             s.summary.MaxRTT,
		AvgRTT:             s.summary.AvgRTT,
		MaxJitter:          s.summary.MaxJitter,
		AvgJitter:          s.summary.AvgJitter,
		RTTBuckets:         make(map[string]int),
		RTTByOperation:     copyStats(s.summary.RTTByOperation),
		RTTByTarget:        copyStats(s.summary.RTTByTarget),
	}

	rtts := make([]float64, 0, len(s.metrics))
	for _, m := range s.metrics {
		if m.Success && m.RTTMs > 0 {
			rtts = append(rtts, m.RTTMs)
			incrementBucket(summary.RTTBuckets, m.RTTMs)
		}
	}
	p := computePercentiles(rtts)
	summary.P50RTT, summary.P90RTT, summary.P95RTT, summary.P99RTT = p[0], p[1], p[2], p[3]
	return summary
}

func copyStats[K comparable](in map[K]*OperationStats) map[K]*OperationStats {
	out := make(map[K]*OperationStats, len(in))
	for k, v := range in {
		c := *v
		out[k] = &c
	}
	return out
}

// updateSummary updates the summary statistics with a new metric
func (s *Sink) updateSummary(m Metric) {
	s.summary.TotalOperations++

	if m.Success {
		s.summary.SuccessfulOps++
	} else {
		s.summary.FailedOps++
		if strings.Contains(m.Error, "timeout") {
			s.summary.TimeoutCount++
		}
		if strings.Contains(m.Error, "connection") || strings.Contains(m.Error, "connect") {
			s.summary.ConnectionFailures++
		}
	}

	if m.JitterMs > 0 {
		if m.JitterMs > s.summary.MaxJitter {
			s.summary.MaxJitter = m.JitterMs
		}
		s.summary.jitterCount++
		total := s.summary.AvgJitter * float64(s.summary.jitterCount-1)
		s.summary.AvgJitter = (total + m.JitterMs) / float64(s.summary.jitterCount)
	}

	if m.Success && m.RTTMs > 0 {
		if s.summary.MinRTT == 0 || m.RTTMs < s.summary.MinRTT {
			s.summary.MinRTT = m.RTTMs
		}
		if m.RTTMs > s.summary.MaxRTT {
			s.summary.MaxRTT = m.RTTMs
		}
		totalRTT := s.summary.AvgRTT * float64(s.summary.SuccessfulOps-1)
		s.summary.AvgRTT = (totalRTT + m.RTTMs) / float64(s.summary.SuccessfulOps)
	}

	updateStats(s.summary.RTTByOperation, m.Operation, m)
	updateStats(s.summary.RTTByTarget, m.Target, m)
}

func updateStats[K comparable](by map[K]*OperationStats, key K, m Metric) {
	st, ok := by[key]
	if !ok {
		st = &OperationStats{}
		by[key] = st
	}
	st.Count++
	if !m.Success {
		st.Failed++
		return
	}
	st.Success++
	if m.RTTMs > 0 {
		if st.MinRTT == 0 || m.RTTMs < st.MinRTT {
			st.MinRTT = m.RTTMs
		}
		if m.RTTMs > st.MaxRTT {
			st.MaxRTT = m.RTTMs
		}
		st.SumRTT += m.RTTMs
		st.AvgRTT = st.SumRTT / float64(st.Success)
	}
}

// rttBucketOrder lists histogram buckets by upper bound. The last bound is
// infinite.
var rttBucketOrder = []struct {
	key   string
	label string
	upper float64
}{
	{"lt_1ms", "<1ms", 1},
	{"1_5ms", "1-5ms", 5},
	{"5_10ms", "5-10ms", 10},
	{"10_50ms", "10-50ms", 50},
	{"50_100ms", "50-100ms", 100},
	{"100_500ms", "100-500ms", 500},
	{"gt_500ms", ">500ms", math.Inf(1)},
}

func incrementBucket(buckets map[string]int, ms float64) {
	for _, b := range rttBucketOrder {
		if ms < b.upper {
			buckets[b.key]++
			return
		}
	}
}

func computePercentiles(values []float64) [4]float64 {
	var result [4]float64
	if len(values) == 0 {
		return result
	}
	sort.Float64s(values)
	result[0] = percentile(values, 0.50)
	result[1] = percentile(values, 0.90)
	result[2] = percentile(values, 0.95)
	result[3] = percentile(values, 0.99)
	return result
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
