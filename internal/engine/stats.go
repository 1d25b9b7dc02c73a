package engine

import "math"

// NumRCodes is the number of distinct RCODE values the 4-bit field can
// carry (spec.md §3, §4.3).
const NumRCodes = 16

// Stats is one worker's counters (spec.md §3 "Per-Worker State"/"stats").
// Fields written only by the receiver (everything except NumSent,
// TotalRequestSize, which the sender owns) need no synchronization
// beyond what already serializes sender/receiver access to the shared
// slot table, since each worker's own goroutines are the only writers.
type Stats struct {
	NumSent        uint64
	NumCompleted   uint64
	NumTimedOut    uint64
	NumInterrupted uint64

	TotalRequestSize  uint64
	TotalResponseSize uint64

	LatencySum        float64
	LatencySumSquares float64
	LatencyMin        int64
	LatencyMax        int64

	RCodeCounts [NumRCodes]uint64
}

// RecordSend updates sender-owned counters for one successfully
// transmitted query (spec.md §4.2 step 8, "Full send").
func (s *Stats) RecordSend(requestSize int) {
	s.NumSent++
	s.TotalRequestSize += uint64(requestSize)
}

// RecordCompletion updates receiver-owned counters for one correlated,
// non-short, non-unexpected response (spec.md §4.3 step 4).
func (s *Stats) RecordCompletion(latencyMicros int64, responseSize int, rcode int) {
	s.NumCompleted++
	s.TotalResponseSize += uint64(responseSize)

	lf := float64(latencyMicros)
	s.LatencySum += lf
	s.LatencySumSquares += lf * lf
	if s.NumCompleted == 1 || latencyMicros < s.LatencyMin {
		s.LatencyMin = latencyMicros
	}
	if latencyMicros > s.LatencyMax {
		s.LatencyMax = latencyMicros
	}
	if rcode >= 0 && rcode < NumRCodes {
		s.RCodeCounts[rcode]++
	}
}

// RecordTimeout updates counters for a query the receiver's timeout
// sweep reclaimed (spec.md §4.3 step 1).
func (s *Stats) RecordTimeout() { s.NumTimedOut++ }

// RecordInterrupted updates counters for a query force-cancelled by
// cancelQueries (spec.md §4.6).
func (s *Stats) RecordInterrupted(n uint64) { s.NumInterrupted += n }

// Summary is the final cross-worker aggregate (spec.md §4.8).
type Summary struct {
	NumSent        uint64
	NumCompleted   uint64
	NumTimedOut    uint64
	NumInterrupted uint64

	TotalRequestSize  uint64
	TotalResponseSize uint64

	LatencyMin    int64
	LatencyAvg    float64
	LatencyMax    int64
	LatencyStdDev float64

	RCodeCounts [NumRCodes]uint64
}

// Aggregate sums per-worker stats elementwise (spec.md §8 property 5:
// associative regardless of summing order) and derives the latency
// summary fields.
func Aggregate(perWorker []*Stats) Summary {
	var sum Summary
	var latencySum, latencySumSquares float64
	minSet := false

	for _, s := range perWorker {
		sum.NumSent += s.NumSent
		sum.NumCompleted += s.NumCompleted
		sum.NumTimedOut += s.NumTimedOut
		sum.NumInterrupted += s.NumInterrupted
		sum.TotalRequestSize += s.TotalRequestSize
		sum.TotalResponseSize += s.TotalResponseSize
		latencySum += s.LatencySum
		latencySumSquares += s.LatencySumSquares
		for i := 0; i < NumRCodes; i++ {
			sum.RCodeCounts[i] += s.RCodeCounts[i]
		}

		if s.NumCompleted == 0 {
			continue
		}
		if !minSet || s.LatencyMin < sum.LatencyMin {
			sum.LatencyMin = s.LatencyMin
			minSet = true
		}
		if s.LatencyMax > sum.LatencyMax {
			sum.LatencyMax = s.LatencyMax
		}
	}

	n := float64(sum.NumCompleted)
	if n > 0 {
		sum.LatencyAvg = latencySum / n
	}
	if n > 1 {
		variance := (latencySumSquares - latencySum*latencySum/n) / (n - 1)
		if variance > 0 {
			sum.LatencyStdDev = math.Sqrt(variance)
		}
	}
	return sum
}
