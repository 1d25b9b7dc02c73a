package engine

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRCodeNameKnown(t *testing.T) {
	assert.Equal(t, "NOERROR", rcodeName(0))
	assert.Equal(t, "NXDOMAIN", rcodeName(3))
}

func TestRCodeNameUnknownFallsBackToNumeric(t *testing.T) {
	assert.Equal(t, "RCODE9", rcodeName(9))
}

func TestPct(t *testing.T) {
	assert.InDelta(t, 50.0, pct(5, 10), 1e-9)
	assert.Zero(t, pct(5, 0))
}

func TestWriteReportIncludesCoreSections(t *testing.T) {
	result := &RunResult{
		Summary: Summary{
			NumSent:      10,
			NumCompleted: 8,
			NumTimedOut:  2,
			LatencyMin:   100,
			LatencyAvg:   150,
			LatencyMax:   300,
		},
		Latencies: [][]int64{{100, 200}},
		Duration:  2 * time.Second,
	}
	result.Summary.RCodeCounts[0] = 8

	var buf bytes.Buffer
	WriteReport(&buf, result)
	out := buf.String()

	assert.Contains(t, out, "Queries sent:         10")
	assert.Contains(t, out, "NOERROR")
	assert.Contains(t, out, "Queries/sec:")
	assert.Contains(t, out, "Thread 0 latencies")
	assert.NotContains(t, out, "interrupted.")
}

func TestWriteReportMarksInterruptedRun(t *testing.T) {
	result := &RunResult{Interrupted: true}
	var buf bytes.Buffer
	WriteReport(&buf, result)
	assert.Contains(t, buf.String(), "Run was interrupted.")
}
