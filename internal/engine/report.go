package engine

import (
	"fmt"
	"io"

	"github.com/jroosing/dnsperf/internal/dns"
)

// rcodeNames maps the 4-bit RCODE values this tool's wire-parsing
// actually distinguishes to their mnemonic, falling back to a numeric
// label for anything else (spec.md §4.8 "RCODE breakdown").
var rcodeNames = map[int]string{
	int(dns.RCodeNoError):  "NOERROR",
	int(dns.RCodeFormErr):  "FORMERR",
	int(dns.RCodeServFail): "SERVFAIL",
	int(dns.RCodeNXDomain): "NXDOMAIN",
	int(dns.RCodeNotImp):   "NOTIMP",
	int(dns.RCodeRefused):  "REFUSED",
}

func rcodeName(i int) string {
	if name, ok := rcodeNames[i]; ok {
		return name
	}
	return fmt.Sprintf("RCODE%d", i)
}

// WriteReport prints the final statistics report to w, per spec.md
// §4.8: RCODE breakdown (only nonzero counts), average packet sizes,
// wall-clock run time, throughput, latency min/avg/max/stddev, then
// each worker's full latency vector in the order replies were received.
func WriteReport(w io.Writer, result *RunResult) {
	s := result.Summary

	fmt.Fprintf(w, "\nStatistics:\n\n")
	fmt.Fprintf(w, "  Queries sent:         %d\n", s.NumSent)
	fmt.Fprintf(w, "  Queries completed:    %d\n", s.NumCompleted)
	fmt.Fprintf(w, "  Queries timed out:    %d\n", s.NumTimedOut)
	fmt.Fprintf(w, "  Queries interrupted:  %d\n", s.NumInterrupted)

	fmt.Fprintf(w, "\n  Response codes:\n")
	for i := 0; i < NumRCodes; i++ {
		if s.RCodeCounts[i] == 0 {
			continue
		}
		fmt.Fprintf(w, "    %-10s %d (%.2f%%)\n", rcodeName(i), s.RCodeCounts[i], pct(s.RCodeCounts[i], s.NumCompleted))
	}

	if s.NumSent > 0 {
		fmt.Fprintf(w, "\n  Average request size:  %.2f bytes\n", float64(s.TotalRequestSize)/float64(s.NumSent))
	}
	if s.NumCompleted > 0 {
		fmt.Fprintf(w, "  Average response size: %.2f bytes\n", float64(s.TotalResponseSize)/float64(s.NumCompleted))
	}

	fmt.Fprintf(w, "\n  Run time (s):  %.6f\n", result.Duration.Seconds())
	if result.Duration > 0 {
		fmt.Fprintf(w, "  Queries/sec:   %.2f\n", float64(s.NumCompleted)/result.Duration.Seconds())
	}

	fmt.Fprintf(w, "\n  Latency (microseconds):\n")
	fmt.Fprintf(w, "    Min:     %d\n", s.LatencyMin)
	fmt.Fprintf(w, "    Avg:     %.2f\n", s.LatencyAvg)
	fmt.Fprintf(w, "    Max:     %d\n", s.LatencyMax)
	fmt.Fprintf(w, "    StdDev:  %.2f\n", s.LatencyStdDev)

	if result.Interrupted {
		fmt.Fprintf(w, "\n  Run was interrupted.\n")
	}

	for i, lat := range result.Latencies {
		fmt.Fprintf(w, "\nThread %d latencies (us), in receipt order:\n", i)
		for _, v := range lat {
			fmt.Fprintf(w, "%d\n", v)
		}
	}
}

func pct(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
