package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// IntervalReporter prints an aggregate-QPS line every period, matching
// the "<sec>.<usec>: <qps>" stdout format of spec.md §6, and logs
// CPU/memory utilization alongside it so a long run's resource pressure
// shows up in the same operational trail as its throughput.
type IntervalReporter struct {
	period  time.Duration
	workers []*Worker
	startAt int64
	out     func(string)
	logger  *slog.Logger
}

// NewIntervalReporter builds a reporter sampling numSent across workers
// every period, writing lines through out (normally fmt.Println-backed).
func NewIntervalReporter(period time.Duration, workers []*Worker, startAt int64, out func(string), logger *slog.Logger) *IntervalReporter {
	return &IntervalReporter{period: period, workers: workers, startAt: startAt, out: out, logger: logger}
}

// Run blocks, printing one line per tick until ctx is done. Intended to
// run in its own goroutine alongside the coordinator's worker wait.
func (r *IntervalReporter) Run(ctx context.Context) {
	if r.period <= 0 {
		return
	}
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	var lastSent uint64
	lastElapsed := time.Duration(0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent := r.totalSent()
			elapsed := time.Duration(microsSince(r.startAt)) * time.Microsecond
			delta := elapsed - lastElapsed
			var qps float64
			if delta > 0 {
				qps = float64(sent-lastSent) / delta.Seconds()
			}
			lastSent, lastElapsed = sent, elapsed

			sec := elapsed / time.Second
			usec := (elapsed % time.Second) / time.Microsecond
			r.out(fmt.Sprintf("%d.%06d: %.2f", sec, usec, qps))
			r.sampleResources()
		}
	}
}

func (r *IntervalReporter) totalSent() uint64 {
	var total uint64
	for _, w := range r.workers {
		w.mu.Lock()
		total += w.stats.NumSent
		w.mu.Unlock()
	}
	return total
}

// sampleResources logs host CPU and memory utilization, the interval
// thread's domain-stack contribution beyond the original tool's plain
// QPS line.
func (r *IntervalReporter) sampleResources() {
	if r.logger == nil {
		return
	}
	percents, err := cpu.Percent(0, false)
	var cpuPct float64
	if err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	}
	var usedPct float64
	if vm, err := mem.VirtualMemory(); err == nil {
		usedPct = vm.UsedPercent
	}
	r.logger.Debug("interval sample", "cpu_percent", cpuPct, "mem_used_percent", usedPct)
}
