// Package engine drives one dnsperf run: a coordinator spawns a Worker
// per thread, each owning a Query Slot Table, a Socket Set, and a
// sender/receiver goroutine pair, then aggregates and reports the
// combined statistics once every worker has stopped.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	appconfig "github.com/jroosing/dnsperf/internal/config"
	"github.com/jroosing/dnsperf/internal/dns"
	engerrors "github.com/jroosing/dnsperf/internal/errors"
	"github.com/jroosing/dnsperf/internal/input"
	"github.com/jroosing/dnsperf/internal/ratelimit"
	"github.com/jroosing/dnsperf/internal/transport"
)

// Plan is the coordinator's resolved, per-thread quota distribution
// (spec.md §4.7), computed once before any worker starts.
type Plan struct {
	Threads        int
	MaxOutstanding []int
	MaxQPS         []int
	Clients        []int
}

// quotaShare implements the spec.md §4.7 distribution formula: thread k
// (0-indexed) of n receives floor(total/n) + 1 if k < total mod n.
func quotaShare(total, n int) []int {
	if n <= 0 {
		return nil
	}
	base := total / n
	rem := total % n
	out := make([]int, n)
	for k := 0; k < n; k++ {
		out[k] = base
		if k < rem {
			out[k]++
		}
	}
	return out
}

// BuildPlan resolves the global client/thread/outstanding/QPS knobs
// into a per-thread Plan, applying every cap spec.md §4.7 names.
func BuildPlan(threads, clients, maxOutstanding, maxQPS int) Plan {
	n := threads
	if n < 1 {
		n = 1
	}
	if maxQPS > 0 && maxQPS < n {
		n = maxQPS
	}
	if n > clients {
		n = clients
	}
	if n < 1 {
		n = 1
	}

	outstandingTotal := maxOutstanding
	if outstandingTotal > NumSlots {
		outstandingTotal = NumSlots
	}
	clientsCapped := clients
	if clientsCapped > transport.MaxSockets {
		clientsCapped = transport.MaxSockets
	}

	plan := Plan{
		Threads:        n,
		MaxOutstanding: quotaShare(outstandingTotal, n),
		Clients:        quotaShare(clientsCapped, n),
	}
	if maxQPS > 0 {
		plan.MaxQPS = quotaShare(maxQPS, n)
	}
	return plan
}

// RunResult is the outcome of one coordinated run.
type RunResult struct {
	Summary    Summary
	PerWorker  []*Stats
	Latencies  [][]int64
	Duration   time.Duration
	Interrupted bool
	FatalErr   error
}

// Options configures optional coordinator behavior beyond the core
// send/receive/aggregate loop.
type Options struct {
	// OnStart, if set, is invoked once workers are constructed but
	// before they run, handing back the live worker set and the
	// microsecond start timestamp — the hook the status API uses to
	// observe an in-progress run.
	OnStart func(workers []*Worker, startMicros int64)
	// StatusOut receives interval-stats lines (spec.md §6 "-S"); nil
	// disables the reporter regardless of cfg.StatsInterval.
	StatusOut func(string)
}

// Run wires a resolved appconfig.Config into a Plan, opens sockets and
// input, spawns one Worker per thread, waits for the stop condition,
// and aggregates the result (spec.md §4's Coordinator).
func Run(ctx context.Context, cfg *appconfig.Config, inputReader io.Reader, logger *slog.Logger, opts Options) (*RunResult, error) {
	maxRuns := int(cfg.MaxRuns)
	if cfg.TimeLimit > 0 && cfg.MaxRuns == 0 {
		maxRuns = 0 // unbounded passes; the wall-clock deadline stops the run
	} else if maxRuns == 0 {
		maxRuns = 1
	}
	src, err := input.New(inputReader, cfg.Updates, maxRuns)
	if err != nil {
		return nil, fmt.Errorf("%w: loading input: %w", engerrors.ErrSetupFatal, err)
	}
	if src.Len() == 0 {
		return nil, fmt.Errorf("%w: %w", engerrors.ErrSetupFatal, engerrors.ErrInputEmpty)
	}

	plan := BuildPlan(int(cfg.Threads), int(cfg.Clients), int(cfg.MaxOutstanding), int(cfg.MaxQPS))

	var tsigKey *dns.TSIGKey
	if cfg.TSIGKey != "" {
		k, err := dns.ParseTSIGKey(cfg.TSIGKey)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing TSIG key: %w", engerrors.ErrSetupFatal, err)
		}
		tsigKey = &k
	}
	var ednsOpts []dns.EDNSOption
	if cfg.EDNSOption != "" {
		opt, err := dns.ParseEDNSOption(cfg.EDNSOption)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing EDNS option: %w", engerrors.ErrSetupFatal, err)
		}
		ednsOpts = append(ednsOpts, opt)
	}
	ednsEnabled := cfg.EDNS || cfg.EDNSOption != "" || cfg.DNSSEC

	interrupts := newInterruptSource(ctx)
	defer interrupts.Stop()

	var stopAt time.Time
	if cfg.TimeLimit > 0 {
		stopAt = time.Now().Add(cfg.TimeLimit)
		go func() {
			t := time.NewTimer(cfg.TimeLimit)
			defer t.Stop()
			select {
			case <-t.C:
				interrupts.Stop()
			case <-interrupts.Done():
			}
		}()
	}

	workers := make([]*Worker, plan.Threads)
	for k := 0; k < plan.Threads; k++ {
		sockets, err := openSockets(cfg, plan.Clients[k])
		if err != nil {
			return nil, fmt.Errorf("%w: opening sockets for thread %d: %w", engerrors.ErrSetupFatal, k, err)
		}

		wcfg := Config{
			MaxOutstanding: plan.MaxOutstanding[k],
			Timeout:        cfg.Timeout,
			StopAt:         stopAt,
			Verbose:        cfg.Verbose,
			Updates:        cfg.Updates,
			EDNSEnabled:    ednsEnabled,
			EDNSOptions:    ednsOpts,
			DNSSECOk:       cfg.DNSSEC,
			UDPPayloadSize: 4096,
			TSIGKey:        tsigKey,
			TransportMode:  transport.Mode(cfg.Mode),
		}
		if len(plan.MaxQPS) > 0 {
			wcfg.Pacer = ratelimit.NewWallClockPacer(float64(plan.MaxQPS[k]))
		}

		workers[k] = NewWorker(k, wcfg, sockets, src, logger)
	}

	start := time.Now()
	startMicros := nowMicros()

	if opts.OnStart != nil {
		opts.OnStart(workers, startMicros)
	}
	if cfg.StatsInterval > 0 && opts.StatusOut != nil {
		reporter := NewIntervalReporter(cfg.StatsInterval, workers, startMicros, opts.StatusOut, logger)
		go reporter.Run(interrupts.Context())
	}

	var wg sync.WaitGroup
	errs := make([]error, plan.Threads)
	wg.Add(plan.Threads)
	for k := range workers {
		k := k
		go func() {
			defer wg.Done()
			errs[k] = workers[k].Run(interrupts.Context(), startMicros)
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	for _, w := range workers {
		w.sockets.Close()
	}

	var fatal error
	for _, e := range errs {
		if e != nil {
			fatal = e
			break
		}
	}

	perWorker := make([]*Stats, len(workers))
	latencies := make([][]int64, len(workers))
	for i, w := range workers {
		w.mu.Lock()
		st := w.stats
		w.mu.Unlock()
		perWorker[i] = &st
		latencies[i] = w.latency.Values()
	}

	return &RunResult{
		Summary:     Aggregate(perWorker),
		PerWorker:   perWorker,
		Latencies:   latencies,
		Duration:    duration,
		Interrupted: interrupts.Interrupted(),
		FatalErr:    fatal,
	}, nil
}

// openSockets opens n transport handles for one worker, per the
// configured mode/family/local-bind/buffer-size settings (spec.md §4.4,
// §6 flags -f/-m/-a/-x/-b).
func openSockets(cfg *appconfig.Config, n int) (*transport.Set, error) {
	if n < 1 {
		n = 1
	}
	family := transport.Family(cfg.Family)
	raddr := fmt.Sprintf("%s:%d", cfg.Server, resolvePort(cfg))
	var laddr string
	if cfg.LocalAddr != "" || cfg.LocalPort != 0 {
		laddr = fmt.Sprintf("%s:%d", cfg.LocalAddr, cfg.LocalPort)
	}

	handles := make([]transport.Handle, 0, n)
	for i := 0; i < n; i++ {
		var h transport.Handle
		var err error
		switch transport.Mode(cfg.Mode) {
		case transport.ModeTCP, transport.ModeTLS:
			h, err = transport.DialStream(context.Background(), transport.Mode(cfg.Mode), family, laddr, raddr, nil)
		default:
			h, err = transport.DialUDP(family, laddr, raddr, cfg.BufferSize)
		}
		if err != nil {
			for _, opened := range handles {
				_ = opened.Close()
			}
			return nil, err
		}
		handles = append(handles, h)
	}
	return transport.NewSet(handles)
}

// LiveSummary snapshots the given workers' stats without waiting for
// them to finish, for the status API's /stats endpoint.
func LiveSummary(workers []*Worker) Summary {
	perWorker := make([]*Stats, len(workers))
	for i, w := range workers {
		w.mu.Lock()
		st := w.stats
		w.mu.Unlock()
		perWorker[i] = &st
	}
	return Aggregate(perWorker)
}

func resolvePort(cfg *appconfig.Config) int {
	if cfg.Port != 0 {
		return cfg.Port
	}
	if transport.Mode(cfg.Mode) == transport.ModeTLS {
		return 853
	}
	return 53
}
