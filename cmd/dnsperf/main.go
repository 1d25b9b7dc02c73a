// Command dnsperf drives a DNS load-generation run: it reads queries or
// update groups from a file (or stdin), sends them at a configured rate
// and concurrency, and reports latency/throughput/RCODE statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jroosing/dnsperf/internal/archive"
	appconfig "github.com/jroosing/dnsperf/internal/config"
	"github.com/jroosing/dnsperf/internal/engine"
	"github.com/jroosing/dnsperf/internal/logging"
	"github.com/jroosing/dnsperf/internal/statusapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("C", "", "config file path")

		family    = flag.String("f", "", "address family: inet, inet6, any")
		mode      = flag.String("m", "", "transport mode: udp, tcp, tls")
		server    = flag.String("s", "", "target server host")
		port      = flag.Int("p", 0, "target server port")
		localAddr = flag.String("a", "", "local bind address")
		localPort = flag.Int("x", 0, "local bind port")
		inputFile = flag.String("d", "", "input file path (- or omitted means stdin)")

		clients = flag.Uint("c", 0, "total client sockets")
		threads = flag.Uint("T", 0, "worker threads")
		maxRuns = flag.Uint("n", 0, "max replay passes")

		timeLimit  = flag.Float64("l", 0, "wall time limit in seconds")
		bufferSize = flag.Int("b", 0, "socket buffer size in KB")
		timeout    = flag.Float64("t", 0, "per-query timeout in seconds")

		ednsEnabled = flag.Bool("e", false, "enable EDNS0")
		ednsOption  = flag.String("E", "", "EDNS option as code:value (implies -e)")
		dnssecOK    = flag.Bool("D", false, "set the DNSSEC OK bit (implies -e)")
		tsigKey     = flag.String("y", "", "TSIG key as [alg:]name:secret")

		maxOutstanding = flag.Uint("q", 0, "max outstanding queries")
		maxQPS         = flag.Uint("Q", 0, "global QPS cap")
		statsInterval  = flag.Float64("S", 0, "interval-stats period in seconds")

		updates = flag.Bool("u", false, "send dynamic updates instead of queries")
		verbose = flag.Bool("v", false, "verbose per-query trace")

		archivePath    = flag.String("A", "", "SQLite path to archive this run's summary")
		archiveHistory = flag.Int("history", 0, "print the last N archived runs and exit")
		statusAddr     = flag.String("H", "", "address for the optional HTTP status API, e.g. :8080")
	)
	flag.Parse()

	cfg, err := appconfig.Load(appconfig.ResolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsperf: loading config: %v\n", err)
		return 1
	}

	overrides := buildOverrides(family, mode, server, port, localAddr, localPort,
		inputFile, clients, threads, maxRuns, timeLimit, bufferSize, timeout,
		ednsEnabled, ednsOption, dnssecOK, tsigKey, maxOutstanding, maxQPS, statsInterval,
		updates, verbose, archivePath, archiveHistory, statusAddr)

	if err := appconfig.ApplyFlagOverrides(cfg, overrides); err != nil {
		fmt.Fprintf(os.Stderr, "dnsperf: invalid configuration: %v\n", err)
		return 1
	}

	logger := logging.Configure(logging.Config{
		Level:      cfg.Logging.Level,
		Structured: cfg.Logging.Structured,
		Format:     cfg.Logging.Format,
	})

	var store *archive.Store
	if cfg.Archive.Path != "" {
		store, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "dnsperf: opening archive: %v\n", err)
			return 1
		}
		defer store.Close()
	}

	if *archiveHistory > 0 {
		return printHistory(store, *archiveHistory)
	}

	inputReader, closeInput, err := openInput(cfg.InputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsperf: opening input: %v\n", err)
		return 1
	}
	defer closeInput()

	var apiServer *statusapi.Server
	opts := engine.Options{
		StatusOut: func(line string) { fmt.Println(line) },
	}
	if cfg.Status.Addr != "" {
		opts.OnStart = func(workers []*engine.Worker, _ int64) {
			apiServer = statusapi.New(cfg.Status.Addr, func() statusapi.Snapshot {
				s := engine.LiveSummary(workers)
				return statusapi.Snapshot{
					NumSent:        s.NumSent,
					NumCompleted:   s.NumCompleted,
					NumTimedOut:    s.NumTimedOut,
					NumInterrupted: s.NumInterrupted,
					LatencyAvgUs:   s.LatencyAvg,
				}
			}, store, logger)
			go func() {
				if err := apiServer.ListenAndServe(); err != nil {
					logger.Warn("status API server stopped", "err", err)
				}
			}()
		}
	}

	result, err := engine.Run(context.Background(), cfg, inputReader, logger, opts)
	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = apiServer.Shutdown(ctx)
		cancel()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsperf: %v\n", err)
		return 1
	}
	if result.FatalErr != nil {
		fmt.Fprintf(os.Stderr, "dnsperf: %v\n", result.FatalErr)
		return 1
	}

	engine.WriteReport(os.Stdout, result)

	if store != nil {
		if _, err := store.Insert(summaryToRun(cfg, result)); err != nil {
			logger.Warn("failed to archive run", "err", err)
		}
	}

	return 0
}

func openInput(path string) (*os.File, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func printHistory(store *archive.Store, n int) int {
	if store == nil {
		fmt.Fprintln(os.Stderr, "dnsperf: -history requires -A <path>")
		return 1
	}
	runs, err := store.List(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsperf: listing history: %v\n", err)
		return 1
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %s:%s  sent=%d completed=%d avg_latency_us=%.2f\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Server, r.Mode, r.NumSent, r.NumCompleted, r.LatencyAvgUS)
	}
	return 0
}

func summaryToRun(cfg *appconfig.Config, result *engine.RunResult) archive.Run {
	s := result.Summary
	rcodes := make(map[int]uint64, engine.NumRCodes)
	for i := 0; i < engine.NumRCodes; i++ {
		if s.RCodeCounts[i] > 0 {
			rcodes[i] = s.RCodeCounts[i]
		}
	}
	now := time.Now()
	return archive.Run{
		StartedAt:      now.Add(-result.Duration),
		FinishedAt:     now,
		Server:         cfg.Server,
		Mode:           string(cfg.Mode),
		Threads:        int(cfg.Threads),
		NumSent:        s.NumSent,
		NumCompleted:   s.NumCompleted,
		NumTimedOut:    s.NumTimedOut,
		NumInterrupted: s.NumInterrupted,
		LatencyMinUS:   uint64(s.LatencyMin),
		LatencyAvgUS:   s.LatencyAvg,
		LatencyMaxUS:   uint64(s.LatencyMax),
		LatencyStdDev:  s.LatencyStdDev,
		RCodeCounts:    rcodes,
	}
}

// buildOverrides turns the parsed flag pointers into a FlagOverrides,
// including a value only when the caller actually passed that flag
// (flag.Visit reports only flags that were set), so an unset flag
// never clobbers a config-file or environment-sourced value.
func buildOverrides(
	family, mode, server *string, port *int, localAddr *string, localPort *int,
	inputFile *string, clients, threads, maxRuns *uint, timeLimit *float64, bufferSize *int, timeout *float64,
	ednsEnabled *bool, ednsOption *string, dnssecOK *bool, tsigKey *string,
	maxOutstanding, maxQPS *uint, statsInterval *float64,
	updates, verbose *bool, archivePath *string, archiveHistory *int, statusAddr *string,
) appconfig.FlagOverrides {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	o := appconfig.FlagOverrides{
		EDNS:    *ednsEnabled,
		DNSSEC:  *dnssecOK,
		Updates: *updates,
		Verbose: *verbose,
	}
	if set["f"] {
		o.Family = family
	}
	if set["m"] {
		o.Mode = mode
	}
	if set["s"] {
		o.Server = server
	}
	if set["p"] {
		o.Port = port
	}
	if set["a"] {
		o.LocalAddr = localAddr
	}
	if set["x"] {
		o.LocalPort = localPort
	}
	if set["d"] {
		o.InputFile = inputFile
	}
	if set["c"] {
		v := uint32(*clients)
		o.Clients = &v
	}
	if set["T"] {
		v := uint32(*threads)
		o.Threads = &v
	}
	if set["n"] {
		v := uint32(*maxRuns)
		o.MaxRuns = &v
	}
	if set["l"] {
		o.TimeLimitSeconds = timeLimit
	}
	if set["b"] {
		o.BufferSize = bufferSize
	}
	if set["t"] {
		o.TimeoutSeconds = timeout
	}
	if set["E"] {
		o.EDNSOption = ednsOption
	}
	if set["y"] {
		o.TSIGKey = tsigKey
	}
	if set["q"] {
		v := uint32(*maxOutstanding)
		o.MaxOutstanding = &v
	}
	if set["Q"] {
		v := uint32(*maxQPS)
		o.MaxQPS = &v
	}
	if set["S"] {
		o.StatsInterval = statsInterval
	}
	if set["A"] {
		o.ArchivePath = archivePath
	}
	if set["history"] {
		o.ArchiveHistory = archiveHistory
	}
	if set["H"] {
		o.StatusAddr = statusAddr
	}
	return o
}
