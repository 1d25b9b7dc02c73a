package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	engerrors "github.com/jroosing/dnsperf/internal/errors"
	"github.com/jroosing/dnsperf/internal/input"
	"github.com/jroosing/dnsperf/internal/transport"
)

// Worker owns one Query Slot Table, socket set, sender, receiver, and
// the mutex+condvar pair serializing their access to shared state
// (spec.md §2 item 6, §5).
type Worker struct {
	ID     int
	Config Config
	Logger *slog.Logger

	table   *SlotTable
	sockets *transport.Set
	input   *input.Source
	stats   Stats
	latency *LatencyRecorder

	mu   sync.Mutex
	cond *sync.Cond

	currentSocket int
	doneSending   bool
	doneSendTime  int64
	lastRecv      int64
	failed        bool

	fatalCh chan error
}

// NewWorker builds a worker. sockets must already be open; input is
// shared across all workers in the run.
func NewWorker(id int, cfg Config, sockets *transport.Set, src *input.Source, logger *slog.Logger) *Worker {
	w := &Worker{
		ID:      id,
		Config:  cfg,
		Logger:  logger,
		table:   NewSlotTable(),
		sockets: sockets,
		input:   src,
		latency: NewLatencyRecorder(0),
		fatalCh: make(chan error, 4),
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Run drives the worker's sender and receiver goroutines to completion;
// the final stats stay on the worker. It returns a non-nil error only for a
// process-fatal condition (spec.md §7 "Other recv error"/"missing
// input").
func (w *Worker) Run(ctx context.Context, startAt int64) error {
	// Wake any condvar waiter (sender blocked on the in-flight cap) the
	// instant the run is cancelled, mirroring the thread_pipe wake used
	// to unblock socket-readiness waits in the original design.
	wakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-wakeDone:
		}
	}()
	defer close(wakeDone)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.senderLoop(ctx, startAt)
	}()
	go func() {
		defer wg.Done()
		w.receiverLoop(ctx)
	}()
	wg.Wait()

	select {
	case err := <-w.fatalCh:
		return err
	default:
		return nil
	}
}

// reportFatal delivers a process-fatal error to Run's caller and wakes
// the sender, which checks isFailed and winds itself down the same way
// it would for a cancelled context.
func (w *Worker) reportFatal(err error) {
	w.mu.Lock()
	w.failed = true
	w.cond.Broadcast()
	w.mu.Unlock()

	select {
	case w.fatalCh <- err:
	default:
	}
}

// isFailed reports whether a fatal condition has already been reported
// for this worker (e.g. an unrecoverable recv error), which the sender
// treats as an immediate stop signal alongside context cancellation.
func (w *Worker) isFailed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failed
}

// cancelQueries force-completes every remaining outstanding query as
// interrupted (spec.md §4.6), called once the receiver has observed
// cancellation and is winding down.
func (w *Worker) cancelQueries() {
	w.mu.Lock()
	defer w.mu.Unlock()
	var n uint64
	for {
		id, _, ok := w.table.OldestOutstanding()
		if !ok {
			break
		}
		_, _, desc, _ := w.table.Outstanding(id)
		w.table.ReleaseBack(id)
		n++
		if w.Config.Verbose {
			fmt.Printf("> I %s\n", desc)
		}
	}
	w.stats.RecordInterrupted(n)
	w.cond.Broadcast()
}

// wrapProcessFatal builds an error carrying the ErrSetupFatal sentinel
// for any condition whose disposition is "terminate the process with
// nonzero status" (spec.md §7) — not only pre-run setup errors, but
// also an unrecoverable recv error encountered mid-run.
func wrapProcessFatal(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{engerrors.ErrSetupFatal}, args...)...)
}
