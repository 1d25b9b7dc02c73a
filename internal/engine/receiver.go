package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/jroosing/dnsperf/internal/dns"
	"github.com/jroosing/dnsperf/internal/pool"
)

// minReplyBytes is the shortest datagram the core bothers to inspect: it
// only reads the transaction ID (bytes 0-1) and the RCODE nibble (bytes
// 2-3). Anything shorter is a short_response (spec.md §4.3 step 2).
const minReplyBytes = 4

// recvBufPool pools the 64KiB receive buffers receiverLoop reads UDP/TCP
// datagrams into, so a steady-state run isn't re-allocating one per pass.
var recvBufPool = pool.New(func() []byte { return make([]byte, 65536) })

// receiverLoop implements spec.md §4.3: sweep timed-out outstanding
// queries, then drain a bounded batch of replies from the sockets in
// round-robin order, correlating each by transaction ID.
func (w *Worker) receiverLoop(ctx context.Context) {
	buf := recvBufPool.Get()
	defer recvBufPool.Put(buf)
	lastSocket := 0

	for {
		w.sweepTimeouts()

		n := w.sockets.Len()
		gotAny := false
		received := 0
		for i := 0; i < n && received < recvBatchSize; i++ {
			sockIdx := (lastSocket + i) % n
			for received < recvBatchSize {
				sz, err := w.sockets.At(sockIdx).Recv(buf)
				if err != nil {
					if errors.Is(err, context.DeadlineExceeded) {
						break
					}
					w.handleRecvError(err)
					return
				}
				gotAny = true
				received++
				w.handleReply(buf[:sz], sockIdx)
			}
		}
		lastSocket = (lastSocket + 1) % n

		if w.shouldStop(ctx) {
			return
		}
		if !gotAny {
			idleWait(ctx, socketCheckTimeout)
		}
	}
}

// sweepTimeouts reclaims any outstanding query whose age exceeds the
// configured timeout (spec.md §4.3 step 1).
func (w *Worker) sweepTimeouts() {
	w.mu.Lock()
	defer w.mu.Unlock()

	timeoutMicros := w.Config.Timeout.Microseconds()
	now := nowMicros()
	for {
		id, sentAt, ok := w.table.OldestOutstanding()
		if !ok || sentAt == sentinelUnsent {
			break
		}
		if now-sentAt < timeoutMicros {
			break
		}
		_, _, desc, _ := w.table.Outstanding(id)
		w.table.ReleaseBack(id)
		w.stats.RecordTimeout()
		if w.Config.Verbose {
			fmt.Printf("> T %s\n", desc)
		}
	}
	w.cond.Broadcast()
}

// handleReply correlates one received datagram against the slot table
// and records the outcome (spec.md §4.3 steps 3-4). A response shorter
// than minReplyBytes is a short_response: too short to even carry a
// transaction ID, so it is never correlated against any slot — just
// logged and discarded, leaving whatever query it might have belonged
// to outstanding for a real reply or the timeout sweep to resolve.
func (w *Worker) handleReply(msg []byte, sockIdx int) {
	if len(msg) < minReplyBytes {
		if w.Config.Verbose {
			w.Logger.Warn("short response", "worker", w.ID, "size", len(msg))
		}
		return
	}

	id := int(binary.BigEndian.Uint16(msg[0:2]))
	flags := binary.BigEndian.Uint16(msg[2:4])
	rcode := int(dns.RCodeFromFlags(flags))

	w.mu.Lock()
	sentAt, socket, desc, isOutstanding := w.table.Outstanding(id)
	if !isOutstanding || socket != sockIdx || sentAt == sentinelUnsent {
		// Unexpected or stale reply: not a slot we're waiting on.
		w.mu.Unlock()
		if w.Config.Verbose {
			w.Logger.Warn("unexpected response", "worker", w.ID, "id", id)
		}
		return
	}
	w.table.ReleaseBack(id)
	w.mu.Unlock()

	latency := nowMicros() - sentAt

	w.mu.Lock()
	w.stats.RecordCompletion(latency, len(msg), rcode)
	w.mu.Unlock()

	w.latency.Append(latency)

	if w.Config.Verbose {
		fmt.Printf("> %s %s %d.%06d\n", rcodeName(rcode), desc, latency/1_000_000, latency%1_000_000)
	}
}

// handleRecvError reports a non-EAGAIN recv error. Per spec.md §7, any
// recv error other than a timed-out poll is fatal for the worker, and a
// fatal worker is fatal for the whole process: the receiver stops
// pulling replies and Run surfaces the error through fatalCh.
func (w *Worker) handleRecvError(err error) {
	if w.Logger != nil {
		w.Logger.Error("recv error", "worker", w.ID, "err", err)
	}
	w.reportFatal(wrapProcessFatal("recv error on worker %d: %v", w.ID, err))
}

// shouldStop reports whether the receiver should wind down: the run
// was cancelled, or sending has finished and nothing remains
// outstanding (spec.md §4.3 "Exit Condition").
func (w *Worker) shouldStop(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() != nil {
		_, outstanding := w.table.Counts()
		if outstanding > 0 {
			w.mu.Unlock()
			w.cancelQueries()
			w.mu.Lock()
		}
		return true
	}
	if !w.doneSending {
		return false
	}
	_, outstanding := w.table.Counts()
	return outstanding == 0
}

// idleWait pauses briefly when a receiver pass finds nothing, so it
// doesn't spin the CPU while waiting on replies (spec.md §4.3 step 5).
func idleWait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
