package engine

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/jroosing/dnsperf/internal/dns"
	"github.com/jroosing/dnsperf/internal/input"
	"github.com/jroosing/dnsperf/internal/transport"
)

// senderLoop is the per-worker producer of spec.md §4.2, run until
// interrupted or the wall-clock stop deadline passes.
func (w *Worker) senderLoop(ctx context.Context, startAt int64) {
	for {
		if ctx.Err() != nil || w.isFailed() {
			break
		}
		if !w.Config.StopAt.IsZero() && time.Now().After(w.Config.StopAt) {
			break
		}

		w.softPacing()

		if wait, ok := w.rateLimitWait(startAt); ok {
			if !sleepOrDone(ctx, wait) {
				break
			}
			continue
		}

		if !w.waitForOutstandingSlot(ctx) {
			break
		}

		id, ok := w.acquireSlot()
		if !ok {
			// Raced with another acquire under a tiny window; retry.
			continue
		}

		sock, sockIdx, ready := w.selectSocket(ctx)
		if !ready {
			w.mu.Lock()
			w.table.ReleaseFront(id)
			w.cond.Broadcast()
			w.mu.Unlock()
			continue
		}

		rec, status := w.input.Next()
		switch status {
		case input.StatusExhausted:
			w.mu.Lock()
			w.table.ReleaseFront(id)
			w.cond.Broadcast()
			w.mu.Unlock()
			w.finishSending()
			return
		case input.StatusEmpty:
			w.mu.Lock()
			w.table.ReleaseFront(id)
			w.mu.Unlock()
			w.reportFatal(fmt.Errorf("%w: input source produced no records", wrapProcessFatal("empty input")))
			w.finishSending()
			return
		}

		payload, desc, err := w.encode(rec, uint16(id))
		if err != nil {
			if w.Config.Verbose {
				w.Logger.Warn("encode failed", "worker", w.ID, "id", id, "err", err)
			}
			w.mu.Lock()
			w.table.ReleaseFront(id)
			w.cond.Broadcast()
			w.mu.Unlock()
			continue
		}

		w.send(id, sock, sockIdx, payload, desc)
	}

	w.drainInProgress(ctx)
	w.finishSending()
}

// softPacing implements spec.md §4.2 step 1: a brief yield below the
// outstanding cap on odd send counts, to avoid a cold-start burst.
func (w *Worker) softPacing() {
	w.mu.Lock()
	numSent := w.stats.NumSent
	numCompleted := w.stats.NumCompleted
	_, outstanding := w.table.Counts()
	w.mu.Unlock()

	if outstanding >= w.Config.MaxOutstanding || numSent%2 == 0 {
		return
	}
	if numCompleted == 0 {
		time.Sleep(time.Millisecond)
	} else {
		runtime.Gosched()
	}
}

// rateLimitWait implements spec.md §4.2 step 2.
func (w *Worker) rateLimitWait(startAt int64) (wait time.Duration, limited bool) {
	if w.Config.Pacer == nil {
		return 0, false
	}
	w.mu.Lock()
	numSent := w.stats.NumSent
	w.mu.Unlock()

	elapsed := time.Duration(microsSince(startAt)) * time.Microsecond
	ok, retryAfter := w.Config.Pacer.Allow(numSent, elapsed)
	if ok {
		return 0, false
	}
	return retryAfter, true
}

// waitForOutstandingSlot implements spec.md §4.2 step 3: block under the
// mutex until the in-flight cap has room, the run is cancelled, or the
// stop deadline passes. Returns false when the caller should stop
// sending entirely.
func (w *Worker) waitForOutstandingSlot(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		if ctx.Err() != nil || w.failed {
			return false
		}
		if !w.Config.StopAt.IsZero() && time.Now().After(w.Config.StopAt) {
			return false
		}
		_, outstanding := w.table.Counts()
		if outstanding < w.Config.MaxOutstanding {
			return true
		}
		w.cond.Wait()
	}
}

func (w *Worker) acquireSlot() (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.table.AcquireUnused()
}

// selectSocket implements spec.md §4.2 step 5: probe up to 2*nsocks
// sockets starting at the round-robin cursor.
func (w *Worker) selectSocket(ctx context.Context) (transport.Handle, int, bool) {
	n := w.sockets.Len()
	wake := ctx.Done()
	for i := 0; i < 2*n; i++ {
		idx := w.sockets.Next()
		sock := w.sockets.At(idx)
		switch sock.Ready(socketCheckTimeout, wake) {
		case transport.Ready:
			return sock, idx, true
		case transport.InProgress, transport.TimedOut:
			continue
		}
	}
	return nil, 0, false
}

// encode builds the wire-format message for rec, applying EDNS and
// TSIG per the worker's configuration (spec.md §4.2 step 7, SPEC_FULL
// §4's -e/-E/-D/-y support).
func (w *Worker) encode(rec input.Record, id uint16) ([]byte, string, error) {
	var pkt dns.Packet
	var payload []byte
	var desc string
	var err error

	if rec.Update != nil {
		records := make([]dns.UpdateRecord, 0, len(rec.Update))
		var names []string
		for _, line := range rec.Update {
			ur, convErr := line.ToUpdateRecord()
			if convErr != nil {
				return nil, "", convErr
			}
			records = append(records, ur)
			names = append(names, fmt.Sprintf("%s %s", line.Name, recordTypeName(line.Type)))
		}
		zone := w.Config.Zone
		if zone == "" && len(rec.Update) > 0 {
			zone = parentZone(rec.Update[0].Name)
		}
		pkt, payload, err = dns.BuildUpdate(zone, records, id)
		desc = strings.Join(names, ", ")
	} else if rec.Query != nil {
		pkt, payload, err = dns.BuildQuery(rec.Query.Name, rec.Query.Type, id)
		desc = fmt.Sprintf("%s %s", rec.Query.Name, recordTypeName(rec.Query.Type))
	} else {
		return nil, "", fmt.Errorf("dns: empty input record")
	}
	if err != nil {
		return nil, "", err
	}

	if w.Config.EDNSEnabled {
		payload = dns.AddEDNSToRequestBytesWithOptions(pkt, payload, w.Config.UDPPayloadSize, w.Config.EDNSOptions, w.Config.DNSSECOk)
	}
	if w.Config.TSIGKey != nil {
		payload, err = dns.SignTSIG(payload, *w.Config.TSIGKey, uint64(time.Now().Unix()))
		if err != nil {
			return nil, "", err
		}
	}
	return payload, desc, nil
}

func recordTypeName(t uint16) string {
	for name, v := range map[string]uint16{
		"A": 1, "NS": 2, "CNAME": 5, "SOA": 6, "PTR": 12, "MX": 15, "TXT": 16, "AAAA": 28,
	} {
		if v == t {
			return name
		}
	}
	return fmt.Sprintf("TYPE%d", t)
}

func parentZone(name string) string {
	idx := strings.IndexByte(name, '.')
	if idx < 0 {
		return name
	}
	return name[idx+1:]
}

// send implements spec.md §4.2 step 8.
func (w *Worker) send(id int, sock transport.Handle, sockIdx int, payload []byte, desc string) {
	sentAt := nowMicros()

	w.mu.Lock()
	w.table.Stamp(id, sentAt, sockIdx)
	if w.Config.Verbose {
		w.table.SetDesc(id, desc)
	}
	w.mu.Unlock()

	inProgress, err := sock.Send(payload)
	switch {
	case err == nil && !inProgress:
		w.mu.Lock()
		w.stats.RecordSend(len(payload))
		w.mu.Unlock()
	case err == nil && inProgress:
		// Leave outstanding: a reply may still arrive once the
		// in-progress stream write completes.
	default:
		if w.Config.Verbose {
			w.Logger.Warn("send failed", "worker", w.ID, "id", id, "err", err)
		}
		w.mu.Lock()
		w.table.ReleaseFront(id)
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// drainInProgress polls every socket's readiness until none report
// in-progress, giving pending stream writes a chance to settle before
// the sender reports done (spec.md §4.2 "On exit"). It gives up after
// 5*socketCheckTimeout even if some socket still reports in-progress.
func (w *Worker) drainInProgress(ctx context.Context) {
	deadline := time.Now().Add(5 * socketCheckTimeout)
	for time.Now().Before(deadline) {
		anyInProgress := false
		for i := 0; i < w.sockets.Len(); i++ {
			if w.sockets.At(i).Ready(socketCheckTimeout, ctx.Done()) == transport.InProgress {
				anyInProgress = true
			}
		}
		if !anyInProgress {
			return
		}
	}
}

func (w *Worker) finishSending() {
	w.mu.Lock()
	w.doneSending = true
	w.doneSendTime = nowMicros()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// sleepOrDone sleeps for d or returns early (false) if ctx is cancelled.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
