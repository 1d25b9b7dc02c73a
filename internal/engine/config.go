package engine

import (
	"time"

	"github.com/jroosing/dnsperf/internal/dns"
	"github.com/jroosing/dnsperf/internal/ratelimit"
	"github.com/jroosing/dnsperf/internal/transport"
)

// Config holds the per-worker knobs derived from the CLI flags in
// spec.md §6, already divided by the coordinator's quota distribution
// (spec.md §4.7).
type Config struct {
	MaxOutstanding int
	Pacer          ratelimit.Pacer
	Timeout        time.Duration
	StopAt         time.Time // zero means no wall-clock deadline

	Verbose bool
	Updates bool
	Zone    string // explicit update zone; derived from the record if empty

	EDNSEnabled    bool
	EDNSOptions    []dns.EDNSOption
	DNSSECOk       bool
	UDPPayloadSize int
	TSIGKey        *dns.TSIGKey

	TransportMode transport.Mode
}

const (
	// recvBatchSize bounds one receiver pass (spec.md §4.3 step 2).
	recvBatchSize = 16
	// socketCheckTimeout is the readiness-probe and idle-wait ceiling
	// (spec.md §4.2 step 5, §4.3 step 5).
	socketCheckTimeout = 100 * time.Millisecond
)
