// Package errors defines sentinel errors for the dispositions the engine
// assigns to failures, so callers can classify them with errors.Is
// instead of matching strings.
package errors

import "errors"

var (
	// ErrSetupFatal marks a failure that must terminate the process: a
	// configuration or resource-allocation failure before a run starts,
	// or an unrecoverable worker error during a run.
	ErrSetupFatal = errors.New("fatal setup error")

	// ErrEncodeFailed marks a record that the DNS encoder could not turn
	// into a wire-format message. The slot is released; the record is
	// skipped.
	ErrEncodeFailed = errors.New("encode failed")

	// ErrShortResponse marks a received datagram too short to contain a
	// DNS header.
	ErrShortResponse = errors.New("short response")

	// ErrUnexpectedResponse marks a response that does not correlate to
	// any outstanding query.
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrInputExhausted marks the input source running out of replay
	// passes. Not an error condition for the process: it is a normal
	// stop signal.
	ErrInputExhausted = errors.New("input exhausted")

	// ErrInputEmpty marks an input source that produced zero records,
	// which is fatal since there is nothing to send.
	ErrInputEmpty = errors.New("input empty")
)
