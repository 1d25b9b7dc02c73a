// Package dns provides DNS protocol parsing, encoding, and packet manipulation.
//
// Standards Compliance:
//
// This package implements DNS protocol features from the following RFCs:
//
//   - RFC 1035: Domain Names - Implementation and Specification (core DNS protocol)
//   - RFC 1034: Domain Names - Concepts and Facilities (DNS concepts)
//   - RFC 2136: Dynamic Updates in the DNS (UPDATE messages)
//   - RFC 2845: Secret Key Transaction Authentication for DNS (TSIG)
//   - RFC 3596: DNS Extensions to Support IPv6 (AAAA records)
//   - RFC 4035: DNSSEC Protocol Extensions (AD, CD flags)
//   - RFC 6891: Extension Mechanisms for DNS (EDNS, OPT records)
//
// Record Representation:
//
// Resource records are represented by a single Record struct whose Data field
// holds a type-specific payload (raw bytes, a name, or MXData). Marshal
// switches on the record's Type field rather than dispatching through an
// interface hierarchy.
//
// Error Handling:
//
// All errors are wrapped with context using fmt.Errorf("...: %w", err).
// This preserves error chains while adding operational context.
package dns

import "errors"

var (
	// ErrDNSError is a sentinel error type for DNS protocol violations.
	// Wrap this with fmt.Errorf("context: %w", ErrDNSError) to add context.
	ErrDNSError = errors.New("dns wire error")
)
