package dns

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"
	"strings"
)

// TSIG algorithm names, in their canonical wire (domain-name) form,
// per RFC 2845 §4.3.
const (
	AlgHMACMD5    = "hmac-md5.sig-alg.reg.int."
	AlgHMACSHA1   = "hmac-sha1."
	AlgHMACSHA256 = "hmac-sha256."

	// classANY is the TSIG pseudo-record's CLASS field (RFC 2845 §2.3).
	classANY uint16 = 255
	typeTSIG uint16 = 250
)

// TSIGKey holds a parsed "-y [alg:]name:secret" specification.
type TSIGKey struct {
	Name      string
	Algorithm string // one of the Alg* constants
	Secret    []byte
}

// ParseTSIGKey parses the "-y" flag value. The algorithm prefix is
// optional and defaults to hmac-md5, matching the original tool's
// behavior; the secret is base64-encoded.
func ParseTSIGKey(spec string) (TSIGKey, error) {
	parts := strings.Split(spec, ":")
	var alg, name, secret string
	switch len(parts) {
	case 2:
		alg, name, secret = "hmac-md5", parts[0], parts[1]
	case 3:
		alg, name, secret = parts[0], parts[1], parts[2]
	default:
		return TSIGKey{}, fmt.Errorf("%w: invalid TSIG key spec, want [alg:]name:secret", ErrDNSError)
	}

	algWire, ok := tsigAlgorithmWireName(alg)
	if !ok {
		return TSIGKey{}, fmt.Errorf("%w: unsupported TSIG algorithm %q", ErrDNSError, alg)
	}

	secretBytes, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return TSIGKey{}, fmt.Errorf("%w: decoding TSIG secret: %w", ErrDNSError, err)
	}
	if name == "" {
		return TSIGKey{}, fmt.Errorf("%w: TSIG key name must not be empty", ErrDNSError)
	}

	return TSIGKey{Name: name, Algorithm: algWire, Secret: secretBytes}, nil
}

func tsigAlgorithmWireName(alg string) (string, bool) {
	switch strings.ToLower(strings.TrimSuffix(alg, ".")) {
	case "hmac-md5", "hmac-md5.sig-alg.reg.int":
		return AlgHMACMD5, true
	case "hmac-sha1":
		return AlgHMACSHA1, true
	case "hmac-sha256":
		return AlgHMACSHA256, true
	default:
		return "", false
	}
}

func newHMAC(alg string, secret []byte) (hash.Hash, error) {
	switch alg {
	case AlgHMACMD5:
		return hmac.New(md5.New, secret), nil
	case AlgHMACSHA1:
		return hmac.New(sha1.New, secret), nil
	case AlgHMACSHA256:
		return hmac.New(sha256.New, secret), nil
	default:
		return nil, fmt.Errorf("%w: unsupported TSIG algorithm %q", ErrDNSError, alg)
	}
}

// fudge is the default allowed clock skew, per RFC 2845's recommended value.
const tsigFudge = 300

// SignTSIG appends a TSIG resource record (RFC 2845) to msgBytes, signing
// the message with key. timeSigned is a Unix timestamp (seconds). It
// increments the header's ARCOUNT in place, matching how
// AddEDNSToRequestBytes appends the OPT pseudo-record.
func SignTSIG(msgBytes []byte, key TSIGKey, timeSigned uint64) ([]byte, error) {
	if len(msgBytes) < HeaderSize {
		return nil, fmt.Errorf("%w: message too short to sign", ErrDNSError)
	}

	mac, err := computeTSIGMAC(msgBytes, key, timeSigned)
	if err != nil {
		return nil, err
	}

	id := binary.BigEndian.Uint16(msgBytes[0:2])
	rdata, err := marshalTSIGRData(key.Algorithm, timeSigned, mac, id)
	if err != nil {
		return nil, err
	}

	nameWire, err := EncodeName(key.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding TSIG key name: %w", ErrDNSError, err)
	}

	rr := make([]byte, 0, len(nameWire)+10+len(rdata))
	rr = append(rr, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], typeTSIG)
	binary.BigEndian.PutUint16(fixed[2:4], classANY)
	// TTL is 0 for TSIG records.
	binary.BigEndian.PutUint16(fixed[8:10], clampIntToUint16(len(rdata)))
	rr = append(rr, fixed...)
	rr = append(rr, rdata...)

	ar := binary.BigEndian.Uint16(msgBytes[10:12])
	if ar < 65535 {
		ar++
	}
	out := make([]byte, 0, len(msgBytes)+len(rr))
	out = append(out, msgBytes...)
	binary.BigEndian.PutUint16(out[10:12], ar)
	out = append(out, rr...)
	return out, nil
}

// computeTSIGMAC computes the HMAC over the message bytes followed by
// the TSIG variables, per RFC 2845 §3.4.
func computeTSIGMAC(msgBytes []byte, key TSIGKey, timeSigned uint64) ([]byte, error) {
	h, err := newHMAC(key.Algorithm, key.Secret)
	if err != nil {
		return nil, err
	}
	h.Write(msgBytes)

	nameWire, err := EncodeName(key.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding TSIG key name: %w", ErrDNSError, err)
	}
	algWire, err := EncodeName(key.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding TSIG algorithm name: %w", ErrDNSError, err)
	}

	var variables []byte
	variables = append(variables, nameWire...)
	classTTL := make([]byte, 6)
	binary.BigEndian.PutUint16(classTTL[0:2], classANY)
	// TTL (4 bytes) left zero.
	variables = append(variables, classTTL...)
	variables = append(variables, algWire...)
	variables = append(variables, packTSIGTime(timeSigned)...)

	fudgeErrOther := make([]byte, 6)
	binary.BigEndian.PutUint16(fudgeErrOther[0:2], tsigFudge)
	// Error (2 bytes) and Other Len (2 bytes) left zero.
	variables = append(variables, fudgeErrOther...)

	h.Write(variables)
	return h.Sum(nil), nil
}

func marshalTSIGRData(algorithm string, timeSigned uint64, mac []byte, origID uint16) ([]byte, error) {
	algWire, err := EncodeName(algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding TSIG algorithm name: %w", ErrDNSError, err)
	}

	out := make([]byte, 0, len(algWire)+6+2+2+len(mac)+2+2+2)
	out = append(out, algWire...)
	out = append(out, packTSIGTime(timeSigned)...)

	fudge := make([]byte, 2)
	binary.BigEndian.PutUint16(fudge, tsigFudge)
	out = append(out, fudge...)

	macSize := make([]byte, 2)
	binary.BigEndian.PutUint16(macSize, clampIntToUint16(len(mac)))
	out = append(out, macSize...)
	out = append(out, mac...)

	origIDBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(origIDBytes, origID)
	out = append(out, origIDBytes...)

	// Error (2 bytes) and Other Len (2 bytes): no error, no other data.
	out = append(out, 0, 0, 0, 0)
	return out, nil
}

// packTSIGTime encodes a 48-bit Time Signed field, big-endian.
func packTSIGTime(t uint64) []byte {
	b := make([]byte, 6)
	b[0] = byte(t >> 40)
	b[1] = byte(t >> 32)
	b[2] = byte(t >> 24)
	b[3] = byte(t >> 16)
	b[4] = byte(t >> 8)
	b[5] = byte(t)
	return b
}
