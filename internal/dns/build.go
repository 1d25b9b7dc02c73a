package dns

import "fmt"

// DNS opcodes (RFC 1035 §4.1.1, RFC 2136 §1.3 for UPDATE).
const (
	OpcodeQuery  uint16 = 0
	OpcodeUpdate uint16 = 5
)

// recordTypesByName maps the textual record type tokens accepted in the
// input file ("NAME TYPE" lines, case-insensitive) to their wire values.
var recordTypesByName = map[string]uint16{
	"A":     uint16(TypeA),
	"NS":    uint16(TypeNS),
	"CNAME": uint16(TypeCNAME),
	"SOA":   uint16(TypeSOA),
	"PTR":   uint16(TypePTR),
	"MX":    uint16(TypeMX),
	"TXT":   uint16(TypeTXT),
	"AAAA":  uint16(TypeAAAA),
}

// RecordTypeFromString resolves a textual query type token (as found in
// the input file) to its wire value. Matching is case-insensitive.
func RecordTypeFromString(s string) (uint16, bool) {
	t, ok := recordTypesByName[upperASCII(s)]
	return t, ok
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// BuildQuery constructs a standard DNS query (opcode QUERY) for name/qtype
// using id as the transaction ID. Recursion Desired is always set, matching
// a stub-resolver-style client query.
//
// It returns both the structured Packet (so a caller can inspect or extend
// it, e.g. to add EDNS) and its wire-format encoding.
func BuildQuery(name string, qtype uint16, id uint16) (Packet, []byte, error) {
	p := Packet{
		Header: Header{
			ID:    id,
			Flags: RDFlag,
		},
		Questions: []Question{
			{Name: name, Type: qtype, Class: uint16(ClassIN)},
		},
	}
	b, err := p.Marshal()
	if err != nil {
		return Packet{}, nil, fmt.Errorf("%w: building query: %w", ErrDNSError, err)
	}
	return p, b, nil
}

// UpdateRecord is one resource record to add within a dynamic update
// message (RFC 2136). Class is always IN; a TTL of 0 with empty Data
// would represent a delete-RRset update, which this load generator does
// not need to express since the input format only describes additions.
type UpdateRecord struct {
	Name string
	Type uint16
	TTL  uint32
	Data any
}

// BuildUpdate constructs a dynamic UPDATE message (opcode UPDATE) adding
// records to zone, using id as the transaction ID.
//
// Per RFC 2136 the UPDATE message reuses the standard DNS message layout
// with different section semantics: the question section carries the
// zone name (type SOA), and the authority section carries the update
// records. Packet's section counts are derived from slice lengths, so
// this maps directly: Questions holds the zone, Authorities holds the
// updates, Answers/Additionals stay empty.
func BuildUpdate(zone string, records []UpdateRecord, id uint16) (Packet, []byte, error) {
	authorities := make([]Record, 0, len(records))
	for _, r := range records {
		authorities = append(authorities, Record{
			Name:  r.Name,
			Type:  r.Type,
			Class: uint16(ClassIN),
			TTL:   r.TTL,
			Data:  r.Data,
		})
	}
	p := Packet{
		Header: Header{
			ID:    id,
			Flags: (OpcodeUpdate << 11) & OpcodeMask,
		},
		Questions: []Question{
			{Name: zone, Type: uint16(TypeSOA), Class: uint16(ClassIN)},
		},
		Authorities: authorities,
	}
	b, err := p.Marshal()
	if err != nil {
		return Packet{}, nil, fmt.Errorf("%w: building update: %w", ErrDNSError, err)
	}
	return p, b, nil
}
