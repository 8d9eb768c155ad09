// Package rules defines the static and per-packet data model of the SCHC
// engine: field descriptors produced by parsers, rule field descriptors
// shared between endpoints, and the match mappings used by the
// match-mapping operator.
package rules

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
)

// Protocol is the closed set of field-owning protocols. Cross-layer logic
// (the UDP checksum pseudo-header) switches on this discriminant.
type Protocol uint8

const (
	ProtocolNone Protocol = iota
	ProtocolIPv4
	ProtocolIPv6
	ProtocolUDP
	ProtocolCoAP
)

var protocolNames = map[Protocol]string{
	ProtocolNone: "None",
	ProtocolIPv4: "IPv4",
	ProtocolIPv6: "IPv6",
	ProtocolUDP:  "UDP",
	ProtocolCoAP: "CoAP",
}

func (p Protocol) String() string {
	if s, ok := protocolNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Protocol(%d)", uint8(p))
}

// IsNetworkLayer reports whether fields of this protocol carry the addresses
// a transport checksum pseudo-header is built from.
func (p Protocol) IsNetworkLayer() bool {
	return p == ProtocolIPv4 || p == ProtocolIPv6
}

// FieldID identifies one header field: the owning protocol plus the field
// name within that protocol. Comparable, usable as a map key.
type FieldID struct {
	Protocol Protocol
	Name     string
}

func (id FieldID) String() string {
	return id.Protocol.String() + ":" + id.Name
}

// Payload is the pseudo field id some rule sets use to describe the
// uncompressed trailing payload. The engine always carries the payload
// verbatim, so rule fields with this id are ignored during matching.
var Payload = FieldID{Protocol: ProtocolNone, Name: "Payload"}

// Direction is the traffic direction a rule field applies to.
type Direction uint8

const (
	Bidirectional Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Dw"
	default:
		return "Bi"
	}
}

// Covers reports whether a rule field declared for direction d is in scope
// for a packet travelling in dir.
func (d Direction) Covers(dir Direction) bool {
	return d == Bidirectional || d == dir
}

// MatchingOperator decides whether a packet field satisfies a rule field.
type MatchingOperator uint8

const (
	MOEqual MatchingOperator = iota
	MOIgnore
	MOMSB
	MOMatchMapping
)

func (mo MatchingOperator) String() string {
	switch mo {
	case MOEqual:
		return "equal"
	case MOIgnore:
		return "ignore"
	case MOMSB:
		return "MSB"
	case MOMatchMapping:
		return "match-mapping"
	}
	return fmt.Sprintf("MatchingOperator(%d)", uint8(mo))
}

// Action is the compression/decompression action (CDA): the wire mapping
// policy for one field's value.
type Action uint8

const (
	NotSent Action = iota
	ValueSent
	LSB
	MappingSent
	Compute
)

func (a Action) String() string {
	switch a {
	case NotSent:
		return "not-sent"
	case ValueSent:
		return "value-sent"
	case LSB:
		return "least-significant-bits"
	case MappingSent:
		return "mapping-sent"
	case Compute:
		return "compute"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// FieldDescriptor is one parsed header field of one packet. Position
// disambiguates repeated ids within a header (0 = first occurrence).
type FieldDescriptor struct {
	ID       FieldID
	Position int
	Value    bits.Buffer
}

// HeaderDescriptor is the output of a header parser for one protocol layer.
// Length is the header length in bits, distinct from the datagram length.
type HeaderDescriptor struct {
	ID     Protocol
	Length int
	Fields []FieldDescriptor
}

// PacketDescriptor is one packet ready for compression: the flat, ordered
// field list across all layers, plus the trailing payload.
type PacketDescriptor struct {
	Direction Direction
	Fields    []FieldDescriptor
	Payload   bits.Buffer
	Length    int // total packet length in bits
}

// MappingEntry is one value/index pair of a match mapping.
type MappingEntry struct {
	Value bits.Buffer
	Index bits.Buffer
}

// MatchMapping is a small bidirectional table between field values and
// compact wire indices. Both lookup directions are built once at rule-load
// time; keys compare on (bits, length) only.
type MatchMapping struct {
	forward  map[string]bits.Buffer // value key -> index
	reverse  map[string]bits.Buffer // index key -> value
	indexLen int
}

// NewMatchMapping builds the forward and reverse tables. All indices must
// share one bit width: the decompressor consumes exactly that many bits.
func NewMatchMapping(entries []MappingEntry) (*MatchMapping, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty match mapping", core.ErrRuleInvalid)
	}
	m := &MatchMapping{
		forward:  make(map[string]bits.Buffer, len(entries)),
		reverse:  make(map[string]bits.Buffer, len(entries)),
		indexLen: entries[0].Index.Len(),
	}
	for _, e := range entries {
		if e.Index.Len() != m.indexLen {
			return nil, fmt.Errorf("%w: mapping index widths differ (%d vs %d bits)",
				core.ErrRuleInvalid, e.Index.Len(), m.indexLen)
		}
		m.forward[e.Value.Key()] = e.Index
		m.reverse[e.Index.Key()] = e.Value
	}
	return m, nil
}

// IndexLen returns the shared bit width of all indices.
func (m *MatchMapping) IndexLen() int { return m.indexLen }

// Index returns the compact index for a field value.
func (m *MatchMapping) Index(value bits.Buffer) (bits.Buffer, bool) {
	idx, ok := m.forward[value.Key()]
	return idx, ok
}

// Value returns the field value for a received index.
func (m *MatchMapping) Value(index bits.Buffer) (bits.Buffer, bool) {
	v, ok := m.reverse[index.Key()]
	return v, ok
}

// RuleFieldDescriptor is the static, shared description of how one field
// behaves under a rule. Length is the field length in bits; 0 declares a
// variable-length field whose residue carries an in-band length prefix.
type RuleFieldDescriptor struct {
	ID        FieldID
	Length    int
	Position  int
	Direction Direction
	Target    bits.Buffer
	Mapping   *MatchMapping // set iff MO is MOMatchMapping
	MO        MatchingOperator
	CDA       Action
}

// RuleNature distinguishes compression rules from the no-compression
// fallback rule.
type RuleNature uint8

const (
	NatureCompression RuleNature = iota
	NatureNoCompression
)

// RuleDescriptor is one shared rule: the wire id bits plus the ordered field
// descriptors. Immutable once constructed and safe for concurrent use.
type RuleDescriptor struct {
	ID     bits.Buffer
	Nature RuleNature
	Fields []RuleFieldDescriptor
}

// FieldsFor returns the rule fields in scope for a packet direction,
// preserving rule order and skipping payload pseudo fields.
func (r *RuleDescriptor) FieldsFor(dir Direction) []RuleFieldDescriptor {
	out := make([]RuleFieldDescriptor, 0, len(r.Fields))
	for _, rfd := range r.Fields {
		if rfd.ID == Payload || !rfd.Direction.Covers(dir) {
			continue
		}
		out = append(out, rfd)
	}
	return out
}
