// Package parser implements bit-level header parsers for the protocols the
// SCHC engine compresses. Each parser decodes one protocol layer of a raw
// packet into an ordered list of field descriptors; a PacketParser chains
// parsers into a full stack.
package parser

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/rules"
)

// HeaderParser decodes one protocol layer. Parse fails with a wrapped
// core.ErrPacketTooShort when the buffer is shorter than the header and
// never returns a partial descriptor.
type HeaderParser interface {
	Protocol() rules.Protocol
	Parse(buf bits.Buffer) (rules.HeaderDescriptor, error)
}

// PacketParser applies a fixed stack of header parsers in wire order and
// flattens their fields into one PacketDescriptor. Whatever follows the last
// parsed header is the payload.
type PacketParser struct {
	chain []HeaderParser
}

// NewPacketParser builds a parser over the given stack, outermost first.
func NewPacketParser(chain ...HeaderParser) *PacketParser {
	return &PacketParser{chain: chain}
}

// NewIPv6UDPCoAPParser returns the IPv6/UDP/CoAP stack parser.
func NewIPv6UDPCoAPParser() *PacketParser {
	return NewPacketParser(&IPv6Parser{}, &UDPParser{}, &CoAPParser{})
}

// NewIPv4UDPParser returns the IPv4/UDP stack parser.
func NewIPv4UDPParser() *PacketParser {
	return NewPacketParser(&IPv4Parser{}, &UDPParser{})
}

// Parse decodes the full stack out of buf for a packet travelling in dir.
func (p *PacketParser) Parse(buf bits.Buffer, dir rules.Direction) (*rules.PacketDescriptor, error) {
	pd := &rules.PacketDescriptor{
		Direction: dir,
		Length:    buf.Len(),
	}
	cursor := 0
	for _, hp := range p.chain {
		rest, err := buf.Slice(cursor, buf.Len())
		if err != nil {
			return nil, err
		}
		hd, err := hp.Parse(rest)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", hp.Protocol(), err)
		}
		pd.Fields = append(pd.Fields, hd.Fields...)
		cursor += hd.Length
	}
	payload, err := buf.Slice(cursor, buf.Len())
	if err != nil {
		return nil, err
	}
	pd.Payload = payload
	return pd, nil
}

// sliceField cuts the bit range [from, to) out of buf as a field value.
// Parsers only call it with ranges already covered by their length check.
func sliceField(buf bits.Buffer, from, to int) bits.Buffer {
	v, err := buf.Slice(from, to)
	if err != nil {
		// unreachable after the header length check; keep the invariant loud
		panic(fmt.Sprintf("parser: field slice [%d:%d): %v", from, to, err))
	}
	return v
}

// tooShort builds the uniform short-header parse error.
func tooShort(got, want int) error {
	return fmt.Errorf("%w: %d < %d bits", core.ErrPacketTooShort, got, want)
}
