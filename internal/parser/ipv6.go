package parser

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/rules"
)

// ipv6HeaderBits is the fixed IPv6 header size (RFC 8200). Extension headers
// are not parsed.
const ipv6HeaderBits = 320

// IPv6 field ids.
var (
	IPv6Version            = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Version"}
	IPv6TrafficClass       = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Traffic Class"}
	IPv6FlowLabel          = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Flow Label"}
	IPv6PayloadLength      = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Payload Length"}
	IPv6NextHeader         = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Next Header"}
	IPv6HopLimit           = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Hop Limit"}
	IPv6SourceAddress      = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Source Address"}
	IPv6DestinationAddress = rules.FieldID{Protocol: rules.ProtocolIPv6, Name: "Destination Address"}
)

// IPv6Parser parses the fixed 40-byte IPv6 header.
type IPv6Parser struct{}

func (p *IPv6Parser) Protocol() rules.Protocol { return rules.ProtocolIPv6 }

func (p *IPv6Parser) Parse(buf bits.Buffer) (rules.HeaderDescriptor, error) {
	if buf.Len() < ipv6HeaderBits {
		return rules.HeaderDescriptor{}, tooShort(buf.Len(), ipv6HeaderBits)
	}
	version := sliceField(buf, 0, 4)
	if v, _ := version.Uint(); v != 6 {
		return rules.HeaderDescriptor{}, fmt.Errorf("%w: version %d != 6", core.ErrVersionMismatch, v)
	}
	return rules.HeaderDescriptor{
		ID:     rules.ProtocolIPv6,
		Length: ipv6HeaderBits,
		Fields: []rules.FieldDescriptor{
			{ID: IPv6Version, Position: 0, Value: version},
			{ID: IPv6TrafficClass, Position: 0, Value: sliceField(buf, 4, 12)},
			{ID: IPv6FlowLabel, Position: 0, Value: sliceField(buf, 12, 32)},
			{ID: IPv6PayloadLength, Position: 0, Value: sliceField(buf, 32, 48)},
			{ID: IPv6NextHeader, Position: 0, Value: sliceField(buf, 48, 56)},
			{ID: IPv6HopLimit, Position: 0, Value: sliceField(buf, 56, 64)},
			{ID: IPv6SourceAddress, Position: 0, Value: sliceField(buf, 64, 192)},
			{ID: IPv6DestinationAddress, Position: 0, Value: sliceField(buf, 192, 320)},
		},
	}, nil
}
