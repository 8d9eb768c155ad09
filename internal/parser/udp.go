package parser

import (
	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/rules"
)

// udpHeaderBits is the fixed UDP header size (RFC 768).
const udpHeaderBits = 64

// UDP field ids.
var (
	UDPSourcePort      = rules.FieldID{Protocol: rules.ProtocolUDP, Name: "Source Port"}
	UDPDestinationPort = rules.FieldID{Protocol: rules.ProtocolUDP, Name: "Destination Port"}
	UDPLength          = rules.FieldID{Protocol: rules.ProtocolUDP, Name: "Length"}
	UDPChecksum        = rules.FieldID{Protocol: rules.ProtocolUDP, Name: "Checksum"}
)

// UDPParser parses the fixed 8-byte UDP header.
//
//	 0      7 8     15 16    23 24    31
//	+--------+--------+--------+--------+
//	|     Source      |   Destination   |
//	|      Port       |      Port       |
//	+--------+--------+--------+--------+
//	|                 |                 |
//	|     Length      |    Checksum     |
//	+--------+--------+--------+--------+
type UDPParser struct{}

func (p *UDPParser) Protocol() rules.Protocol { return rules.ProtocolUDP }

func (p *UDPParser) Parse(buf bits.Buffer) (rules.HeaderDescriptor, error) {
	if buf.Len() < udpHeaderBits {
		return rules.HeaderDescriptor{}, tooShort(buf.Len(), udpHeaderBits)
	}
	return rules.HeaderDescriptor{
		ID:     rules.ProtocolUDP,
		Length: udpHeaderBits,
		Fields: []rules.FieldDescriptor{
			{ID: UDPSourcePort, Position: 0, Value: sliceField(buf, 0, 16)},
			{ID: UDPDestinationPort, Position: 0, Value: sliceField(buf, 16, 32)},
			{ID: UDPLength, Position: 0, Value: sliceField(buf, 32, 48)},
			{ID: UDPChecksum, Position: 0, Value: sliceField(buf, 48, 64)},
		},
	}, nil
}
