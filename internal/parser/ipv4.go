package parser

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/rules"
)

// ipv4HeaderBits is the option-less IPv4 header size (RFC 791). Options are
// not parsed.
const ipv4HeaderBits = 160

// IPv4 field ids.
var (
	IPv4Version            = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Version"}
	IPv4HeaderLength       = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Header Length"}
	IPv4TypeOfService      = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Type of Service"}
	IPv4TotalLength        = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Total Length"}
	IPv4Identification     = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Identification"}
	IPv4Flags              = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Flags"}
	IPv4FragmentOffset     = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Fragment Offset"}
	IPv4TimeToLive         = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Time To Live"}
	IPv4Protocol           = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Protocol"}
	IPv4HeaderChecksum     = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Header Checksum"}
	IPv4SourceAddress      = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Source Address"}
	IPv4DestinationAddress = rules.FieldID{Protocol: rules.ProtocolIPv4, Name: "Destination Address"}
)

// IPv4Parser parses the fixed 20-byte IPv4 header.
type IPv4Parser struct{}

func (p *IPv4Parser) Protocol() rules.Protocol { return rules.ProtocolIPv4 }

func (p *IPv4Parser) Parse(buf bits.Buffer) (rules.HeaderDescriptor, error) {
	if buf.Len() < ipv4HeaderBits {
		return rules.HeaderDescriptor{}, tooShort(buf.Len(), ipv4HeaderBits)
	}
	version := sliceField(buf, 0, 4)
	if v, _ := version.Uint(); v != 4 {
		return rules.HeaderDescriptor{}, fmt.Errorf("%w: version %d != 4", core.ErrVersionMismatch, v)
	}
	return rules.HeaderDescriptor{
		ID:     rules.ProtocolIPv4,
		Length: ipv4HeaderBits,
		Fields: []rules.FieldDescriptor{
			{ID: IPv4Version, Position: 0, Value: version},
			{ID: IPv4HeaderLength, Position: 0, Value: sliceField(buf, 4, 8)},
			{ID: IPv4TypeOfService, Position: 0, Value: sliceField(buf, 8, 16)},
			{ID: IPv4TotalLength, Position: 0, Value: sliceField(buf, 16, 32)},
			{ID: IPv4Identification, Position: 0, Value: sliceField(buf, 32, 48)},
			{ID: IPv4Flags, Position: 0, Value: sliceField(buf, 48, 51)},
			{ID: IPv4FragmentOffset, Position: 0, Value: sliceField(buf, 51, 64)},
			{ID: IPv4TimeToLive, Position: 0, Value: sliceField(buf, 64, 72)},
			{ID: IPv4Protocol, Position: 0, Value: sliceField(buf, 72, 80)},
			{ID: IPv4HeaderChecksum, Position: 0, Value: sliceField(buf, 80, 96)},
			{ID: IPv4SourceAddress, Position: 0, Value: sliceField(buf, 96, 128)},
			{ID: IPv4DestinationAddress, Position: 0, Value: sliceField(buf, 128, 160)},
		},
	}, nil
}
