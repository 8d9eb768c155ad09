package compute

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/parser"
	"firestige.xyz/schc/internal/rules"
)

// DefaultRegistry returns the compute functions for the supported stacks.
func DefaultRegistry() Registry {
	return Registry{
		parser.UDPLength:         ComputeUDPLength,
		parser.UDPChecksum:       ComputeUDPChecksum,
		parser.IPv6PayloadLength: ComputeIPv6PayloadLength,
		parser.IPv4TotalLength:   ComputeIPv4TotalLength,
	}
}

// Bit offsets of the length and checksum fields within the UDP header.
const (
	udpLengthOffset   = 32
	udpChecksumOffset = 48
)

// ComputeUDPLength rederives the UDP length field: the octet count from the
// start of the UDP header to the end of the packet, non-byte-aligned
// remainders rounded up (RFC 768).
func ComputeUDPLength(packet bits.Buffer, offset int, _ *Context, _ int) (bits.Buffer, error) {
	segment, err := packet.Slice(offset-udpLengthOffset, packet.Len())
	if err != nil {
		return bits.Buffer{}, err
	}
	return bits.FromUint(uint64((segment.Len()+7)/8), 16), nil
}

// ComputeUDPChecksum rederives the UDP checksum (RFC 768): the 16-bit one's
// complement of the one's complement sum of a pseudo-header built from the
// enclosing IP layer, followed by the UDP header and payload zero-padded to
// an even octet count. A computed 0x0000 is transmitted as 0xFFFF.
func ComputeUDPChecksum(packet bits.Buffer, offset int, ctx *Context, index int) (bits.Buffer, error) {
	segment, err := packet.Slice(offset-udpChecksumOffset, packet.Len())
	if err != nil {
		return bits.Buffer{}, err
	}
	udpOctets := uint64((segment.Len() + 7) / 8)

	pseudo, err := pseudoHeader(ctx, index, udpOctets)
	if err != nil {
		return bits.Buffer{}, err
	}

	sum, err := onesComplementSum(0, pseudo, false)
	if err != nil {
		return bits.Buffer{}, err
	}
	sum, err = onesComplementSum(sum, segment, true)
	if err != nil {
		return bits.Buffer{}, err
	}
	checksum := ^sum & 0xFFFF
	if checksum == 0x0000 {
		checksum = 0xFFFF
	}
	return bits.FromUint(uint64(checksum), 16), nil
}

// pseudoHeader assembles the IPv4 or IPv6 checksum pseudo-header, locating
// the enclosing network layer through the context rather than by field
// offsets. UDP without a directly enclosing IP layer is an explicit error.
func pseudoHeader(ctx *Context, index int, udpOctets uint64) (bits.Buffer, error) {
	enclosing, at, ok := ctx.LastNetworkField(index)
	if !ok {
		return bits.Buffer{}, fmt.Errorf("%w: no network-layer field before %s",
			core.ErrNoEnclosingIP, ctx.Field(index).ID)
	}
	switch enclosing.ID.Protocol {
	case rules.ProtocolIPv6:
		// source(128) | dest(128) | UDP-length(32) | zero(24) | next-header=17(8)
		src, ok := ctx.LookupBefore(at+1, parser.IPv6SourceAddress)
		if !ok {
			return bits.Buffer{}, fmt.Errorf("%w: %s missing", core.ErrNoEnclosingIP, parser.IPv6SourceAddress)
		}
		dst, ok := ctx.LookupBefore(at+1, parser.IPv6DestinationAddress)
		if !ok {
			return bits.Buffer{}, fmt.Errorf("%w: %s missing", core.ErrNoEnclosingIP, parser.IPv6DestinationAddress)
		}
		return src.Concat(dst).
			Concat(bits.FromUint(udpOctets, 32)).
			Concat(bits.Zero(24)).
			Concat(bits.FromUint(17, 8)), nil
	case rules.ProtocolIPv4:
		// source(32) | dest(32) | zero(8) | proto=17(8) | UDP-length(16)
		src, ok := ctx.LookupBefore(at+1, parser.IPv4SourceAddress)
		if !ok {
			return bits.Buffer{}, fmt.Errorf("%w: %s missing", core.ErrNoEnclosingIP, parser.IPv4SourceAddress)
		}
		dst, ok := ctx.LookupBefore(at+1, parser.IPv4DestinationAddress)
		if !ok {
			return bits.Buffer{}, fmt.Errorf("%w: %s missing", core.ErrNoEnclosingIP, parser.IPv4DestinationAddress)
		}
		return src.Concat(dst).
			Concat(bits.Zero(8)).
			Concat(bits.FromUint(17, 8)).
			Concat(bits.FromUint(udpOctets, 16)), nil
	default:
		return bits.Buffer{}, fmt.Errorf("%w: %s is not an IP layer", core.ErrNoEnclosingIP, enclosing.ID)
	}
}

// onesComplementSum folds the 16-bit big-endian chunks of buf into sum with
// end-around carry after each addition. pad zero-extends a final short chunk.
func onesComplementSum(sum uint32, buf bits.Buffer, pad bool) (uint32, error) {
	chunks, err := buf.Chunks(16, pad)
	if err != nil {
		return 0, err
	}
	for _, chunk := range chunks {
		v, err := chunk.Uint()
		if err != nil {
			return 0, err
		}
		sum += uint32(v)
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return sum, nil
}

// ComputeIPv6PayloadLength rederives the IPv6 payload length: the octet
// count of everything after the fixed 40-byte header.
func ComputeIPv6PayloadLength(packet bits.Buffer, offset int, _ *Context, _ int) (bits.Buffer, error) {
	// the field starts 32 bits into the header; the payload starts 320 bits
	// after the header start
	payloadStart := offset - 32 + 320
	segment, err := packet.Slice(payloadStart, packet.Len())
	if err != nil {
		return bits.Buffer{}, err
	}
	return bits.FromUint(uint64((segment.Len()+7)/8), 16), nil
}

// ComputeIPv4TotalLength rederives the IPv4 total length: the octet count
// from the start of the IPv4 header to the end of the packet.
func ComputeIPv4TotalLength(packet bits.Buffer, offset int, _ *Context, _ int) (bits.Buffer, error) {
	segment, err := packet.Slice(offset-16, packet.Len())
	if err != nil {
		return bits.Buffer{}, err
	}
	return bits.FromUint(uint64((segment.Len()+7)/8), 16), nil
}
