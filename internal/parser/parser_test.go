package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/rules"
)

func fieldUint(t *testing.T, fd rules.FieldDescriptor) uint64 {
	t.Helper()
	v, err := fd.Value.Uint()
	require.NoError(t, err)
	return v
}

func TestUDPParser(t *testing.T) {
	data := []byte{
		0xd1, 0x00, // Source Port: 53504
		0x16, 0x33, // Destination Port: 5683
		0x00, 0x68, // Length: 104
		0x5c, 0x21, // Checksum
	}
	hd, err := (&UDPParser{}).Parse(bits.FromBytes(data))
	require.NoError(t, err)
	assert.Equal(t, udpHeaderBits, hd.Length)
	require.Len(t, hd.Fields, 4)

	assert.Equal(t, UDPSourcePort, hd.Fields[0].ID)
	assert.Equal(t, uint64(0xd100), fieldUint(t, hd.Fields[0]))
	assert.Equal(t, uint64(0x1633), fieldUint(t, hd.Fields[1]))
	assert.Equal(t, uint64(104), fieldUint(t, hd.Fields[2]))
	assert.Equal(t, uint64(0x5c21), fieldUint(t, hd.Fields[3]))
}

func TestUDPParserTooShort(t *testing.T) {
	_, err := (&UDPParser{}).Parse(bits.FromBytes([]byte{0xd1, 0x00, 0x16}))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestIPv6Parser(t *testing.T) {
	header := []byte{
		0x60, 0x00, 0xef, 0x2d, 0x00, 0x68, 0x11, 0x40,
		0x20, 0x01, 0x0d, 0xb8, 0x00, 0x0a, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
		0x20, 0x01, 0x0d, 0xb8, 0x00, 0x0a, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20,
	}
	hd, err := (&IPv6Parser{}).Parse(bits.FromBytes(header))
	require.NoError(t, err)
	assert.Equal(t, ipv6HeaderBits, hd.Length)
	require.Len(t, hd.Fields, 8)

	assert.Equal(t, uint64(6), fieldUint(t, hd.Fields[0]))
	assert.Equal(t, uint64(0), fieldUint(t, hd.Fields[1]))
	assert.Equal(t, uint64(0x0ef2d), fieldUint(t, hd.Fields[2]))
	assert.Equal(t, uint64(0x68), fieldUint(t, hd.Fields[3]))
	assert.Equal(t, uint64(17), fieldUint(t, hd.Fields[4]))
	assert.Equal(t, uint64(0x40), fieldUint(t, hd.Fields[5]))

	assert.Equal(t, IPv6SourceAddress, hd.Fields[6].ID)
	assert.Equal(t, 128, hd.Fields[6].Value.Len())
	assert.True(t, hd.Fields[7].Value.Equal(bits.FromBytes(header[24:40])))
}

func TestIPv6ParserVersionMismatch(t *testing.T) {
	header := make([]byte, 40)
	header[0] = 0x40
	_, err := (&IPv6Parser{}).Parse(bits.FromBytes(header))
	assert.ErrorIs(t, err, core.ErrVersionMismatch)
}

func TestIPv4Parser(t *testing.T) {
	header := []byte{
		0x45, 0x00, 0x02, 0x5a,
		0x21, 0xfa, 0x40, 0x00,
		0x40, 0x11, 0xbc, 0x52,
		0xac, 0x1e, 0x01, 0x08,
		0xac, 0x1e, 0x01, 0x02,
	}
	hd, err := (&IPv4Parser{}).Parse(bits.FromBytes(header))
	require.NoError(t, err)
	assert.Equal(t, ipv4HeaderBits, hd.Length)
	require.Len(t, hd.Fields, 12)

	assert.Equal(t, uint64(4), fieldUint(t, hd.Fields[0]))
	assert.Equal(t, uint64(5), fieldUint(t, hd.Fields[1]))
	assert.Equal(t, uint64(0x025a), fieldUint(t, hd.Fields[3]))
	assert.Equal(t, uint64(0x21fa), fieldUint(t, hd.Fields[4]))
	assert.Equal(t, uint64(0b010), fieldUint(t, hd.Fields[5])) // DF set
	assert.Equal(t, uint64(0), fieldUint(t, hd.Fields[6]))
	assert.Equal(t, uint64(0x40), fieldUint(t, hd.Fields[7]))
	assert.Equal(t, uint64(17), fieldUint(t, hd.Fields[8]))
	assert.Equal(t, uint64(0xbc52), fieldUint(t, hd.Fields[9]))
	assert.True(t, hd.Fields[10].Value.Equal(bits.FromBytes([]byte{0xac, 0x1e, 0x01, 0x08})))
	assert.True(t, hd.Fields[11].Value.Equal(bits.FromBytes([]byte{0xac, 0x1e, 0x01, 0x02})))
}

func TestIPv4ParserVersionMismatch(t *testing.T) {
	header := make([]byte, 20)
	header[0] = 0x65
	_, err := (&IPv4Parser{}).Parse(bits.FromBytes(header))
	assert.ErrorIs(t, err, core.ErrVersionMismatch)
}

// coapPacket is a CoAP POST with an 8-byte token, eight options (two of them
// with extended delta/length nibbles) and no payload after the marker.
var coapPacket = []byte{
	0x48, 0x02, 0x84, 0x99, 0x74, 0xcd, 0xe8, 0xcb, 0x4e, 0x8c, 0x0d, 0xb7, 0xb2, 0x72, 0x64, 0x11,
	0x28, 0x33, 0x62, 0x3d, 0x55, 0x09, 0x6c, 0x77, 0x6d, 0x32, 0x6d, 0x3d, 0x31, 0x2e, 0x31, 0x06,
	0x6c, 0x74, 0x3d, 0x33, 0x30, 0x30, 0x0d, 0x02, 0x65, 0x70, 0x3d, 0x38, 0x35, 0x62, 0x61, 0x39,
	0x62, 0x64, 0x61, 0x63, 0x30, 0x62, 0x65, 0xc1, 0x0d, 0xd2, 0x14, 0x07, 0x2b, 0xff,
}

func TestCoAPParser(t *testing.T) {
	hd, err := (&CoAPParser{}).Parse(bits.FromBytes(coapPacket))
	require.NoError(t, err)
	assert.Equal(t, len(coapPacket)*8, hd.Length)
	require.Len(t, hd.Fields, 33)

	assert.Equal(t, CoAPVersion, hd.Fields[0].ID)
	assert.Equal(t, uint64(1), fieldUint(t, hd.Fields[0]))
	assert.Equal(t, uint64(0), fieldUint(t, hd.Fields[1]))
	assert.Equal(t, uint64(8), fieldUint(t, hd.Fields[2]))
	assert.Equal(t, uint64(2), fieldUint(t, hd.Fields[3]))
	assert.Equal(t, uint64(0x8499), fieldUint(t, hd.Fields[4]))

	token := hd.Fields[5]
	assert.Equal(t, CoAPToken, token.ID)
	assert.True(t, token.Value.Equal(bits.FromBytes([]byte{0x74, 0xcd, 0xe8, 0xcb, 0x4e, 0x8c, 0x0d, 0xb7})))

	// first option: Uri-Path "rd"
	assert.Equal(t, CoAPOptionDelta, hd.Fields[6].ID)
	assert.Equal(t, 0, hd.Fields[6].Position)
	assert.Equal(t, uint64(11), fieldUint(t, hd.Fields[6]))
	assert.Equal(t, uint64(2), fieldUint(t, hd.Fields[7]))
	assert.True(t, hd.Fields[8].Value.Equal(bits.FromBytes([]byte{0x72, 0x64})))

	// sixth option carries an extended length nibble: 13 + 2 = 15 bytes.
	// First extension of its id, so position 0.
	var extLen rules.FieldDescriptor
	for _, fd := range hd.Fields {
		if fd.ID == CoAPOptionLengthExtended {
			extLen = fd
		}
	}
	require.Equal(t, CoAPOptionLengthExtended, extLen.ID)
	assert.Equal(t, uint64(2), fieldUint(t, extLen))
	assert.Equal(t, 0, extLen.Position)

	// eighth option carries an extended delta nibble: 13 + 20 = 33
	var extDelta rules.FieldDescriptor
	for _, fd := range hd.Fields {
		if fd.ID == CoAPOptionDeltaExtended {
			extDelta = fd
		}
	}
	require.Equal(t, CoAPOptionDeltaExtended, extDelta.ID)
	assert.Equal(t, uint64(0x14), fieldUint(t, extDelta))
	assert.Equal(t, 0, extDelta.Position)

	marker := hd.Fields[len(hd.Fields)-1]
	assert.Equal(t, CoAPPayloadMarker, marker.ID)
	assert.Equal(t, uint64(0xff), fieldUint(t, marker))
}

func TestCoAPParserRepeatedExtensions(t *testing.T) {
	// two options, each with an extended delta nibble (13)
	packet := []byte{
		0x40, 0x01, 0x00, 0x01,
		0xd1, 0x00, 0xaa,
		0xd1, 0x05, 0xbb,
	}
	hd, err := (&CoAPParser{}).Parse(bits.FromBytes(packet))
	require.NoError(t, err)

	var exts []rules.FieldDescriptor
	for _, fd := range hd.Fields {
		if fd.ID == CoAPOptionDeltaExtended {
			exts = append(exts, fd)
		}
	}
	require.Len(t, exts, 2)
	assert.Equal(t, 0, exts[0].Position)
	assert.Equal(t, uint64(0x00), fieldUint(t, exts[0]))
	assert.Equal(t, 1, exts[1].Position)
	assert.Equal(t, uint64(0x05), fieldUint(t, exts[1]))
}

func TestCoAPParserReservedDelta(t *testing.T) {
	// option byte 0xf1: delta nibble 15 is reserved
	packet := []byte{0x40, 0x01, 0x00, 0x01, 0xf1, 0x00}
	_, err := (&CoAPParser{}).Parse(bits.FromBytes(packet))
	assert.ErrorIs(t, err, core.ErrMalformedHeader)
}

func TestCoAPParserReservedLength(t *testing.T) {
	// option byte 0x1f: length nibble 15 is reserved
	packet := []byte{0x40, 0x01, 0x00, 0x01, 0x1f, 0x00}
	_, err := (&CoAPParser{}).Parse(bits.FromBytes(packet))
	assert.ErrorIs(t, err, core.ErrMalformedHeader)
}

func TestCoAPParserTruncatedToken(t *testing.T) {
	// token length 8 but only 2 token bytes present
	packet := []byte{0x48, 0x02, 0x84, 0x99, 0x74, 0xcd}
	_, err := (&CoAPParser{}).Parse(bits.FromBytes(packet))
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}

func TestPacketParserFullStack(t *testing.T) {
	packet := append([]byte{}, []byte{
		0x60, 0x00, 0xef, 0x2d, 0x00, 0x11, 0x11, 0x40,
		0x20, 0x01, 0x0d, 0xb8, 0x00, 0x0a, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02,
		0x20, 0x01, 0x0d, 0xb8, 0x00, 0x0a, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x20,
		0xd1, 0x00, 0x16, 0x33, 0x00, 0x11, 0x5c, 0x21,
		// CoAP: no token, one 1-byte option, marker, 2-byte payload
		0x40, 0x45, 0x22, 0xf6,
		0xc1, 0x6e,
		0xff,
		0xab, 0xcd,
	}...)

	pd, err := NewIPv6UDPCoAPParser().Parse(bits.FromBytes(packet), rules.Up)
	require.NoError(t, err)
	assert.Equal(t, rules.Up, pd.Direction)
	assert.Equal(t, len(packet)*8, pd.Length)

	// 8 IPv6 + 4 UDP + 10 CoAP fields
	require.Len(t, pd.Fields, 22)
	assert.Equal(t, IPv6Version, pd.Fields[0].ID)
	assert.Equal(t, UDPSourcePort, pd.Fields[8].ID)
	assert.Equal(t, CoAPVersion, pd.Fields[12].ID)

	assert.True(t, pd.Payload.Equal(bits.FromBytes([]byte{0xab, 0xcd})))
}

func TestPacketParserPropagatesLayerError(t *testing.T) {
	// valid IPv6 header claiming UDP, but nothing after it
	header := make([]byte, 40)
	header[0] = 0x60
	header[6] = 17
	_, err := NewIPv6UDPCoAPParser().Parse(bits.FromBytes(header), rules.Up)
	assert.ErrorIs(t, err, core.ErrPacketTooShort)
}
