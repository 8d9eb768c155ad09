package parser

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/rules"
)

// coapFixedBits covers version, type, token length, code and message id.
const coapFixedBits = 32

// CoAP field ids. Option delta/length/value repeat; their Position is the
// option index. Extension fields are rarer and count their own occurrences.
var (
	CoAPVersion              = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Version"}
	CoAPType                 = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Type"}
	CoAPTokenLength          = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Token Length"}
	CoAPCode                 = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Code"}
	CoAPMessageID            = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Message ID"}
	CoAPToken                = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Token"}
	CoAPOptionDelta          = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Option Delta"}
	CoAPOptionLength         = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Option Length"}
	CoAPOptionDeltaExtended  = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Option Delta Extended"}
	CoAPOptionLengthExtended = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Option Length Extended"}
	CoAPOptionValue          = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Option Value"}
	CoAPPayloadMarker        = rules.FieldID{Protocol: rules.ProtocolCoAP, Name: "Payload Marker"}
)

// CoAPParser parses the CoAP header (RFC 7252), including the token and the
// option list up to and including the 0xFF payload marker. Header length is
// variable; everything after the marker is payload.
type CoAPParser struct{}

func (p *CoAPParser) Protocol() rules.Protocol { return rules.ProtocolCoAP }

func (p *CoAPParser) Parse(buf bits.Buffer) (rules.HeaderDescriptor, error) {
	if buf.Len() < coapFixedBits {
		return rules.HeaderDescriptor{}, tooShort(buf.Len(), coapFixedBits)
	}
	tokenLength := sliceField(buf, 4, 8)
	tkl, _ := tokenLength.Uint()
	tokenBits := int(tkl) * 8

	fields := []rules.FieldDescriptor{
		{ID: CoAPVersion, Position: 0, Value: sliceField(buf, 0, 2)},
		{ID: CoAPType, Position: 0, Value: sliceField(buf, 2, 4)},
		{ID: CoAPTokenLength, Position: 0, Value: tokenLength},
		{ID: CoAPCode, Position: 0, Value: sliceField(buf, 8, 16)},
		{ID: CoAPMessageID, Position: 0, Value: sliceField(buf, 16, 32)},
	}
	cursor := coapFixedBits

	token, cursor, err := take(buf, cursor, tokenBits)
	if err != nil {
		return rules.HeaderDescriptor{}, err
	}
	fields = append(fields, rules.FieldDescriptor{ID: CoAPToken, Position: 0, Value: token})

	// Options follow until the payload marker or the end of the buffer.
	deltaExts, lengthExts := 0, 0
	for position := 0; cursor < buf.Len(); position++ {
		first, next, err := take(buf, cursor, 8)
		if err != nil {
			return rules.HeaderDescriptor{}, err
		}
		if b, _ := first.Uint(); b == 0xFF {
			fields = append(fields, rules.FieldDescriptor{ID: CoAPPayloadMarker, Position: 0, Value: first})
			cursor = next
			break
		}
		delta, _ := first.Slice(0, 4)
		length, _ := first.Slice(4, 8)
		cursor = next
		fields = append(fields,
			rules.FieldDescriptor{ID: CoAPOptionDelta, Position: position, Value: delta},
			rules.FieldDescriptor{ID: CoAPOptionLength, Position: position, Value: length},
		)

		if _, extended, err := extendOption(buf, &cursor, &fields, delta, CoAPOptionDeltaExtended, &deltaExts); err != nil {
			return rules.HeaderDescriptor{}, err
		} else if extended == 15 {
			return rules.HeaderDescriptor{}, fmt.Errorf("%w: reserved option delta 15", core.ErrMalformedHeader)
		}
		valueBytes, _, err := extendOption(buf, &cursor, &fields, length, CoAPOptionLengthExtended, &lengthExts)
		if err != nil {
			return rules.HeaderDescriptor{}, err
		}
		if lv, _ := length.Uint(); lv == 15 {
			return rules.HeaderDescriptor{}, fmt.Errorf("%w: reserved option length 15", core.ErrMalformedHeader)
		}

		var value bits.Buffer
		value, cursor, err = take(buf, cursor, valueBytes*8)
		if err != nil {
			return rules.HeaderDescriptor{}, err
		}
		fields = append(fields, rules.FieldDescriptor{ID: CoAPOptionValue, Position: position, Value: value})
	}

	return rules.HeaderDescriptor{
		ID:     rules.ProtocolCoAP,
		Length: cursor,
		Fields: fields,
	}, nil
}

// extendOption resolves the 4-bit option delta/length nibble into its real
// value, consuming the 1- or 2-byte extension field when the nibble is 13 or
// 14 (RFC 7252 §3.1) and appending it to fields. occurrence counts emitted
// extension fields of this id and advances once per append.
func extendOption(buf bits.Buffer, cursor *int, fields *[]rules.FieldDescriptor,
	nibble bits.Buffer, extID rules.FieldID, occurrence *int) (int, uint64, error) {

	n, _ := nibble.Uint()
	switch n {
	case 13:
		ext, next, err := take(buf, *cursor, 8)
		if err != nil {
			return 0, n, err
		}
		*cursor = next
		*fields = append(*fields, rules.FieldDescriptor{ID: extID, Position: *occurrence, Value: ext})
		*occurrence++
		ev, _ := ext.Uint()
		return int(ev) + 13, n, nil
	case 14:
		ext, next, err := take(buf, *cursor, 16)
		if err != nil {
			return 0, n, err
		}
		*cursor = next
		*fields = append(*fields, rules.FieldDescriptor{ID: extID, Position: *occurrence, Value: ext})
		*occurrence++
		ev, _ := ext.Uint()
		return int(ev) + 269, n, nil
	default:
		return int(n), n, nil
	}
}

// take consumes n bits at cursor, failing with ErrPacketTooShort when the
// buffer runs out.
func take(buf bits.Buffer, cursor, n int) (bits.Buffer, int, error) {
	if cursor+n > buf.Len() {
		return bits.Buffer{}, cursor, tooShort(buf.Len(), cursor+n)
	}
	v, err := buf.Slice(cursor, cursor+n)
	if err != nil {
		return bits.Buffer{}, cursor, err
	}
	return v, cursor + n, nil
}
