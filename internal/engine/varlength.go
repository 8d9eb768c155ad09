package engine

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
)

// Variable-length rule fields (declared length 0) carry an in-band length
// prefix counting the value bits, using the extended encoding:
//
//	L < 15     -> 4-bit L
//	L < 255    -> 0xF + 8-bit L
//	L <= 65535 -> 0xF + 0xFF + 16-bit L
const (
	varLenNibbleMax = 15
	varLenByteMax   = 255
	varLenMax       = 0xFFFF
)

// encodeVarLength returns the length prefix for an n-bit value.
func encodeVarLength(n int) (bits.Buffer, error) {
	switch {
	case n < 0 || n > varLenMax:
		return bits.Buffer{}, fmt.Errorf("%w: %d bits", core.ErrLengthOverflow, n)
	case n < varLenNibbleMax:
		return bits.FromUint(uint64(n), 4), nil
	case n < varLenByteMax:
		return bits.FromUint(varLenNibbleMax, 4).Concat(bits.FromUint(uint64(n), 8)), nil
	default:
		return bits.FromUint(varLenNibbleMax, 4).
			Concat(bits.FromUint(varLenByteMax, 8)).
			Concat(bits.FromUint(uint64(n), 16)), nil
	}
}

// decodeVarLength consumes a length prefix at cursor and returns the value
// bit length and the advanced cursor.
func decodeVarLength(buf bits.Buffer, cursor int) (int, int, error) {
	nibble, cursor, err := consume(buf, cursor, 4)
	if err != nil {
		return 0, cursor, err
	}
	n, _ := nibble.Uint()
	if n < varLenNibbleMax {
		return int(n), cursor, nil
	}
	ext, cursor, err := consume(buf, cursor, 8)
	if err != nil {
		return 0, cursor, err
	}
	e, _ := ext.Uint()
	if e < varLenByteMax {
		return int(e), cursor, nil
	}
	wide, cursor, err := consume(buf, cursor, 16)
	if err != nil {
		return 0, cursor, err
	}
	w, _ := wide.Uint()
	return int(w), cursor, nil
}

// consume reads n bits at cursor, failing with ErrInsufficientResidue when
// the packet runs out.
func consume(buf bits.Buffer, cursor, n int) (bits.Buffer, int, error) {
	if cursor+n > buf.Len() {
		return bits.Buffer{}, cursor, fmt.Errorf("%w: need %d bits at cursor %d of %d",
			core.ErrInsufficientResidue, n, cursor, buf.Len())
	}
	v, err := buf.Slice(cursor, cursor+n)
	if err != nil {
		return bits.Buffer{}, cursor, err
	}
	return v, cursor + n, nil
}
