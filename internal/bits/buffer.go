// Package bits implements the bit-exact buffer all SCHC components operate on.
//
// A Buffer is an immutable, MSB-first sequence of bits of arbitrary length.
// The padding side records which end of the final partial byte holds padding
// when the buffer is materialized to bytes: LEFT means the value sits in the
// low-order bits (padding at the MSB end), RIGHT means the value sits in the
// high-order bits. Equality compares bits and length only, never the padding
// side. Every operation returns a new Buffer; no operation mutates its
// operands.
package bits

import (
	"fmt"
	"strconv"

	"firestige.xyz/schc/internal/core"
)

// Side indicates which end of the final partial byte holds padding.
type Side uint8

const (
	// PadLeft: the value is right-aligned in its bytes (padding at the MSB end).
	PadLeft Side = iota
	// PadRight: the value is left-aligned in its bytes (padding at the LSB end).
	PadRight
)

// Buffer is an immutable bit string. The zero value is the empty buffer.
type Buffer struct {
	// content holds the bits left-aligned regardless of the declared padding
	// side: bit i lives in content[i/8] at mask 1<<(7-i%8). Trailing bits of
	// the last byte are always zero, so byte comparison equals bit comparison.
	content []byte
	length  int
	padding Side
}

// New builds a Buffer from content bytes, an exact bit length and the padding
// side describing how the value sits inside content. Content shorter than
// length is zero-extended on the padding side; excess bits on the padding
// side are dropped.
func New(content []byte, length int, padding Side) Buffer {
	if length < 0 {
		length = 0
	}
	total := len(content) * 8
	src := content
	if total < length {
		// zero-extend on the padding side
		grown := make([]byte, (length+7)/8)
		if padding == PadLeft {
			copy(grown[len(grown)-len(content):], content)
		} else {
			copy(grown, content)
		}
		src = grown
		total = len(grown) * 8
	}
	start := 0
	if padding == PadLeft {
		start = total - length
	}
	return Buffer{content: extract(src, start, length), length: length, padding: padding}
}

// FromBytes builds a byte-aligned, right-padded Buffer over a copy of b.
func FromBytes(b []byte) Buffer {
	return New(b, len(b)*8, PadRight)
}

// FromUint builds a length-bit Buffer holding the low length bits of v,
// big-endian, left-padded.
func FromUint(v uint64, length int) Buffer {
	var raw [8]byte
	for i := 7; i >= 0; i-- {
		raw[i] = byte(v)
		v >>= 8
	}
	return New(raw[:], length, PadLeft)
}

// Zero returns a length-bit all-zero Buffer.
func Zero(length int) Buffer {
	return Buffer{content: make([]byte, (length+7)/8), length: length, padding: PadLeft}
}

// Len returns the exact bit length.
func (b Buffer) Len() int { return b.length }

// Padding returns the declared padding side.
func (b Buffer) Padding() Side { return b.padding }

// WithPadding returns the same bits under a different padding side.
func (b Buffer) WithPadding(side Side) Buffer {
	return Buffer{content: b.content, length: b.length, padding: side}
}

// Equal reports whether both buffers hold the same bits and bit length.
// The padding side is ignored.
func (b Buffer) Equal(o Buffer) bool {
	if b.length != o.length {
		return false
	}
	for i := range b.content {
		if b.content[i] != o.content[i] {
			return false
		}
	}
	return true
}

// Key returns a comparable key over (bits, length) for use in maps,
// ignoring the padding side.
func (b Buffer) Key() string {
	return string(b.content) + "/" + strconv.Itoa(b.length)
}

// Slice returns the sub-buffer over the bit range [a, b), MSB-first.
func (b Buffer) Slice(from, to int) (Buffer, error) {
	if from < 0 || to < from || to > b.length {
		return Buffer{}, fmt.Errorf("%w: [%d:%d) of %d bits", core.ErrBufferRange, from, to, b.length)
	}
	return Buffer{content: extract(b.content, from, to-from), length: to - from, padding: PadRight}, nil
}

// Concat returns a new buffer holding b's bits followed by o's bits.
func (b Buffer) Concat(o Buffer) Buffer {
	out := make([]byte, (b.length+o.length+7)/8)
	copy(out, b.content)
	for i := 0; i < o.length; i++ {
		if o.content[i>>3]&(1<<(7-uint(i&7))) != 0 {
			j := b.length + i
			out[j>>3] |= 1 << (7 - uint(j&7))
		}
	}
	return Buffer{content: out, length: b.length + o.length, padding: b.padding}
}

// Chunks splits the buffer into consecutive n-bit sub-buffers. With pad set,
// a final short chunk is zero-extended on the right; without it, a length not
// divisible by n is an error.
func (b Buffer) Chunks(n int, pad bool) ([]Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d", core.ErrBufferRange, n)
	}
	if !pad && b.length%n != 0 {
		return nil, fmt.Errorf("%w: %d bits not divisible into %d-bit chunks", core.ErrBufferRange, b.length, n)
	}
	out := make([]Buffer, 0, (b.length+n-1)/n)
	for at := 0; at < b.length; at += n {
		end := at + n
		if end > b.length {
			end = b.length
		}
		chunk := Buffer{content: extract(b.content, at, end-at), length: end - at, padding: PadRight}
		if chunk.length < n {
			chunk = chunk.Concat(Zero(n - chunk.length))
		}
		out = append(out, chunk)
	}
	return out, nil
}

// Uint interprets the bits as a big-endian unsigned integer.
func (b Buffer) Uint() (uint64, error) {
	if b.length > 64 {
		return 0, fmt.Errorf("%w: %d bits", core.ErrBufferOverflow, b.length)
	}
	var v uint64
	for i := 0; i < b.length; i++ {
		v <<= 1
		if b.content[i>>3]&(1<<(7-uint(i&7))) != 0 {
			v |= 1
		}
	}
	return v, nil
}

// Bytes materializes the buffer to bytes. The bit length must be a multiple
// of eight; use Content for an explicitly padded rendering.
func (b Buffer) Bytes() ([]byte, error) {
	if b.length%8 != 0 {
		return nil, fmt.Errorf("%w: %d bits", core.ErrBufferAlignment, b.length)
	}
	out := make([]byte, b.length/8)
	copy(out, b.content)
	return out, nil
}

// Content renders the bits to bytes with zero padding on the declared
// padding side.
func (b Buffer) Content() []byte {
	out := make([]byte, (b.length+7)/8)
	if b.padding == PadRight || b.length%8 == 0 {
		copy(out, b.content)
		return out
	}
	shift := len(out)*8 - b.length
	for i := 0; i < b.length; i++ {
		if b.content[i>>3]&(1<<(7-uint(i&7))) != 0 {
			j := i + shift
			out[j>>3] |= 1 << (7 - uint(j&7))
		}
	}
	return out
}

// String renders the buffer as hex with its bit length, for diagnostics.
func (b Buffer) String() string {
	return fmt.Sprintf("0x%x/%d", b.Content(), b.length)
}

// extract copies n bits starting at bit offset start of src into a fresh
// left-aligned byte slice with zeroed trailing bits.
func extract(src []byte, start, n int) []byte {
	out := make([]byte, (n+7)/8)
	if n == 0 {
		return out
	}
	if start%8 == 0 {
		copy(out, src[start/8:start/8+len(out)])
		if n%8 != 0 {
			out[len(out)-1] &= 0xFF << (8 - uint(n%8))
		}
		return out
	}
	for i := 0; i < n; i++ {
		j := start + i
		if src[j>>3]&(1<<(7-uint(j&7))) != 0 {
			out[i>>3] |= 1 << (7 - uint(i&7))
		}
	}
	return out
}
