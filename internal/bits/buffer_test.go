package bits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/schc/internal/core"
)

func TestNewPadLeft(t *testing.T) {
	// 0x06 over 4 bits, right-aligned: value bits 0110
	b := New([]byte{0x06}, 4, PadLeft)
	assert.Equal(t, 4, b.Len())
	v, err := b.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), v)
}

func TestNewPadRight(t *testing.T) {
	// 0x60 over 4 bits, left-aligned: value bits 0110
	b := New([]byte{0x60}, 4, PadRight)
	v, err := b.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(6), v)
}

func TestEqualIgnoresPadding(t *testing.T) {
	left := New([]byte{0x06}, 4, PadLeft)
	right := New([]byte{0x60}, 4, PadRight)
	assert.True(t, left.Equal(right))
	assert.Equal(t, left.Key(), right.Key())
}

func TestEqualLengthMatters(t *testing.T) {
	// same bit pattern, different declared lengths
	a := New([]byte{0x00}, 4, PadLeft)
	b := New([]byte{0x00}, 8, PadLeft)
	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Key(), b.Key())
}

func TestNewZeroExtends(t *testing.T) {
	b := New([]byte{0xab}, 16, PadLeft)
	v, err := b.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xab), v)

	b = New([]byte{0xab}, 16, PadRight)
	v, err = b.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xab00), v)
}

func TestFromUint(t *testing.T) {
	b := FromUint(0x5c21, 16)
	raw, err := b.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x5c, 0x21}, raw)

	assert.True(t, FromUint(5, 4).Equal(New([]byte{0x05}, 4, PadLeft)))
}

func TestSlice(t *testing.T) {
	b := FromBytes([]byte{0x60, 0x00, 0xef, 0x2d})

	version, err := b.Slice(0, 4)
	require.NoError(t, err)
	v, _ := version.Uint()
	assert.Equal(t, uint64(6), v)

	flow, err := b.Slice(12, 32)
	require.NoError(t, err)
	assert.Equal(t, 20, flow.Len())
	fv, _ := flow.Uint()
	assert.Equal(t, uint64(0x00ef2d), fv)

	_, err = b.Slice(4, 40)
	assert.ErrorIs(t, err, core.ErrBufferRange)
	_, err = b.Slice(-1, 4)
	assert.ErrorIs(t, err, core.ErrBufferRange)
	_, err = b.Slice(8, 4)
	assert.ErrorIs(t, err, core.ErrBufferRange)
}

func TestConcat(t *testing.T) {
	a := FromUint(0x3, 2)
	b := FromUint(0x5, 4)
	c := a.Concat(b) // 11 ++ 0101
	assert.Equal(t, 6, c.Len())
	v, err := c.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0b110101), v)

	// concat with the empty buffer is the identity
	assert.True(t, c.Concat(Buffer{}).Equal(c))
	assert.True(t, Buffer{}.Concat(c).Equal(c))
}

func TestChunks(t *testing.T) {
	b := FromBytes([]byte{0xd1, 0x00, 0x16, 0x33})
	chunks, err := b.Chunks(16, false)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	v0, _ := chunks[0].Uint()
	v1, _ := chunks[1].Uint()
	assert.Equal(t, uint64(0xd100), v0)
	assert.Equal(t, uint64(0x1633), v1)
}

func TestChunksPadsFinal(t *testing.T) {
	b := FromBytes([]byte{0xd1, 0x00, 0x16})
	_, err := b.Chunks(16, false)
	assert.ErrorIs(t, err, core.ErrBufferRange)

	chunks, err := b.Chunks(16, true)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	v, _ := chunks[1].Uint()
	assert.Equal(t, uint64(0x1600), v)
}

func TestUintOverflow(t *testing.T) {
	b := Zero(65)
	_, err := b.Uint()
	assert.ErrorIs(t, err, core.ErrBufferOverflow)
}

func TestBytesAlignment(t *testing.T) {
	_, err := Zero(12).Bytes()
	assert.ErrorIs(t, err, core.ErrBufferAlignment)

	raw, err := FromBytes([]byte{0xab, 0xcd}).Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xab, 0xcd}, raw)
}

func TestContentRendersPaddingSide(t *testing.T) {
	b := FromUint(0x5, 4)
	assert.Equal(t, []byte{0x05}, b.Content())
	assert.Equal(t, []byte{0x50}, b.WithPadding(PadRight).Content())
}

func TestSliceOfConcatRoundTrip(t *testing.T) {
	a := FromUint(0b101, 3)
	b := FromUint(0b0110, 4)
	joined := a.Concat(b)

	gotA, err := joined.Slice(0, 3)
	require.NoError(t, err)
	gotB, err := joined.Slice(3, 7)
	require.NoError(t, err)
	assert.True(t, gotA.Equal(a))
	assert.True(t, gotB.Equal(b))
}

func TestZero(t *testing.T) {
	z := Zero(20)
	assert.Equal(t, 20, z.Len())
	v, err := z.Uint()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
}
