package rtu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWriteRead(t *testing.T) {
	r := NewRing(4)
	require.NoError(t, r.WriteByte(0x01))
	require.NoError(t, r.WriteByte(0x02))

	b, err := r.ReadByteTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)

	assert.Equal(t, byte(0x02), r.ReadByteBlocking())
}

func TestRingFullDropsByte(t *testing.T) {
	r := NewRing(1)
	require.NoError(t, r.WriteByte(0x01))
	assert.ErrorIs(t, r.WriteByte(0x02), ErrRingFull)
}

func TestRingReadTimeout(t *testing.T) {
	r := NewRing(1)
	_, err := r.ReadByteTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, errReadTimeout)
}

func TestRingClearDiscardsBufferedBytes(t *testing.T) {
	r := NewRing(4)
	require.NoError(t, r.WriteByte(0x01))
	require.NoError(t, r.WriteByte(0x02))
	r.Clear()

	_, err := r.ReadByteTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, errReadTimeout)
}
