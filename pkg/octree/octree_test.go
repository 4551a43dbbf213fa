package octree

import (
	"testing"

	"github.com/cfoust/particles/pkg/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketDataCapacity(t *testing.T) {
	p := NewPacketData(10)
	assert.True(t, p.AppendUint64(42))
	assert.Equal(t, 2, p.Remaining())

	assert.False(t, p.AppendUint32(1), "should not fit")
	assert.Equal(t, 8, p.Len(), "failed append should not write")

	assert.True(t, p.AppendUint16(7))
	assert.False(t, p.AppendByte(1))
}

func TestPacketDataDiscardLevel(t *testing.T) {
	p := NewPacketData(32)
	require.True(t, p.AppendByte(0xAB))
	before := append([]byte{}, p.Bytes()...)

	level := p.StartLevel()
	require.True(t, p.AppendVector(geom.NewVector(1, 2, 3)))
	require.True(t, p.AppendFloat(4))
	p.DiscardLevel(level)

	assert.Equal(t, before, p.Bytes())
}

func TestBufferRoundTrip(t *testing.T) {
	p := NewPacketData(64)
	require.True(t, p.AppendUint32(0xDEADBEEF))
	require.True(t, p.AppendUint64(5_000_000))
	require.True(t, p.AppendVector(geom.NewVector(0.1, 0.2, 0.3)))
	require.True(t, p.AppendBool(true))
	require.True(t, p.AppendUint16(3))
	require.True(t, p.AppendBytes([]byte("abc")))

	buffer := Buffer(p.Bytes())

	id, ok := buffer.GetUint32()
	require.True(t, ok)
	assert.Equal(t, uint32(0xDEADBEEF), id)

	timestamp, ok := buffer.GetUint64()
	require.True(t, ok)
	assert.Equal(t, uint64(5_000_000), timestamp)

	vector, ok := buffer.GetVector()
	require.True(t, ok)
	assert.Equal(t, geom.NewVector(0.1, 0.2, 0.3), vector)

	flag, ok := buffer.GetBool()
	require.True(t, ok)
	assert.True(t, flag)

	value, ok := buffer.GetString()
	require.True(t, ok)
	assert.Equal(t, "abc", value)
	assert.Equal(t, 0, buffer.Len())
}

func TestBufferTruncated(t *testing.T) {
	buffer := Buffer([]byte{5, 0, 'a', 'b'})
	_, ok := buffer.GetString()
	assert.False(t, ok)
	assert.Equal(t, 4, buffer.Len(), "failed read should not advance")

	_, ok = buffer.GetUint64()
	assert.False(t, ok)
}
