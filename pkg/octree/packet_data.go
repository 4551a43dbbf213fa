package octree

import (
	"encoding/binary"
	"math"

	"github.com/cfoust/particles/pkg/geom"
)

// MaxPacketSize is the largest payload a single octree packet may carry.
const MaxPacketSize = 1450

// PacketData is a byte sink with a fixed capacity. Appends that would
// overflow the capacity fail without writing anything, so callers can
// split work across several packets.
type PacketData struct {
	buffer   []byte
	capacity int
}

// Level marks a point in the packet that appends can be rolled back to.
type Level struct {
	offset int
}

func NewPacketData(capacity int) *PacketData {
	return &PacketData{
		buffer:   make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// NewPacketDataFrom writes into buffer instead of allocating. The sink's
// capacity is len(buffer).
func NewPacketDataFrom(buffer []byte) *PacketData {
	return &PacketData{
		buffer:   buffer[:0],
		capacity: len(buffer),
	}
}

func (p *PacketData) Len() int       { return len(p.buffer) }
func (p *PacketData) Capacity() int  { return p.capacity }
func (p *PacketData) Remaining() int { return p.capacity - len(p.buffer) }

// Bytes returns the data written so far. The slice aliases the sink.
func (p *PacketData) Bytes() []byte { return p.buffer }

func (p *PacketData) Reset() {
	p.buffer = p.buffer[:0]
}

// StartLevel records the current size so a group of appends can be
// discarded together if one of them fails.
func (p *PacketData) StartLevel() Level {
	return Level{offset: len(p.buffer)}
}

// DiscardLevel drops everything appended since level was started.
func (p *PacketData) DiscardLevel(level Level) {
	if level.offset <= len(p.buffer) {
		p.buffer = p.buffer[:level.offset]
	}
}

func (p *PacketData) AppendBytes(data []byte) bool {
	if len(data) > p.Remaining() {
		return false
	}
	p.buffer = append(p.buffer, data...)
	return true
}

func (p *PacketData) AppendByte(value byte) bool {
	if p.Remaining() < 1 {
		return false
	}
	p.buffer = append(p.buffer, value)
	return true
}

func (p *PacketData) AppendBool(value bool) bool {
	if value {
		return p.AppendByte(1)
	}
	return p.AppendByte(0)
}

func (p *PacketData) AppendUint16(value uint16) bool {
	if p.Remaining() < 2 {
		return false
	}
	p.buffer = binary.LittleEndian.AppendUint16(p.buffer, value)
	return true
}

func (p *PacketData) AppendUint32(value uint32) bool {
	if p.Remaining() < 4 {
		return false
	}
	p.buffer = binary.LittleEndian.AppendUint32(p.buffer, value)
	return true
}

func (p *PacketData) AppendUint64(value uint64) bool {
	if p.Remaining() < 8 {
		return false
	}
	p.buffer = binary.LittleEndian.AppendUint64(p.buffer, value)
	return true
}

func (p *PacketData) AppendFloat(value float32) bool {
	return p.AppendUint32(math.Float32bits(value))
}

func (p *PacketData) AppendVector(value geom.Vector) bool {
	if p.Remaining() < 12 {
		return false
	}
	return p.AppendFloat(value.X) && p.AppendFloat(value.Y) && p.AppendFloat(value.Z)
}
