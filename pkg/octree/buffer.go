package octree

import (
	"encoding/binary"
	"math"

	"github.com/cfoust/particles/pkg/geom"
)

// Buffer reads little-endian values off the front of a byte slice. Every
// getter reports whether enough bytes were left; on failure the buffer is
// not advanced.
type Buffer []byte

func (p *Buffer) Len() int { return len(*p) }

func (p *Buffer) Skip(n int) bool {
	if n < 0 || n > len(*p) {
		return false
	}
	(*p) = (*p)[n:]
	return true
}

func (p *Buffer) GetByte() (byte, bool) {
	if len(*p) < 1 {
		return 0, false
	}
	b := (*p)[0]
	(*p) = (*p)[1:]
	return b, true
}

func (p *Buffer) GetBool() (bool, bool) {
	value, ok := p.GetByte()
	return value != 0, ok
}

func (p *Buffer) GetBytes(n int) ([]byte, bool) {
	if n < 0 || n > len(*p) {
		return nil, false
	}
	b := make([]byte, n)
	copy(b, (*p)[:n])
	*p = (*p)[n:]
	return b, true
}

func (p *Buffer) GetUint16() (uint16, bool) {
	if len(*p) < 2 {
		return 0, false
	}
	value := binary.LittleEndian.Uint16(*p)
	(*p) = (*p)[2:]
	return value, true
}

func (p *Buffer) GetUint32() (uint32, bool) {
	if len(*p) < 4 {
		return 0, false
	}
	value := binary.LittleEndian.Uint32(*p)
	(*p) = (*p)[4:]
	return value, true
}

func (p *Buffer) GetUint64() (uint64, bool) {
	if len(*p) < 8 {
		return 0, false
	}
	value := binary.LittleEndian.Uint64(*p)
	(*p) = (*p)[8:]
	return value, true
}

func (p *Buffer) GetFloat() (float32, bool) {
	bits, ok := p.GetUint32()
	if !ok {
		return 0, false
	}
	return math.Float32frombits(bits), true
}

func (p *Buffer) GetVector() (geom.Vector, bool) {
	if len(*p) < 12 {
		return geom.Zero, false
	}
	x, _ := p.GetFloat()
	y, _ := p.GetFloat()
	z, _ := p.GetFloat()
	return geom.Vector{X: x, Y: y, Z: z}, true
}

// GetString reads a string prefixed with its uint16 length.
func (p *Buffer) GetString() (string, bool) {
	peek := *p
	length, ok := peek.GetUint16()
	if !ok {
		return "", false
	}
	value, ok := peek.GetBytes(int(length))
	if !ok {
		return "", false
	}
	*p = peek
	return string(value), true
}
