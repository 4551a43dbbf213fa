package geom

import "math"

// Vector is a position, velocity or displacement in world-normalized
// units. Components are float32 because that is what goes on the wire.
type Vector struct {
	X float32
	Y float32
	Z float32
}

var Zero = Vector{}

func NewVector(x, y, z float32) Vector {
	return Vector{x, y, z}
}

func (v Vector) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

// IsFinite reports whether no component is NaN or infinite.
func (v Vector) IsFinite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func isFinite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func (v Vector) Add(o Vector) Vector {
	return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vector) Sub(o Vector) Vector {
	return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vector) Mul(k float32) Vector {
	return Vector{v.X * k, v.Y * k, v.Z * k}
}

func (v Vector) Neg() Vector {
	return Vector{-v.X, -v.Y, -v.Z}
}

func (v Vector) Dot(o Vector) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vector) LengthSquared() float32 {
	return v.Dot(v)
}

func (v Vector) Length() float32 {
	return float32(math.Sqrt(float64(v.LengthSquared())))
}

// Normalize returns the unit vector in the direction of v, or the zero
// vector when v is too short to have a direction.
func (v Vector) Normalize() Vector {
	length := v.Length()
	if length < 1e-12 {
		return Zero
	}
	return v.Mul(1 / length)
}

// Scale returns v rescaled to length k.
func (v Vector) Scale(k float32) Vector {
	if length := v.Length(); length > 1e-6 {
		return v.Mul(k / length)
	}
	return v
}

func Distance(from, to Vector) float32 {
	return from.Sub(to).Length()
}

// ClosestPointOnSegment returns the point on the segment [start, end] that
// is nearest to point.
func ClosestPointOnSegment(point, start, end Vector) Vector {
	segment := end.Sub(start)
	lengthSquared := segment.LengthSquared()
	if lengthSquared == 0 {
		return start
	}

	t := point.Sub(start).Dot(segment) / lengthSquared
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return start.Add(segment.Mul(t))
}
