package geom

// Penetration vectors point from the center of the moving sphere toward
// the obstacle, and their length is the overlap depth. Subtracting one from
// the sphere's position leaves the two volumes exactly touching.

// fallbackNormal is used when two centers coincide and no direction can be
// derived from the geometry.
var fallbackNormal = Vector{0, -1, 0}

// SphereSpherePenetration returns the penetration of sphere a into sphere b.
func SphereSpherePenetration(centerA Vector, radiusA float32, centerB Vector, radiusB float32) (Vector, bool) {
	delta := centerB.Sub(centerA)
	distance := delta.Length()
	depth := radiusA + radiusB - distance
	if depth <= 0 {
		return Zero, false
	}

	if distance < 1e-12 {
		return fallbackNormal.Mul(depth), true
	}

	return delta.Mul(depth / distance), true
}

// SphereBoxPenetration returns the penetration of a sphere into the
// axis-aligned box [min, max].
func SphereBoxPenetration(center Vector, radius float32, min, max Vector) (Vector, bool) {
	closest := Vector{
		clamp(center.X, min.X, max.X),
		clamp(center.Y, min.Y, max.Y),
		clamp(center.Z, min.Z, max.Z),
	}

	if closest != center {
		delta := closest.Sub(center)
		distance := delta.Length()
		depth := radius - distance
		if depth <= 0 {
			return Zero, false
		}
		return delta.Mul(depth / distance), true
	}

	// The center is inside the box: push out through the nearest face.
	faces := [6]struct {
		distance float32
		normal   Vector
	}{
		{center.X - min.X, Vector{1, 0, 0}},
		{max.X - center.X, Vector{-1, 0, 0}},
		{center.Y - min.Y, Vector{0, 1, 0}},
		{max.Y - center.Y, Vector{0, -1, 0}},
		{center.Z - min.Z, Vector{0, 0, 1}},
		{max.Z - center.Z, Vector{0, 0, -1}},
	}

	best := faces[0]
	for _, face := range faces[1:] {
		if face.distance < best.distance {
			best = face
		}
	}

	return best.normal.Mul(best.distance + radius), true
}

// SphereCapsulePenetration returns the penetration of a sphere into the
// capsule swept by a sphere of capsuleRadius along [start, end].
func SphereCapsulePenetration(center Vector, radius float32, start, end Vector, capsuleRadius float32) (Vector, bool) {
	closest := ClosestPointOnSegment(center, start, end)
	return SphereSpherePenetration(center, radius, closest, capsuleRadius)
}

func clamp(value, min, max float32) float32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
