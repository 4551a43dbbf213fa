package voxels

import (
	"math"

	"github.com/cfoust/particles/pkg/geom"

	"github.com/sasha-s/go-deadlock"
)

type Cell struct {
	X, Y, Z int32
}

// Grid is a sparse set of solid cubes of equal size, with the cube at
// Cell{0, 0, 0} spanning [0, size) on every axis.
type Grid struct {
	size  float32
	cells map[Cell]struct{}
	mutex deadlock.RWMutex
}

func NewGrid(size float32) *Grid {
	if size <= 0 {
		size = 1
	}
	return &Grid{
		size:  size,
		cells: make(map[Cell]struct{}),
	}
}

func (g *Grid) Size() float32 {
	return g.size
}

func (g *Grid) Set(cell Cell) {
	g.mutex.Lock()
	g.cells[cell] = struct{}{}
	g.mutex.Unlock()
}

func (g *Grid) Clear(cell Cell) {
	g.mutex.Lock()
	delete(g.cells, cell)
	g.mutex.Unlock()
}

func (g *Grid) Has(cell Cell) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.cells[cell]
	return ok
}

func (g *Grid) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.cells)
}

// FillBox sets every cell between from and to inclusive.
func (g *Grid) FillBox(from, to Cell) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for x := min(from.X, to.X); x <= max(from.X, to.X); x++ {
		for y := min(from.Y, to.Y); y <= max(from.Y, to.Y); y++ {
			for z := min(from.Z, to.Z); z <= max(from.Z, to.Z); z++ {
				g.cells[Cell{x, y, z}] = struct{}{}
			}
		}
	}
}

// Cell coordinates are clamped to this range so that huge or infinite
// points still map to a cell and loops over a range can terminate.
const maxCoordinate = math.MaxInt32 - 1

func toCoordinate(value float64) int32 {
	value = math.Floor(value)
	if math.IsNaN(value) {
		return 0
	}
	return int32(max(min(value, maxCoordinate), -maxCoordinate))
}

func (g *Grid) CellAt(point geom.Vector) Cell {
	size := float64(g.size)
	return Cell{
		X: toCoordinate(float64(point.X) / size),
		Y: toCoordinate(float64(point.Y) / size),
		Z: toCoordinate(float64(point.Z) / size),
	}
}

func (g *Grid) Bounds(cell Cell) (geom.Vector, geom.Vector) {
	low := geom.NewVector(float32(cell.X), float32(cell.Y), float32(cell.Z)).Mul(g.size)
	return low, low.Add(geom.NewVector(g.size, g.size, g.size))
}

// FindSpherePenetration returns the deepest penetration of the sphere into
// any solid cell it touches. When the sphere covers more cells than the
// grid holds, the stored cells are scanned instead of the covered ones.
func (g *Grid) FindSpherePenetration(center geom.Vector, radius float32) (geom.Vector, bool) {
	if !center.IsFinite() || !(radius > 0) || math.IsInf(float64(radius), 1) {
		return geom.Zero, false
	}

	extent := geom.NewVector(radius, radius, radius)
	low := g.CellAt(center.Sub(extent))
	high := g.CellAt(center.Add(extent))

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var deepest geom.Vector
	found := false
	consider := func(cell Cell) {
		cellMin, cellMax := g.Bounds(cell)
		penetration, ok := geom.SphereBoxPenetration(center, radius, cellMin, cellMax)
		if !ok {
			return
		}
		if !found || penetration.LengthSquared() > deepest.LengthSquared() {
			deepest = penetration
			found = true
		}
	}

	span := func(low, high int32) float64 { return float64(high) - float64(low) + 1 }
	covered := span(low.X, high.X) * span(low.Y, high.Y) * span(low.Z, high.Z)
	if covered > float64(len(g.cells)) {
		for cell := range g.cells {
			if cell.X < low.X || cell.X > high.X ||
				cell.Y < low.Y || cell.Y > high.Y ||
				cell.Z < low.Z || cell.Z > high.Z {
				continue
			}
			consider(cell)
		}
		return deepest, found
	}

	for x := low.X; x <= high.X; x++ {
		for y := low.Y; y <= high.Y; y++ {
			for z := low.Z; z <= high.Z; z++ {
				cell := Cell{x, y, z}
				if _, ok := g.cells[cell]; ok {
					consider(cell)
				}
			}
		}
	}

	return deepest, found
}
