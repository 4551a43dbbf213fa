package particles

import (
	"fmt"

	"github.com/cfoust/particles/pkg/geom"
)

// PropertyBridge exposes a particle's properties by name to a scripting
// runtime. Values arrive in whatever shape the runtime produced (native
// types, slices, maps) and are funneled through the particle's validated
// setters.
type PropertyBridge struct {
	particle *Particle
}

func NewPropertyBridge(particle *Particle) *PropertyBridge {
	return &PropertyBridge{particle: particle}
}

func (b *PropertyBridge) Get(name string) (any, bool) {
	p := b.particle
	switch name {
	case "position":
		return p.Position(), true
	case "velocity":
		return p.Velocity(), true
	case "gravity":
		return p.Gravity(), true
	case "damping":
		return p.Damping(), true
	case "radius":
		return p.Radius(), true
	case "color":
		return p.XColor(), true
	case "shouldDie":
		return p.ShouldDie(), true
	case "inHand":
		return p.InHand(), true
	case "lifetime":
		return p.Lifetime(), true
	case "script":
		return p.UpdateScript(), true
	}
	return nil, false
}

func (b *PropertyBridge) Set(name string, value any) error {
	p := b.particle
	switch name {
	case "position", "velocity", "gravity":
		vector, err := toVector(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		switch name {
		case "position":
			return p.SetPosition(vector)
		case "velocity":
			return p.SetVelocity(vector)
		default:
			return p.SetGravity(vector)
		}
	case "damping", "radius":
		number, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrInvalidValue)
		}
		if name == "damping" {
			return p.SetDamping(number)
		}
		return p.SetRadius(number)
	case "color":
		color, err := toXColor(value)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		p.SetXColor(color)
		return nil
	case "shouldDie", "inHand":
		flag, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrInvalidValue)
		}
		if name == "shouldDie" {
			p.SetShouldDie(flag)
		} else {
			p.SetInHand(flag)
		}
		return nil
	case "script":
		script, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrInvalidValue)
		}
		p.SetUpdateScript(script)
		return nil
	}
	return fmt.Errorf("%s: %w", name, ErrUnknownProperty)
}

func toFloat(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	case int32:
		return float32(v), true
	case int64:
		return float32(v), true
	}
	return 0, false
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func toVector(value any) (geom.Vector, error) {
	switch v := value.(type) {
	case geom.Vector:
		return v, nil
	case []float64:
		if len(v) != 3 {
			return geom.Zero, ErrInvalidValue
		}
		return geom.NewVector(float32(v[0]), float32(v[1]), float32(v[2])), nil
	case []float32:
		if len(v) != 3 {
			return geom.Zero, ErrInvalidValue
		}
		return geom.NewVector(v[0], v[1], v[2]), nil
	case map[string]any:
		x, okX := toFloat(v["x"])
		y, okY := toFloat(v["y"])
		z, okZ := toFloat(v["z"])
		if !okX || !okY || !okZ {
			return geom.Zero, ErrInvalidValue
		}
		return geom.NewVector(x, y, z), nil
	}
	return geom.Zero, ErrInvalidValue
}

func toXColor(value any) (XColor, error) {
	switch v := value.(type) {
	case XColor:
		return v, nil
	case RGB:
		return v.XColor(), nil
	case map[string]any:
		red, okR := toInt(v["red"])
		green, okG := toInt(v["green"])
		blue, okB := toInt(v["blue"])
		if !okR || !okG || !okB {
			return XColor{}, ErrInvalidValue
		}
		return XColor{Red: red, Green: green, Blue: blue}, nil
	}
	return XColor{}, ErrInvalidValue
}
