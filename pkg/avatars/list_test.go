package avatars

import (
	"testing"

	"github.com/cfoust/particles/pkg/collision"
	"github.com/cfoust/particles/pkg/geom"
	"github.com/cfoust/particles/pkg/particles"

	opt "github.com/repeale/fp-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBody(id uint32, x float32) Avatar {
	return Avatar{
		ID: id,
		Parts: []Capsule{
			{Start: geom.NewVector(x, 0, 0), End: geom.NewVector(x, 1.5, 0), Radius: 0.2},
			{Start: geom.NewVector(x, 1.5, 0), End: geom.NewVector(x, 1.8, 0), Radius: 0.1},
		},
	}
}

func TestFindCapsuleOverlaps(t *testing.T) {
	list := NewList()
	list.Upsert(newBody(2, 0))
	list.Upsert(newBody(1, 0.3))
	list.Upsert(newBody(3, 10))
	assert.Equal(t, 3, list.Len())

	contacts := list.FindCapsuleOverlaps(geom.NewVector(0.15, 1, 0), 0.1)
	require.Len(t, contacts, 2)
	assert.Equal(t, uint32(1), contacts[0].AvatarID)
	assert.Equal(t, uint32(2), contacts[1].AvatarID)

	list.Remove(1)
	assert.Len(t, list.FindCapsuleOverlaps(geom.NewVector(0.15, 1, 0), 0.1), 1)
}

func TestMove(t *testing.T) {
	list := NewList()
	list.Upsert(newBody(1, 0))

	assert.Empty(t, list.FindCapsuleOverlaps(geom.NewVector(2, 1, 0), 0.1))
	require.True(t, list.Move(1, geom.NewVector(2, 0, 0), geom.NewVector(1, 0, 0)))
	contacts := list.FindCapsuleOverlaps(geom.NewVector(2, 1, 0), 0.1)
	require.Len(t, contacts, 1)
	assert.Equal(t, geom.NewVector(1, 0, 0), contacts[0].Velocity)

	assert.False(t, list.Move(9, geom.Zero, geom.Zero))
}

func TestAvatarKicksParticle(t *testing.T) {
	list := NewList()
	body := newBody(1, 0.25)
	body.Velocity = geom.NewVector(-1, 0, 0)
	list.Upsert(body)

	factory := &particles.Factory{
		IDs:           particles.NewCounter(1),
		Tokens:        particles.NewCounter(1),
		Authoritative: true,
	}
	p, err := factory.New(geom.NewVector(0, 1, 0), 0.1, particles.RGB{}, geom.Zero, particles.Options{
		Damping: opt.Some[float32](1),
	})
	require.NoError(t, err)

	config := collision.DefaultConfig()
	config.AvatarElasticity = 0
	system := collision.NewSystem(config, collision.Sources{Avatars: list})
	system.CheckParticle(p)

	assert.InDelta(t, -0.05, p.Position().X, 1e-5)
	assert.InDelta(t, -1, p.Velocity().X, 1e-5)
}
