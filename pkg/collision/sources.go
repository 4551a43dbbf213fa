package collision

import (
	"github.com/cfoust/particles/pkg/geom"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/particles"
)

// VoxelSource answers whether solid geometry overlaps a sphere. The
// returned penetration points from the sphere's center into the geometry.
type VoxelSource interface {
	FindSpherePenetration(center geom.Vector, radius float32) (geom.Vector, bool)
}

// ParticleSource is the store that owns the particles being simulated.
type ParticleSource interface {
	// VisitParticles calls visit for every particle the local node
	// simulates until visit returns false. The store must not hold locks
	// that FindSphereOverlaps needs while visit runs.
	VisitParticles(visit func(p *particles.Particle) bool)
	// FindSphereOverlaps returns the particles, other than exclude, whose
	// spheres overlap the given sphere. Candidates must be read through
	// locate. The result is a snapshot, and callers check each pair again
	// before acting on it.
	FindSphereOverlaps(center geom.Vector, radius float32, exclude *particles.Particle, locate particles.Locator) []*particles.Particle
}

// AvatarContact is an avatar capsule near a particle, with the velocity the
// avatar part is moving at.
type AvatarContact struct {
	AvatarID uint32
	Start    geom.Vector
	End      geom.Vector
	Radius   float32
	Velocity geom.Vector
}

type AvatarSource interface {
	FindCapsuleOverlaps(center geom.Vector, radius float32) []AvatarContact
}

// CollisionSound describes an impact for the audio collaborator.
type CollisionSound struct {
	Position  geom.Vector
	Loudness  float32
	Frequency float32
	Noise     float32
	Decay     float32
}

type AudioSink interface {
	StartCollisionSound(sound CollisionSound)
}

// EditSender propagates particles the engine changed back to the
// authoritative source.
type EditSender interface {
	QueueParticleEdits(command packet.Type, details ...particles.Detail)
}

// Sources are the collaborators a System borrows. Any of them may be nil,
// which turns the corresponding behavior off.
type Sources struct {
	Voxels    VoxelSource
	Particles ParticleSource
	Avatars   AvatarSource
	Audio     AudioSink
	Edits     EditSender
}
