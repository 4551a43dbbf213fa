package collision

import (
	"math"
	"reflect"
	"time"

	"github.com/cfoust/particles/pkg/geom"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/particles"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	noiseScale    = 0.1
	durationScale = 0.004
)

type Check uint8

const (
	CheckVoxels Check = iota
	CheckParticles
	CheckAvatars
	PlaySounds
	SendEdits
)

func (c Check) String() string {
	switch c {
	case CheckVoxels:
		return "voxels"
	case CheckParticles:
		return "particles"
	case CheckAvatars:
		return "avatars"
	case PlaySounds:
		return "sounds"
	case SendEdits:
		return "edits"
	}
	return "unknown"
}

// System moves particles and resolves their collisions against voxels,
// each other and avatars. It borrows its sources and never owns them.
type System struct {
	config Config

	voxels    VoxelSource
	particles ParticleSource
	avatars   AvatarSource
	audio     AudioSink
	edits     EditSender

	locks   *stripedLocks
	limiter *rate.Limiter
	log     zerolog.Logger
}

// isNil also catches interfaces holding a typed nil pointer.
func isNil(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func NewSystem(config Config, sources Sources) *System {
	s := &System{
		config: config,
		locks:  newStripedLocks(config.LockStripes),
		log:    log.With().Str("component", "collision").Logger(),
	}

	if !isNil(sources.Voxels) {
		s.voxels = sources.Voxels
	}
	if !isNil(sources.Particles) {
		s.particles = sources.Particles
	}
	if !isNil(sources.Avatars) {
		s.avatars = sources.Avatars
	}
	if !isNil(sources.Audio) {
		s.audio = sources.Audio
	}
	if !isNil(sources.Edits) {
		s.edits = sources.Edits
	}

	if config.SoundsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(config.SoundsPerSecond), max(config.SoundBurst, 1))
	}

	for _, check := range []Check{CheckVoxels, CheckParticles, CheckAvatars, PlaySounds, SendEdits} {
		if !s.Enabled(check) {
			s.log.Warn().Msgf("no source for %s, skipping", check)
		}
	}

	return s
}

func (s *System) Config() Config {
	return s.config
}

// Enabled reports whether the collaborator behind check was supplied.
func (s *System) Enabled(check Check) bool {
	switch check {
	case CheckVoxels:
		return s.voxels != nil
	case CheckParticles:
		return s.particles != nil
	case CheckAvatars:
		return s.avatars != nil
	case PlaySounds:
		return s.audio != nil
	case SendEdits:
		return s.edits != nil
	}
	return false
}

// contact carries per-particle state across one CheckParticle call.
type contact struct {
	soundPlayed bool
}

// Update advances every active particle by elapsed and resolves its
// collisions. Every visited particle has its bookkeeping refreshed.
func (s *System) Update(elapsed time.Duration) {
	if s.particles == nil {
		return
	}

	dt := float32(elapsed.Seconds())
	s.particles.VisitParticles(func(p *particles.Particle) bool {
		if p.IsActive() {
			s.integrate(p, dt)
			s.CheckParticle(p)
		}

		unlock := s.locks.lock(p)
		p.Update()
		unlock()
		return true
	})
}

func (s *System) integrate(p *particles.Particle, dt float32) {
	if dt <= 0 {
		return
	}

	unlock := s.locks.lock(p)
	defer unlock()

	velocity := p.Velocity()
	position := p.Position().Add(velocity.Mul(dt))
	velocity = velocity.Add(p.Gravity().Mul(dt))
	velocity = velocity.Mul(float32(math.Pow(float64(p.Damping()), float64(dt))))

	if err := p.SetPosition(position); err != nil {
		s.log.Debug().Err(err).Uint32("id", p.ID()).Msg("could not integrate position")
	}
	if err := p.SetVelocity(velocity); err != nil {
		s.log.Debug().Err(err).Uint32("id", p.ID()).Msg("could not integrate velocity")
	}
}

// CheckParticle resolves p against voxels, then other particles, then
// avatars. Particles that are dying or held in a hand are left alone.
func (s *System) CheckParticle(p *particles.Particle) {
	if !p.IsActive() {
		return
	}

	state := &contact{}
	if s.voxels != nil {
		s.updateCollisionWithVoxels(p, state)
	}
	if s.particles != nil {
		s.updateCollisionWithParticles(p, state)
	}
	if s.avatars != nil {
		s.updateCollisionWithAvatars(p, state)
	}
}

func (s *System) UpdateCollisionWithVoxels(p *particles.Particle) {
	if s.voxels == nil || !p.IsActive() {
		return
	}
	s.updateCollisionWithVoxels(p, &contact{})
}

func (s *System) updateCollisionWithVoxels(p *particles.Particle, state *contact) {
	unlock := s.locks.lock(p)
	defer unlock()

	penetration, ok := s.voxels.FindSpherePenetration(p.Position(), p.Radius())
	if !ok || penetration.IsZero() {
		return
	}

	s.updateCollisionSound(p.Position(), p.Velocity(), penetration, s.config.VoxelFrequency, state)
	s.applyHardCollision(p, penetration, s.config.VoxelElasticity, p.Damping(), geom.Zero)
}

func (s *System) UpdateCollisionWithParticles(p *particles.Particle) {
	if s.particles == nil || !p.IsActive() {
		return
	}
	s.updateCollisionWithParticles(p, &contact{})
}

// locate reads p under its stripe lock. Callers must not hold a stripe.
func (s *System) locate(p *particles.Particle) (geom.Vector, float32) {
	unlock := s.locks.lock(p)
	defer unlock()
	return p.Position(), p.Radius()
}

func (s *System) updateCollisionWithParticles(p *particles.Particle, state *contact) {
	center, radius := s.locate(p)
	others := s.particles.FindSphereOverlaps(center, radius, p, s.locate)
	for _, other := range others {
		if other == p || other.ShouldDie() {
			continue
		}
		s.resolvePair(p, other, state)
	}
}

func mass(p *particles.Particle) float32 {
	r := p.Radius()
	return r * r * r
}

// resolvePair separates a and b and exchanges momentum between them in
// their center of mass frame. A particle held in a hand does not move.
func (s *System) resolvePair(a, b *particles.Particle, state *contact) {
	unlock := s.locks.lockPair(a, b)
	defer unlock()

	// Either particle may have moved since the overlap query
	penetration, ok := geom.SphereSpherePenetration(a.Position(), a.Radius(), b.Position(), b.Radius())
	if !ok {
		return
	}

	relative := a.Velocity().Sub(b.Velocity())
	s.updateCollisionSound(a.Position(), relative, penetration, s.config.ParticleFrequency, state)

	elasticity := s.config.ParticleElasticity
	if b.InHand() {
		frame := b.Velocity()
		_ = a.SetVelocity(a.Velocity().Sub(frame))
		s.applyHardCollision(a, penetration, elasticity, a.Damping(), frame)
		return
	}

	massA, massB := mass(a), mass(b)
	total := massA + massB
	if total <= 0 {
		return
	}

	frame := a.Velocity().Mul(massA).Add(b.Velocity().Mul(massB)).Mul(1 / total)

	_ = a.SetVelocity(a.Velocity().Sub(frame))
	s.applyHardCollision(a, penetration.Mul(massB/total), elasticity, a.Damping(), frame)

	_ = b.SetVelocity(b.Velocity().Sub(frame))
	s.applyHardCollision(b, penetration.Neg().Mul(massA/total), elasticity, b.Damping(), frame)
}

func (s *System) UpdateCollisionWithAvatars(p *particles.Particle) {
	if s.avatars == nil || !p.IsActive() {
		return
	}
	s.updateCollisionWithAvatars(p, &contact{})
}

func (s *System) updateCollisionWithAvatars(p *particles.Particle, state *contact) {
	center, radius := s.locate(p)
	contacts := s.avatars.FindCapsuleOverlaps(center, radius)
	if len(contacts) == 0 {
		return
	}

	unlock := s.locks.lock(p)
	defer unlock()

	for _, avatar := range contacts {
		penetration, ok := geom.SphereCapsulePenetration(p.Position(), p.Radius(), avatar.Start, avatar.End, avatar.Radius)
		if !ok {
			continue
		}

		relative := p.Velocity().Sub(avatar.Velocity)
		s.updateCollisionSound(p.Position(), relative, penetration, s.config.AvatarFrequency, state)

		_ = p.SetVelocity(relative)
		s.applyHardCollision(p, penetration, s.config.AvatarElasticity, p.Damping(), avatar.Velocity)

		s.log.Debug().
			Uint32("particle", p.ID()).
			Uint32("avatar", avatar.AvatarID).
			Msg("avatar collision")
	}
}

// ApplyHardCollision moves p out of the obstacle described by penetration
// and reflects the part of its velocity heading into the obstacle.
// Velocity moving away from the obstacle is never reflected. The result is
// damped, then addedVelocity is added to it.
func (s *System) ApplyHardCollision(p *particles.Particle, penetration geom.Vector, elasticity, damping float32, addedVelocity geom.Vector) {
	unlock := s.locks.lock(p)
	defer unlock()
	s.applyHardCollision(p, penetration, elasticity, damping, addedVelocity)
}

func (s *System) applyHardCollision(p *particles.Particle, penetration geom.Vector, elasticity, damping float32, addedVelocity geom.Vector) {
	normal := penetration.Normalize()
	if normal.IsZero() {
		return
	}

	velocity := p.Velocity()
	if into := velocity.Dot(normal); into > 0 {
		velocity = velocity.Sub(normal.Mul(into * (1 + elasticity)))
	}
	velocity = velocity.Mul(damping).Add(addedVelocity)

	if velocity.Length() < s.config.HaltingSpeed {
		velocity = geom.Zero
	}

	if err := p.SetPosition(p.Position().Sub(penetration)); err != nil {
		s.log.Debug().Err(err).Uint32("id", p.ID()).Msg("could not resolve penetration")
		return
	}
	if err := p.SetVelocity(velocity); err != nil {
		s.log.Debug().Err(err).Uint32("id", p.ID()).Msg("could not apply collision velocity")
		return
	}
	p.MarkEdited()

	if s.edits != nil {
		s.edits.QueueParticleEdits(packet.ParticleAddOrEdit, p.Detail())
	}
}

// UpdateCollisionSound emits a sound for p hitting the obstacle described
// by penetration if it is moving into it fast enough.
func (s *System) UpdateCollisionSound(p *particles.Particle, penetration geom.Vector, frequency float32) {
	s.updateCollisionSound(p.Position(), p.Velocity(), penetration, frequency, nil)
}

func (s *System) updateCollisionSound(position, velocity, penetration geom.Vector, frequency float32, state *contact) {
	if s.audio == nil {
		return
	}
	if state != nil && state.soundPlayed {
		return
	}

	normal := penetration.Normalize()
	toward := velocity.Dot(normal)
	if normal.IsZero() || toward <= s.config.SoundThreshold {
		return
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return
	}

	tangential := float32(math.Sqrt(float64(max(velocity.LengthSquared()-toward*toward, 0))))
	ratio := tangential / toward

	s.audio.StartCollisionSound(CollisionSound{
		Position:  position,
		Loudness:  min(toward*s.config.LoudnessScale, 1),
		Frequency: frequency * (1 + ratio),
		Noise:     min(ratio*noiseScale, 1),
		Decay:     max(1-durationScale*float32(math.Sqrt(float64(frequency)))/toward, 0),
	})

	if state != nil {
		state.soundPlayed = true
	}
}
