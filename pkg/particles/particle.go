package particles

import (
	"errors"
	"math"

	"github.com/cfoust/particles/pkg/geom"

	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog/log"
)

const (
	// NewParticle is the id of a particle the authoritative source has not
	// assigned an id to yet.
	NewParticle uint32 = 0xFFFFFFFF
	// UnknownToken means a particle has no creator token to reconcile.
	UnknownToken uint32 = 0xFFFFFFFF
)

// TreeScale is the edge length of the world in meters. Positions and
// velocities are normalized against it.
const TreeScale = 16384.0

const (
	DefaultDamping float32 = 0.99
	DefaultScript          = ""
)

var DefaultGravity = geom.Vector{Y: -9.8 / TreeScale}

var (
	ErrInvalidRadius   = errors.New("radius must be positive and finite")
	ErrInvalidVector   = errors.New("vector components must be finite")
	ErrInvalidValue    = errors.New("invalid value")
	ErrUnknownProperty = errors.New("unknown property")
)

const (
	RedIndex = iota
	GreenIndex
	BlueIndex
)

type RGB [3]uint8

// XColor is the loosely typed color representation scripts deal in.
type XColor struct {
	Red   int
	Green int
	Blue  int
}

func (c RGB) XColor() XColor {
	return XColor{
		Red:   int(c[RedIndex]),
		Green: int(c[GreenIndex]),
		Blue:  int(c[BlueIndex]),
	}
}

// Options are the optional construction parameters. Fields left as None
// take the package defaults.
type Options struct {
	Gravity      opt.Option[geom.Vector]
	Damping      opt.Option[float32]
	InHand       opt.Option[bool]
	UpdateScript opt.Option[string]
	ID           opt.Option[uint32]
}

type Particle struct {
	id             uint32
	creatorTokenID uint32
	provisional    bool

	position geom.Vector
	velocity geom.Vector
	gravity  geom.Vector
	radius   float32
	color    RGB
	damping  float32
	inHand   bool

	updateScript string

	shouldDie    bool
	newlyCreated bool

	created     uint64
	lastUpdated uint64
	lastEdited  uint64

	clock Clock
}

// Factory constructs particles. It owns the id and token allocators and
// the clock, so tests can make construction deterministic.
type Factory struct {
	IDs    IDAllocator
	Tokens IDAllocator
	Clock  Clock

	// Authoritative factories belong to the node that assigns real ids.
	// Ids they hand out are final; everyone else's are provisional until
	// the authoritative source confirms them.
	Authoritative bool
}

func NewFactory() *Factory {
	return &Factory{
		IDs:    NewCounter(0),
		Tokens: NewCounter(0),
		Clock:  SystemClock{},
	}
}

func (f *Factory) clock() Clock {
	if f.Clock == nil {
		return SystemClock{}
	}
	return f.Clock
}

// New creates a particle at position. Without an explicit id in options
// the particle gets a fresh id from the factory's allocator.
func (f *Factory) New(position geom.Vector, radius float32, color RGB, velocity geom.Vector, options Options) (*Particle, error) {
	if !validRadius(radius) {
		return nil, ErrInvalidRadius
	}
	if !position.IsFinite() || !velocity.IsFinite() {
		return nil, ErrInvalidVector
	}

	clock := f.clock()
	now := clock.Now()

	p := &Particle{
		position:       position,
		velocity:       velocity,
		radius:         radius,
		color:          color,
		gravity:        DefaultGravity,
		damping:        DefaultDamping,
		updateScript:   DefaultScript,
		creatorTokenID: UnknownToken,
		created:        now,
		lastUpdated:    now,
		lastEdited:     now,
		newlyCreated:   true,
		clock:          clock,
	}

	if !opt.IsNone(options.Gravity) {
		if !options.Gravity.Value.IsFinite() {
			return nil, ErrInvalidVector
		}
		p.gravity = options.Gravity.Value
	}
	if !opt.IsNone(options.Damping) {
		if err := p.SetDamping(options.Damping.Value); err != nil {
			return nil, err
		}
	}
	if !opt.IsNone(options.InHand) {
		p.inHand = options.InHand.Value
	}
	if !opt.IsNone(options.UpdateScript) {
		p.updateScript = options.UpdateScript.Value
	}

	switch {
	case !opt.IsNone(options.ID) && options.ID.Value != NewParticle:
		p.id = options.ID.Value
	case f.Authoritative:
		p.id = f.IDs.Next()
	default:
		p.id = f.IDs.Next()
		p.provisional = true
		p.creatorTokenID = f.Tokens.Next()
	}

	return p, nil
}

func validRadius(radius float32) bool {
	return radius > 0 && !math.IsInf(float64(radius), 0)
}

func (p *Particle) now() uint64 {
	if p.clock == nil {
		return SystemClock{}.Now()
	}
	return p.clock.Now()
}

func (p *Particle) ID() uint32 { return p.id }
func (p *Particle) CreatorTokenID() uint32 { return p.creatorTokenID }
func (p *Particle) Position() geom.Vector { return p.position }
func (p *Particle) Velocity() geom.Vector { return p.velocity }
func (p *Particle) Gravity() geom.Vector { return p.gravity }
func (p *Particle) Radius() float32 { return p.radius }
func (p *Particle) Color() RGB { return p.color }
func (p *Particle) XColor() XColor { return p.color.XColor() }
func (p *Particle) Damping() float32 { return p.damping }
func (p *Particle) InHand() bool { return p.inHand }
func (p *Particle) UpdateScript() string { return p.updateScript }
func (p *Particle) ShouldDie() bool { return p.shouldDie }
func (p *Particle) IsNewlyCreated() bool { return p.newlyCreated }
func (p *Particle) Created() uint64 { return p.created }
func (p *Particle) LastUpdated() uint64 { return p.lastUpdated }
func (p *Particle) LastEdited() uint64 { return p.lastEdited }
func (p *Particle) SetClock(clock Clock) { p.clock = clock }
func (p *Particle) SetCreatorTokenID(t uint32) { p.creatorTokenID = t }

// IsPending reports whether the particle's id was assigned locally and has
// not been confirmed by the authoritative source.
func (p *Particle) IsPending() bool {
	return p.provisional || p.id == NewParticle
}

// IsActive reports whether the particle takes part in free simulation.
func (p *Particle) IsActive() bool {
	return !p.shouldDie && !p.inHand
}

// Lifetime is the number of seconds since the particle was created.
func (p *Particle) Lifetime() float32 {
	return float32(int64(p.now()-p.created)) / UsecsPerSecond
}

// EditedAgo is the number of seconds since the particle was last edited.
func (p *Particle) EditedAgo() float32 {
	return float32(int64(p.now()-p.lastEdited)) / UsecsPerSecond
}

func (p *Particle) SetPosition(value geom.Vector) error {
	if !value.IsFinite() {
		return ErrInvalidVector
	}
	p.position = value
	return nil
}

func (p *Particle) SetVelocity(value geom.Vector) error {
	if !value.IsFinite() {
		return ErrInvalidVector
	}
	p.velocity = value
	return nil
}

func (p *Particle) SetGravity(value geom.Vector) error {
	if !value.IsFinite() {
		return ErrInvalidVector
	}
	p.gravity = value
	return nil
}

func (p *Particle) SetRadius(value float32) error {
	if !validRadius(value) {
		return ErrInvalidRadius
	}
	p.radius = value
	return nil
}

// SetDamping clamps value into [0, 1].
func (p *Particle) SetDamping(value float32) error {
	if math.IsNaN(float64(value)) {
		return ErrInvalidValue
	}
	p.damping = clampDamping(value)
	return nil
}

func clampDamping(value float32) float32 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func (p *Particle) SetColor(value RGB) {
	p.color = value
}

// SetXColor clamps each channel into 0..255 before storing it.
func (p *Particle) SetXColor(value XColor) {
	p.SetColor(RGB{
		clampChannel(value.Red),
		clampChannel(value.Green),
		clampChannel(value.Blue),
	})
}

func clampChannel(value int) uint8 {
	if value < 0 {
		return 0
	}
	if value > 255 {
		return 255
	}
	return uint8(value)
}

func (p *Particle) SetInHand(value bool) {
	p.inHand = value
}

// SetShouldDie marks the particle for removal. Once set it stays set.
func (p *Particle) SetShouldDie(value bool) {
	p.shouldDie = p.shouldDie || value
}

func (p *Particle) SetUpdateScript(value string) {
	p.updateScript = value
}

// Confirm adopts the id the authoritative source assigned to a pending
// particle.
func (p *Particle) Confirm(id uint32) {
	p.id = id
	p.provisional = false
	p.creatorTokenID = UnknownToken
}

// MarkEdited moves lastEdited forward to now.
func (p *Particle) MarkEdited() {
	p.lastEdited = max(p.lastEdited, p.now())
}

// Update refreshes the particle's bookkeeping for this tick. It does not
// move the particle.
func (p *Particle) Update() {
	p.lastUpdated = max(p.lastUpdated, p.now())
	p.newlyCreated = false
}

// CopyChangedProperties takes on other's state while keeping this
// particle's creation time, so lifetime stays anchored to the original
// creation.
func (p *Particle) CopyChangedProperties(other *Particle) {
	created := p.created
	clock := p.clock
	shouldDie := p.shouldDie
	lastEdited := p.lastEdited
	lastUpdated := p.lastUpdated

	*p = *other

	p.created = created
	p.clock = clock
	p.shouldDie = shouldDie || other.shouldDie
	p.lastEdited = max(lastEdited, other.lastEdited)
	p.lastUpdated = max(lastUpdated, other.lastUpdated)
}

// Locator reads where a particle is and how big it is. Simulations that
// move particles from several goroutines supply one that takes the lock
// guarding the particle.
type Locator func(p *Particle) (geom.Vector, float32)

// Locate reads p without any locking.
func Locate(p *Particle) (geom.Vector, float32) {
	return p.position, p.radius
}

// Detail flattens the particle for the edit codec. Pending particles go
// out with the NewParticle id so the receiver knows to assign one.
func (p *Particle) Detail() Detail {
	id := p.id
	if p.provisional {
		id = NewParticle
	}

	return Detail{
		ID:             id,
		CreatorTokenID: p.creatorTokenID,
		LastEdited:     p.lastEdited,
		Position:       p.position,
		Radius:         p.radius,
		Color:          p.color,
		Velocity:       p.velocity,
		Gravity:        p.gravity,
		Damping:        p.damping,
		InHand:         p.inHand,
		UpdateScript:   p.updateScript,
	}
}

func (p *Particle) DebugDump() {
	log.Debug().
		Uint32("id", p.id).
		Uint32("creatorToken", p.creatorTokenID).
		Bool("pending", p.IsPending()).
		Interface("position", p.position).
		Interface("velocity", p.velocity).
		Interface("gravity", p.gravity).
		Float32("radius", p.radius).
		Interface("color", p.color).
		Float32("damping", p.damping).
		Bool("inHand", p.inHand).
		Bool("shouldDie", p.shouldDie).
		Uint64("lastEdited", p.lastEdited).
		Uint64("lastUpdated", p.lastUpdated).
		Float32("lifetime", p.Lifetime()).
		Msg("particle")
}

// Detail is the flattened form of a particle that edit messages carry.
type Detail struct {
	ID             uint32
	CreatorTokenID uint32
	LastEdited     uint64
	Position       geom.Vector
	Radius         float32
	Color          RGB
	Velocity       geom.Vector
	Gravity        geom.Vector
	Damping        float32
	InHand         bool
	UpdateScript   string
}
