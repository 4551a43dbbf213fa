package store

import (
	"bytes"
	"testing"

	"github.com/cfoust/particles/pkg/geom"
	"github.com/cfoust/particles/pkg/octree"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/particles"

	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() uint64 { return c.now }

func newServer(clock *fakeClock) *Tree {
	return NewTree(&particles.Factory{
		IDs:           particles.NewCounter(1000),
		Tokens:        particles.NewCounter(1),
		Clock:         clock,
		Authoritative: true,
	})
}

func newClient(clock *fakeClock) *Tree {
	return NewTree(&particles.Factory{
		IDs:    particles.NewCounter(1),
		Tokens: particles.NewCounter(500),
		Clock:  clock,
	})
}

func addParticle(t *testing.T, tree *Tree, position geom.Vector, radius float32) *particles.Particle {
	p, err := tree.Factory().New(position, radius, particles.RGB{1, 2, 3}, geom.Zero, particles.Options{})
	require.NoError(t, err)
	require.NoError(t, tree.Add(p))
	return p
}

func TestVisitOrderAndOverlaps(t *testing.T) {
	tree := newServer(&fakeClock{now: 1})
	a := addParticle(t, tree, geom.NewVector(0, 0, 0), 0.1)
	b := addParticle(t, tree, geom.NewVector(0.15, 0, 0), 0.1)
	addParticle(t, tree, geom.NewVector(5, 0, 0), 0.1)

	var ids []uint32
	tree.VisitParticles(func(p *particles.Particle) bool {
		ids = append(ids, p.ID())
		return true
	})
	assert.Equal(t, []uint32{1000, 1001, 1002}, ids)

	overlaps := tree.FindSphereOverlaps(a.Position(), a.Radius(), a, nil)
	require.Len(t, overlaps, 1)
	assert.Same(t, b, overlaps[0])

	// The visitor can stop early
	visited := 0
	tree.VisitParticles(func(p *particles.Particle) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestCreateThroughAuthoritativeSource(t *testing.T) {
	clock := &fakeClock{now: 100}
	client := newClient(clock)
	server := newServer(clock)

	pending := addParticle(t, client, geom.NewVector(1, 1, 1), 0.5)
	require.True(t, pending.IsPending())
	token := pending.CreatorTokenID()
	assert.Same(t, pending, client.GetPending(pending.CreatorTokenID()))

	out := make([]byte, octree.MaxPacketSize)
	size, _, ok := particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, []particles.Detail{pending.Detail()}, out)
	require.True(t, ok)

	result, err := server.ApplyEditMessage(out[:size])
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	require.Len(t, result.AddResponses, 1)
	assert.Equal(t, uint32(1000), result.Created[0].ID())
	assert.Same(t, result.Created[0], server.Get(1000))

	require.True(t, client.HandleAddResponse(result.AddResponses[0]))
	assert.False(t, pending.IsPending())
	assert.Same(t, pending, client.Get(1000))
	assert.Nil(t, client.GetPending(500))

	// Repeats of the same response are harmless, a different id is not
	assert.True(t, client.HandleAddResponse(result.AddResponses[0]))
	assert.False(t, client.HandleAddResponse(particles.EncodeAddResponse(token, 1001)))
}

func TestEditsBeforeAddResponseReachOneParticle(t *testing.T) {
	clock := &fakeClock{now: 100}
	client := newClient(clock)
	server := newServer(clock)

	pending := addParticle(t, client, geom.NewVector(1, 1, 1), 0.5)
	created := pending.Detail()

	// The client keeps editing before it hears back
	clock.now = 200
	require.NoError(t, pending.SetPosition(geom.NewVector(2, 2, 2)))
	pending.MarkEdited()
	edited := pending.Detail()
	require.Equal(t, particles.NewParticle, edited.ID)

	out := make([]byte, octree.MaxPacketSize)
	size, _, ok := particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, []particles.Detail{created}, out)
	require.True(t, ok)
	first, err := server.ApplyEditMessage(out[:size])
	require.NoError(t, err)
	require.Len(t, first.Created, 1)

	size, _, ok = particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, []particles.Detail{edited}, out)
	require.True(t, ok)
	second, err := server.ApplyEditMessage(out[:size])
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	require.Len(t, second.Updated, 1)
	assert.Same(t, first.Created[0], second.Updated[0])

	assert.Equal(t, 1, server.Len())
	assert.Equal(t, geom.NewVector(2, 2, 2), server.Get(1000).Position())

	// Both responses name the same id and the client accepts both
	require.Len(t, second.AddResponses, 1)
	assert.Equal(t, first.AddResponses[0], second.AddResponses[0])
	require.True(t, client.HandleAddResponse(first.AddResponses[0]))
	require.True(t, client.HandleAddResponse(second.AddResponses[0]))
	assert.Equal(t, 1, client.Len())
	assert.Same(t, pending, client.Get(1000))
}

func TestCreatorTokensAreScopedBySource(t *testing.T) {
	clock := &fakeClock{now: 100}
	server := newServer(clock)

	// Two clients that happened to pick the same token
	a := addParticle(t, newClient(clock), geom.NewVector(1, 1, 1), 0.5)
	b := addParticle(t, newClient(clock), geom.NewVector(3, 3, 3), 0.5)
	require.Equal(t, a.CreatorTokenID(), b.CreatorTokenID())

	out := make([]byte, octree.MaxPacketSize)
	size, _, ok := particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, []particles.Detail{a.Detail()}, out)
	require.True(t, ok)
	_, err := server.ApplyEditMessageFrom(1, out[:size])
	require.NoError(t, err)

	size, _, ok = particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, []particles.Detail{b.Detail()}, out)
	require.True(t, ok)
	result, err := server.ApplyEditMessageFrom(2, out[:size])
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, 2, server.Len())
}

func TestApplyEditMessageDropsStaleEdits(t *testing.T) {
	clock := &fakeClock{now: 100}
	server := newServer(clock)
	p := addParticle(t, server, geom.NewVector(1, 1, 1), 0.5)

	stale := p.Detail()
	stale.Position = geom.NewVector(9, 9, 9)
	stale.LastEdited = 50

	fresh := p.Detail()
	fresh.Position = geom.NewVector(2, 2, 2)
	fresh.LastEdited = 150

	out := make([]byte, octree.MaxPacketSize)
	size, _, ok := particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, []particles.Detail{stale}, out)
	require.True(t, ok)
	result, err := server.ApplyEditMessage(out[:size])
	require.NoError(t, err)
	assert.Empty(t, result.Updated)
	assert.Equal(t, geom.NewVector(1, 1, 1), p.Position())

	size, _, ok = particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, []particles.Detail{fresh}, out)
	require.True(t, ok)
	result, err = server.ApplyEditMessage(out[:size])
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Same(t, p, result.Updated[0])
	assert.Equal(t, geom.NewVector(2, 2, 2), p.Position())
	assert.Equal(t, uint64(100), p.Created())
}

func TestApplyEditMessageMalformed(t *testing.T) {
	server := newServer(&fakeClock{})
	_, err := server.ApplyEditMessage([]byte{byte(packet.ParticleAddOrEdit), 1, 0, 7})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = server.ApplyEditMessage(particles.EncodeAddResponse(1, 2))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDataPacketsRoundTrip(t *testing.T) {
	clock := &fakeClock{now: 10}
	server := newServer(clock)
	for i := 0; i < 40; i++ {
		addParticle(t, server, geom.NewVector(float32(i), 0, 0), 0.5)
	}

	packets := server.EncodeDataPackets(512)
	require.Greater(t, len(packets), 1)
	for _, data := range packets {
		assert.LessOrEqual(t, len(data), 512)
	}

	replica := newClient(&fakeClock{now: 1})
	total := 0
	for _, data := range packets {
		applied, err := replica.ApplyDataPacket(data, &octree.ReadParams{ClockSkew: 5})
		require.NoError(t, err)
		total += applied
	}
	assert.Equal(t, 40, total)
	assert.Equal(t, 40, replica.Len())

	copied := replica.Get(1005)
	require.NotNil(t, copied)
	assert.Equal(t, geom.NewVector(5, 0, 0), copied.Position())
	assert.Equal(t, uint64(15), copied.LastEdited())
	assert.False(t, copied.IsPending())

	_, err := replica.ApplyDataPacket(packets[0][:len(packets[0])-1], nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSweepAndErase(t *testing.T) {
	tree := newServer(&fakeClock{now: 1})
	a := addParticle(t, tree, geom.Zero, 1)
	b := addParticle(t, tree, geom.Zero, 1)
	c := addParticle(t, tree, geom.Zero, 1)

	b.SetShouldDie(true)
	assert.Equal(t, []uint32{b.ID()}, tree.Sweep())
	assert.Nil(t, tree.Get(b.ID()))
	assert.Empty(t, tree.Sweep())

	out := make([]byte, 64)
	size, _, ok := particles.EncodeEraseMessage([]uint32{a.ID(), 9999}, out)
	require.True(t, ok)
	removed, err := tree.ApplyEraseMessage(out[:size])
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Same(t, c, tree.Get(c.ID()))
	assert.Equal(t, 1, tree.Len())
}

func TestSweepLogsThroughComponentLogger(t *testing.T) {
	var out bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&out).Level(zerolog.DebugLevel)
	defer func() { log.Logger = previous }()

	tree := newServer(&fakeClock{now: 1})
	p := addParticle(t, tree, geom.Zero, 1)
	p.SetShouldDie(true)
	require.Len(t, tree.Sweep(), 1)

	assert.Contains(t, out.String(), `"component":"store"`)
	assert.Contains(t, out.String(), "swept dying particles")
}

func TestDuplicatePendingToken(t *testing.T) {
	tree := newClient(&fakeClock{})
	p := addParticle(t, tree, geom.Zero, 1)

	other, err := tree.Factory().New(geom.Zero, 1, particles.RGB{}, geom.Zero, particles.Options{})
	require.NoError(t, err)
	other.SetCreatorTokenID(p.CreatorTokenID())
	assert.ErrorIs(t, tree.Add(other), ErrDuplicateToken)
}

func TestSnapshotRestore(t *testing.T) {
	clock := &fakeClock{now: 42}
	tree := newServer(clock)
	original, err := tree.Factory().New(
		geom.NewVector(1, 2, 3),
		0.25,
		particles.RGB{10, 20, 30},
		geom.NewVector(0, 1, 0),
		particles.Options{
			Damping:      opt.Some[float32](0.5),
			UpdateScript: opt.Some("spin"),
		},
	)
	require.NoError(t, err)
	require.NoError(t, tree.Add(original))
	addParticle(t, tree, geom.Zero, 1)

	var buffer bytes.Buffer
	require.NoError(t, tree.Snapshot(&buffer))

	restored := newServer(&fakeClock{now: 99})
	loaded, err := restored.Restore(&buffer)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	copied := restored.Get(original.ID())
	require.NotNil(t, copied)
	assert.Equal(t, original.Detail(), copied.Detail())

	_, err = restored.Restore(bytes.NewReader([]byte{0xff}))
	assert.Error(t, err)
}
