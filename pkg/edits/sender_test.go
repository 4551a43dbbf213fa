package edits

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cfoust/particles/pkg/geom"
	"github.com/cfoust/particles/pkg/octree"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/particles"
	"github.com/cfoust/particles/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	messages [][]byte
	err      error
}

func (r *recorder) Send(ctx context.Context, data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, data)
	return nil
}

type fakeClock struct {
	now uint64
}

func (c *fakeClock) Now() uint64 { return c.now }

func newDetails(t *testing.T, count int) []particles.Detail {
	factory := &particles.Factory{
		IDs:           particles.NewCounter(1),
		Tokens:        particles.NewCounter(1),
		Clock:         &fakeClock{now: 10},
		Authoritative: true,
	}

	details := make([]particles.Detail, count)
	for i := range details {
		p, err := factory.New(geom.NewVector(float32(i), 0, 0), 1, particles.RGB{}, geom.Zero, particles.Options{})
		require.NoError(t, err)
		details[i] = p.Detail()
	}
	return details
}

func TestFlushSplitsMessages(t *testing.T) {
	transport := &recorder{}
	sender := NewSender(transport, particles.ExpectedEditMessageBytes()*3)

	sender.QueueParticleEdits(packet.ParticleAddOrEdit, newDetails(t, 7)...)
	sender.QueueErase(1, 2, 3)
	assert.Equal(t, 10, sender.Pending())

	sent, err := sender.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sender.Pending())

	require.Equal(t, 4, sent)
	total := 0
	for _, message := range transport.messages[:3] {
		assert.Equal(t, packet.ParticleAddOrEdit, packet.Type(message[0]))
		assert.LessOrEqual(t, len(message), particles.ExpectedEditMessageBytes()*3)
		_, decoded, ok := particles.ReadEditMessage(message, particles.NewFactory())
		require.True(t, ok)
		total += len(decoded)
	}
	assert.Equal(t, 7, total)

	ids, ok := particles.DecodeEraseMessage(transport.messages[3])
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 2, 3}, ids)

	sent, err = sender.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestFlushDropsOversizedEdit(t *testing.T) {
	transport := &recorder{}
	sender := NewSender(transport, 256)

	details := newDetails(t, 2)
	details[0].UpdateScript = strings.Repeat("x", 1000)
	sender.QueueParticleEdits(packet.ParticleAddOrEdit, details...)

	sent, err := sender.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	_, decoded, ok := particles.ReadEditMessage(transport.messages[0], particles.NewFactory())
	require.True(t, ok)
	require.Len(t, decoded, 1)
	assert.Equal(t, details[1].ID, decoded[0].ID())
}

func TestQueueIgnoresOtherCommands(t *testing.T) {
	sender := NewSender(&recorder{}, 0)
	sender.QueueParticleEdits(packet.ParticleErase, newDetails(t, 1)...)
	assert.Equal(t, 0, sender.Pending())
}

func TestFlushTransportError(t *testing.T) {
	failure := errors.New("offline")
	sender := NewSender(&recorder{err: failure}, 0)
	sender.QueueErase(4)

	sent, err := sender.Flush(context.Background())
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, 0, sent)
}

func TestRelayAdjustsSkew(t *testing.T) {
	transport := &recorder{}
	sender := NewSender(transport, 0)

	details := newDetails(t, 2)
	out := make([]byte, octree.MaxPacketSize)
	size, _, ok := particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, details, out)
	require.True(t, ok)
	original := append([]byte{}, out[:size]...)

	require.NoError(t, sender.Relay(context.Background(), out[:size], 1000))
	assert.Equal(t, original, out[:size], "the caller's buffer is left alone")

	_, decoded, ok := particles.ReadEditMessage(transport.messages[0], particles.NewFactory())
	require.True(t, ok)
	for _, p := range decoded {
		assert.Equal(t, uint64(1010), p.LastEdited())
	}

	assert.ErrorIs(t, sender.Relay(context.Background(), particles.EncodeAddResponse(1, 2), 5), ErrNotEdit)
}

func TestDispatcherRoundTrip(t *testing.T) {
	clock := &fakeClock{now: 100}
	server := store.NewTree(&particles.Factory{
		IDs:           particles.NewCounter(1000),
		Tokens:        particles.NewCounter(1),
		Clock:         clock,
		Authoritative: true,
	})
	client := store.NewTree(&particles.Factory{
		IDs:    particles.NewCounter(1),
		Tokens: particles.NewCounter(50),
		Clock:  clock,
	})

	toClient := &Dispatcher{Tree: client}
	toServer := &Dispatcher{Tree: server, Replies: toClient}
	sender := NewSender(toServer, 0)

	p, err := client.Factory().New(geom.NewVector(1, 2, 3), 0.5, particles.RGB{}, geom.Zero, particles.Options{})
	require.NoError(t, err)
	require.NoError(t, client.Add(p))

	sender.QueueParticleEdits(packet.ParticleAddOrEdit, p.Detail())
	_, err = sender.Flush(context.Background())
	require.NoError(t, err)

	assert.False(t, p.IsPending())
	assert.Equal(t, uint32(1000), p.ID())
	require.NotNil(t, server.Get(1000))

	sender.QueueErase(1000)
	_, err = sender.Flush(context.Background())
	require.NoError(t, err)
	assert.Nil(t, server.Get(1000))

	q, err := server.Factory().New(geom.NewVector(4, 4, 4), 1, particles.RGB{}, geom.Zero, particles.Options{})
	require.NoError(t, err)
	require.NoError(t, server.Add(q))
	for _, data := range server.EncodeDataPackets(octree.MaxPacketSize) {
		require.NoError(t, toClient.Send(context.Background(), data))
	}
	require.NotNil(t, client.Get(q.ID()))

	assert.Error(t, toServer.Send(context.Background(), []byte{0}))
	assert.Error(t, toServer.Send(context.Background(), nil))
}

func TestDispatcherEditsQueuedBeforeConfirmation(t *testing.T) {
	clock := &fakeClock{now: 100}
	server := store.NewTree(&particles.Factory{
		IDs:           particles.NewCounter(1000),
		Tokens:        particles.NewCounter(1),
		Clock:         clock,
		Authoritative: true,
	})
	client := store.NewTree(&particles.Factory{
		IDs:    particles.NewCounter(1),
		Tokens: particles.NewCounter(50),
		Clock:  clock,
	})

	toServer := &Dispatcher{Tree: server, Replies: &Dispatcher{Tree: client}, Source: 7}
	sender := NewSender(toServer, 0)

	p, err := client.Factory().New(geom.NewVector(1, 2, 3), 0.5, particles.RGB{}, geom.Zero, particles.Options{})
	require.NoError(t, err)
	require.NoError(t, client.Add(p))
	sender.QueueParticleEdits(packet.ParticleAddOrEdit, p.Detail())

	clock.now = 200
	require.NoError(t, p.SetVelocity(geom.NewVector(0, 1, 0)))
	p.MarkEdited()
	sender.QueueParticleEdits(packet.ParticleAddOrEdit, p.Detail())

	_, err = sender.Flush(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, server.Len())
	copied := server.Get(1000)
	require.NotNil(t, copied)
	assert.Equal(t, geom.NewVector(0, 1, 0), copied.Velocity())
	assert.Equal(t, uint32(1000), p.ID())
	assert.Equal(t, 1, client.Len())
}
