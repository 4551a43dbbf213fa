package store

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/cfoust/particles/pkg/geom"
	"github.com/cfoust/particles/pkg/octree"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/particles"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

var (
	ErrDuplicateToken = errors.New("a pending particle already uses this creator token")
	ErrMalformed      = errors.New("malformed message")
)

// Tree owns a set of particles. Confirmed particles are keyed by id,
// particles still waiting for an id from the authoritative source are
// keyed by creator token.
type Tree struct {
	factory *particles.Factory

	// id -> particle
	confirmed map[uint32]*particles.Particle
	// creator token -> particle
	pending map[uint32]*particles.Particle
	// origin -> id this tree assigned, when authoritative
	assigned map[origin]uint32
	// creator token -> id we were given, for repeated add responses
	answered map[uint32]uint32
	mutex    deadlock.RWMutex
}

// origin names a particle by the node that created it and the token that
// node picked for it.
type origin struct {
	source uint32
	token  uint32
}

func NewTree(factory *particles.Factory) *Tree {
	return &Tree{
		factory:   factory,
		confirmed: make(map[uint32]*particles.Particle),
		pending:   make(map[uint32]*particles.Particle),
		assigned:  make(map[origin]uint32),
		answered:  make(map[uint32]uint32),
	}
}

func (t *Tree) Logger() zerolog.Logger {
	return log.With().Str("component", "store").Logger()
}

func (t *Tree) Factory() *particles.Factory {
	return t.factory
}

// Add inserts p. A confirmed particle replaces whatever was stored under
// its id.
func (t *Tree) Add(p *particles.Particle) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if p.IsPending() {
		if existing, ok := t.pending[p.CreatorTokenID()]; ok && existing != p {
			return ErrDuplicateToken
		}
		t.pending[p.CreatorTokenID()] = p
		return nil
	}

	t.confirmed[p.ID()] = p
	return nil
}

func (t *Tree) Get(id uint32) *particles.Particle {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.confirmed[id]
}

func (t *Tree) GetPending(creatorTokenID uint32) *particles.Particle {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.pending[creatorTokenID]
}

func (t *Tree) Len() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return len(t.confirmed) + len(t.pending)
}

// Particles returns every stored particle, confirmed ones first in id
// order, then pending ones in token order.
func (t *Tree) Particles() []*particles.Particle {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := make([]*particles.Particle, 0, len(t.confirmed)+len(t.pending))
	for _, p := range t.confirmed {
		result = append(result, p)
	}
	for _, p := range t.pending {
		result = append(result, p)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.IsPending() != b.IsPending() {
			return !a.IsPending()
		}
		if a.IsPending() {
			return a.CreatorTokenID() < b.CreatorTokenID()
		}
		return a.ID() < b.ID()
	})
	return result
}

// VisitParticles walks a snapshot of the tree, so visit may call back into
// the tree.
func (t *Tree) VisitParticles(visit func(p *particles.Particle) bool) {
	for _, p := range t.Particles() {
		if !visit(p) {
			return
		}
	}
}

// FindSphereOverlaps returns the particles other than exclude that overlap
// the sphere. Positions are read through locate, or directly when it is
// nil.
func (t *Tree) FindSphereOverlaps(center geom.Vector, radius float32, exclude *particles.Particle, locate particles.Locator) []*particles.Particle {
	if locate == nil {
		locate = particles.Locate
	}

	var result []*particles.Particle
	for _, p := range t.Particles() {
		if p == exclude {
			continue
		}
		position, size := locate(p)
		if geom.Distance(center, position) < radius+size {
			result = append(result, p)
		}
	}
	return result
}

// HandleAddResponse confirms the pending particle the response names. A
// repeat of a response already handled is accepted. It returns false if
// the message is malformed or no particle was waiting on the token.
func (t *Tree) HandleAddResponse(data []byte) bool {
	token, id, ok := particles.DecodeAddResponse(data)
	if !ok {
		return false
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	p, ok := t.pending[token]
	if !ok {
		previous, seen := t.answered[token]
		return seen && previous == id
	}

	delete(t.pending, token)
	p.Confirm(id)
	t.confirmed[id] = p
	t.answered[token] = id
	return true
}

// EditResult is what applying an edit message changed.
type EditResult struct {
	Created []*particles.Particle
	Updated []*particles.Particle
	// AddResponses go back to the nodes that created particles, one per
	// new particle that carried a creator token.
	AddResponses [][]byte
}

// ApplyEditMessage decodes an edit message and merges it into the tree.
// Records older than what the tree already holds are dropped.
func (t *Tree) ApplyEditMessage(data []byte) (EditResult, error) {
	return t.ApplyEditMessageFrom(0, data)
}

// ApplyEditMessageFrom is ApplyEditMessage for a message sent by source.
// An authoritative tree remembers which id it gave each of source's
// creator tokens, so edits the creator sent before it learned the id
// update that particle instead of creating another. Each such edit gets
// the add response again.
func (t *Tree) ApplyEditMessageFrom(source uint32, data []byte) (EditResult, error) {
	var result EditResult

	command, details, ok := particles.ReadEditMessageDetails(data)
	if !command.IsEdit() {
		return result, ErrMalformed
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, detail := range details {
		key := origin{source: source, token: detail.CreatorTokenID}
		tracked := t.factory.Authoritative && detail.CreatorTokenID != particles.UnknownToken

		if detail.ID == particles.NewParticle && tracked {
			if id, seen := t.assigned[key]; seen {
				result.AddResponses = append(
					result.AddResponses,
					particles.EncodeAddResponse(detail.CreatorTokenID, id),
				)

				// Erased since, nothing to update
				existing, exists := t.confirmed[id]
				if !exists {
					continue
				}

				detail.ID = id
				if t.update(existing, detail) {
					result.Updated = append(result.Updated, existing)
				}
				continue
			}
		}

		incoming, err := t.factory.FromDetail(detail)
		if err != nil {
			ok = false
			break
		}

		if incoming.IsNewlyCreated() {
			if incoming.IsPending() {
				t.pending[incoming.CreatorTokenID()] = incoming
			} else {
				t.confirmed[incoming.ID()] = incoming
			}
			result.Created = append(result.Created, incoming)

			if tracked {
				t.assigned[key] = incoming.ID()
				result.AddResponses = append(
					result.AddResponses,
					particles.EncodeAddResponse(incoming.CreatorTokenID(), incoming.ID()),
				)
			}
			continue
		}

		existing, exists := t.confirmed[incoming.ID()]
		if !exists {
			t.confirmed[incoming.ID()] = incoming
			result.Created = append(result.Created, incoming)
			continue
		}

		if t.update(existing, detail) {
			result.Updated = append(result.Updated, existing)
		}
	}

	if !ok {
		return result, ErrMalformed
	}
	return result, nil
}

// update merges detail into existing unless it is older. It must be
// called with the lock held.
func (t *Tree) update(existing *particles.Particle, detail particles.Detail) bool {
	if detail.LastEdited < existing.LastEdited() {
		return false
	}

	incoming, err := t.factory.FromDetail(detail)
	if err != nil {
		return false
	}
	existing.CopyChangedProperties(incoming)
	return true
}

// ApplyDataPacket merges a particle data packet, adjusting timestamps by
// the sender's clock skew. It returns the number of records applied.
func (t *Tree) ApplyDataPacket(data []byte, args *octree.ReadParams) (int, error) {
	buffer := octree.Buffer(data)
	command, ok := buffer.GetByte()
	if !ok || packet.Type(command) != packet.ParticleData {
		return 0, ErrMalformed
	}
	count, ok := buffer.GetUint16()
	if !ok {
		return 0, ErrMalformed
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	applied := 0
	for i := 0; i < int(count); i++ {
		if buffer.Len() < 4 {
			return applied, ErrMalformed
		}
		id := binary.LittleEndian.Uint32(buffer)

		var consumed int
		if existing, ok := t.confirmed[id]; ok {
			consumed = existing.ReadParticleDataFromBuffer(buffer, args)
		} else {
			var p *particles.Particle
			p, consumed = t.factory.FromParticleData(buffer, args)
			if p != nil {
				t.confirmed[p.ID()] = p
			}
		}

		if consumed == 0 {
			return applied, ErrMalformed
		}
		buffer = buffer[consumed:]
		applied++
	}

	return applied, nil
}

// EncodeDataPackets writes every confirmed particle into particle data
// packets no larger than maxSize.
func (t *Tree) EncodeDataPackets(maxSize int) [][]byte {
	var packets [][]byte

	packetData := octree.NewPacketData(maxSize)
	count := 0
	start := func() {
		packetData.Reset()
		packetData.AppendByte(byte(packet.ParticleData))
		packetData.AppendUint16(0)
		count = 0
	}
	flush := func() {
		if count == 0 {
			return
		}
		out := append([]byte{}, packetData.Bytes()...)
		binary.LittleEndian.PutUint16(out[1:3], uint16(count))
		packets = append(packets, out)
	}

	start()
	for _, p := range t.Particles() {
		if p.IsPending() {
			continue
		}
		if p.AppendParticleData(packetData) {
			count++
			continue
		}

		flush()
		start()
		if !p.AppendParticleData(packetData) {
			logger := t.Logger()
			logger.Warn().Uint32("id", p.ID()).Msg("particle does not fit in an empty packet")
			continue
		}
		count++
	}
	flush()

	return packets
}

// Erase removes the particles with the given ids and returns how many it
// found.
func (t *Tree) Erase(ids ...uint32) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := t.confirmed[id]; ok {
			delete(t.confirmed, id)
			removed++
		}
	}
	return removed
}

func (t *Tree) ApplyEraseMessage(data []byte) (int, error) {
	ids, ok := particles.DecodeEraseMessage(data)
	removed := t.Erase(ids...)
	if !ok {
		return removed, ErrMalformed
	}
	return removed, nil
}

// Sweep removes every particle that should die and returns the ids of the
// confirmed ones, which the caller can broadcast as an erase message.
func (t *Tree) Sweep() []uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var ids []uint32
	for id, p := range t.confirmed {
		if p.ShouldDie() {
			delete(t.confirmed, id)
			ids = append(ids, id)
		}
	}
	for token, p := range t.pending {
		if p.ShouldDie() {
			delete(t.pending, token)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > 0 {
		logger := t.Logger()
		logger.Debug().Int("count", len(ids)).Msg("swept dying particles")
	}
	return ids
}
