package avatars

import (
	"sort"

	"github.com/cfoust/particles/pkg/collision"
	"github.com/cfoust/particles/pkg/geom"

	"github.com/sasha-s/go-deadlock"
)

// Capsule is one body part: a sphere of Radius swept from Start to End.
type Capsule struct {
	Start  geom.Vector
	End    geom.Vector
	Radius float32
}

type Avatar struct {
	ID       uint32
	Parts    []Capsule
	Velocity geom.Vector
}

// List holds the avatars near the local node.
type List struct {
	// avatar id -> avatar
	avatars map[uint32]Avatar
	mutex   deadlock.RWMutex
}

func NewList() *List {
	return &List{
		avatars: make(map[uint32]Avatar),
	}
}

func (l *List) Upsert(avatar Avatar) {
	l.mutex.Lock()
	l.avatars[avatar.ID] = avatar
	l.mutex.Unlock()
}

func (l *List) Remove(id uint32) {
	l.mutex.Lock()
	delete(l.avatars, id)
	l.mutex.Unlock()
}

func (l *List) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.avatars)
}

// Move translates every part of an avatar and records the velocity it
// moved at.
func (l *List) Move(id uint32, offset geom.Vector, velocity geom.Vector) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	avatar, ok := l.avatars[id]
	if !ok {
		return false
	}

	parts := make([]Capsule, len(avatar.Parts))
	for i, part := range avatar.Parts {
		parts[i] = Capsule{
			Start:  part.Start.Add(offset),
			End:    part.End.Add(offset),
			Radius: part.Radius,
		}
	}
	avatar.Parts = parts
	avatar.Velocity = velocity
	l.avatars[id] = avatar
	return true
}

// FindCapsuleOverlaps returns the parts of every avatar that the sphere
// overlaps, ordered by avatar id.
func (l *List) FindCapsuleOverlaps(center geom.Vector, radius float32) []collision.AvatarContact {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	var contacts []collision.AvatarContact
	for _, avatar := range l.avatars {
		for _, part := range avatar.Parts {
			if _, ok := geom.SphereCapsulePenetration(center, radius, part.Start, part.End, part.Radius); !ok {
				continue
			}
			contacts = append(contacts, collision.AvatarContact{
				AvatarID: avatar.ID,
				Start:    part.Start,
				End:      part.End,
				Radius:   part.Radius,
				Velocity: avatar.Velocity,
			})
		}
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].AvatarID < contacts[j].AvatarID
	})
	return contacts
}
