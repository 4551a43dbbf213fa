package collision

import (
	"encoding/binary"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"github.com/cfoust/particles/pkg/particles"
	"github.com/sasha-s/go-deadlock"
)

// stripedLocks maps particles onto a fixed set of mutexes. Two particles
// that share a stripe contend, which costs throughput but never
// correctness.
type stripedLocks struct {
	stripes []deadlock.Mutex
}

func newStripedLocks(count int) *stripedLocks {
	if count < 1 {
		count = 1
	}
	return &stripedLocks{
		stripes: make([]deadlock.Mutex, count),
	}
}

// index hashes the particle's address, which unlike its id does not
// change when the particle is confirmed.
func (l *stripedLocks) index(p *particles.Particle) int {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], uint64(uintptr(unsafe.Pointer(p))))
	return int(xxhash.Sum64(key[:]) % uint64(len(l.stripes)))
}

func (l *stripedLocks) lock(p *particles.Particle) func() {
	mutex := &l.stripes[l.index(p)]
	mutex.Lock()
	return mutex.Unlock
}

// lockPair takes both particles' stripes in index order so that two
// goroutines resolving the same pair from opposite ends cannot deadlock.
func (l *stripedLocks) lockPair(a, b *particles.Particle) func() {
	first, second := l.index(a), l.index(b)
	if first == second {
		mutex := &l.stripes[first]
		mutex.Lock()
		return mutex.Unlock
	}
	if first > second {
		first, second = second, first
	}

	l.stripes[first].Lock()
	l.stripes[second].Lock()
	return func() {
		l.stripes[second].Unlock()
		l.stripes[first].Unlock()
	}
}
