package particles

import (
	"sync/atomic"
	"time"
)

const UsecsPerSecond = 1_000_000

// Clock returns microsecond timestamps in the local clock domain.
type Clock interface {
	Now() uint64
}

type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().UnixMicro())
}

// IDAllocator hands out particle ids or creator tokens. Implementations
// must never return the NewParticle/UnknownToken sentinel.
type IDAllocator interface {
	Next() uint32
}

// Counter is a monotonically increasing IDAllocator.
type Counter struct {
	next atomic.Uint32
}

func NewCounter(start uint32) *Counter {
	counter := &Counter{}
	counter.next.Store(start)
	return counter
}

func (c *Counter) Next() uint32 {
	for {
		id := c.next.Add(1) - 1
		if id != NewParticle {
			return id
		}
	}
}
