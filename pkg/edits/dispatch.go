package edits

import (
	"context"
	"fmt"

	"github.com/cfoust/particles/pkg/octree"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/store"
)

// Dispatcher applies incoming messages to a tree. Add responses produced
// by an authoritative tree go back through Replies.
type Dispatcher struct {
	Tree    *store.Tree
	Replies Transport
	// Source identifies the peer, so its creator tokens do not collide
	// with another peer's.
	Source uint32
	// Clock skew of the peer the messages come from, for data packets.
	ClockSkew int64
}

func (d *Dispatcher) Send(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return store.ErrMalformed
	}

	switch command := packet.Type(data[0]); command {
	case packet.ParticleAddOrEdit:
		result, err := d.Tree.ApplyEditMessageFrom(d.Source, data)
		if d.Replies != nil {
			for _, response := range result.AddResponses {
				if err := d.Replies.Send(ctx, response); err != nil {
					return fmt.Errorf("failed to reply: %w", err)
				}
			}
		}
		return err
	case packet.ParticleErase:
		_, err := d.Tree.ApplyEraseMessage(data)
		return err
	case packet.ParticleAddResponse:
		if !d.Tree.HandleAddResponse(data) {
			return fmt.Errorf("unmatched add response")
		}
		return nil
	case packet.ParticleData:
		_, err := d.Tree.ApplyDataPacket(data, &octree.ReadParams{ClockSkew: d.ClockSkew})
		return err
	default:
		return fmt.Errorf("unsupported packet %s", command)
	}
}
