package edits

import (
	"context"
	"errors"
	"fmt"

	"github.com/cfoust/particles/pkg/octree"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/particles"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

var ErrNotEdit = errors.New("packet does not carry edit records")

// Transport delivers one encoded message to the authoritative source.
type Transport interface {
	Send(ctx context.Context, data []byte) error
}

type TransportFunc func(ctx context.Context, data []byte) error

func (f TransportFunc) Send(ctx context.Context, data []byte) error {
	return f(ctx, data)
}

// Sender batches particle edits and erases and sends them as messages no
// larger than the configured packet size.
type Sender struct {
	transport Transport
	maxSize   int

	edits  []particles.Detail
	erases []uint32
	mutex  deadlock.Mutex
}

func NewSender(transport Transport, maxSize int) *Sender {
	if maxSize <= 0 {
		maxSize = octree.MaxPacketSize
	}
	return &Sender{
		transport: transport,
		maxSize:   maxSize,
	}
}

func (s *Sender) Logger() zerolog.Logger {
	return log.With().Str("component", "edits").Logger()
}

// QueueParticleEdits holds details until the next Flush. Only add/edit
// commands are accepted.
func (s *Sender) QueueParticleEdits(command packet.Type, details ...particles.Detail) {
	if !command.IsEdit() {
		logger := s.Logger()
		logger.Warn().Str("command", command.String()).Msg("ignoring non-edit command")
		return
	}

	s.mutex.Lock()
	s.edits = append(s.edits, details...)
	s.mutex.Unlock()
}

func (s *Sender) QueueErase(ids ...uint32) {
	s.mutex.Lock()
	s.erases = append(s.erases, ids...)
	s.mutex.Unlock()
}

func (s *Sender) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.edits) + len(s.erases)
}

// Flush sends everything queued and returns the number of messages sent.
// Edits that cannot fit in an empty message are dropped.
func (s *Sender) Flush(ctx context.Context) (int, error) {
	s.mutex.Lock()
	edits := s.edits
	erases := s.erases
	s.edits = nil
	s.erases = nil
	s.mutex.Unlock()

	messages, err := s.encode(edits, erases)
	if err != nil {
		return 0, err
	}

	for i, message := range messages {
		if err := s.transport.Send(ctx, message); err != nil {
			return i, fmt.Errorf("failed to send %s: %w", packet.Type(message[0]), err)
		}
	}

	return len(messages), nil
}

func (s *Sender) encode(edits []particles.Detail, erases []uint32) ([][]byte, error) {
	var messages [][]byte
	out := make([]byte, s.maxSize)

	for len(edits) > 0 {
		size, count, _ := particles.EncodeParticleEditMessageDetails(packet.ParticleAddOrEdit, edits, out)
		if count == 0 {
			logger := s.Logger()
			logger.Warn().
				Uint32("id", edits[0].ID).
				Int("script", len(edits[0].UpdateScript)).
				Msg("edit does not fit in a message, dropping")
			edits = edits[1:]
			continue
		}
		messages = append(messages, append([]byte{}, out[:size]...))
		edits = edits[count:]
	}

	for len(erases) > 0 {
		size, count, _ := particles.EncodeEraseMessage(erases, out)
		if count == 0 {
			return messages, fmt.Errorf("packet size %d cannot hold an erase", s.maxSize)
		}
		messages = append(messages, append([]byte{}, out[:size]...))
		erases = erases[count:]
	}

	return messages, nil
}

// Relay forwards an edit message received from a node whose clock is skew
// microseconds behind ours, rewriting its timestamps into our clock.
func (s *Sender) Relay(ctx context.Context, data []byte, skew int64) error {
	if len(data) == 0 || !packet.Type(data[0]).IsEdit() {
		return ErrNotEdit
	}

	message := append([]byte{}, data...)
	patched := particles.AdjustEditPacketForClockSkew(message, skew)
	logger := s.Logger()
	logger.Debug().Int("records", patched).Int64("skew", skew).Msg("relaying edit message")
	return s.transport.Send(ctx, message)
}
