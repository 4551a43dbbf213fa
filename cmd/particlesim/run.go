package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"

	"github.com/cfoust/particles/pkg/audio"
	"github.com/cfoust/particles/pkg/avatars"
	"github.com/cfoust/particles/pkg/collision"
	"github.com/cfoust/particles/pkg/config"
	"github.com/cfoust/particles/pkg/edits"
	"github.com/cfoust/particles/pkg/geom"
	"github.com/cfoust/particles/pkg/packet"
	"github.com/cfoust/particles/pkg/particles"
	"github.com/cfoust/particles/pkg/store"
	"github.com/cfoust/particles/pkg/voxels"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	opt "github.com/repeale/fp-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// floorCells is the edge length of the square voxel floor.
const floorCells = 16

type simulation struct {
	config *config.Config

	// local simulates, remote plays the other end of the connection
	local  *store.Tree
	remote *store.Tree

	sender *edits.Sender
	grid   *voxels.Grid
	bodies *avatars.List
	tones  *audio.Tones
	system *collision.System

	recording *beep.Buffer
	edits     int
}

func newSimulation(cfg *config.Config) *simulation {
	s := &simulation{
		config: cfg,
		grid:   voxels.NewGrid(cfg.Simulation.VoxelSize),
		bodies: avatars.NewList(),
	}

	clock := particles.SystemClock{}
	s.local = store.NewTree(&particles.Factory{
		IDs:           particles.NewCounter(1),
		Tokens:        particles.NewCounter(1),
		Clock:         clock,
		Authoritative: cfg.Simulation.Authoritative,
	})
	s.remote = store.NewTree(&particles.Factory{
		IDs:           particles.NewCounter(1_000_000),
		Tokens:        particles.NewCounter(1),
		Clock:         clock,
		Authoritative: !cfg.Simulation.Authoritative,
	})

	toLocal := &edits.Dispatcher{Tree: s.local}
	toRemote := &edits.Dispatcher{
		Tree:      s.remote,
		Replies:   toLocal,
		ClockSkew: cfg.Simulation.ClockSkew,
	}
	relay := edits.NewSender(toRemote, cfg.Simulation.MaxPacketSize)

	s.sender = edits.NewSender(edits.TransportFunc(func(ctx context.Context, data []byte) error {
		if packet.Type(data[0]).IsEdit() {
			s.edits++
			return relay.Relay(ctx, data, cfg.Simulation.ClockSkew)
		}
		return toRemote.Send(ctx, data)
	}), cfg.Simulation.MaxPacketSize)

	s.grid.FillBox(voxels.Cell{X: 0, Y: 0, Z: 0}, voxels.Cell{X: floorCells - 1, Y: 0, Z: floorCells - 1})

	sources := collision.Sources{
		Voxels:    s.grid,
		Particles: s.local,
		Avatars:   s.bodies,
		Edits:     s.sender,
	}
	if cfg.Audio.Enabled {
		s.tones = audio.NewTones(cfg.AudioConfig())
		sources.Audio = s.tones
	}

	s.system = collision.NewSystem(cfg.CollisionConfig(), sources)
	return s
}

func (s *simulation) spawn(count int, seed int64) error {
	random := rand.New(rand.NewSource(seed))
	size := s.grid.Size() * floorCells

	for i := 0; i < count; i++ {
		position := geom.NewVector(
			random.Float32()*size,
			2+random.Float32()*4,
			random.Float32()*size,
		)
		velocity := geom.NewVector(random.Float32()-0.5, 0, random.Float32()-0.5)
		color := particles.RGB{uint8(random.Intn(256)), uint8(random.Intn(256)), uint8(random.Intn(256))}

		p, err := s.local.Factory().New(position, 0.1+random.Float32()*0.2, color, velocity, particles.Options{
			Gravity: opt.Some(geom.NewVector(0, -9.8, 0)),
			Damping: opt.Some[float32](0.98),
		})
		if err != nil {
			return err
		}
		if err := s.local.Add(p); err != nil {
			return err
		}
		s.sender.QueueParticleEdits(packet.ParticleAddOrEdit, p.Detail())
	}

	return nil
}

func (s *simulation) addWalker() {
	s.bodies.Upsert(avatars.Avatar{
		ID: 1,
		Parts: []avatars.Capsule{
			{Start: geom.NewVector(0, 1.2, 8), End: geom.NewVector(0, 2.6, 8), Radius: 0.3},
		},
	})
}

// step advances the simulation by one tick and ships what changed.
func (s *simulation) step(ctx context.Context, tick int) error {
	duration := s.config.TickDuration()

	// Walk the avatar back and forth across the floor
	direction := float32(1)
	if (tick/200)%2 == 1 {
		direction = -1
	}
	speed := direction * 4
	s.bodies.Move(1, geom.NewVector(speed*float32(duration.Seconds()), 0, 0), geom.NewVector(speed, 0, 0))

	s.system.Update(duration)

	if dead := s.local.Sweep(); len(dead) > 0 {
		s.sender.QueueErase(dead...)
	}

	if _, err := s.sender.Flush(ctx); err != nil {
		return err
	}

	if s.recording != nil {
		s.recording.Append(beep.Take(s.tones.Format().SampleRate.N(duration), s.tones))
	}
	return nil
}

func (s *simulation) writeWav(path string) error {
	if s.recording == nil {
		return fmt.Errorf("audio is disabled, nothing to record")
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return wav.Encode(file, s.recording.Streamer(0, s.recording.Len()), s.recording.Format())
}

func runCommand() error {
	cfg, err := config.Process(CLI.Run.Configs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sim := newSimulation(cfg)
	sim.addWalker()

	if CLI.Run.Wav != "" {
		if sim.tones == nil {
			return fmt.Errorf("--wav needs audio.enabled in the configuration")
		}
		sim.recording = beep.NewBuffer(sim.tones.Format())
	}

	if CLI.Run.Restore != "" {
		file, err := os.Open(CLI.Run.Restore)
		if err != nil {
			return err
		}
		loaded, err := sim.local.Restore(file)
		file.Close()
		if err != nil {
			return err
		}
		log.Info().Msgf("restored %d particles", loaded)

		for _, data := range sim.local.EncodeDataPackets(cfg.Simulation.MaxPacketSize) {
			if _, err := sim.remote.ApplyDataPacket(data, nil); err != nil {
				return err
			}
		}
	} else if err := sim.spawn(CLI.Run.Particles, CLI.Run.Seed); err != nil {
		return err
	}

	// New particles need their ids before anything edits them
	if _, err := sim.sender.Flush(ctx); err != nil {
		return err
	}

	log.Info().
		Int("particles", sim.local.Len()).
		Int("ticks", CLI.Run.Ticks).
		Bool("authoritative", cfg.Simulation.Authoritative).
		Msg("starting simulation")

loop:
	for tick := 0; tick < CLI.Run.Ticks; tick++ {
		select {
		case <-ctx.Done():
			log.Warn().Int("tick", tick).Msg("interrupted")
			break loop
		default:
		}

		if err := sim.step(ctx, tick); err != nil {
			return err
		}
	}

	summary := log.Info().
		Int("particles", sim.local.Len()).
		Int("remote", sim.remote.Len()).
		Int("editMessages", sim.edits)
	if sim.tones != nil {
		summary = summary.Int("sounds", sim.tones.Started())
	}
	summary.Msg("simulation finished")

	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		for _, p := range sim.local.Particles() {
			p.DebugDump()
		}
	}

	if CLI.Run.Snapshot != "" {
		file, err := os.Create(CLI.Run.Snapshot)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := sim.local.Snapshot(file); err != nil {
			return err
		}
		log.Info().Msgf("wrote snapshot to %s", CLI.Run.Snapshot)
	}

	if CLI.Run.Wav != "" {
		if err := sim.writeWav(CLI.Run.Wav); err != nil {
			return err
		}
		log.Info().Msgf("wrote collision sounds to %s", CLI.Run.Wav)
	}

	return nil
}
