package config

import (
	"time"

	"github.com/cfoust/particles/pkg/audio"
	"github.com/cfoust/particles/pkg/collision"

	"github.com/gopxl/beep"
)

type Collision struct {
	VoxelElasticity    float32 `json:"voxelElasticity" yaml:"voxelElasticity" env:"VOXEL_ELASTICITY"`
	ParticleElasticity float32 `json:"particleElasticity" yaml:"particleElasticity" env:"PARTICLE_ELASTICITY"`
	AvatarElasticity   float32 `json:"avatarElasticity" yaml:"avatarElasticity" env:"AVATAR_ELASTICITY"`
	VoxelFrequency     float32 `json:"voxelFrequency" yaml:"voxelFrequency" env:"VOXEL_FREQUENCY"`
	ParticleFrequency  float32 `json:"particleFrequency" yaml:"particleFrequency" env:"PARTICLE_FREQUENCY"`
	AvatarFrequency    float32 `json:"avatarFrequency" yaml:"avatarFrequency" env:"AVATAR_FREQUENCY"`
	SoundThreshold     float32 `json:"soundThreshold" yaml:"soundThreshold" env:"SOUND_THRESHOLD"`
	LoudnessScale      float32 `json:"loudnessScale" yaml:"loudnessScale" env:"LOUDNESS_SCALE"`
	SoundsPerSecond    float64 `json:"soundsPerSecond" yaml:"soundsPerSecond" env:"SOUNDS_PER_SECOND"`
	SoundBurst         int     `json:"soundBurst" yaml:"soundBurst" env:"SOUND_BURST"`
	HaltingSpeed       float32 `json:"haltingSpeed" yaml:"haltingSpeed" env:"HALTING_SPEED"`
	LockStripes        int     `json:"lockStripes" yaml:"lockStripes" env:"LOCK_STRIPES"`
}

type Audio struct {
	Enabled       bool    `json:"enabled" yaml:"enabled" env:"ENABLED"`
	SampleRate    int     `json:"sampleRate" yaml:"sampleRate" env:"SAMPLE_RATE"`
	BaseFrequency float64 `json:"baseFrequency" yaml:"baseFrequency" env:"BASE_FREQUENCY"`
	MaxDuration   int     `json:"maxDurationMs" yaml:"maxDurationMs" env:"MAX_DURATION_MS"`
	MaxVoices     int     `json:"maxVoices" yaml:"maxVoices" env:"MAX_VOICES"`
	Volume        float64 `json:"volume" yaml:"volume" env:"VOLUME"`
}

type Simulation struct {
	// Milliseconds per tick.
	Tick          int     `json:"tickMs" yaml:"tickMs" env:"TICK_MS"`
	Authoritative bool    `json:"authoritative" yaml:"authoritative" env:"AUTHORITATIVE"`
	MaxPacketSize int     `json:"maxPacketSize" yaml:"maxPacketSize" env:"MAX_PACKET_SIZE"`
	ClockSkew     int64   `json:"clockSkewUsec" yaml:"clockSkewUsec" env:"CLOCK_SKEW_USEC"`
	VoxelSize     float32 `json:"voxelSize" yaml:"voxelSize" env:"VOXEL_SIZE"`
}

type Config struct {
	Collision  Collision  `json:"collision" yaml:"collision" envPrefix:"COLLISION_"`
	Audio      Audio      `json:"audio" yaml:"audio" envPrefix:"AUDIO_"`
	Simulation Simulation `json:"simulation" yaml:"simulation" envPrefix:"SIMULATION_"`
}

func (c *Config) CollisionConfig() collision.Config {
	return collision.Config{
		VoxelElasticity:    c.Collision.VoxelElasticity,
		ParticleElasticity: c.Collision.ParticleElasticity,
		AvatarElasticity:   c.Collision.AvatarElasticity,
		VoxelFrequency:     c.Collision.VoxelFrequency,
		ParticleFrequency:  c.Collision.ParticleFrequency,
		AvatarFrequency:    c.Collision.AvatarFrequency,
		SoundThreshold:     c.Collision.SoundThreshold,
		LoudnessScale:      c.Collision.LoudnessScale,
		SoundsPerSecond:    c.Collision.SoundsPerSecond,
		SoundBurst:         c.Collision.SoundBurst,
		HaltingSpeed:       c.Collision.HaltingSpeed,
		LockStripes:        c.Collision.LockStripes,
	}
}

func (c *Config) AudioConfig() audio.Config {
	return audio.Config{
		SampleRate:    beep.SampleRate(c.Audio.SampleRate),
		BaseFrequency: c.Audio.BaseFrequency,
		MaxDuration:   time.Duration(c.Audio.MaxDuration) * time.Millisecond,
		MaxVoices:     c.Audio.MaxVoices,
		Volume:        c.Audio.Volume,
	}
}

func (c *Config) TickDuration() time.Duration {
	return time.Duration(c.Simulation.Tick) * time.Millisecond
}
