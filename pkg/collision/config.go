package collision

type Config struct {
	// Fraction of the into-surface speed kept, reversed, after an impact.
	VoxelElasticity    float32
	ParticleElasticity float32
	AvatarElasticity   float32

	// Base frequencies handed to the audio collaborator per surface kind.
	VoxelFrequency    float32
	ParticleFrequency float32
	AvatarFrequency   float32

	// Impacts slower than this along the contact normal make no sound.
	SoundThreshold float32
	LoudnessScale  float32
	// Zero means no limit.
	SoundsPerSecond float64
	SoundBurst      int

	// Speeds below this snap to zero after a hard collision.
	HaltingSpeed float32

	LockStripes int
}

func DefaultConfig() Config {
	return Config{
		VoxelElasticity:    0.5,
		ParticleElasticity: 0.8,
		AvatarElasticity:   0.6,
		VoxelFrequency:     0.5,
		ParticleFrequency:  0.75,
		AvatarFrequency:    0.9,
		SoundThreshold:     0.5,
		LoudnessScale:      0.25,
		HaltingSpeed:       0,
		LockStripes:        64,
	}
}
