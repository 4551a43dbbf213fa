package audio

import (
	"math"
	"math/rand"
	"time"

	"github.com/cfoust/particles/pkg/collision"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

type Config struct {
	SampleRate beep.SampleRate
	// Frequency in Hz a CollisionSound frequency of 1 maps to.
	BaseFrequency float64
	// Length of a sound with a decay of 1.
	MaxDuration time.Duration
	// Sounds started while this many are already playing are dropped.
	MaxVoices int
	Volume    float64
}

func DefaultConfig() Config {
	return Config{
		SampleRate:    beep.SampleRate(44100),
		BaseFrequency: 880,
		MaxDuration:   400 * time.Millisecond,
		MaxVoices:     16,
		Volume:        1,
	}
}

// impact is a decaying blend of a sine tone and white noise.
type impact struct {
	frequency float64
	noise     float64
	phase     float64
	position  int
	duration  int
	rate      beep.SampleRate
	random    *rand.Rand
}

func (i *impact) Stream(samples [][2]float64) (n int, ok bool) {
	for n = range samples {
		if i.position >= i.duration {
			return n, n > 0
		}

		tone := math.Sin(2 * math.Pi * i.phase)
		hiss := i.random.Float64()*2 - 1
		envelope := 1 - float64(i.position)/float64(i.duration)
		value := ((1-i.noise)*tone + i.noise*hiss) * envelope * envelope

		samples[n][0] = value
		samples[n][1] = value

		i.phase += i.frequency / float64(i.rate)
		i.phase -= math.Floor(i.phase)
		i.position++
	}
	return len(samples), true
}

func (i *impact) Err() error { return nil }

func newVolume(s beep.Streamer, volume float64) beep.Streamer {
	if volume <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(volume), Silent: false}
}

// Tones turns collision sounds into streamers on a shared mixer. It is
// itself a beep.Streamer, so it can be handed to a speaker or rendered to
// a file.
type Tones struct {
	config  Config
	mixer   *beep.Mixer
	random  *rand.Rand
	started int
	dropped int
	mutex   deadlock.Mutex
}

func NewTones(config Config) *Tones {
	return &Tones{
		config: config,
		mixer:  &beep.Mixer{},
		random: rand.New(rand.NewSource(1)),
	}
}

func (t *Tones) Format() beep.Format {
	return beep.Format{
		SampleRate:  t.config.SampleRate,
		NumChannels: 2,
		Precision:   2,
	}
}

func (t *Tones) StartCollisionSound(sound collision.CollisionSound) {
	duration := time.Duration(float64(t.config.MaxDuration) * float64(clamp(sound.Decay, 0, 1)))
	samples := t.config.SampleRate.N(duration)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if samples <= 0 || sound.Loudness <= 0 {
		return
	}
	if t.config.MaxVoices > 0 && t.mixer.Len() >= t.config.MaxVoices {
		t.dropped++
		log.Debug().Int("voices", t.mixer.Len()).Msg("dropping collision sound")
		return
	}

	voice := &impact{
		frequency: float64(sound.Frequency) * t.config.BaseFrequency,
		noise:     float64(clamp(sound.Noise, 0, 1)),
		duration:  samples,
		rate:      t.config.SampleRate,
		random:    rand.New(rand.NewSource(t.random.Int63())),
	}

	t.mixer.Add(newVolume(beep.Take(samples, voice), float64(sound.Loudness)*t.config.Volume))
	t.started++
}

// Stream mixes every playing sound into samples. It keeps producing
// silence when nothing is playing.
func (t *Tones) Stream(samples [][2]float64) (n int, ok bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.mixer.Stream(samples)
}

func (t *Tones) Err() error { return nil }

// Playing is the number of sounds that have not finished.
func (t *Tones) Playing() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.mixer.Len()
}

func (t *Tones) Started() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.started
}

func (t *Tones) Dropped() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.dropped
}

func clamp(value, low, high float32) float32 {
	return max(low, min(value, high))
}
