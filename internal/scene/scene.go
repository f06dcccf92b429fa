// Package scene describes a speaker array and a set of sound sources in
// plan-view coordinates and derives routing tables from the geometry.
//
// Every source radiates to every speaker. The delay of a pair is the
// propagation time over their distance, the gain is a spherical
// distance rolloff referenced to GainRef meters. Sources may drift at a
// constant velocity; RoutingAt evaluates the geometry at a point in
// time so a host can follow the motion with periodic updates.
package scene

import (
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/pob31/WFS-DIY-sub001/internal/engine"
	"github.com/pob31/WFS-DIY-sub001/internal/routing"
)

// Defaults applied by Parse when the file leaves a field unset.
const (
	DefaultSampleRate   = 48000
	DefaultSpeedOfSound = 343.0
	DefaultGainRef      = 1.0
)

// Speaker is one output transducer position in meters.
type Speaker struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Source is one input channel: a sound origin with an optional constant
// velocity and an optional clip file backing it.
type Source struct {
	Name string  `yaml:"name"`
	File string  `yaml:"file"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	VX   float64 `yaml:"vx"`
	VY   float64 `yaml:"vy"`
	Gain float64 `yaml:"gain"`
}

// Scene is a complete rendering setup.
type Scene struct {
	SampleRate   int       `yaml:"sample_rate"`
	SpeedOfSound float64   `yaml:"speed_of_sound"`
	GainRef      float64   `yaml:"gain_ref"`
	Speakers     []Speaker `yaml:"speakers"`
	Sources      []Source  `yaml:"sources"`
}

// Load reads and validates a scene file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scene: %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scene from YAML, fills defaults and validates it.
func Parse(data []byte) (*Scene, error) {
	var sc Scene
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.SampleRate == 0 {
		sc.SampleRate = DefaultSampleRate
	}
	if sc.SpeedOfSound == 0 {
		sc.SpeedOfSound = DefaultSpeedOfSound
	}
	if sc.GainRef == 0 {
		sc.GainRef = DefaultGainRef
	}
	for i := range sc.Sources {
		if sc.Sources[i].Gain == 0 {
			sc.Sources[i].Gain = 1
		}
		if sc.Sources[i].Name == "" {
			sc.Sources[i].Name = fmt.Sprintf("source-%d", i+1)
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scene for values the renderer cannot work with.
func (s *Scene) Validate() error {
	if s.SampleRate < 1 {
		return fmt.Errorf("sample rate must be positive, got %d", s.SampleRate)
	}
	if s.SpeedOfSound <= 0 || !finite(s.SpeedOfSound) {
		return fmt.Errorf("speed of sound must be positive, got %g", s.SpeedOfSound)
	}
	if s.GainRef <= 0 || !finite(s.GainRef) {
		return fmt.Errorf("gain reference must be positive, got %g", s.GainRef)
	}
	if len(s.Speakers) == 0 {
		return fmt.Errorf("scene has no speakers")
	}
	if len(s.Sources) == 0 {
		return fmt.Errorf("scene has no sources")
	}
	for i, sp := range s.Speakers {
		if !finite(sp.X) || !finite(sp.Y) {
			return fmt.Errorf("speaker %d has a non-finite position", i)
		}
	}
	for _, src := range s.Sources {
		if !finite(src.X) || !finite(src.Y) || !finite(src.VX) || !finite(src.VY) {
			return fmt.Errorf("source %q has non-finite geometry", src.Name)
		}
		if !finite(src.Gain) || src.Gain < 0 {
			return fmt.Errorf("source %q gain must be finite and non-negative, got %g", src.Name, src.Gain)
		}
	}
	return nil
}

// SourceAt returns the position of source i at time t in seconds.
func (s *Scene) SourceAt(i int, t float64) (x, y float64) {
	src := s.Sources[i]
	return src.X + src.VX*t, src.Y + src.VY*t
}

// RoutingAt fills msg with the delay and gain of every (source,
// speaker) pair for the geometry at time t. msg must be sized
// len(Sources) by len(Speakers).
func (s *Scene) RoutingAt(t float64, msg *routing.Message) error {
	if msg == nil || msg.NumInputs != len(s.Sources) || msg.NumOutputs != len(s.Speakers) {
		return fmt.Errorf("scene: message dimensions do not match %dx%d", len(s.Sources), len(s.Speakers))
	}
	metersToSamples := float64(s.SampleRate) / s.SpeedOfSound
	for i := range s.Sources {
		x, y := s.SourceAt(i, t)
		for o, sp := range s.Speakers {
			d := math.Hypot(sp.X-x, sp.Y-y)
			delay := d * metersToSamples
			gain := s.GainRef / math.Max(d, s.GainRef) * s.Sources[i].Gain
			msg.Set(i, o, float32(delay), float32(gain))
		}
	}
	return nil
}

// MaxDelaySamples returns the largest pair delay over [0, duration]
// seconds, rounded up with one extra sample of interpolation headroom.
// Distance under constant velocity is convex in time, so the interval
// maximum is always at one of the endpoints.
func (s *Scene) MaxDelaySamples(duration float64) int {
	metersToSamples := float64(s.SampleRate) / s.SpeedOfSound
	maxD := 0.0
	for i := range s.Sources {
		for _, t := range []float64{0, duration} {
			x, y := s.SourceAt(i, t)
			for _, sp := range s.Speakers {
				if d := math.Hypot(sp.X-x, sp.Y-y); d > maxD {
					maxD = d
				}
			}
		}
	}
	n := int(math.Ceil(maxD*metersToSamples)) + 1
	if n < 1 {
		n = 1
	}
	return n
}

// Spec derives the engine specification covering this scene for renders
// up to duration seconds with blocks up to maxBlock samples.
func (s *Scene) Spec(maxBlock int, duration float64) engine.Specification {
	return engine.Specification{
		NumInputs:            len(s.Sources),
		NumOutputs:           len(s.Speakers),
		MaxSamplesPerChannel: maxBlock,
		MaxDelaySamples:      s.MaxDelaySamples(duration),
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
