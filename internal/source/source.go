// Package source loads audio clips that feed the renderer's inputs.
//
// WAV, MP3 and Ogg Vorbis files are decoded in full and mixed down to
// one channel. Clips keep their native sample rate; Resampled converts
// a clip to the engine rate before it is rendered.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Clip is one fully decoded mono audio file.
type Clip struct {
	Name    string
	Rate    int
	Samples []float32
}

// Seconds returns the clip duration.
func (c *Clip) Seconds() float64 {
	if c.Rate == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.Rate)
}

// Load decodes the audio file at path. The format is chosen by
// extension: .wav, .mp3 or .ogg. An unsupported extension is rejected
// before the file is opened.
func Load(path string) (*Clip, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".mp3", ".ogg":
	default:
		return nil, fmt.Errorf("source: unsupported format %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	defer f.Close()

	var clip *Clip
	switch ext {
	case ".wav":
		clip, err = decodeWAV(f)
	case ".mp3":
		clip, err = decodeMP3(f)
	case ".ogg":
		clip, err = decodeOgg(f)
	}
	if err != nil {
		return nil, fmt.Errorf("source: decode %s: %w", path, err)
	}
	clip.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return clip, nil
}

// drainSamples is the burst of silence fed through the converter after
// the clip body to push the filter tail out. Comfortably longer than
// the high-quality preset's filter.
const drainSamples = 2048

// Resampled returns the clip converted to rate. A clip already at rate
// is returned unchanged. The result is trimmed to the exact converted
// length, so downstream timing math stays sample-accurate.
func (c *Clip) Resampled(rate int) (*Clip, error) {
	if rate < 1 {
		return nil, fmt.Errorf("source: target rate must be positive, got %d", rate)
	}
	if rate == c.Rate {
		return c, nil
	}
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(c.Rate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("source: resample %s: %w", c.Name, err)
	}
	input := make([]float64, len(c.Samples))
	for i, s := range c.Samples {
		input[i] = float64(s)
	}
	body, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("source: resample %s: %w", c.Name, err)
	}
	tail, err := r.Process(make([]float64, drainSamples))
	if err != nil {
		return nil, fmt.Errorf("source: resample %s: %w", c.Name, err)
	}
	want := int(float64(len(c.Samples)) * float64(rate) / float64(c.Rate))
	samples := make([]float32, 0, want)
	for _, s := range body {
		if len(samples) == want {
			break
		}
		samples = append(samples, float32(s))
	}
	for _, s := range tail {
		if len(samples) == want {
			break
		}
		samples = append(samples, float32(s))
	}
	return &Clip{Name: c.Name, Rate: rate, Samples: samples}, nil
}

func decodeWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth == 0 {
		return nil, errors.New("unknown wav bit depth")
	}
	ch := buf.Format.NumChannels
	if ch < 1 {
		return nil, errors.New("wav file has no channels")
	}
	scale := float32(int64(1) << (bitDepth - 1))
	frames := len(buf.Data) / ch
	samples := make([]float32, frames)
	for fr := 0; fr < frames; fr++ {
		var acc float32
		for c := 0; c < ch; c++ {
			acc += float32(buf.Data[fr*ch+c])
		}
		samples[fr] = acc / scale / float32(ch)
	}
	return &Clip{Rate: buf.Format.SampleRate, Samples: samples}, nil
}

// decodeMP3 reads the 16-bit little-endian stereo stream go-mp3 always
// produces and averages the pair into one channel.
func decodeMP3(r io.Reader) (*Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	frames := len(raw) / 4
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(uint16(raw[4*i]) | uint16(raw[4*i+1])<<8)
		rr := int16(uint16(raw[4*i+2]) | uint16(raw[4*i+3])<<8)
		samples[i] = (float32(l) + float32(rr)) / 2 / 32768
	}
	return &Clip{Rate: dec.SampleRate(), Samples: samples}, nil
}

func decodeOgg(r io.Reader) (*Clip, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	ch := format.Channels
	if ch < 1 {
		return nil, errors.New("ogg file has no channels")
	}
	frames := len(data) / ch
	samples := make([]float32, frames)
	for fr := 0; fr < frames; fr++ {
		var acc float32
		for c := 0; c < ch; c++ {
			acc += data[fr*ch+c]
		}
		samples[fr] = acc / float32(ch)
	}
	return &Clip{Rate: format.SampleRate, Samples: samples}, nil
}
