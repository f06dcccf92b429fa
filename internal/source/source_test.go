package source

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV encodes a 16-bit PCM file whose sample values are
// produced by fill.
func writeTestWAV(t *testing.T, path string, rate, channels, frames int, fill func(frame, ch int) int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: 16,
	}
	for fr := 0; fr < frames; fr++ {
		for c := 0; c < channels; c++ {
			buf.Data[fr*channels+c] = fill(fr, c)
		}
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func TestLoadWAVMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeTestWAV(t, path, 48000, 1, 100, func(frame, ch int) int { return 8192 })

	clip, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if clip.Name != "tone" {
		t.Errorf("Name = %q, want tone", clip.Name)
	}
	if clip.Rate != 48000 {
		t.Errorf("Rate = %d, want 48000", clip.Rate)
	}
	if len(clip.Samples) != 100 {
		t.Fatalf("len(Samples) = %d, want 100", len(clip.Samples))
	}
	// 8192 at 16-bit is exactly 0.25.
	for i, s := range clip.Samples {
		if s != 0.25 {
			t.Fatalf("Samples[%d] = %v, want 0.25", i, s)
		}
	}
}

func TestLoadWAVStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pair.wav")
	writeTestWAV(t, path, 44100, 2, 50, func(frame, ch int) int {
		// Opposite half-scale channels cancel on even frames; equal
		// quarter-scale channels average to 0.25 on odd frames.
		if frame%2 == 0 {
			if ch == 0 {
				return 16384
			}
			return -16384
		}
		return 8192
	})

	clip, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if clip.Rate != 44100 {
		t.Errorf("Rate = %d, want 44100", clip.Rate)
	}
	if len(clip.Samples) != 50 {
		t.Fatalf("len(Samples) = %d, want 50", len(clip.Samples))
	}
	for i, s := range clip.Samples {
		want := float32(0)
		if i%2 == 1 {
			want = 0.25
		}
		if s != want {
			t.Fatalf("Samples[%d] = %v, want %v", i, s, want)
		}
	}
}

// The extension decides before the filesystem is touched, so a missing
// file and an existing file both fail with the format error.
func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load("whatever.flac")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("Load(.flac) error = %v, want unsupported format", err)
	}

	path := filepath.Join(t.TempDir(), "clip.flac")
	if err := os.WriteFile(path, []byte("fLaC"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = Load(path)
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("Load(existing .flac) error = %v, want unsupported format", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "gone.wav")); err == nil {
		t.Error("Load accepted a missing file")
	}
}

func TestLoadRejectsGarbageWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("not a riff header"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a non-WAV payload")
	}
}

func TestResampledConvertsRate(t *testing.T) {
	const frames = 4800
	clip := &Clip{Name: "sine", Rate: 48000, Samples: make([]float32, frames)}
	for i := range clip.Samples {
		clip.Samples[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}

	got, err := clip.Resampled(24000)
	if err != nil {
		t.Fatalf("Resampled: %v", err)
	}
	if got.Rate != 24000 {
		t.Errorf("Rate = %d, want 24000", got.Rate)
	}
	want := frames / 2
	if len(got.Samples) > want || want-len(got.Samples) > 64 {
		t.Errorf("len(Samples) = %d, want %d (trimmed to the converted length)", len(got.Samples), want)
	}
	for i, s := range got.Samples {
		if s != s || s > 2 || s < -2 {
			t.Fatalf("Samples[%d] = %v after resampling", i, s)
		}
	}
}

func TestResampledSameRateReturnsSameClip(t *testing.T) {
	clip := &Clip{Name: "flat", Rate: 48000, Samples: []float32{0.1, 0.2}}
	got, err := clip.Resampled(48000)
	if err != nil {
		t.Fatalf("Resampled: %v", err)
	}
	if got != clip {
		t.Error("same-rate resample did not return the clip unchanged")
	}
}

func TestResampledRejectsBadRate(t *testing.T) {
	clip := &Clip{Rate: 48000, Samples: []float32{0}}
	if _, err := clip.Resampled(0); err == nil {
		t.Error("Resampled accepted rate 0")
	}
}

func TestClipSeconds(t *testing.T) {
	clip := &Clip{Rate: 48000, Samples: make([]float32, 24000)}
	if got := clip.Seconds(); got != 0.5 {
		t.Errorf("Seconds() = %g, want 0.5", got)
	}
	empty := &Clip{}
	if got := empty.Seconds(); got != 0 {
		t.Errorf("empty Seconds() = %g, want 0", got)
	}
}
