// Package render drives the engine offline, mixing source clips
// through routing derived from a scene or replayed from a baked
// automation stream into a multi-channel 16-bit WAV file.
package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pob31/WFS-DIY-sub001/internal/engine"
	"github.com/pob31/WFS-DIY-sub001/internal/routing"
	"github.com/pob31/WFS-DIY-sub001/internal/scene"
	"github.com/pob31/WFS-DIY-sub001/internal/source"
	"github.com/pob31/WFS-DIY-sub001/internal/wire"
)

// DefaultBlockSize is the render block length in samples.
const DefaultBlockSize = 512

// Options tune an offline render. The zero value uses the default
// block size, automatic backend selection, the engine's default ramp
// and the default logger.
type Options struct {
	BlockSize  int
	Backend    string
	RampLength int
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Result summarizes a finished render.
type Result struct {
	Frames   int
	Backend  string
	FellBack bool
	Stats    engine.Stats
}

// Render mixes clips through sc's geometry into w. One clip feeds each
// scene source, all at the scene sample rate. The output runs past the
// longest clip by the largest delay plus the smoothing ramp so every
// echo tail decays inside the file. Routing follows moving sources with
// one update per block.
func Render(ctx context.Context, sc *scene.Scene, clips []*source.Clip, w io.WriteSeeker, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if len(clips) != len(sc.Sources) {
		return nil, fmt.Errorf("render: %d clips for %d scene sources", len(clips), len(sc.Sources))
	}
	longest := 0
	for _, clip := range clips {
		if clip.Rate != sc.SampleRate {
			return nil, fmt.Errorf("render: clip %s is at %d Hz, scene wants %d Hz", clip.Name, clip.Rate, sc.SampleRate)
		}
		if len(clip.Samples) > longest {
			longest = len(clip.Samples)
		}
	}
	if longest == 0 {
		return nil, fmt.Errorf("render: all clips are empty")
	}

	ramp := opts.RampLength
	if ramp == 0 {
		ramp = routing.DefaultRampSamples
	}
	// The tail extends the timeline, and sources keep moving through
	// it, so the delay bound is refined once over the extended span.
	rate := float64(sc.SampleRate)
	maxDelay := sc.MaxDelaySamples(float64(longest) / rate)
	total := longest + maxDelay + ramp
	maxDelay = sc.MaxDelaySamples(float64(total) / rate)
	total = longest + maxDelay + ramp

	spec := sc.Spec(opts.BlockSize, float64(total)/rate)
	eng, err := engine.New(spec, engine.Options{
		Backend:    opts.Backend,
		RampLength: opts.RampLength,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	opts.Logger.Info("rendering scene",
		"sources", spec.NumInputs,
		"speakers", spec.NumOutputs,
		"frames", total,
		"block", opts.BlockSize,
		"backend", eng.Backend(),
	)

	in := makeChannels(spec.NumInputs, opts.BlockSize)
	out := makeChannels(spec.NumOutputs, opts.BlockSize)

	if err := warmUp(ctx, eng, sc, in, out, opts.BlockSize); err != nil {
		return nil, err
	}

	enc := wav.NewEncoder(w, sc.SampleRate, 16, spec.NumOutputs, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: spec.NumOutputs, SampleRate: sc.SampleRate},
		Data:           make([]int, opts.BlockSize*spec.NumOutputs),
		SourceBitDepth: 16,
	}

	msg := eng.NewRoutingMessage()
	for start := 0; start < total; start += opts.BlockSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		n := opts.BlockSize
		if total-start < n {
			n = total - start
		}
		fillInputs(in, clips, start, n)

		if err := sc.RoutingAt(float64(start)/rate, msg); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		if err := eng.SubmitRouting(msg); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		msg = eng.NewRoutingMessage()

		eng.ProcessBlock(in, out, n)
		if err := writeBlock(enc, buf, out, n); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("render: finalize wav: %w", err)
	}

	st := eng.Stats()
	opts.Logger.Info("render complete",
		"frames", total,
		"routing_updates", st.RoutingApplied,
		"failed_blocks", st.BackendFailures,
	)
	return &Result{
		Frames:   total,
		Backend:  eng.Backend(),
		FellBack: eng.FellBack(),
		Stats:    st,
	}, nil
}

// RenderAutomation replays a baked routing stream against clips. The
// stream dictates the dimensions, the block size and, one record per
// block, the routing timeline; rendering stops at the end of the
// stream. rate is the sample rate of the clips and of the output file.
func RenderAutomation(ctx context.Context, rd *wire.Reader, clips []*source.Clip, rate int, w io.WriteSeeker, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if rate < 1 {
		return nil, fmt.Errorf("render: sample rate must be positive, got %d", rate)
	}
	ws, err := rd.ReadSpec()
	if err != nil {
		return nil, fmt.Errorf("render: automation header: %w", err)
	}
	if len(clips) != ws.NumInputs {
		return nil, fmt.Errorf("render: %d clips for %d automation inputs", len(clips), ws.NumInputs)
	}
	for _, clip := range clips {
		if clip.Rate != rate {
			return nil, fmt.Errorf("render: clip %s is at %d Hz, want %d Hz", clip.Name, clip.Rate, rate)
		}
	}

	spec := engine.Specification{
		NumInputs:            ws.NumInputs,
		NumOutputs:           ws.NumOutputs,
		MaxSamplesPerChannel: ws.MaxSamplesPerChannel,
		MaxDelaySamples:      ws.MaxDelaySamples,
	}
	eng, err := engine.New(spec, engine.Options{
		Backend:    opts.Backend,
		RampLength: opts.RampLength,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	defer eng.Close()

	block := ws.MaxSamplesPerChannel
	opts.Logger.Info("rendering automation",
		"inputs", spec.NumInputs,
		"outputs", spec.NumOutputs,
		"block", block,
		"backend", eng.Backend(),
	)

	in := makeChannels(spec.NumInputs, block)
	out := makeChannels(spec.NumOutputs, block)
	enc := wav.NewEncoder(w, rate, 16, spec.NumOutputs, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: spec.NumOutputs, SampleRate: rate},
		Data:           make([]int, block*spec.NumOutputs),
		SourceBitDepth: 16,
	}

	frames := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		msg, err := rd.ReadMessage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("render: automation record: %w", err)
		}
		if err := eng.SubmitRouting(msg); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		fillInputs(in, clips, frames, block)
		eng.ProcessBlock(in, out, block)
		if err := writeBlock(enc, buf, out, block); err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		frames += block
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("render: finalize wav: %w", err)
	}

	st := eng.Stats()
	opts.Logger.Info("render complete", "frames", frames, "routing_updates", st.RoutingApplied)
	return &Result{
		Frames:   frames,
		Backend:  eng.Backend(),
		FellBack: eng.FellBack(),
		Stats:    st,
	}, nil
}

// warmUp runs silent blocks until the first routing target has fully
// settled, so the audible timeline starts on converged tables.
func warmUp(ctx context.Context, eng *engine.Engine, sc *scene.Scene, in, out [][]float32, block int) error {
	msg := eng.NewRoutingMessage()
	if err := sc.RoutingAt(0, msg); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := eng.SubmitRouting(msg); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	for i := range in {
		for s := range in[i] {
			in[i][s] = 0
		}
	}
	limit := eng.RampLength()/block + 2
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("render: %w", err)
		}
		eng.ProcessBlock(in, out, block)
		if !eng.Ramping() {
			return nil
		}
	}
	return fmt.Errorf("render: routing did not settle within %d warm-up blocks", limit)
}

func makeChannels(channels, n int) [][]float32 {
	chs := make([][]float32, channels)
	for i := range chs {
		chs[i] = make([]float32, n)
	}
	return chs
}

// fillInputs copies n samples of each clip starting at frame start,
// zero-padding past the clip end.
func fillInputs(in [][]float32, clips []*source.Clip, start, n int) {
	for i, clip := range clips {
		dst := in[i][:n]
		for s := range dst {
			dst[s] = 0
		}
		if start < len(clip.Samples) {
			copy(dst, clip.Samples[start:])
		}
	}
}

// writeBlock clamps, interleaves and encodes n frames of out.
func writeBlock(enc *wav.Encoder, buf *audio.IntBuffer, out [][]float32, n int) error {
	channels := len(out)
	data := buf.Data[:n*channels]
	for s := 0; s < n; s++ {
		for o := 0; o < channels; o++ {
			v := out[o][s]
			switch {
			case v > 1:
				v = 1
			case v < -1:
				v = -1
			}
			data[s*channels+o] = int(v * 32767)
		}
	}
	full := buf.Data
	buf.Data = data
	err := enc.Write(buf)
	buf.Data = full
	return err
}
