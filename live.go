package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/spf13/cobra"

	"github.com/pob31/WFS-DIY-sub001/internal/engine"
	"github.com/pob31/WFS-DIY-sub001/internal/scene"
	"github.com/pob31/WFS-DIY-sub001/internal/source"
)

const (
	// routingInterval is how often the control loop re-derives routing
	// from source motion. Updates coalesce in the engine's mailbox, so
	// a fast rate only costs control-side work.
	routingInterval = 20 * time.Millisecond
	statsInterval   = 5 * time.Second
)

var (
	liveDevice   int
	liveBlock    int
	liveBackend  string
	liveRamp     int
	liveVolume   float64
	liveLoop     bool
	liveDuration float64
)

var liveCmd = &cobra.Command{
	Use:   "live <scene.yaml>",
	Short: "Render a scene in real time to an output device",
	Long: `Live plays the scene through a PortAudio output device with one
device channel per speaker. Routing updates follow moving sources
while playback runs.

Without --loop, playback ends after the longest clip plus the echo
tail. With --loop, the timeline wraps at the longest clip and source
motion replays with it. Delay headroom is sized for --duration
seconds of motion (default: the longest clip).`,
	Args: cobra.ExactArgs(1),
	RunE: runLive,
}

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().IntVar(&liveDevice, "device", -1, "output device ID from 'wfs probe' (default from config)")
	liveCmd.Flags().IntVar(&liveBlock, "block", 0, "samples per block (default from config)")
	liveCmd.Flags().StringVar(&liveBackend, "backend", "", "compute backend: auto, cpu or opencl (default from config)")
	liveCmd.Flags().IntVar(&liveRamp, "ramp", 0, "routing ramp length in samples (default from config)")
	liveCmd.Flags().Float64Var(&liveVolume, "volume", -1, "playback volume 0..1 (default from config)")
	liveCmd.Flags().BoolVar(&liveLoop, "loop", false, "loop the timeline at the longest clip")
	liveCmd.Flags().Float64Var(&liveDuration, "duration", 0, "seconds of source motion to size delay headroom for")
}

func runLive(cmd *cobra.Command, args []string) error {
	scenePath := args[0]
	sc, err := scene.Load(scenePath)
	if err != nil {
		return err
	}
	clips, err := loadClips(sc, filepath.Dir(scenePath))
	if err != nil {
		return err
	}
	longest := 0
	for _, clip := range clips {
		if len(clip.Samples) > longest {
			longest = len(clip.Samples)
		}
	}
	if longest == 0 {
		return fmt.Errorf("live: no scene source has a clip")
	}

	duration := liveDuration
	if duration <= 0 {
		duration = float64(longest) / float64(sc.SampleRate)
	}
	block := pickInt(liveBlock, cfg.BlockSize)
	spec := sc.Spec(block, duration)

	eng, err := engine.New(spec, engine.Options{
		Backend:    pickString(liveBackend, cfg.Backend),
		RampLength: pickInt(liveRamp, cfg.RampLength),
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	// The first routing tables land before the stream starts so the
	// opening blocks are not silent.
	msg := eng.NewRoutingMessage()
	if err := sc.RoutingAt(0, msg); err != nil {
		return err
	}
	if err := eng.SubmitRouting(msg); err != nil {
		return err
	}

	vol := liveVolume
	if vol < 0 {
		vol = cfg.Volume
	}
	if vol > 1 {
		vol = 1
	}

	h := &liveHost{
		eng:    eng,
		sc:     sc,
		clips:  clips,
		block:  block,
		rate:   sc.SampleRate,
		volume: float32(vol),
	}
	if liveLoop {
		h.loopLen = longest
	} else {
		h.endPos = longest + spec.MaxDelaySamples + eng.RampLength()
	}

	if err := portaudio.Initialize(); err != nil {
		return err
	}
	defer portaudio.Terminate()

	deviceID := cfg.OutputDeviceID
	if cmd.Flags().Changed("device") {
		deviceID = liveDevice
	}
	if err := h.start(deviceID); err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.stop()
			printLiveSummary(eng.Stats())
			return nil
		case <-h.doneCh:
			h.stop()
			printLiveSummary(eng.Stats())
			return nil
		case err := <-h.errCh:
			h.stop()
			return err
		case <-ticker.C:
			st := eng.Stats()
			slog.Info("live stats",
				"blocks", st.Blocks,
				"applied", st.RoutingApplied,
				"rejected", st.RoutingRejected,
				"backend_failures", st.BackendFailures,
			)
		}
	}
}

func printLiveSummary(st engine.Stats) {
	fmt.Printf("played %d blocks, %d routing updates applied\n", st.Blocks, st.RoutingApplied)
	if st.RoutingRejected > 0 || st.BackendFailures > 0 {
		fmt.Printf("degraded blocks: %d routing updates rejected, %d backend failures\n",
			st.RoutingRejected, st.BackendFailures)
	}
}

// liveHost owns the PortAudio stream and the goroutines feeding it.
// The render loop fills an interleaved buffer and blocks in
// stream.Write, which paces it to the hardware. The control loop
// publishes routing updates derived from source motion.
type liveHost struct {
	eng   *engine.Engine
	sc    *scene.Scene
	clips []*source.Clip

	stream *portaudio.Stream
	buf    []float32 // interleaved, block frames by speaker channels
	in     [][]float32
	out    [][]float32

	block   int
	rate    int
	volume  float32
	loopLen int // samples; 0 plays once
	endPos  int // stop after this playhead position; 0 runs until stopped

	pos     atomic.Int64 // playhead in samples
	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	errCh   chan error
	wg      sync.WaitGroup
}

func (h *liveHost) start(deviceID int) error {
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	dev, err := resolveOutputDevice(devices, deviceID)
	if err != nil {
		return err
	}
	speakers := len(h.sc.Speakers)
	if dev.MaxOutputChannels < speakers {
		return fmt.Errorf("live: device %q has %d output channels, scene needs %d",
			dev.Name, dev.MaxOutputChannels, speakers)
	}

	h.buf = make([]float32, h.block*speakers)
	h.in = makeChans(len(h.clips), h.block)
	h.out = makeChans(speakers, h.block)

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: speakers,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(h.rate),
		FramesPerBuffer: h.block,
	}
	stream, err := portaudio.OpenStream(params, h.buf)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}

	h.stream = stream
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.errCh = make(chan error, 1)
	h.running.Store(true)

	h.wg.Add(2)
	go func() { defer h.wg.Done(); h.renderLoop() }()
	go func() { defer h.wg.Done(); h.controlLoop() }()

	slog.Info("live started",
		"device", dev.Name,
		"channels", speakers,
		"rate", h.rate,
		"block", h.block,
		"backend", h.eng.Backend(),
	)
	return nil
}

// resolveOutputDevice returns the device at idx if valid, otherwise the
// system default output.
func resolveOutputDevice(devices []*portaudio.DeviceInfo, idx int) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return portaudio.DefaultOutputDevice()
}

func (h *liveHost) renderLoop() {
	speakers := len(h.out)
	for h.running.Load() {
		pos := int(h.pos.Load())
		fillBlock(h.in, h.clips, pos, h.block, h.loopLen)
		status := h.eng.ProcessBlock(h.in, h.out, h.block)
		if status.Failed() {
			slog.Debug("degraded block", "status", status.String(), "pos", pos)
		}
		for s := 0; s < h.block; s++ {
			base := s * speakers
			for o := 0; o < speakers; o++ {
				h.buf[base+o] = clampFloat32(h.out[o][s] * h.volume)
			}
		}
		next := pos + h.block
		if h.loopLen > 0 {
			next %= h.loopLen
		}
		h.pos.Store(int64(next))
		if err := h.stream.Write(); err != nil {
			if h.running.Load() {
				slog.Error("stream write", "err", err)
				select {
				case h.errCh <- err:
				default:
				}
			}
			return
		}
		if h.endPos > 0 && next >= h.endPos {
			close(h.doneCh)
			return
		}
	}
}

func (h *liveHost) controlLoop() {
	moving := false
	for _, src := range h.sc.Sources {
		if src.VX != 0 || src.VY != 0 {
			moving = true
			break
		}
	}
	if !moving {
		// Static scenes were routed once before the stream started.
		return
	}

	ticker := time.NewTicker(routingInterval)
	defer ticker.Stop()
	msg := h.eng.NewRoutingMessage()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			t := float64(h.pos.Load()) / float64(h.rate)
			if err := h.sc.RoutingAt(t, msg); err != nil {
				slog.Error("derive routing", "err", err)
				return
			}
			if err := h.eng.SubmitRouting(msg); err != nil {
				slog.Warn("routing rejected", "err", err)
				continue
			}
			// Ownership moved to the engine; next tick needs a fresh one.
			msg = h.eng.NewRoutingMessage()
		}
	}
}

// stop halts playback.
//
// Sequence matters here: Pa_StopStream is thread-safe and causes a
// blocking Pa_WriteStream to return, which lets the render goroutine
// exit. We must wait on wg before Pa_CloseStream, otherwise we free
// the native stream while a goroutine may still be touching it.
func (h *liveHost) stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	close(h.stopCh)
	h.stream.Stop()
	h.wg.Wait()
	h.stream.Close()
	slog.Info("live stopped")
}

// fillBlock copies clip samples for [start, start+n) into in, zero
// padding past each clip's end. A positive loopLen wraps the timeline.
func fillBlock(in [][]float32, clips []*source.Clip, start, n, loopLen int) {
	for i, clip := range clips {
		dst := in[i][:n]
		for s := range dst {
			idx := start + s
			if loopLen > 0 {
				idx %= loopLen
			}
			if idx < len(clip.Samples) {
				dst[s] = clip.Samples[idx]
			} else {
				dst[s] = 0
			}
		}
	}
}

func makeChans(channels, n int) [][]float32 {
	chans := make([][]float32, channels)
	for i := range chans {
		chans[i] = make([]float32, n)
	}
	return chans
}

// clampFloat32 clamps v to [-1.0, 1.0].
func clampFloat32(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}
