package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/spf13/cobra"

	"github.com/pob31/WFS-DIY-sub001/internal/source"
)

var playVolume float64

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Preview an audio file on the default output",
	Long: `Play decodes a WAV, MP3 or Ogg Vorbis file, folds it to mono and
plays it on the system default output. Use it to audition clips
before placing them in a scene.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().Float64Var(&playVolume, "volume", -1, "playback volume 0..1 (default from config)")
}

func runPlay(cmd *cobra.Command, args []string) error {
	clip, err := source.Load(args[0])
	if err != nil {
		return err
	}
	if len(clip.Samples) == 0 {
		return fmt.Errorf("play: %s is empty", args[0])
	}

	vol := playVolume
	if vol < 0 {
		vol = cfg.Volume
	}
	if vol > 1 {
		vol = 1
	}

	// oto consumes raw little-endian float32 frames.
	scale := float32(vol)
	buf := make([]byte, 4*len(clip.Samples))
	for i, s := range clip.Samples {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(s*scale))
	}

	op := &oto.NewContextOptions{
		SampleRate:   clip.Rate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}
	octx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("play: open audio context: %w", err)
	}
	<-ready

	slog.Info("playing", "file", args[0], "rate", clip.Rate, "seconds", clip.Seconds())

	ctx, cancel := interruptContext()
	defer cancel()

	p := octx.NewPlayer(bytes.NewReader(buf))
	p.Play()
	for p.IsPlaying() {
		if ctx.Err() != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	return p.Close()
}
