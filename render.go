package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pob31/WFS-DIY-sub001/internal/render"
	"github.com/pob31/WFS-DIY-sub001/internal/scene"
	"github.com/pob31/WFS-DIY-sub001/internal/source"
	"github.com/pob31/WFS-DIY-sub001/internal/wire"
)

var (
	renderOut        string
	renderBlock      int
	renderBackend    string
	renderRamp       int
	renderAutomation string
)

var renderCmd = &cobra.Command{
	Use:   "render <scene.yaml>",
	Short: "Render a scene to a multichannel WAV file",
	Long: `Render mixes the scene's clips through its geometry into one WAV
channel per speaker. The output runs past the longest clip by the
largest delay plus the smoothing ramp so every echo tail decays
inside the file.

With --automation, routing comes from a baked .wfsr stream instead of
the scene geometry; the scene file still supplies the clips and the
sample rate.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "output WAV path (default: scene path with .wav)")
	renderCmd.Flags().IntVar(&renderBlock, "block", 0, "samples per block (default from config)")
	renderCmd.Flags().StringVar(&renderBackend, "backend", "", "compute backend: auto, cpu or opencl (default from config)")
	renderCmd.Flags().IntVar(&renderRamp, "ramp", 0, "routing ramp length in samples (default from config)")
	renderCmd.Flags().StringVar(&renderAutomation, "automation", "", "replay routing from a baked .wfsr file")
}

func runRender(cmd *cobra.Command, args []string) error {
	scenePath := args[0]
	sc, err := scene.Load(scenePath)
	if err != nil {
		return err
	}
	clips, err := loadClips(sc, filepath.Dir(scenePath))
	if err != nil {
		return err
	}

	out := renderOut
	if out == "" {
		out = strings.TrimSuffix(scenePath, filepath.Ext(scenePath)) + ".wav"
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}

	opts := render.Options{
		BlockSize:  pickInt(renderBlock, cfg.BlockSize),
		Backend:    pickString(renderBackend, cfg.Backend),
		RampLength: pickInt(renderRamp, cfg.RampLength),
	}

	ctx, cancel := interruptContext()
	defer cancel()

	var res *render.Result
	if renderAutomation != "" {
		af, openErr := os.Open(renderAutomation)
		if openErr != nil {
			f.Close()
			return openErr
		}
		res, err = render.RenderAutomation(ctx, wire.NewReader(af), clips, sc.SampleRate, f, opts)
		af.Close()
	} else {
		res, err = render.Render(ctx, sc, clips, f, opts)
	}
	if err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	backendNote := res.Backend
	if res.FellBack {
		backendNote += " (opencl unavailable)"
	}
	seconds := float64(res.Frames) / float64(sc.SampleRate)
	fmt.Printf("wrote %s: %d frames (%.2fs), %d channels, %s backend\n",
		out, res.Frames, seconds, len(sc.Speakers), backendNote)
	if res.Stats.RoutingRejected > 0 || res.Stats.BackendFailures > 0 {
		fmt.Printf("degraded blocks: %d routing updates rejected, %d backend failures\n",
			res.Stats.RoutingRejected, res.Stats.BackendFailures)
	}
	return nil
}

// loadClips loads and resamples one clip per scene source, resolving
// relative file paths against dir. Sources without a file feed silence.
func loadClips(sc *scene.Scene, dir string) ([]*source.Clip, error) {
	clips := make([]*source.Clip, len(sc.Sources))
	for i, src := range sc.Sources {
		if src.File == "" {
			slog.Debug("source has no clip, feeding silence", "source", src.Name)
			clips[i] = &source.Clip{Name: src.Name, Rate: sc.SampleRate}
			continue
		}
		path := src.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		clip, err := source.Load(path)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		if clip.Rate != sc.SampleRate {
			slog.Debug("resampling clip", "source", src.Name, "from", clip.Rate, "to", sc.SampleRate)
			clip, err = clip.Resampled(sc.SampleRate)
			if err != nil {
				return nil, fmt.Errorf("source %s: %w", src.Name, err)
			}
		}
		clips[i] = clip
		slog.Debug("loaded clip", "source", src.Name, "file", path, "seconds", fmt.Sprintf("%.2f", clip.Seconds()))
	}
	return clips, nil
}
