// Package main is the wfs command line front end: offline scene
// rendering, routing automation capture and replay, live playback
// through PortAudio, and device probing.
//
// Usage:
//
//	wfs [flags] <command> [args]
//
// Commands:
//
//	render  - Render a scene to a multichannel WAV file
//	bake    - Capture a scene's routing automation to a .wfsr file
//	live    - Render a scene in real time to an output device
//	play    - Preview an audio file on the default output
//	probe   - List OpenCL and PortAudio devices
//	config  - Show or initialize the configuration file
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pob31/WFS-DIY-sub001/internal/config"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

var (
	debug bool

	// cfg is loaded once before any command runs. Missing or corrupt
	// files fall back to defaults, so commands can rely on it.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "wfs",
	Short: "Wave field synthesis renderer for speaker arrays",
	Long: `wfs renders virtual sound sources onto a speaker array using
per-source-per-speaker delay and gain derived from scene geometry.

A scene file (YAML) describes the array layout and the sources with
their positions, velocities and audio clips. From there:

  wfs render scene.yaml -o out.wav     offline render to multichannel WAV
  wfs bake scene.yaml -o take.wfsr     capture routing automation
  wfs live scene.yaml                  real-time playback via PortAudio
  wfs probe                            list compute and audio devices

Defaults for block size, backend, ramp length, output device and volume
come from the config file (see 'wfs config').`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Auto-enable debug logging for dev builds; override with --debug.
		level := slog.LevelInfo
		if debug || strings.Contains(Version, "dev") {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		cfg = config.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (auto-enabled for dev builds)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// interruptContext returns a context canceled by the first interrupt so
// long renders and live sessions stop at a block boundary.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			slog.Info("received interrupt, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// pickInt returns flagVal when the user set it to something positive,
// otherwise the config fallback.
func pickInt(flagVal, cfgVal int) int {
	if flagVal > 0 {
		return flagVal
	}
	return cfgVal
}

// pickString returns flagVal when non-empty, otherwise the config
// fallback.
func pickString(flagVal, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	return cfgVal
}
