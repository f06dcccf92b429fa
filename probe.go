package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/cobra"

	"github.com/pob31/WFS-DIY-sub001/internal/backend"
	"github.com/pob31/WFS-DIY-sub001/internal/config"
)

var (
	probeTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	probeLabel = lipgloss.NewStyle().Bold(true)
	probeDim   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
	probeWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f0883e"))
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "List OpenCL and PortAudio devices",
	Long: `Probe lists the OpenCL devices the opencl backend can run on and
the PortAudio output devices 'wfs live' can play through, with the
device IDs used by --device and the config file.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	fmt.Println(probeTitle.Render("wfs " + Version))

	fmt.Println()
	fmt.Println(probeLabel.Render("OpenCL devices"))
	devices, err := backend.Devices()
	switch {
	case err != nil:
		fmt.Println(probeWarn.Render("  unavailable: " + err.Error()))
		fmt.Println(probeDim.Render("  renders will use the cpu backend"))
	case len(devices) == 0:
		fmt.Println(probeDim.Render("  none found"))
	default:
		for _, d := range devices {
			fmt.Printf("  %s  %s\n", d.Device, probeDim.Render(d.Platform+" ["+d.Type+"]"))
		}
	}

	fmt.Println()
	fmt.Println(probeLabel.Render("PortAudio output devices"))
	if err := portaudio.Initialize(); err != nil {
		fmt.Println(probeWarn.Render("  unavailable: " + err.Error()))
	} else {
		defer portaudio.Terminate()
		listOutputDevices()
	}

	fmt.Println()
	if path, err := config.Path(); err == nil {
		fmt.Println(probeDim.Render("config: " + path))
	}
	return nil
}

func listOutputDevices() {
	devices, err := portaudio.Devices()
	if err != nil {
		fmt.Println(probeWarn.Render("  " + err.Error()))
		return
	}
	def, _ := portaudio.DefaultOutputDevice()
	found := 0
	for i, d := range devices {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		found++
		mark := " "
		if i == cfg.OutputDeviceID {
			mark = "*"
		}
		note := fmt.Sprintf("%d ch, %.0f Hz", d.MaxOutputChannels, d.DefaultSampleRate)
		if def != nil && d.Name == def.Name {
			note += ", system default"
		}
		fmt.Printf("%s %2d  %s  %s\n", mark, i, d.Name, probeDim.Render(note))
	}
	if found == 0 {
		fmt.Println(probeDim.Render("  none found"))
	}
	if cfg.OutputDeviceID >= 0 {
		fmt.Println(probeDim.Render("  * configured output device"))
	}
}
