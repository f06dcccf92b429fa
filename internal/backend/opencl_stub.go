//go:build !cgo || noopencl

package backend

import "github.com/pob31/WFS-DIY-sub001/internal/delayline"

// openCL is a placeholder in builds without OpenCL support so the
// factory compiles unchanged; newOpenCL always fails and the auto
// preference selects the CPU backend.
type openCL struct{}

func newOpenCL(bank *delayline.Bank, numOutputs int) (*openCL, error) {
	return nil, ErrUnavailable
}

func (o *openCL) Name() string { return NameOpenCL }

func (o *openCL) DeviceName() string { return "" }

func (o *openCL) ProcessBlock(in [][]float32, delays, gains []float32, out [][]float32, n int) error {
	return ErrUnavailable
}

func (o *openCL) Close() error { return nil }

// Devices reports no devices in builds without OpenCL support.
func Devices() ([]DeviceInfo, error) {
	return nil, ErrUnavailable
}
