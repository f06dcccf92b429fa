// Package backend runs the mix kernel on a selected compute device.
//
// The CPU backend is the reference implementation; the OpenCL backend
// mirrors its ring addressing and interpolation exactly and must agree
// with it within Tolerance. Selection happens once, through New: the
// auto preference tries OpenCL and falls back to the CPU permanently
// (logged once) when no device is usable. A runtime device failure
// never switches backends; the affected block is silenced and reported.
package backend

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pob31/WFS-DIY-sub001/internal/delayline"
)

// Backend names, also accepted as selection preferences.
const (
	NameCPU    = "cpu"
	NameOpenCL = "opencl"
	NameAuto   = "auto"
)

// Tolerance is the maximum per-sample divergence a non-reference
// backend may show against the CPU backend on identical state.
const Tolerance = 1e-4

// ErrUnavailable is returned when OpenCL support is not compiled in.
var ErrUnavailable = errors.New("backend: built without OpenCL support")

// DeviceInfo describes one OpenCL device for capability probing.
type DeviceInfo struct {
	Platform string
	Device   string
	Type     string // "gpu" or "cpu"
}

// Backend computes one block of the mix kernel:
//
//	out[o][s] = sum over i of gain(i,o) * bank.Read(i, delay(i,o), s)
//
// delays and gains are flat input-major tables, constant for the block.
// in carries the samples already written to the bank for this block so
// device backends can mirror the host ring. Implementations must not
// allocate per block once constructed.
type Backend interface {
	Name() string
	ProcessBlock(in [][]float32, delays, gains []float32, out [][]float32, n int) error
	Close() error
}

// InitError reports that a backend could not be constructed.
type InitError struct {
	Backend string
	Err     error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("backend %s: initialization failed: %v", e.Backend, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// RuntimeError reports a device failure while processing one block.
// The dispatcher silences the block; the engine reports it as a failed
// block and keeps running.
type RuntimeError struct {
	Backend string
	Op      string
	Err     error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// New selects a backend for the given bank and output count and wraps
// it in a Dispatcher. Preference NameCPU or NameOpenCL forces that
// backend; NameAuto (or empty) tries OpenCL first and falls back to the
// CPU for the engine's lifetime, logging the reason once.
func New(preference string, bank *delayline.Bank, numOutputs int, log *slog.Logger) (*Dispatcher, error) {
	if log == nil {
		log = slog.Default()
	}
	if numOutputs <= 0 {
		return nil, fmt.Errorf("backend: output count must be positive, got %d", numOutputs)
	}
	switch preference {
	case NameCPU:
		return NewDispatcher(NewCPU(bank, numOutputs)), nil
	case NameOpenCL:
		ocl, err := newOpenCL(bank, numOutputs)
		if err != nil {
			return nil, &InitError{Backend: NameOpenCL, Err: err}
		}
		return NewDispatcher(ocl), nil
	case NameAuto, "":
		ocl, err := newOpenCL(bank, numOutputs)
		if err != nil {
			log.Warn("opencl unavailable, using cpu backend", "err", err)
			d := NewDispatcher(NewCPU(bank, numOutputs))
			d.fellBack = true
			return d, nil
		}
		log.Info("using opencl backend", "device", ocl.DeviceName())
		return NewDispatcher(ocl), nil
	default:
		return nil, fmt.Errorf("backend: unknown preference %q", preference)
	}
}
