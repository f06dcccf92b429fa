// Package routing carries delay/gain tables from the control context to
// the audio context and smooths them over time.
//
// A Message is one complete table update. The Slot hands the newest
// Message across the thread boundary without locks, and the Matrix
// glides its current tables toward the latest accepted target over a
// fixed ramp so updates never cause audible jumps.
package routing

import (
	"errors"
	"fmt"
	"math"
)

// DefaultRampSamples is the default smoothing ramp length: 50 ms at
// 48 kHz. Long enough to hide table jumps, short enough that moving
// sources track their geometry within a frame or two of control updates.
const DefaultRampSamples = 2400

// Validation errors returned by SetTarget. They are allocated once so
// the audio context can report a rejected update without allocating.
var (
	ErrDimensionMismatch = errors.New("routing: message dimensions do not match matrix")
	ErrNotFinite         = errors.New("routing: message contains NaN or Inf")
)

// Matrix holds the current and target delay/gain tables for every
// (input, output) pair and moves current toward target over a bounded
// ramp. Current and target start at zero delay and zero gain, which is
// silence until the first accepted update.
//
// Not safe for concurrent use; the audio context is the sole owner.
type Matrix struct {
	numIn    int
	numOut   int
	maxDelay float32
	rampLen  int

	curDelay []float32
	curGain  []float32
	tgtDelay []float32
	tgtGain  []float32
	incDelay []float32
	incGain  []float32

	remaining int // ramp samples left; 0 means idle
}

// NewMatrix creates a Matrix for numIn inputs and numOut outputs.
// Delays are clamped to [0, maxDelay] on acceptance. rampLen is the
// smoothing window in samples and is clamped to at least 1.
func NewMatrix(numIn, numOut, maxDelay, rampLen int) (*Matrix, error) {
	if numIn <= 0 || numOut <= 0 {
		return nil, fmt.Errorf("routing: matrix dimensions must be positive, got %dx%d", numIn, numOut)
	}
	if maxDelay <= 0 {
		return nil, fmt.Errorf("routing: max delay must be positive, got %d", maxDelay)
	}
	if rampLen < 1 {
		rampLen = 1
	}
	n := numIn * numOut
	return &Matrix{
		numIn:    numIn,
		numOut:   numOut,
		maxDelay: float32(maxDelay),
		rampLen:  rampLen,
		curDelay: make([]float32, n),
		curGain:  make([]float32, n),
		tgtDelay: make([]float32, n),
		tgtGain:  make([]float32, n),
		incDelay: make([]float32, n),
		incGain:  make([]float32, n),
	}, nil
}

// RampLen returns the smoothing window in samples.
func (m *Matrix) RampLen() int { return m.rampLen }

// Smoothing reports whether current is still moving toward target.
func (m *Matrix) Smoothing() bool { return m.remaining > 0 }

// Validate checks msg against the matrix dimensions and for non-finite
// values without installing anything. It reads only construction-time
// state and the message, so any goroutine may call it.
func (m *Matrix) Validate(msg *Message) error {
	n := m.numIn * m.numOut
	if msg == nil || msg.NumInputs != m.numIn || msg.NumOutputs != m.numOut ||
		len(msg.Delays) != n || len(msg.Gains) != n {
		return ErrDimensionMismatch
	}
	for i := 0; i < n; i++ {
		if !isFinite32(msg.Delays[i]) || !isFinite32(msg.Gains[i]) {
			return ErrNotFinite
		}
	}
	return nil
}

// SetTarget validates msg and installs it as the new target. Delays
// outside [0, maxDelay] are clamped; a dimension mismatch or a
// non-finite value rejects the whole message and the previous target is
// retained. The ramp restarts over the full window from the CURRENT
// position, so a mid-ramp update redirects the glide without a jump.
//
// SetTarget allocates nothing and returns only preallocated errors, so
// the audio context may call it directly.
func (m *Matrix) SetTarget(msg *Message) error {
	if err := m.Validate(msg); err != nil {
		return err
	}
	n := m.numIn * m.numOut
	inv := 1 / float32(m.rampLen)
	for i := 0; i < n; i++ {
		d := msg.Delays[i]
		switch {
		case d < 0:
			d = 0
		case d > m.maxDelay:
			d = m.maxDelay
		}
		m.tgtDelay[i] = d
		m.tgtGain[i] = msg.Gains[i]
		m.incDelay[i] = (d - m.curDelay[i]) * inv
		m.incGain[i] = (msg.Gains[i] - m.curGain[i]) * inv
	}
	m.remaining = m.rampLen
	return nil
}

// Advance moves current toward target by n samples of ramp progress.
// When the ramp completes, current snaps exactly onto target. Values
// are constant for the block that follows; the caller advances once per
// block before mixing.
func (m *Matrix) Advance(n int) {
	if m.remaining == 0 || n <= 0 {
		return
	}
	if n >= m.remaining {
		copy(m.curDelay, m.tgtDelay)
		copy(m.curGain, m.tgtGain)
		m.remaining = 0
		return
	}
	step := float32(n)
	for i := range m.curDelay {
		m.curDelay[i] += m.incDelay[i] * step
		m.curGain[i] += m.incGain[i] * step
	}
	m.remaining -= n
}

// Delay returns the current smoothed delay of pair (input, output).
func (m *Matrix) Delay(input, output int) float32 {
	return m.curDelay[input*m.numOut+output]
}

// Gain returns the current smoothed gain of pair (input, output).
func (m *Matrix) Gain(input, output int) float32 {
	return m.curGain[input*m.numOut+output]
}

// Tables returns the flat current delay and gain tables, input-major.
// The slices alias the matrix state: valid until the next Advance or
// SetTarget, and must not be written.
func (m *Matrix) Tables() (delays, gains []float32) {
	return m.curDelay, m.curGain
}

// isFinite32 reports whether f is neither NaN nor infinite.
func isFinite32(f float32) bool {
	return f == f && f <= math.MaxFloat32 && f >= -math.MaxFloat32
}
