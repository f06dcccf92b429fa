// Package delayline implements the per-input circular sample history
// backing fractional delay taps.
//
// One Bank holds the rings for every input so all lines share a single
// block cursor: Write copies a block of samples at the cursor, Read
// answers delay taps relative to it, and Advance moves the cursor once
// the block has been mixed. Capacity covers the maximum delay plus one
// full block, so a tap at the maximum delay never reads overwritten data.
package delayline

import (
	"errors"
	"fmt"
	"math"
)

// ErrBlockTooLong is returned by Write when a block exceeds the maximum
// block length the Bank was sized for. This is a host configuration
// violation, not a transient condition.
var ErrBlockTooLong = errors.New("delayline: block exceeds configured maximum")

// Bank is the sample history for all inputs of one engine.
// Not safe for concurrent use; the audio context is the sole owner.
type Bank struct {
	lines    [][]float32
	capacity int // power of 2
	mask     int
	base     int // block base cursor, always in [0, capacity)
	blockMax int
	maxDelay int
	maxD32   float32
}

// New creates a Bank for the given number of inputs. blockMax is the
// largest block Write will accept and maxDelay the largest delay Read
// will honor, both in samples. Capacity is maxDelay+blockMax rounded up
// to a power of two.
func New(inputs, blockMax, maxDelay int) (*Bank, error) {
	if inputs <= 0 {
		return nil, fmt.Errorf("delayline: inputs must be positive, got %d", inputs)
	}
	if blockMax <= 0 {
		return nil, fmt.Errorf("delayline: block length must be positive, got %d", blockMax)
	}
	if maxDelay <= 0 {
		return nil, fmt.Errorf("delayline: max delay must be positive, got %d", maxDelay)
	}
	capacity := nextPowerOf2(maxDelay + blockMax)
	b := &Bank{
		lines:    make([][]float32, inputs),
		capacity: capacity,
		mask:     capacity - 1,
		blockMax: blockMax,
		maxDelay: maxDelay,
		maxD32:   float32(maxDelay),
	}
	for i := range b.lines {
		b.lines[i] = make([]float32, capacity)
	}
	return b, nil
}

// Inputs returns the number of delay lines in the bank.
func (b *Bank) Inputs() int { return len(b.lines) }

// Capacity returns the per-line ring capacity in samples.
func (b *Bank) Capacity() int { return b.capacity }

// Base returns the current block base cursor, in [0, Capacity).
func (b *Bank) Base() int { return b.base }

// MaxDelay returns the largest delay Read will honor, in samples.
func (b *Bank) MaxDelay() int { return b.maxDelay }

// BlockMax returns the largest block length Write accepts.
func (b *Bank) BlockMax() int { return b.blockMax }

// Write copies one input's block into the ring at the current base
// cursor. It does not advance the cursor; call Advance once after every
// input has been written and mixed. Write allocates nothing.
func (b *Bank) Write(input int, samples []float32) error {
	if len(samples) > b.blockMax {
		return ErrBlockTooLong
	}
	line := b.lines[input]
	n := copy(line[b.base:], samples)
	copy(line, samples[n:])
	return nil
}

// Advance moves the block base cursor by n samples. The samples written
// for the finished block become history for the next one.
func (b *Bank) Advance(n int) {
	b.base = (b.base + n) & b.mask
}

// Read returns one input's sample at the given fractional delay behind
// position base+offset. The delay is clamped to [0, MaxDelay] and the
// value linearly interpolated between the two bracketing taps. A delay
// of zero returns the sample written at that offset bit-exactly. Read
// is pure given the current buffer state.
func (b *Bank) Read(input int, delay float32, offset int) float32 {
	switch {
	case delay < 0:
		delay = 0
	case delay > b.maxD32:
		delay = b.maxD32
	}
	pos := float64(b.base+offset) - float64(delay)
	ip := int(math.Floor(pos))
	frac := float32(pos - float64(ip))
	line := b.lines[input]
	s0 := line[ip&b.mask]
	s1 := line[(ip+1)&b.mask]
	return s0*(1-frac) + s1*frac
}

// Reset zeroes all history and rewinds the base cursor.
func (b *Bank) Reset() {
	for _, line := range b.lines {
		for i := range line {
			line[i] = 0
		}
	}
	b.base = 0
}

// nextPowerOf2 rounds n up to the next power of two.
func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
