package backend

import (
	"math"
	"math/rand"
	"testing"
)

// TestOpenCLMatchesCPU drives both backends over the same bank state
// and tables and requires per-sample agreement within Tolerance. The
// delay table deliberately exceeds the bank's maximum so both clamps
// are exercised, and a share of gains is exactly zero so both skip
// paths are exercised.
func TestOpenCLMatchesCPU(t *testing.T) {
	const (
		numIn  = 3
		numOut = 4
		block  = 64
		blocks = 8
	)
	bank := newTestBank(t, numIn, block, 500)
	cpu := NewCPU(bank, numOut)
	ocl, err := newOpenCL(bank, numOut)
	if err != nil {
		t.Skipf("opencl unavailable: %v", err)
	}
	defer ocl.Close()

	rng := rand.New(rand.NewSource(1))
	in := make([][]float32, numIn)
	for i := range in {
		in[i] = make([]float32, block)
	}
	delays := make([]float32, numIn*numOut)
	gains := make([]float32, numIn*numOut)
	outCPU := makeOut(numOut, block)
	outOCL := makeOut(numOut, block)

	for blk := 0; blk < blocks; blk++ {
		for i := range in {
			for s := range in[i] {
				in[i][s] = rng.Float32()*2 - 1
			}
		}
		writeBlock(t, bank, in)
		for p := range delays {
			delays[p] = rng.Float32() * 520
			if p%5 == 0 {
				gains[p] = 0
			} else {
				gains[p] = rng.Float32()*2 - 1
			}
		}

		if err := cpu.ProcessBlock(in, delays, gains, outCPU, block); err != nil {
			t.Fatalf("block %d: cpu: %v", blk, err)
		}
		if err := ocl.ProcessBlock(in, delays, gains, outOCL, block); err != nil {
			t.Fatalf("block %d: opencl: %v", blk, err)
		}
		for o := 0; o < numOut; o++ {
			for s := 0; s < block; s++ {
				diff := math.Abs(float64(outCPU[o][s]) - float64(outOCL[o][s]))
				if diff > Tolerance {
					t.Fatalf("block %d out[%d][%d]: cpu %v opencl %v, diff %g exceeds tolerance",
						blk, o, s, outCPU[o][s], outOCL[o][s], diff)
				}
			}
		}
		bank.Advance(block)
	}
}

// TestOpenCLMatchesCPUAtHighRingPositions parks the block cursor near
// the top of a 64k ring. A kernel that folds base+s into a float32
// position before subtracting the delay rounds the fraction by up to
// 2^-9 there, which scales to about 4e-3 of divergence at full level;
// splitting the delay into integer and fractional parts keeps the taps
// exact. Fractional delays at high cursor positions, and across the
// capacity wrap, must agree with the CPU reference within Tolerance.
func TestOpenCLMatchesCPUAtHighRingPositions(t *testing.T) {
	const (
		numIn    = 1
		numOut   = 2
		block    = 64
		blocks   = 8
		maxDelay = 48000
	)
	bank := newTestBank(t, numIn, block, maxDelay)
	if got := bank.Capacity(); got != 1<<16 {
		t.Fatalf("Capacity() = %d, want %d", got, 1<<16)
	}
	cpu := NewCPU(bank, numOut)
	ocl, err := newOpenCL(bank, numOut)
	if err != nil {
		t.Skipf("opencl unavailable: %v", err)
	}
	defer ocl.Close()

	// Jump the cursor just below the wrap. The skipped region holds
	// silence on both host and device, so the histories still agree.
	bank.Advance(bank.Capacity() - 4*block)

	rng := rand.New(rand.NewSource(7))
	in := [][]float32{make([]float32, block)}
	delays := make([]float32, numIn*numOut)
	gains := []float32{0.8, -0.6}
	outCPU := makeOut(numOut, block)
	outOCL := makeOut(numOut, block)

	for blk := 0; blk < blocks; blk++ {
		for s := range in[0] {
			in[0][s] = rng.Float32()*2 - 1
		}
		writeBlock(t, bank, in)
		for p := range delays {
			delays[p] = rng.Float32() * 200
		}

		if err := cpu.ProcessBlock(in, delays, gains, outCPU, block); err != nil {
			t.Fatalf("block %d: cpu: %v", blk, err)
		}
		if err := ocl.ProcessBlock(in, delays, gains, outOCL, block); err != nil {
			t.Fatalf("block %d: opencl: %v", blk, err)
		}
		for o := 0; o < numOut; o++ {
			for s := 0; s < block; s++ {
				diff := math.Abs(float64(outCPU[o][s]) - float64(outOCL[o][s]))
				if diff > Tolerance {
					t.Fatalf("block %d out[%d][%d] at base %d: cpu %v opencl %v, diff %g exceeds tolerance",
						blk, o, s, bank.Base(), outCPU[o][s], outOCL[o][s], diff)
				}
			}
		}
		bank.Advance(block)
	}
}

func TestOpenCLZeroGainsSilent(t *testing.T) {
	bank := newTestBank(t, 2, 16, 64)
	ocl, err := newOpenCL(bank, 2)
	if err != nil {
		t.Skipf("opencl unavailable: %v", err)
	}
	defer ocl.Close()

	in := [][]float32{make([]float32, 16), make([]float32, 16)}
	for s := range in[0] {
		in[0][s] = 1
		in[1][s] = -1
	}
	writeBlock(t, bank, in)

	delays := make([]float32, 4)
	gains := make([]float32, 4)
	out := makeOut(2, 16)
	for o := range out {
		for s := range out[o] {
			out[o][s] = 0.5
		}
	}
	if err := ocl.ProcessBlock(in, delays, gains, out, 16); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	for o := range out {
		for s := range out[o] {
			if out[o][s] != 0 {
				t.Errorf("out[%d][%d] = %v, want 0", o, s, out[o][s])
			}
		}
	}
}

func TestDevicesListsPlatforms(t *testing.T) {
	devices, err := Devices()
	if err != nil {
		t.Skipf("opencl unavailable: %v", err)
	}
	for _, d := range devices {
		if d.Platform == "" || d.Device == "" {
			t.Errorf("device entry missing names: %+v", d)
		}
		if d.Type != "gpu" && d.Type != "cpu" {
			t.Errorf("device type = %q, want gpu or cpu", d.Type)
		}
	}
}
