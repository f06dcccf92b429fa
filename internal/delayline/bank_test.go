package delayline

import (
	"errors"
	"testing"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name     string
		inputs   int
		blockMax int
		maxDelay int
	}{
		{"zero inputs", 0, 64, 100},
		{"negative inputs", -1, 64, 100},
		{"zero block", 2, 0, 100},
		{"zero delay", 2, 64, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.inputs, tc.blockMax, tc.maxDelay); err == nil {
				t.Errorf("New(%d, %d, %d) should fail", tc.inputs, tc.blockMax, tc.maxDelay)
			}
		})
	}
}

func TestCapacityCoversDelayPlusBlock(t *testing.T) {
	b, err := New(1, 64, 1000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Capacity() < 1000+64 {
		t.Errorf("capacity %d does not cover maxDelay+blockMax = %d", b.Capacity(), 1064)
	}
	if b.Capacity()&(b.Capacity()-1) != 0 {
		t.Errorf("capacity %d is not a power of 2", b.Capacity())
	}
}

func TestRoundTripDelayZero(t *testing.T) {
	b, err := New(2, 8, 32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	block := []float32{0.5, -0.25, 1, -1, 0.125, 0.75, -0.0625, 0.3}
	if err := b.Write(1, block); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for n, want := range block {
		if got := b.Read(1, 0, n); got != want {
			t.Errorf("offset %d: got %v, want %v (bit-exact)", n, got, want)
		}
	}
}

func TestRoundTripAcrossWrap(t *testing.T) {
	b, err := New(1, 8, 24) // capacity 32
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Advance until the next block straddles the end of the ring.
	counter := float32(0)
	block := make([]float32, 8)
	for i := 0; i < 3; i++ {
		for n := range block {
			block[n] = counter
			counter++
		}
		if err := b.Write(0, block); err != nil {
			t.Fatalf("Write: %v", err)
		}
		b.Advance(8)
	}
	b.Advance(4) // base now 28, block 28..35 wraps
	for n := range block {
		block[n] = counter
		counter++
	}
	if err := b.Write(0, block); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for n, want := range block {
		if got := b.Read(0, 0, n); got != want {
			t.Errorf("offset %d across wrap: got %v, want %v", n, got, want)
		}
	}
}

func TestFractionalReadInterpolates(t *testing.T) {
	b, err := New(1, 4, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Write(0, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Halfway between samples 0 and 1.
	if got := b.Read(0, 0.5, 1); got != 0.5 {
		t.Errorf("half-sample tap: got %v, want 0.5", got)
	}
	// Quarter of the way from sample 1 back toward sample 0.
	if got := b.Read(0, 0.25, 1); got != 0.75 {
		t.Errorf("quarter-sample tap: got %v, want 0.75", got)
	}
}

func TestReadClampsDelay(t *testing.T) {
	b, err := New(1, 4, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Write(0, []float32{0.25, 0.5, 0.75, 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, want := b.Read(0, -3, 2), float32(0.75); got != want {
		t.Errorf("negative delay should clamp to 0: got %v, want %v", got, want)
	}
	// Delay beyond the maximum clamps to maxDelay; that far back the ring
	// is still zero-initialized.
	if got := b.Read(0, 1e9, 0); got != 0 {
		t.Errorf("oversized delay should clamp and read silence, got %v", got)
	}
}

func TestMaxDelayReadsOldestRetained(t *testing.T) {
	b, err := New(1, 8, 24) // capacity 32
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// 64 samples of a running counter wraps the ring exactly twice.
	block := make([]float32, 8)
	counter := float32(0)
	for i := 0; i < 8; i++ {
		for n := range block {
			block[n] = counter
			counter++
		}
		if err := b.Write(0, block); err != nil {
			t.Fatalf("Write: %v", err)
		}
		b.Advance(8)
	}
	// Write the next block so the cursor has fresh data in front of it.
	for n := range block {
		block[n] = counter
		counter++
	}
	if err := b.Write(0, block); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// 24 samples behind absolute position 64 is sample 40.
	if got, want := b.Read(0, 24, 0), float32(40); got != want {
		t.Errorf("max-delay tap: got %v, want %v", got, want)
	}
}

func TestWriteRejectsOversizeBlock(t *testing.T) {
	b, err := New(1, 4, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = b.Write(0, make([]float32, 5))
	if !errors.Is(err, ErrBlockTooLong) {
		t.Errorf("oversize write: got %v, want ErrBlockTooLong", err)
	}
}

func TestResetClearsHistory(t *testing.T) {
	b, err := New(1, 4, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Write(0, []float32{1, 1, 1, 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b.Advance(4)
	b.Reset()
	if got := b.Read(0, 2, 0); got != 0 {
		t.Errorf("after Reset: got %v, want 0", got)
	}
	if got := b.Base(); got != 0 {
		t.Errorf("after Reset base: got %d, want 0", got)
	}
}

func BenchmarkRead(b *testing.B) {
	bank, err := New(1, 64, 48000)
	if err != nil {
		b.Fatalf("New: %v", err)
	}
	block := make([]float32, 64)
	for i := range block {
		block[i] = float32(i) / 64
	}
	if err := bank.Write(0, block); err != nil {
		b.Fatalf("Write: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	var sink float32
	for i := 0; i < b.N; i++ {
		sink += bank.Read(0, 100.5, i&63)
	}
	_ = sink
}
