package backend

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

// stubBackend fills every output sample with fill, then returns err.
type stubBackend struct {
	fill   float32
	err    error
	calls  int
	closed bool
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) ProcessBlock(in [][]float32, delays, gains []float32, out [][]float32, n int) error {
	s.calls++
	for o := range out {
		for i := range out[o] {
			out[o][i] = s.fill
		}
	}
	return s.err
}

func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherPassesThroughSuccess(t *testing.T) {
	stub := &stubBackend{fill: 0.25}
	d := NewDispatcher(stub)

	out := makeOut(2, 4)
	if err := d.ProcessBlock(nil, nil, nil, out, 4); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("backend called %d times, want 1", stub.calls)
	}
	for o := range out {
		for s := range out[o] {
			if out[o][s] != 0.25 {
				t.Errorf("out[%d][%d] = %v, want 0.25", o, s, out[o][s])
			}
		}
	}
}

func TestDispatcherSilencesFailedBlock(t *testing.T) {
	fail := &RuntimeError{Backend: "stub", Op: "mix", Err: errors.New("device lost")}
	stub := &stubBackend{fill: 0.7, err: fail}
	d := NewDispatcher(stub)

	out := makeOut(2, 4)
	err := d.ProcessBlock(nil, nil, nil, out, 4)
	if err == nil {
		t.Fatal("ProcessBlock returned nil, want runtime error")
	}
	var rte *RuntimeError
	if !errors.As(err, &rte) {
		t.Fatalf("error %v, want *RuntimeError", err)
	}
	for o := range out {
		for s := range out[o] {
			if out[o][s] != 0 {
				t.Errorf("out[%d][%d] = %v, want 0 after backend failure", o, s, out[o][s])
			}
		}
	}
}

func TestDispatcherFailureZeroesOnlyProcessedRange(t *testing.T) {
	stub := &stubBackend{fill: 0.7, err: errors.New("boom")}
	d := NewDispatcher(stub)

	out := makeOut(1, 8)
	for s := range out[0] {
		out[0][s] = -1
	}
	if err := d.ProcessBlock(nil, nil, nil, out, 4); err == nil {
		t.Fatal("ProcessBlock returned nil, want error")
	}
	for s := 0; s < 4; s++ {
		if out[0][s] != 0 {
			t.Errorf("out[0][%d] = %v, want 0", s, out[0][s])
		}
	}
	for s := 4; s < 8; s++ {
		if out[0][s] != 0.7 {
			t.Errorf("out[0][%d] = %v, want stub fill beyond block length", s, out[0][s])
		}
	}
}

func TestDispatcherKeepsBackendAfterFailure(t *testing.T) {
	stub := &stubBackend{fill: 0.5, err: errors.New("transient")}
	d := NewDispatcher(stub)

	out := makeOut(1, 2)
	if err := d.ProcessBlock(nil, nil, nil, out, 2); err == nil {
		t.Fatal("first ProcessBlock returned nil, want error")
	}
	stub.err = nil
	if err := d.ProcessBlock(nil, nil, nil, out, 2); err != nil {
		t.Fatalf("second ProcessBlock: %v", err)
	}
	if stub.calls != 2 {
		t.Fatalf("backend called %d times, want 2 (no reselection)", stub.calls)
	}
	if out[0][0] != 0.5 {
		t.Errorf("out[0][0] = %v, want 0.5 after recovery", out[0][0])
	}
}

func TestDispatcherCloseForwards(t *testing.T) {
	stub := &stubBackend{}
	d := NewDispatcher(stub)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !stub.closed {
		t.Error("backend not closed")
	}
}

func TestNewCPUPreference(t *testing.T) {
	bank := newTestBank(t, 2, 4, 64)
	d, err := New(NameCPU, bank, 2, discardLogger())
	if err != nil {
		t.Fatalf("New(cpu): %v", err)
	}
	defer d.Close()
	if d.Name() != NameCPU {
		t.Errorf("Name() = %q, want %q", d.Name(), NameCPU)
	}
	if d.FellBack() {
		t.Error("FellBack() = true for explicit cpu preference")
	}
}

func TestNewUnknownPreference(t *testing.T) {
	bank := newTestBank(t, 2, 4, 64)
	if _, err := New("fpga", bank, 2, discardLogger()); err == nil {
		t.Fatal("New(fpga) returned nil error")
	}
}

func TestNewAutoSelectionIsConsistent(t *testing.T) {
	bank := newTestBank(t, 2, 4, 64)
	d, err := New(NameAuto, bank, 2, discardLogger())
	if err != nil {
		t.Fatalf("New(auto): %v", err)
	}
	defer d.Close()
	switch d.Name() {
	case NameOpenCL:
		if d.FellBack() {
			t.Error("FellBack() = true with opencl selected")
		}
	case NameCPU:
		if !d.FellBack() {
			t.Error("FellBack() = false with cpu selected under auto")
		}
	default:
		t.Errorf("Name() = %q, want %q or %q", d.Name(), NameOpenCL, NameCPU)
	}
}

func TestNewOpenCLPreference(t *testing.T) {
	bank := newTestBank(t, 2, 4, 64)
	d, err := New(NameOpenCL, bank, 2, discardLogger())
	if err != nil {
		var ie *InitError
		if !errors.As(err, &ie) {
			t.Fatalf("error %v, want *InitError", err)
		}
		t.Skipf("opencl unavailable: %v", err)
	}
	defer d.Close()
	if d.Name() != NameOpenCL {
		t.Errorf("Name() = %q, want %q", d.Name(), NameOpenCL)
	}
	if d.FellBack() {
		t.Error("FellBack() = true for explicit opencl preference")
	}
}
