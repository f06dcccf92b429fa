// Package engine renders multi-channel audio through a delay and gain
// routing matrix in real time.
//
// An Engine owns a delay line bank holding each input's recent history,
// a smoothing routing matrix, a single-slot routing mailbox and a
// compute backend. The audio context calls ProcessBlock once per block;
// control code submits table updates through SubmitRouting from any
// goroutine. The two sides share no locks: updates cross through the
// mailbox and land at block boundaries, coalescing to the newest when
// the control side runs ahead.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pob31/WFS-DIY-sub001/internal/backend"
	"github.com/pob31/WFS-DIY-sub001/internal/delayline"
	"github.com/pob31/WFS-DIY-sub001/internal/routing"
)

// Specification fixes an engine's dimensions and capacities for its
// whole lifetime. All fields must be at least 1.
type Specification struct {
	NumInputs            int
	NumOutputs           int
	MaxSamplesPerChannel int
	MaxDelaySamples      int
}

// Validate reports the first invalid field as a ConfigError.
func (s Specification) Validate() error {
	if s.NumInputs < 1 {
		return configErrorf("num inputs", "must be at least 1, got %d", s.NumInputs)
	}
	if s.NumOutputs < 1 {
		return configErrorf("num outputs", "must be at least 1, got %d", s.NumOutputs)
	}
	if s.MaxSamplesPerChannel < 1 {
		return configErrorf("max samples per channel", "must be at least 1, got %d", s.MaxSamplesPerChannel)
	}
	if s.MaxDelaySamples < 1 {
		return configErrorf("max delay samples", "must be at least 1, got %d", s.MaxDelaySamples)
	}
	return nil
}

// Pairs returns the number of (input, output) routing pairs.
func (s Specification) Pairs() int { return s.NumInputs * s.NumOutputs }

// Options configure New beyond the Specification. The zero value
// selects the automatic backend, the default smoothing ramp and the
// default logger.
type Options struct {
	Backend    string       // backend.NameAuto when empty
	RampLength int          // routing.DefaultRampSamples when 0
	Logger     *slog.Logger // slog.Default when nil
}

// Engine is the real-time routing core. ProcessBlock is not safe for
// concurrent use; the audio context is its sole owner. SubmitRouting
// and Stats are safe from any goroutine.
type Engine struct {
	spec   Specification
	bank   *delayline.Bank
	matrix *routing.Matrix
	slot   routing.Slot
	disp   *backend.Dispatcher

	blocks       atomic.Uint64
	applied      atomic.Uint64
	rejected     atomic.Uint64
	backendFails atomic.Uint64
	oversize     atomic.Uint64
}

// New builds an engine for spec. All memory the audio path touches is
// allocated here; ProcessBlock allocates nothing. Construction fails
// with a ConfigError for an invalid spec, or with the backend's
// initialization error when an explicitly requested backend is
// unavailable. The automatic backend preference falls back to the CPU
// instead of failing.
func New(spec Specification, opts Options) (*Engine, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	ramp := opts.RampLength
	if ramp == 0 {
		ramp = routing.DefaultRampSamples
	}
	if ramp < 0 {
		return nil, configErrorf("ramp length", "must be positive, got %d", ramp)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	bank, err := delayline.New(spec.NumInputs, spec.MaxSamplesPerChannel, spec.MaxDelaySamples)
	if err != nil {
		return nil, configErrorf("delay line bank", "%v", err)
	}
	matrix, err := routing.NewMatrix(spec.NumInputs, spec.NumOutputs, spec.MaxDelaySamples, ramp)
	if err != nil {
		return nil, configErrorf("routing matrix", "%v", err)
	}
	disp, err := backend.New(opts.Backend, bank, spec.NumOutputs, log)
	if err != nil {
		return nil, err
	}
	return &Engine{spec: spec, bank: bank, matrix: matrix, disp: disp}, nil
}

// Spec returns the engine's immutable specification.
func (e *Engine) Spec() Specification { return e.spec }

// Backend returns the name of the selected compute backend.
func (e *Engine) Backend() string { return e.disp.Name() }

// FellBack reports whether automatic backend selection fell back to the
// CPU after an OpenCL initialization failure.
func (e *Engine) FellBack() bool { return e.disp.FellBack() }

// RampLength returns the smoothing window in samples.
func (e *Engine) RampLength() int { return e.matrix.RampLen() }

// Ramping reports whether the routing tables are still gliding toward
// the last accepted target. Audio context only, like ProcessBlock.
func (e *Engine) Ramping() bool { return e.matrix.Smoothing() }

// PendingRouting reports whether a submitted update has not yet been
// consumed by the audio context.
func (e *Engine) PendingRouting() bool { return e.slot.Pending() }

// NewRoutingMessage allocates a zeroed message sized for this engine's
// dimensions.
func (e *Engine) NewRoutingMessage() *routing.Message {
	return routing.NewMessage(e.spec.NumInputs, e.spec.NumOutputs)
}

// SubmitRouting validates msg and publishes it toward the audio
// context. Ownership of msg transfers to the engine on success; the
// caller must not reuse or mutate it afterward. An invalid message is
// rejected here, never reaches the audio context, and leaves the last
// accepted tables in effect. When updates arrive faster than blocks are
// processed only the newest survives.
func (e *Engine) SubmitRouting(msg *routing.Message) error {
	if err := e.matrix.Validate(msg); err != nil {
		e.rejected.Add(1)
		return fmt.Errorf("engine: reject routing update: %w", err)
	}
	e.slot.Publish(msg)
	return nil
}

// ProcessBlock renders one block of n samples: it consumes a pending
// routing update if one is waiting, advances table smoothing, records
// the inputs into the delay history, mixes every routed pair into out
// and advances the ring. in must hold NumInputs channels and out
// NumOutputs channels, each at least n samples long. n of zero or less
// is a no-op. The routing tables are held constant within the block.
//
// ProcessBlock never allocates, never blocks and reports trouble
// through status flags instead of errors. After a failed block the
// outputs hold silence, never stale or undefined samples.
func (e *Engine) ProcessBlock(in, out [][]float32, n int) BlockStatus {
	if n <= 0 {
		return 0
	}
	if n > e.spec.MaxSamplesPerChannel {
		e.oversize.Add(1)
		silence(out, n)
		return StatusBlockOversize
	}
	var status BlockStatus
	if msg := e.slot.Take(); msg != nil {
		if err := e.matrix.SetTarget(msg); err != nil {
			status |= StatusRoutingRejected
			e.rejected.Add(1)
		} else {
			status |= StatusRoutingApplied
			e.applied.Add(1)
		}
	}
	e.matrix.Advance(n)
	for i := 0; i < e.spec.NumInputs; i++ {
		if err := e.bank.Write(i, in[i][:n]); err != nil {
			e.oversize.Add(1)
			silence(out, n)
			return status | StatusBlockOversize
		}
	}
	delays, gains := e.matrix.Tables()
	if err := e.disp.ProcessBlock(in, delays, gains, out, n); err != nil {
		status |= StatusBackendFailed
		e.backendFails.Add(1)
	}
	e.bank.Advance(n)
	e.blocks.Add(1)
	return status
}

// Stats is a snapshot of the engine's lifetime counters.
type Stats struct {
	Blocks          uint64
	RoutingApplied  uint64
	RoutingRejected uint64
	BackendFailures uint64
	OversizeBlocks  uint64
}

// Stats returns a counter snapshot. Safe from any goroutine.
func (e *Engine) Stats() Stats {
	return Stats{
		Blocks:          e.blocks.Load(),
		RoutingApplied:  e.applied.Load(),
		RoutingRejected: e.rejected.Load(),
		BackendFailures: e.backendFails.Load(),
		OversizeBlocks:  e.oversize.Load(),
	}
}

// Close releases the compute backend. The engine must not be used
// afterward.
func (e *Engine) Close() error { return e.disp.Close() }

func silence(out [][]float32, n int) {
	for o := range out {
		dst := out[o]
		if n < len(dst) {
			dst = dst[:n]
		}
		for s := range dst {
			dst[s] = 0
		}
	}
}
