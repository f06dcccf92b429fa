package backend

// Dispatcher is the single entry point the engine calls per block. It
// forwards to the selected backend and, when the backend reports a
// runtime failure, zeroes the block's outputs so a failed block is
// defined silence, never stale or undefined memory.
type Dispatcher struct {
	backend  Backend
	fellBack bool
}

// NewDispatcher wraps b. Callers normally use New instead; this
// constructor exists for hosts that build their own backend.
func NewDispatcher(b Backend) *Dispatcher {
	return &Dispatcher{backend: b}
}

// Name returns the active backend's name.
func (d *Dispatcher) Name() string { return d.backend.Name() }

// FellBack reports whether backend selection fell back to the CPU after
// an OpenCL initialization failure.
func (d *Dispatcher) FellBack() bool { return d.fellBack }

// ProcessBlock runs one block on the active backend. On failure the
// outputs are zeroed and the backend's error returned; the backend
// stays selected and the next block proceeds normally.
func (d *Dispatcher) ProcessBlock(in [][]float32, delays, gains []float32, out [][]float32, n int) error {
	if err := d.backend.ProcessBlock(in, delays, gains, out, n); err != nil {
		for o := range out {
			dst := out[o][:n]
			for s := range dst {
				dst[s] = 0
			}
		}
		return err
	}
	return nil
}

// Close releases the active backend's resources.
func (d *Dispatcher) Close() error { return d.backend.Close() }
