package backend

import "github.com/pob31/WFS-DIY-sub001/internal/delayline"

// CPU is the reference mix kernel. Outputs accumulate independently of
// one another, so the per-output loop parallelizes without shared
// state; the reference keeps it serial for deterministic, bit-exact
// results.
type CPU struct {
	bank   *delayline.Bank
	numOut int
}

// NewCPU creates the reference backend over bank.
func NewCPU(bank *delayline.Bank, numOutputs int) *CPU {
	return &CPU{bank: bank, numOut: numOutputs}
}

// Name returns "cpu".
func (c *CPU) Name() string { return NameCPU }

// ProcessBlock computes every output as the gain-weighted sum of delay
// taps across all inputs. Pairs with zero gain are skipped; an output
// with no contributing pair stays silent. The input blocks are already
// in the bank, so in is unused here.
func (c *CPU) ProcessBlock(in [][]float32, delays, gains []float32, out [][]float32, n int) error {
	numIn := c.bank.Inputs()
	for o := 0; o < c.numOut; o++ {
		dst := out[o][:n]
		for s := range dst {
			dst[s] = 0
		}
		for i := 0; i < numIn; i++ {
			g := gains[i*c.numOut+o]
			if g == 0 {
				continue
			}
			d := delays[i*c.numOut+o]
			for s := 0; s < n; s++ {
				dst[s] += g * c.bank.Read(i, d, s)
			}
		}
	}
	return nil
}

// Close is a no-op for the CPU backend.
func (c *CPU) Close() error { return nil }
