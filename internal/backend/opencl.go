//go:build cgo && !noopencl

package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jgillich/go-opencl/cl"

	"github.com/pob31/WFS-DIY-sub001/internal/delayline"
)

// mixKernelSource mirrors the CPU reference exactly: the same
// power-of-two ring addressing, the same two-tap linear interpolation,
// the same zero-gain skip and delay clamp. The delay is split into its
// integer and fractional parts before any position arithmetic: d and
// (float)di agree in scale, so fd is the exact fractional delay, and
// the tap index stays in integer math. Folding base+s into a float
// position first would round the fraction once the ring position nears
// 2^16 and drift past Tolerance.
const mixKernelSource = `
__kernel void mix_route(
    __global const float *rings,
    __global const float *delays,
    __global const float *gains,
    __global float *out,
    const int num_inputs,
    const int num_outputs,
    const int capacity,
    const int cap_mask,
    const int base,
    const int block_len,
    const float max_delay)
{
    int gid = get_global_id(0);
    if (gid >= num_outputs * block_len) {
        return;
    }
    int o = gid / block_len;
    int s = gid % block_len;
    float acc = 0.0f;
    for (int i = 0; i < num_inputs; i++) {
        float g = gains[i * num_outputs + o];
        if (g == 0.0f) {
            continue;
        }
        float d = clamp(delays[i * num_outputs + o], 0.0f, max_delay);
        int di = (int)d;
        float fd = d - (float)di;
        int tap = base + s - di;
        int ring = i * capacity;
        float s_new = rings[ring + (tap & cap_mask)];
        float s_old = rings[ring + ((tap - 1) & cap_mask)];
        acc += g * (s_new * (1.0f - fd) + s_old * fd);
    }
    out[o * block_len + s] = acc;
}`

// openCL runs the mix kernel on an OpenCL device. The device holds a
// copy of every input ring addressed identically to the host bank, so
// only the new block region, the tables, and the outputs cross the bus
// each block.
type openCL struct {
	bank     *delayline.Bank
	numIn    int
	numOut   int
	capacity int
	blockMax int

	context *cl.Context
	queue   *cl.CommandQueue
	program *cl.Program
	kernel  *cl.Kernel

	ringsBuf  *cl.MemObject
	delaysBuf *cl.MemObject
	gainsBuf  *cl.MemObject
	outBuf    *cl.MemObject

	outScratch []float32
	deviceName string
}

// newOpenCL discovers a device (GPU preferred, CPU device as a last
// resort), compiles the kernel, and allocates the device rings, zeroed
// to match the host bank's initial silence.
func newOpenCL(bank *delayline.Bank, numOutputs int) (*openCL, error) {
	device, deviceType, err := findDevice()
	if err != nil {
		return nil, err
	}

	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, fmt.Errorf("creating context: %w", err)
	}
	queue, err := context.CreateCommandQueue(device, 0)
	if err != nil {
		context.Release()
		return nil, fmt.Errorf("creating command queue: %w", err)
	}
	program, err := context.CreateProgramWithSource([]string{mixKernelSource})
	if err != nil {
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating program: %w", err)
	}
	if err := program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		program.Release()
		queue.Release()
		context.Release()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building mix kernel: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building mix kernel: %w", err)
	}
	kernel, err := program.CreateKernel("mix_route")
	if err != nil {
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("creating kernel: %w", err)
	}

	numIn := bank.Inputs()
	capacity := bank.Capacity()
	blockMax := bank.BlockMax()
	pairs := numIn * numOutputs

	ringsBuf, err := context.CreateEmptyBuffer(cl.MemReadOnly, numIn*capacity*4)
	if err != nil {
		kernel.Release()
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("allocating ring buffer: %w", err)
	}
	delaysBuf, err := context.CreateEmptyBuffer(cl.MemReadOnly, pairs*4)
	if err != nil {
		ringsBuf.Release()
		kernel.Release()
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("allocating delay table: %w", err)
	}
	gainsBuf, err := context.CreateEmptyBuffer(cl.MemReadOnly, pairs*4)
	if err != nil {
		delaysBuf.Release()
		ringsBuf.Release()
		kernel.Release()
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("allocating gain table: %w", err)
	}
	outBuf, err := context.CreateEmptyBuffer(cl.MemWriteOnly, numOutputs*blockMax*4)
	if err != nil {
		gainsBuf.Release()
		delaysBuf.Release()
		ringsBuf.Release()
		kernel.Release()
		program.Release()
		queue.Release()
		context.Release()
		return nil, fmt.Errorf("allocating output buffer: %w", err)
	}

	o := &openCL{
		bank:       bank,
		numIn:      numIn,
		numOut:     numOutputs,
		capacity:   capacity,
		blockMax:   blockMax,
		context:    context,
		queue:      queue,
		program:    program,
		kernel:     kernel,
		ringsBuf:   ringsBuf,
		delaysBuf:  delaysBuf,
		gainsBuf:   gainsBuf,
		outBuf:     outBuf,
		outScratch: make([]float32, numOutputs*blockMax),
		deviceName: fmt.Sprintf("%s (%s)", device.Name(), deviceType),
	}

	// Device buffer contents are undefined until written; the host bank
	// starts silent, so the device rings must too.
	zeros := make([]float32, numIn*capacity)
	if _, err := queue.EnqueueWriteBufferFloat32(ringsBuf, true, 0, zeros, nil); err != nil {
		o.Close()
		return nil, fmt.Errorf("zeroing device rings: %w", err)
	}

	if err := kernel.SetArgs(
		ringsBuf, delaysBuf, gainsBuf, outBuf,
		int32(numIn), int32(numOutputs),
		int32(capacity), int32(capacity-1),
		int32(0), int32(0),
		float32(bank.MaxDelay()),
	); err != nil {
		o.Close()
		return nil, fmt.Errorf("setting kernel arguments: %w", err)
	}

	return o, nil
}

// findDevice returns the first GPU device across all platforms, or the
// first CPU device when no GPU is present.
func findDevice() (*cl.Device, string, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms"
		}
		return nil, "", fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, "", errors.New("no OpenCL platforms available")
	}
	for _, p := range platforms {
		devices, derr := p.GetDevices(cl.DeviceTypeGPU)
		if derr != nil && derr != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0], "gpu", nil
		}
	}
	for _, p := range platforms {
		devices, derr := p.GetDevices(cl.DeviceTypeCPU)
		if derr != nil && derr != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0], "cpu", nil
		}
	}
	return nil, "", errors.New("no suitable OpenCL devices found")
}

// Name returns "opencl".
func (o *openCL) Name() string { return NameOpenCL }

// DeviceName returns the selected device, e.g. "gfx1100 (gpu)".
func (o *openCL) DeviceName() string { return o.deviceName }

// ProcessBlock uploads the block's new ring region and the current
// tables, runs one work item per (output, sample), and reads the
// outputs back with a blocking read that also fences the in-order
// queue.
func (o *openCL) ProcessBlock(in [][]float32, delays, gains []float32, out [][]float32, n int) error {
	if n == 0 {
		return nil
	}
	base := o.bank.Base()
	for i := 0; i < o.numIn; i++ {
		src := in[i][:n]
		head := n
		if base+head > o.capacity {
			head = o.capacity - base
		}
		off := (i*o.capacity + base) * 4
		if _, err := o.queue.EnqueueWriteBufferFloat32(o.ringsBuf, false, off, src[:head], nil); err != nil {
			return &RuntimeError{Backend: NameOpenCL, Op: "uploading input ring", Err: err}
		}
		if head < n {
			if _, err := o.queue.EnqueueWriteBufferFloat32(o.ringsBuf, false, i*o.capacity*4, src[head:], nil); err != nil {
				return &RuntimeError{Backend: NameOpenCL, Op: "uploading input ring wrap", Err: err}
			}
		}
	}
	if _, err := o.queue.EnqueueWriteBufferFloat32(o.delaysBuf, false, 0, delays, nil); err != nil {
		return &RuntimeError{Backend: NameOpenCL, Op: "uploading delay table", Err: err}
	}
	if _, err := o.queue.EnqueueWriteBufferFloat32(o.gainsBuf, false, 0, gains, nil); err != nil {
		return &RuntimeError{Backend: NameOpenCL, Op: "uploading gain table", Err: err}
	}
	if err := o.kernel.SetArgInt32(8, int32(base)); err != nil {
		return &RuntimeError{Backend: NameOpenCL, Op: "setting base argument", Err: err}
	}
	if err := o.kernel.SetArgInt32(9, int32(n)); err != nil {
		return &RuntimeError{Backend: NameOpenCL, Op: "setting length argument", Err: err}
	}
	if _, err := o.queue.EnqueueNDRangeKernel(o.kernel, nil, []int{o.numOut * n}, nil, nil); err != nil {
		return &RuntimeError{Backend: NameOpenCL, Op: "running mix kernel", Err: err}
	}
	scratch := o.outScratch[:o.numOut*n]
	if _, err := o.queue.EnqueueReadBufferFloat32(o.outBuf, true, 0, scratch, nil); err != nil {
		return &RuntimeError{Backend: NameOpenCL, Op: "reading outputs", Err: err}
	}
	for c := 0; c < o.numOut; c++ {
		copy(out[c][:n], scratch[c*n:(c+1)*n])
	}
	return nil
}

// Close releases device objects in reverse order of creation.
func (o *openCL) Close() error {
	if o.outBuf != nil {
		o.outBuf.Release()
		o.outBuf = nil
	}
	if o.gainsBuf != nil {
		o.gainsBuf.Release()
		o.gainsBuf = nil
	}
	if o.delaysBuf != nil {
		o.delaysBuf.Release()
		o.delaysBuf = nil
	}
	if o.ringsBuf != nil {
		o.ringsBuf.Release()
		o.ringsBuf = nil
	}
	if o.kernel != nil {
		o.kernel.Release()
		o.kernel = nil
	}
	if o.program != nil {
		o.program.Release()
		o.program = nil
	}
	if o.queue != nil {
		o.queue.Release()
		o.queue = nil
	}
	if o.context != nil {
		o.context.Release()
		o.context = nil
	}
	return nil
}

// Devices lists OpenCL devices across all platforms, GPUs first.
func Devices() ([]DeviceInfo, error) {
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("querying platforms: %w", err)
	}
	var infos []DeviceInfo
	for _, deviceType := range []cl.DeviceType{cl.DeviceTypeGPU, cl.DeviceTypeCPU} {
		label := "gpu"
		if deviceType == cl.DeviceTypeCPU {
			label = "cpu"
		}
		for _, p := range platforms {
			devices, derr := p.GetDevices(deviceType)
			if derr != nil && derr != cl.ErrDeviceNotFound {
				continue
			}
			for _, d := range devices {
				infos = append(infos, DeviceInfo{Platform: p.Name(), Device: d.Name(), Type: label})
			}
		}
	}
	return infos, nil
}
