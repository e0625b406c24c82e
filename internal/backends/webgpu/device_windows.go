//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/graphrt/internal/tensor"
)

// device is one exclusively owned WebGPU device with its shader and
// pipeline caches.
type device struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
}

// openDevice acquires a device. lowPower selects the integrated adapter
// where there is a choice.
func openDevice(lowPower bool) (d *device, err error) {
	// The bindings panic when wgpu_native cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			d = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	pref := wgpu.PowerPreferenceHighPerformance
	if lowPower {
		pref = wgpu.PowerPreferenceLowPower
	}

	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{PowerPreference: pref})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}
	dev, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", err)
	}
	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &device{
		instance:  instance,
		adapter:   adapter,
		device:    dev,
		queue:     queue,
		shaders:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

func (d *device) release() {
	for _, p := range d.pipelines {
		p.Release()
	}
	for _, s := range d.shaders {
		s.Release()
	}
	d.pipelines, d.shaders = nil, nil
	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}

// pipeline compiles and caches the pipeline for a shader. Modules run
// serially, so the caches need no lock.
func (d *device) pipeline(name, code string) *wgpu.ComputePipeline {
	if p, ok := d.pipelines[name]; ok {
		return p
	}
	shader := d.device.CreateShaderModuleWGSL(code)
	d.shaders[name] = shader
	p := d.device.CreateComputePipelineSimple(nil, shader, "main")
	d.pipelines[name] = p
	return p
}

func (d *device) upload(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buf := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	//nolint:gosec // mapped range of exactly size bytes
	copy(unsafe.Slice((*byte)(buf.GetMappedRange(0, size)), size), data)
	buf.Unmap()
	return buf
}

// params uploads the element count as a 16-byte aligned uniform.
func (d *device) params(n int) *wgpu.Buffer {
	p := make([]byte, 16)
	binary.LittleEndian.PutUint32(p[0:4], uint32(n)) //nolint:gosec // G115: element counts fit in u32
	return d.upload(p, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
}

func (d *device) read(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	d.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(d.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}
	out := make([]byte, size)
	//nolint:gosec // mapped range of exactly size bytes
	copy(out, unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size))
	staging.Unmap()
	return out, nil
}

// dispatch runs one elementwise shader over operands and returns the
// result tensor.
func (d *device) dispatch(name, code string, operands ...*tensor.RawTensor) (*tensor.RawTensor, error) {
	first := operands[0]
	for _, t := range operands {
		if t.DType() != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: only float32 is supported, got %s", t.DType())
		}
		if !t.Shape().Equal(first.Shape()) {
			return nil, fmt.Errorf("webgpu: shape mismatch: %v vs %v", first.Shape(), t.Shape())
		}
	}
	n := first.NumElements()
	size := uint64(first.ByteSize()) //nolint:gosec // G115: non-negative

	p := d.pipeline(name, code)

	entries := make([]wgpu.BindGroupEntry, 0, len(operands)+2)
	for i, t := range operands {
		buf := d.upload(t.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer buf.Release()
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, size)) //nolint:gosec // at most two operands
	}
	result := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer result.Release()
	params := d.params(n)
	defer params.Release()

	k := uint32(len(operands)) //nolint:gosec // at most two operands
	entries = append(entries,
		wgpu.BufferBindingEntry(k, result, 0, size),
		wgpu.BufferBindingEntry(k+1, params, 0, 16),
	)
	bindGroup := d.device.CreateBindGroupSimple(p.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := d.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(p)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32((n+workgroupSize-1)/workgroupSize), 1, 1) //nolint:gosec // G115: non-negative
	pass.End()
	d.queue.Submit(encoder.Finish(nil))

	data, err := d.read(result, size)
	if err != nil {
		return nil, err
	}
	out, err := tensor.NewRaw(first.Shape(), tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}
	copy(out.Data(), data)
	return out, nil
}
