package tensor

import (
	"fmt"
	"unsafe"

	"github.com/born-ml/graphrt/internal/errdefs"
)

// FromSlice creates a CPU tensor holding a copy of data.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
func FromSlice[T DType](data []T, shape Shape) (*RawTensor, error) {
	var zero T
	dt := inferDataType(zero)

	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("FromSlice: data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	r, err := NewRaw(shape, dt, CPU)
	if err != nil {
		return nil, fmt.Errorf("FromSlice: %w", err)
	}
	//nolint:gosec // zero-copy view over a freshly allocated buffer of matching size
	copy(unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), len(data)), data)
	return r, nil
}

// FromFloat32 is FromSlice for float32 data.
func FromFloat32(data []float32, shape Shape) (*RawTensor, error) {
	return FromSlice(data, shape)
}

// FromFloat64 is FromSlice for float64 data.
func FromFloat64(data []float64, shape Shape) (*RawTensor, error) {
	return FromSlice(data, shape)
}

// FromInt64 is FromSlice for int64 data.
func FromInt64(data []int64, shape Shape) (*RawTensor, error) {
	return FromSlice(data, shape)
}

// Zeros creates a zero-filled CPU tensor.
func Zeros(shape Shape, dtype DataType) (*RawTensor, error) {
	return NewRaw(shape, dtype, CPU)
}

// Like creates a zero-filled tensor with the shape, dtype and device of r.
func Like(r *RawTensor) *RawTensor {
	return &RawTensor{
		data:   make([]byte, len(r.data)),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
}

// CopyInto copies src into the caller-allocated dst.
// It fails with a shape mismatch when the shapes differ and with a type
// mismatch when the dtypes differ.
func CopyInto(dst, src *RawTensor, name string) error {
	if dst == nil || src == nil {
		return errdefs.Arity(errdefs.OpExecution, "buffers for "+name, 1, 0)
	}
	if dst.dtype != src.dtype {
		return errdefs.Type(errdefs.OpExecution, name, src.dtype, dst.dtype)
	}
	if !dst.shape.Equal(src.shape) {
		return errdefs.Shape(errdefs.OpExecution, name, []int(src.shape), []int(dst.shape))
	}
	copy(dst.data, src.data)
	return nil
}
