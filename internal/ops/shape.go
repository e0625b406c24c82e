package ops

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

func (r *Registry) registerShape() {
	r.Register("Reshape", handleReshape)
	r.Register("Flatten", handleFlatten)
	r.Register("Transpose", handleTranspose)
	r.Register("Concat", handleConcat)
	r.Register("Unsqueeze", handleUnsqueeze)
	r.Register("Squeeze", handleSqueeze)
}

// handleReshape takes the target shape from a second int64 input or the
// "shape" attribute. A 0 copies the input dimension and one -1 is
// inferred.
func handleReshape(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) < 1 || len(inputs) > 2 || inputs[0] == nil {
		return nil, fmt.Errorf("Reshape requires 1 or 2 inputs, got %d", len(inputs))
	}
	var target []int64
	switch {
	case len(inputs) == 2 && inputs[1] != nil:
		if inputs[1].DType() != tensor.Int64 {
			return nil, fmt.Errorf("Reshape: shape input must be int64, got %s", inputs[1].DType())
		}
		target = inputs[1].AsInt64()
	default:
		target = l.AttrInts("shape")
	}
	if target == nil {
		return nil, fmt.Errorf("Reshape: no target shape")
	}

	in := inputs[0]
	shape := make(tensor.Shape, len(target))
	infer := -1
	known := 1
	for i, d := range target {
		switch {
		case d == 0 && i < len(in.Shape()):
			shape[i] = in.Shape()[i]
		case d == -1 && infer < 0:
			infer = i
			continue
		case d <= 0:
			return nil, fmt.Errorf("Reshape: invalid dimension %d at %d", d, i)
		default:
			shape[i] = int(d)
		}
		known *= shape[i]
	}
	if infer >= 0 {
		if known == 0 || in.NumElements()%known != 0 {
			return nil, fmt.Errorf("Reshape: cannot infer dimension of %v into %v", in.Shape(), target)
		}
		shape[infer] = in.NumElements() / known
	}

	out, err := in.Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("Reshape: %w", err)
	}
	return one(out), nil
}

func handleFlatten(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := arity("Flatten", inputs, 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	rank := len(in.Shape())
	axis := int(l.AttrInt("axis", 1))
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis > rank {
		return nil, fmt.Errorf("Flatten: axis %d out of range for rank %d", axis, rank)
	}
	outer := tensor.Shape(in.Shape()[:axis]).NumElements()
	out, err := in.Reshape(tensor.Shape{outer, in.NumElements() / outer})
	if err != nil {
		return nil, fmt.Errorf("Flatten: %w", err)
	}
	return one(out), nil
}

// handleTranspose permutes axes per "perm", reversing them by default.
// Elements are moved as raw bytes so every dtype is supported.
func handleTranspose(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := arity("Transpose", inputs, 1); err != nil {
		return nil, err
	}
	in := inputs[0]
	rank := len(in.Shape())

	perm := make([]int, rank)
	if p := l.AttrInts("perm"); len(p) > 0 {
		if len(p) != rank {
			return nil, fmt.Errorf("Transpose: perm %v does not match rank %d", p, rank)
		}
		seen := make([]bool, rank)
		for i, v := range p {
			if v < 0 || int(v) >= rank || seen[v] {
				return nil, fmt.Errorf("Transpose: invalid perm %v", p)
			}
			seen[v] = true
			perm[i] = int(v)
		}
	} else {
		for i := range perm {
			perm[i] = rank - 1 - i
		}
	}

	shape := make(tensor.Shape, rank)
	for i, p := range perm {
		shape[i] = in.Shape()[p]
	}
	out, err := tensor.NewRaw(shape, in.DType(), tensor.CPU)
	if err != nil {
		return nil, err
	}

	size := in.DType().Size()
	src, dst := in.Data(), out.Data()
	inStrides := in.Strides()
	coord := make([]int, rank)
	for flat := 0; flat < out.NumElements(); flat++ {
		rem := flat
		for d := rank - 1; d >= 0; d-- {
			coord[d] = rem % shape[d]
			rem /= shape[d]
		}
		off := 0
		for d, p := range perm {
			off += coord[d] * inStrides[p]
		}
		copy(dst[flat*size:(flat+1)*size], src[off*size:(off+1)*size])
	}
	return one(out), nil
}

func handleConcat(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("Concat requires at least 1 input")
	}
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("Concat: input %d is nil", i)
		}
	}
	first := inputs[0]
	rank := len(first.Shape())
	axis, err := normalizeAxis(int(l.AttrInt("axis", 0)), rank)
	if err != nil {
		return nil, fmt.Errorf("Concat: %w", err)
	}

	shape := first.Shape().Clone()
	shape[axis] = 0
	for i, in := range inputs {
		if in.DType() != first.DType() || len(in.Shape()) != rank {
			return nil, fmt.Errorf("Concat: input %d is %s%v, want %s of rank %d", i, in.DType(), in.Shape(), first.DType(), rank)
		}
		for d := range rank {
			if d != axis && in.Shape()[d] != first.Shape()[d] {
				return nil, fmt.Errorf("Concat: input %d shape %v differs from %v off axis %d", i, in.Shape(), first.Shape(), axis)
			}
		}
		shape[axis] += in.Shape()[axis]
	}

	out, err := tensor.NewRaw(shape, first.DType(), tensor.CPU)
	if err != nil {
		return nil, err
	}
	outer := tensor.Shape(shape[:axis]).NumElements()
	inner := tensor.Shape(shape[axis+1:]).NumElements() * first.DType().Size()
	dst := out.Data()
	pos := 0
	for o := 0; o < outer; o++ {
		for _, in := range inputs {
			n := in.Shape()[axis] * inner
			copy(dst[pos:pos+n], in.Data()[o*n:(o+1)*n])
			pos += n
		}
	}
	return one(out), nil
}

func handleUnsqueeze(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, fmt.Errorf("Unsqueeze requires a data input")
	}
	axes := l.AttrInts("axes")
	if len(inputs) > 1 && inputs[1] != nil && inputs[1].DType() == tensor.Int64 {
		axes = inputs[1].AsInt64()
	}
	in := inputs[0]
	rank := len(in.Shape()) + len(axes)
	insert := make([]bool, rank)
	for _, a := range axes {
		ax, err := normalizeAxis(int(a), rank)
		if err != nil {
			return nil, fmt.Errorf("Unsqueeze: %w", err)
		}
		insert[ax] = true
	}
	shape := make(tensor.Shape, 0, rank)
	src := 0
	for d := range rank {
		if insert[d] {
			shape = append(shape, 1)
			continue
		}
		if src >= len(in.Shape()) {
			return nil, fmt.Errorf("Unsqueeze: duplicate axes %v", axes)
		}
		shape = append(shape, in.Shape()[src])
		src++
	}
	out, err := in.Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("Unsqueeze: %w", err)
	}
	return one(out), nil
}

func handleSqueeze(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(inputs) < 1 || inputs[0] == nil {
		return nil, fmt.Errorf("Squeeze requires a data input")
	}
	in := inputs[0]
	axes := l.AttrInts("axes")
	if len(inputs) > 1 && inputs[1] != nil && inputs[1].DType() == tensor.Int64 {
		axes = inputs[1].AsInt64()
	}
	drop := make([]bool, len(in.Shape()))
	for _, a := range axes {
		ax, err := normalizeAxis(int(a), len(in.Shape()))
		if err != nil {
			return nil, fmt.Errorf("Squeeze: %w", err)
		}
		if in.Shape()[ax] != 1 {
			return nil, fmt.Errorf("Squeeze: axis %d has size %d", ax, in.Shape()[ax])
		}
		drop[ax] = true
	}
	shape := tensor.Shape{}
	for d, n := range in.Shape() {
		if drop[d] || (len(axes) == 0 && n == 1) {
			continue
		}
		shape = append(shape, n)
	}
	out, err := in.Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("Squeeze: %w", err)
	}
	return one(out), nil
}
