package ops

import (
	"fmt"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

func (r *Registry) registerUtility() {
	r.Register("Identity", passThrough("Identity"))
	r.Register("Dropout", passThrough("Dropout"))
	r.Register(graph.OpOutput, passThrough(graph.OpOutput))
	r.Register(graph.OpConstant, handleConstant)
	r.Register("Cast", handleCast)
}

// passThrough forwards its first operand. Dropout is inference-only here,
// so its optional mask output is not produced.
func passThrough(name string) Kernel {
	return func(_ *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if len(inputs) < 1 || inputs[0] == nil {
			return nil, fmt.Errorf("%s requires an input", name)
		}
		return one(inputs[0]), nil
	}
}

func handleConstant(l *graph.Layer, _ []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if len(l.Data) == 0 || l.Data[0] == nil {
		return nil, fmt.Errorf("Constant %q has no value", l.Name)
	}
	return one(l.Data[0]), nil
}

// handleCast converts between numeric dtypes. The target comes from the
// "to" attribute, either a dtype name or a tensor.DataType.
func handleCast(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := arity("Cast", inputs, 1); err != nil {
		return nil, err
	}
	in := inputs[0]

	to := l.DType
	switch v := l.Attrs["to"].(type) {
	case string:
		dt, err := tensor.ParseDataType(v)
		if err != nil {
			return nil, fmt.Errorf("Cast: %w", err)
		}
		to = dt
	case tensor.DataType:
		to = v
	}
	if to == in.DType() {
		return one(in), nil
	}

	out, err := tensor.NewRaw(in.Shape(), to, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("Cast: %w", err)
	}
	src, err := asFloat64s(in)
	if err != nil {
		return nil, fmt.Errorf("Cast: %w", err)
	}
	switch to {
	case tensor.Float32:
		convert(src, out.AsFloat32())
	case tensor.Float64:
		copy(out.AsFloat64(), src)
	case tensor.Int32:
		convert(src, out.AsInt32())
	case tensor.Int64:
		convert(src, out.AsInt64())
	default:
		return nil, fmt.Errorf("Cast: unsupported target dtype %s", to)
	}
	return one(out), nil
}

func asFloat64s(t *tensor.RawTensor) ([]float64, error) {
	out := make([]float64, t.NumElements())
	switch t.DType() {
	case tensor.Float32:
		convert(t.AsFloat32(), out)
	case tensor.Float64:
		copy(out, t.AsFloat64())
	case tensor.Int32:
		convert(t.AsInt32(), out)
	case tensor.Int64:
		convert(t.AsInt64(), out)
	default:
		return nil, fmt.Errorf("unsupported source dtype %s", t.DType())
	}
	return out, nil
}

func convert[S, D number](src []S, dst []D) {
	for i, v := range src {
		dst[i] = D(v)
	}
}
