package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/tensor"
)

func (r *Registry) registerActivations() {
	r.Register("Relu", unary("Relu", r.par, func(_ *graph.Layer) func(float64) float64 {
		return func(x float64) float64 { return math.Max(x, 0) }
	}))
	r.Register("LeakyRelu", unary("LeakyRelu", r.par, func(l *graph.Layer) func(float64) float64 {
		alpha := float64(l.AttrFloat("alpha", 0.01))
		return func(x float64) float64 {
			if x < 0 {
				return alpha * x
			}
			return x
		}
	}))
	r.Register("Sigmoid", unary("Sigmoid", r.par, func(_ *graph.Layer) func(float64) float64 {
		return func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	}))
	r.Register("Tanh", unary("Tanh", r.par, func(_ *graph.Layer) func(float64) float64 {
		return math.Tanh
	}))
	r.Register("Exp", unary("Exp", r.par, func(_ *graph.Layer) func(float64) float64 {
		return math.Exp
	}))
	r.Register("Sqrt", unary("Sqrt", r.par, func(_ *graph.Layer) func(float64) float64 {
		return math.Sqrt
	}))
	r.Register("Softmax", handleSoftmax)
}

// unary builds an elementwise float kernel. mk receives the layer so the
// function can close over its attributes.
func unary(name string, cfg parallel.Config, mk func(l *graph.Layer) func(float64) float64) Kernel {
	return func(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := arity(name, inputs, 1); err != nil {
			return nil, err
		}
		f := mk(l)
		out := inputs[0].Clone()
		switch out.DType() {
		case tensor.Float32:
			mapFloat(out.AsFloat32(), f, cfg)
		case tensor.Float64:
			mapFloat(out.AsFloat64(), f, cfg)
		default:
			return nil, fmt.Errorf("%s: unsupported dtype %s", name, out.DType())
		}
		return one(out), nil
	}
}

func mapFloat[T float32 | float64](v []T, f func(float64) float64, cfg parallel.Config) {
	parallel.ForRange(len(v), cfg, func(start, end int) {
		for i := start; i < end; i++ {
			v[i] = T(f(float64(v[i])))
		}
	})
}

func handleSoftmax(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
	if err := arity("Softmax", inputs, 1); err != nil {
		return nil, err
	}
	out := inputs[0].Clone()
	shape := out.Shape()
	axis, err := normalizeAxis(int(l.AttrInt("axis", -1)), len(shape))
	if err != nil {
		return nil, fmt.Errorf("Softmax: %w", err)
	}

	outer := tensor.Shape(shape[:axis]).NumElements()
	n := shape[axis]
	inner := tensor.Shape(shape[axis+1:]).NumElements()

	switch out.DType() {
	case tensor.Float32:
		softmax(out.AsFloat32(), outer, n, inner)
	case tensor.Float64:
		softmax(out.AsFloat64(), outer, n, inner)
	default:
		return nil, fmt.Errorf("Softmax: unsupported dtype %s", out.DType())
	}
	return one(out), nil
}

func softmax[T float32 | float64](v []T, outer, n, inner int) {
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*n*inner + i
			peak := math.Inf(-1)
			for j := 0; j < n; j++ {
				peak = math.Max(peak, float64(v[base+j*inner]))
			}
			var sum float64
			for j := 0; j < n; j++ {
				e := math.Exp(float64(v[base+j*inner]) - peak)
				v[base+j*inner] = T(e)
				sum += e
			}
			for j := 0; j < n; j++ {
				v[base+j*inner] = T(float64(v[base+j*inner]) / sum)
			}
		}
	}
}

func normalizeAxis(axis, rank int) (int, error) {
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return 0, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	return axis, nil
}
