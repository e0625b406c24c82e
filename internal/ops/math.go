package ops

import (
	"errors"
	"fmt"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/parallel"
	"github.com/born-ml/graphrt/internal/tensor"
)

type number interface {
	~float32 | ~float64 | ~int32 | ~int64
}

type arith int

const (
	opAdd arith = iota
	opSub
	opMul
	opDiv
)

var errDivByZero = errors.New("integer division by zero")

func (r *Registry) registerMath() {
	r.Register("Add", binary("Add", opAdd, r.par))
	r.Register("Sub", binary("Sub", opSub, r.par))
	r.Register("Mul", binary("Mul", opMul, r.par))
	r.Register("Div", binary("Div", opDiv, r.par))
	r.Register("MatMul", matMulKernel(r.par))
	r.Register("Gemm", gemmKernel(r.par))
}

// view returns the typed element slice of t. The caller guarantees the
// dtype matches T.
func view[T number](t *tensor.RawTensor) []T {
	switch t.DType() {
	case tensor.Float32:
		return any(t.AsFloat32()).([]T)
	case tensor.Float64:
		return any(t.AsFloat64()).([]T)
	case tensor.Int32:
		return any(t.AsInt32()).([]T)
	case tensor.Int64:
		return any(t.AsInt64()).([]T)
	default:
		panic(fmt.Sprintf("ops: no numeric view for %s", t.DType()))
	}
}

func apply[T number](k arith, x, y T) T {
	switch k {
	case opAdd:
		return x + y
	case opSub:
		return x - y
	case opMul:
		return x * y
	default:
		return x / y
	}
}

func binary(name string, k arith, cfg parallel.Config) Kernel {
	return func(_ *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := arity(name, inputs, 2); err != nil {
			return nil, err
		}
		a, b := inputs[0], inputs[1]
		if a.DType() != b.DType() {
			return nil, fmt.Errorf("%s: operand dtypes differ: %s vs %s", name, a.DType(), b.DType())
		}
		shape, _, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out, err := tensor.NewRaw(shape, a.DType(), tensor.CPU)
		if err != nil {
			return nil, err
		}

		switch a.DType() {
		case tensor.Float32:
			broadcastBinary[float32](k, a, b, out, cfg)
		case tensor.Float64:
			broadcastBinary[float64](k, a, b, out, cfg)
		case tensor.Int32:
			if k == opDiv && hasZero(view[int32](b)) {
				return nil, fmt.Errorf("%s: %w", name, errDivByZero)
			}
			broadcastBinary[int32](k, a, b, out, cfg)
		case tensor.Int64:
			if k == opDiv && hasZero(view[int64](b)) {
				return nil, fmt.Errorf("%s: %w", name, errDivByZero)
			}
			broadcastBinary[int64](k, a, b, out, cfg)
		default:
			return nil, fmt.Errorf("%s: unsupported dtype %s", name, a.DType())
		}
		return one(out), nil
	}
}

func broadcastBinary[T number](k arith, a, b, out *tensor.RawTensor, cfg parallel.Config) {
	av, bv, ov := view[T](a), view[T](b), view[T](out)
	shape := out.Shape()
	same := a.Shape().Equal(shape) && b.Shape().Equal(shape)

	parallel.ForRange(len(ov), cfg, func(start, end int) {
		for i := start; i < end; i++ {
			ai, bi := i, i
			if !same {
				ai = tensor.BroadcastIndex(i, shape, a.Shape())
				bi = tensor.BroadcastIndex(i, shape, b.Shape())
			}
			ov[i] = apply(k, av[ai], bv[bi])
		}
	})
}

func hasZero[T number](v []T) bool {
	for _, x := range v {
		if x == 0 {
			return true
		}
	}
	return false
}

func matMulKernel(cfg parallel.Config) Kernel {
	return func(_ *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		if err := arity("MatMul", inputs, 2); err != nil {
			return nil, err
		}
		out, err := matmul(inputs[0], inputs[1], false, false, cfg)
		if err != nil {
			return nil, fmt.Errorf("MatMul: %w", err)
		}
		return one(out), nil
	}
}

func gemmKernel(cfg parallel.Config) Kernel {
	return func(l *graph.Layer, inputs []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		return handleGemm(l, inputs, cfg)
	}
}

// handleGemm computes Y = alpha*A'*B' + beta*C where A' and B' are
// optionally transposed.
func handleGemm(l *graph.Layer, inputs []*tensor.RawTensor, cfg parallel.Config) ([]*tensor.RawTensor, error) {
	if len(inputs) < 2 || len(inputs) > 3 {
		return nil, fmt.Errorf("Gemm requires 2 or 3 inputs, got %d", len(inputs))
	}
	alpha := float64(l.AttrFloat("alpha", 1))
	beta := float64(l.AttrFloat("beta", 1))
	transA := l.AttrInt("transA", 0) != 0
	transB := l.AttrInt("transB", 0) != 0

	y, err := matmul(inputs[0], inputs[1], transA, transB, cfg)
	if err != nil {
		return nil, fmt.Errorf("Gemm: %w", err)
	}

	var c *tensor.RawTensor
	if len(inputs) == 3 && inputs[2] != nil && beta != 0 {
		c = inputs[2]
		if c.DType() != y.DType() {
			return nil, fmt.Errorf("Gemm: bias dtype %s, want %s", c.DType(), y.DType())
		}
		shape, _, err := tensor.BroadcastShapes(y.Shape(), c.Shape())
		if err != nil {
			return nil, fmt.Errorf("Gemm: bias: %w", err)
		}
		if !shape.Equal(y.Shape()) {
			return nil, fmt.Errorf("Gemm: bias %v does not broadcast to %v", c.Shape(), y.Shape())
		}
	}

	switch y.DType() {
	case tensor.Float32:
		scaleBias[float32](y, c, alpha, beta)
	case tensor.Float64:
		scaleBias[float64](y, c, alpha, beta)
	}
	return one(y), nil
}

func scaleBias[T float32 | float64](y, c *tensor.RawTensor, alpha, beta float64) {
	yv := view[T](y)
	var cv []T
	if c != nil {
		cv = view[T](c)
	}
	for i := range yv {
		v := T(alpha) * yv[i]
		if cv != nil {
			v += T(beta) * cv[tensor.BroadcastIndex(i, y.Shape(), c.Shape())]
		}
		yv[i] = v
	}
}

// matmul multiplies two rank-2 float tensors.
func matmul(a, b *tensor.RawTensor, transA, transB bool, cfg parallel.Config) (*tensor.RawTensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("nil operand")
	}
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("operand dtypes differ: %s vs %s", a.DType(), b.DType())
	}
	if len(a.Shape()) != 2 || len(b.Shape()) != 2 {
		return nil, fmt.Errorf("operands must be rank 2, got %v and %v", a.Shape(), b.Shape())
	}

	m, k := a.Shape()[0], a.Shape()[1]
	if transA {
		m, k = k, m
	}
	kb, n := b.Shape()[0], b.Shape()[1]
	if transB {
		kb, n = n, kb
	}
	if k != kb {
		return nil, fmt.Errorf("inner dimensions differ: %v x %v", a.Shape(), b.Shape())
	}

	out, err := tensor.NewRaw(tensor.Shape{m, n}, a.DType(), tensor.CPU)
	if err != nil {
		return nil, err
	}
	switch a.DType() {
	case tensor.Float32:
		gemm[float32](view[float32](a), view[float32](b), view[float32](out), m, n, k, transA, transB, cfg)
	case tensor.Float64:
		gemm[float64](view[float64](a), view[float64](b), view[float64](out), m, n, k, transA, transB, cfg)
	default:
		return nil, fmt.Errorf("unsupported dtype %s", a.DType())
	}
	return out, nil
}

func gemm[T float32 | float64](a, b, out []T, m, n, k int, transA, transB bool, cfg parallel.Config) {
	at := func(i, p int) T {
		if transA {
			return a[p*m+i]
		}
		return a[i*k+p]
	}
	bt := func(p, j int) T {
		if transB {
			return b[j*k+p]
		}
		return b[p*n+j]
	}

	cfg.MinChunkSize = 1
	parallel.For(m, cfg, func(i int) {
		row := out[i*n : (i+1)*n]
		for p := 0; p < k; p++ {
			av := at(i, p)
			if av == 0 {
				continue
			}
			for j := range row {
				row[j] += av * bt(p, j)
			}
		}
	})
}
