package runtime

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistries() *ModuleFactories {
	return NewModuleFactories(NewComputeFuncFactories(WithLogger(quietLogger())), WithLogger(quietLogger()))
}

// sumGraph builds x, y -> z = x + y with the given input shapes.
func sumGraph(t *testing.T, xShape, yShape tensor.Shape) *graph.Graph {
	t.Helper()
	g := graph.New("sum")
	require.NoError(t, g.Add(&graph.Layer{Name: "x", Type: graph.OpInput, Shape: xShape, DType: tensor.Float32}))
	require.NoError(t, g.Add(&graph.Layer{Name: "y", Type: graph.OpInput, Shape: yShape, DType: tensor.Float32}))
	require.NoError(t, g.Add(&graph.Layer{Name: "z", Type: "Add", Inputs: []string{"x", "y"}, DType: tensor.Float32}))
	return g
}

// sumFunc is a minimal compute function adding its two inputs with
// broadcasting of the second operand.
type sumFunc struct {
	shapes []tensor.Shape
	closed *atomic.Int32
}

func (f *sumFunc) IsOpSupported(op string) bool {
	return op == graph.OpInput || op == "Add"
}

func (f *sumFunc) Execute(in, out []*tensor.RawTensor) error {
	for i, b := range in {
		if !f.shapes[i].Matches(b.Shape()) {
			return errdefs.Shape(errdefs.OpExecution, "input", []int(f.shapes[i]), []int(b.Shape()))
		}
	}
	x, y := in[0].AsFloat32(), in[1].AsFloat32()
	z := out[0].AsFloat32()
	if len(z) != len(x) {
		return errdefs.Shape(errdefs.OpExecution, "z", []int(in[0].Shape()), []int(out[0].Shape()))
	}
	for i := range x {
		z[i] = x[i] + y[tensor.BroadcastIndex(i, in[0].Shape(), in[1].Shape())]
	}
	return nil
}

func (f *sumFunc) Close() error {
	if f.closed != nil {
		f.closed.Add(1)
	}
	return nil
}

// sumFactory builds sumFunc for graphs shaped like sumGraph.
type sumFactory struct {
	built  atomic.Int32
	closed atomic.Int32
}

func (s *sumFactory) NewComputeFunc(g *graph.Graph, _ string, inNames, outNames []string) (ComputeFunc, error) {
	s.built.Add(1)
	f := &sumFunc{closed: &s.closed}
	for _, name := range inNames {
		l, ok := g.Get(name)
		if !ok {
			return nil, errdefs.NotFound(errdefs.OpConstruction, "graph "+g.Name(), name)
		}
		f.shapes = append(f.shapes, l.Shape)
	}
	for _, name := range outNames {
		if !g.Has(name) {
			return nil, errdefs.NotFound(errdefs.OpConstruction, "graph "+g.Name(), name)
		}
	}
	for _, l := range g.Layers() {
		if !f.IsOpSupported(l.Type) {
			return nil, &errdefs.UnsupportedOperatorError{OpType: l.Type, Layer: l.Name, Runtime: "sim"}
		}
	}
	return f, nil
}

// registerSim binds the "sim" runtime (compute and module layers).
func registerSim(r *ModuleFactories) *sumFactory {
	f := &sumFactory{}
	r.RegisterImpl("sim").
		SetComputeImpl(f).
		SetImpl(NewComputeModuleFactory(r.ComputeFuncs(), "sim"))
	return f
}

func f32(t *testing.T, data []float32, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape)
	require.NoError(t, err)
	return r
}

func zeros(t *testing.T, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.Zeros(shape, tensor.Float32)
	require.NoError(t, err)
	return r
}
