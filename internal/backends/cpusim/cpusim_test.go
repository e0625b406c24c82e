package cpusim

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/ops"
	"github.com/born-ml/graphrt/internal/runtime"
	"github.com/born-ml/graphrt/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *runtime.ModuleFactories {
	t.Helper()
	log := runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	mods := runtime.NewModuleFactories(runtime.NewComputeFuncFactories(log), log)
	require.NoError(t, Register(mods, nil))
	return mods
}

func sumGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("sum")
	require.NoError(t, g.Add(&graph.Layer{Name: "x", Type: graph.OpInput, Shape: tensor.Shape{3}, DType: tensor.Float32}))
	require.NoError(t, g.Add(&graph.Layer{Name: "y", Type: graph.OpInput, Shape: tensor.Shape{3}, DType: tensor.Float32}))
	require.NoError(t, g.Add(&graph.Layer{Name: "z", Type: "Add", Inputs: []string{"x", "y"}}))
	return g
}

func f32(t *testing.T, data ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, tensor.Shape{len(data)})
	require.NoError(t, err)
	return r
}

func TestRegister_BindsBothLayers(t *testing.T) {
	mods := newRegistry(t)

	assert.True(t, mods.Exists(Runtime))
	assert.True(t, mods.ComputeFuncs().Exists(Runtime))

	cf, err := mods.ComputeFuncs().GetComputeFunc(sumGraph(t), Target, []string{"x", "y"}, []string{"z"}, Runtime)
	require.NoError(t, err)
	assert.True(t, cf.IsOpSupported("Add"))
	assert.True(t, cf.IsOpSupported(graph.OpFused))
	assert.False(t, cf.IsOpSupported("Conv2D"))
}

func TestEndToEnd_AddsInputs(t *testing.T) {
	mods := newRegistry(t)

	m, err := mods.GetRuntimeModule(sumGraph(t), Target, []string{"x", "y"}, []string{"z"}, Runtime, nil)
	require.NoError(t, err)
	defer m.Release()

	z := f32(t, 0, 0, 0)
	require.NoError(t, m.Run([]*tensor.RawTensor{f32(t, 1, 2, 3), f32(t, 10, 20, 30)}, []*tensor.RawTensor{z}))
	assert.Equal(t, []float32{11, 22, 33}, z.AsFloat32())
}

func TestCallingConvention(t *testing.T) {
	mods := newRegistry(t)

	m, err := mods.GetRuntimeModule(sumGraph(t), Target, []string{"x", "y"}, []string{"z"}, Runtime, nil)
	require.NoError(t, err)
	defer m.Release()

	z := f32(t, 0, 0, 0)
	err = m.Run([]*tensor.RawTensor{f32(t, 1, 2, 3)}, []*tensor.RawTensor{z})
	require.ErrorIs(t, err, errdefs.ErrArityMismatch)

	err = m.Run([]*tensor.RawTensor{f32(t, 1, 2), f32(t, 1, 2, 3)}, []*tensor.RawTensor{z})
	require.ErrorIs(t, err, errdefs.ErrShapeMismatch)

	err = m.Run([]*tensor.RawTensor{f32(t, 1, 2, 3), f32(t, 1, 2, 3)}, []*tensor.RawTensor{f32(t, 0)})
	require.ErrorIs(t, err, errdefs.ErrShapeMismatch)
	assert.Equal(t, runtime.StateReady, m.State())
}

func TestConstructionFailures(t *testing.T) {
	mods := newRegistry(t)

	_, err := mods.GetRuntimeModule(sumGraph(t), "DPUCZDX8G-zcu104", []string{"x", "y"}, []string{"z"}, Runtime, nil)
	require.ErrorIs(t, err, errdefs.ErrConstructionFailure)
	assert.Contains(t, err.Error(), "unsupported target")

	g := sumGraph(t)
	require.NoError(t, g.Add(&graph.Layer{Name: "c", Type: "Conv2D", Inputs: []string{"z"}}))
	_, err = mods.GetRuntimeModule(g, Target, []string{"x", "y"}, []string{"c"}, Runtime, nil)
	require.ErrorIs(t, err, errdefs.ErrUnsupportedOperator)

	_, err = mods.GetRuntimeModule(sumGraph(t), Target, []string{"x"}, []string{"z"}, Runtime, nil)
	require.ErrorIs(t, err, errdefs.ErrConstructionFailure)
}

func TestRunsPartitionedGraph(t *testing.T) {
	mods := newRegistry(t)
	fused, err := graph.Partition(sumGraph(t), "fused0", graph.OpFused, Target, func(op string) bool { return op == "Add" })
	require.NoError(t, err)

	m, err := mods.GetRuntimeModule(fused, Target, []string{"x", "y"}, []string{"z"}, Runtime, nil)
	require.NoError(t, err)
	defer m.Release()

	z := f32(t, 0, 0, 0)
	require.NoError(t, m.Run([]*tensor.RawTensor{f32(t, 1, 1, 1), f32(t, 2, 2, 2)}, []*tensor.RawTensor{z}))
	assert.Equal(t, []float32{3, 3, 3}, z.AsFloat32())
}

func TestWorkersSetting_ScopedToBinding(t *testing.T) {
	mods := newRegistry(t)
	settings, err := runtime.SettingsFromMap(map[string]any{"workers": 1})
	require.NoError(t, err)

	log := runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	other := runtime.NewModuleFactories(runtime.NewComputeFuncFactories(log), log)
	require.NoError(t, Register(other, settings))

	cf, err := other.ComputeFuncs().GetComputeFunc(sumGraph(t), Target, []string{"x", "y"}, []string{"z"}, Runtime)
	require.NoError(t, err)
	par := cf.(*computeFunc).kernels.Parallel()
	assert.Equal(t, 1, par.NumWorkers)
	assert.False(t, par.Enabled)

	cf, err = mods.ComputeFuncs().GetComputeFunc(sumGraph(t), Target, []string{"x", "y"}, []string{"z"}, Runtime)
	require.NoError(t, err)
	assert.Equal(t, ops.Builtin().Parallel(), cf.(*computeFunc).kernels.Parallel())
}

// Run with: go test -race
func TestReregisterWhileRunning(t *testing.T) {
	mods := newRegistry(t)
	settings, err := runtime.SettingsFromMap(map[string]any{"workers": 3})
	require.NoError(t, err)

	m, err := mods.GetRuntimeModule(sumGraph(t), Target, []string{"x", "y"}, []string{"z"}, Runtime, nil)
	require.NoError(t, err)
	defer m.Release()

	x, y := f32(t, 1, 2, 3), f32(t, 1, 1, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 200 {
			z, err := tensor.Zeros(tensor.Shape{3}, tensor.Float32)
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, m.Run([]*tensor.RawTensor{x, y}, []*tensor.RawTensor{z}))
			assert.Equal(t, []float32{2, 3, 4}, z.AsFloat32())
		}
	}()
	go func() {
		defer wg.Done()
		for range 200 {
			assert.NoError(t, Register(mods, settings))
		}
	}()
	wg.Wait()
}

func TestFusedProgramsOwnedByComputeFunc(t *testing.T) {
	f := &computeFactory{kernels: ops.Builtin(), logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	fused, err := graph.Partition(sumGraph(t), "fused0", graph.OpFused, Target, func(op string) bool { return op == "Add" })
	require.NoError(t, err)

	a, err := f.NewComputeFunc(fused, Target, []string{"x", "y"}, []string{"z"})
	require.NoError(t, err)
	b, err := f.NewComputeFunc(fused, Target, []string{"x", "y"}, []string{"z"})
	require.NoError(t, err)

	assert.False(t, f.kernels.Supports(graph.OpFused), "factory kernels must not retain fused programs")
	assert.NotSame(t, a.(*computeFunc).kernels, b.(*computeFunc).kernels)

	z := f32(t, 0, 0, 0)
	require.NoError(t, b.Execute([]*tensor.RawTensor{f32(t, 1, 1, 1), f32(t, 2, 2, 2)}, []*tensor.RawTensor{z}))
	assert.Equal(t, []float32{3, 3, 3}, z.AsFloat32())
}
