package interp

import (
	"testing"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/ops"
	"github.com/born-ml/graphrt/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(t *testing.T, data []float32, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromFloat32(data, shape)
	require.NoError(t, err)
	return r
}

// mlp builds x -> MatMul(w) -> Add(b) -> Relu -> y, plus an unrelated
// branch from a second input.
func mlp(t *testing.T) *graph.Graph {
	t.Helper()
	w := f32(t, []float32{1, -1, 2, 0}, 2, 2)
	b := f32(t, []float32{0.5, 0.5}, 2)

	g := graph.New("mlp")
	for _, l := range []*graph.Layer{
		{Name: "x", Type: graph.OpInput, Shape: tensor.Shape{-1, 2}, DType: tensor.Float32},
		{Name: "unused", Type: graph.OpInput, Shape: tensor.Shape{1}, DType: tensor.Float32},
		{Name: "w", Type: graph.OpConstant, Data: []*tensor.RawTensor{w}},
		{Name: "b", Type: graph.OpConstant, Data: []*tensor.RawTensor{b}},
		{Name: "mm", Type: "MatMul", Inputs: []string{"x", "w"}},
		{Name: "add", Type: "Add", Inputs: []string{"mm", "b"}},
		{Name: "act", Type: "Relu", Inputs: []string{"add"}},
		{Name: "y", Type: graph.OpOutput, Inputs: []string{"act"}},
		{Name: "side", Type: "Tanh", Inputs: []string{"unused"}},
	} {
		require.NoError(t, g.Add(l))
	}
	return g
}

func TestProgram_PrunesToRequestedOutputs(t *testing.T) {
	p, err := Compile(mlp(t), []string{"x"}, []string{"y"}, Config{Runtime: "test"})
	require.NoError(t, err)

	var names []string
	for _, l := range p.Layers() {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"w", "b", "mm", "add", "act", "y"}, names)

	out, err := p.Run([]*tensor.RawTensor{f32(t, []float32{1, 1, 2, -3}, 2, 2)})
	require.NoError(t, err)
	// [1 1]x[[1 -1][2 0]] = [3 -1] + .5 -> relu [3.5 0]
	// [2 -3]x... = [-4 -2] + .5 -> relu [0 0]
	assert.Equal(t, []float32{3.5, 0, 0, 0}, out[0].AsFloat32())
}

func TestProgram_IntermediateOutputs(t *testing.T) {
	p, err := Compile(mlp(t), []string{"x"}, []string{"mm", "y"}, Config{Runtime: "test"})
	require.NoError(t, err)

	out, err := p.Run([]*tensor.RawTensor{f32(t, []float32{1, 0}, 1, 2)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{1, -1}, out[0].AsFloat32())
	assert.Equal(t, []float32{1.5, 0}, out[1].AsFloat32())
}

func TestProgram_FeedIntermediateLayer(t *testing.T) {
	p, err := Compile(mlp(t), []string{"add"}, []string{"y"}, Config{Runtime: "test"})
	require.NoError(t, err)

	out, err := p.Run([]*tensor.RawTensor{f32(t, []float32{-1, 2}, 2)})
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 2}, out[0].AsFloat32())
}

func TestCompile_Errors(t *testing.T) {
	g := mlp(t)

	_, err := Compile(g, []string{"nope"}, []string{"y"}, Config{Runtime: "test"})
	require.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = Compile(g, []string{"x"}, []string{"nope"}, Config{Runtime: "test"})
	require.ErrorIs(t, err, errdefs.ErrNotFound)

	_, err = Compile(g, nil, []string{"y"}, Config{Runtime: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"x" is needed but not fed`)

	_, err = Compile(g, []string{"x"}, []string{"y"}, Config{Runtime: "test", Kernels: ops.New()})
	require.ErrorIs(t, err, errdefs.ErrUnsupportedOperator)
	assert.Contains(t, err.Error(), "test")

	_, err = Compile(nil, nil, nil, Config{})
	require.Error(t, err)
}

func TestRun_InputChecks(t *testing.T) {
	p, err := Compile(mlp(t), []string{"x"}, []string{"y"}, Config{Runtime: "test"})
	require.NoError(t, err)

	_, err = p.Run([]*tensor.RawTensor{f32(t, []float32{1, 2, 3}, 3)})
	require.ErrorIs(t, err, errdefs.ErrShapeMismatch)

	i64, err := tensor.FromInt64([]int64{1, 2}, tensor.Shape{1, 2})
	require.NoError(t, err)
	_, err = p.Run([]*tensor.RawTensor{i64})
	require.ErrorIs(t, err, errdefs.ErrTypeMismatch)

	_, err = p.Run(nil)
	require.ErrorIs(t, err, errdefs.ErrArityMismatch)
}

func TestExecute_CopiesIntoCallerBuffers(t *testing.T) {
	p, err := Compile(mlp(t), []string{"x"}, []string{"y"}, Config{Runtime: "test"})
	require.NoError(t, err)

	y, err := tensor.Zeros(tensor.Shape{1, 2}, tensor.Float32)
	require.NoError(t, err)
	require.NoError(t, p.Execute([]*tensor.RawTensor{f32(t, []float32{1, 0}, 1, 2)}, []*tensor.RawTensor{y}))
	assert.Equal(t, []float32{1.5, 0}, y.AsFloat32())

	wrong, err := tensor.Zeros(tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)
	err = p.Execute([]*tensor.RawTensor{f32(t, []float32{1, 0}, 1, 2)}, []*tensor.RawTensor{wrong})
	require.ErrorIs(t, err, errdefs.ErrShapeMismatch)
}

func TestBindFused(t *testing.T) {
	g := mlp(t)
	fused, err := graph.BuildFused(g, "dpu0", graph.OpFused, "DPUCZDX8G-zcu104", []string{"mm", "add", "act"})
	require.NoError(t, err)

	base := ops.New()
	base.Register(graph.OpOutput, func(_ *graph.Layer, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		return in, nil
	})
	kernels, err := BindFused(base, fused, graph.OpFused, Config{Runtime: "inner"})
	require.NoError(t, err)
	assert.True(t, kernels.Supports(graph.OpFused))
	assert.False(t, base.Supports(graph.OpFused), "base registry must stay untouched")

	p, err := Compile(fused, []string{"x"}, []string{"y"}, Config{Runtime: "outer", Kernels: kernels})
	require.NoError(t, err)

	for range 2 {
		out, err := p.Run([]*tensor.RawTensor{f32(t, []float32{1, 1, 2, -3}, 2, 2)})
		require.NoError(t, err)
		assert.Equal(t, []float32{3.5, 0, 0, 0}, out[0].AsFloat32())
	}

	_, err = CompileFused(fused, graph.OpFused, Config{Runtime: "inner", Kernels: ops.New()})
	require.ErrorIs(t, err, errdefs.ErrUnsupportedOperator)
}

func TestFusedPrograms_UncompiledLayer(t *testing.T) {
	progs := FusedPrograms{}
	_, err := progs.Kernel()(&graph.Layer{Name: "stray", Type: graph.OpFused}, nil)
	require.ErrorContains(t, err, `fused layer "stray" was not compiled`)
}

func TestTupleGetItem(t *testing.T) {
	kernels := ops.Builtin()
	kernels.Register("SplitHalf", func(_ *graph.Layer, in []*tensor.RawTensor) ([]*tensor.RawTensor, error) {
		v := in[0].AsFloat32()
		a, _ := tensor.FromFloat32(append([]float32(nil), v[:len(v)/2]...), tensor.Shape{len(v) / 2})
		b, _ := tensor.FromFloat32(append([]float32(nil), v[len(v)/2:]...), tensor.Shape{len(v) / 2})
		return []*tensor.RawTensor{a, b}, nil
	})

	g := graph.New("tuple")
	require.NoError(t, g.Add(&graph.Layer{Name: "x", Type: graph.OpInput, Shape: tensor.Shape{4}, DType: tensor.Float32}))
	require.NoError(t, g.Add(&graph.Layer{Name: "s", Type: "SplitHalf", Inputs: []string{"x"}}))
	hi := &graph.Layer{Name: "hi", Type: graph.OpTupleGetItem, Inputs: []string{"s"}}
	hi.SetAttr(graph.AttrIndex, int64(1))
	require.NoError(t, g.Add(hi))
	require.NoError(t, g.Add(&graph.Layer{Name: "bad", Type: "Relu", Inputs: []string{"s"}}))

	p, err := Compile(g, []string{"x"}, []string{"hi"}, Config{Runtime: "test", Kernels: kernels})
	require.NoError(t, err)
	out, err := p.Run([]*tensor.RawTensor{f32(t, []float32{1, 2, 3, 4}, 4)})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, out[0].AsFloat32())

	p, err = Compile(g, []string{"x"}, []string{"bad"}, Config{Runtime: "test", Kernels: kernels})
	require.NoError(t, err)
	_, err = p.Run([]*tensor.RawTensor{f32(t, []float32{1, 2, 3, 4}, 4)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tuple")
}
