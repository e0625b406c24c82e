package ops

import (
	"math"
	"testing"

	"github.com/born-ml/graphrt/internal/graph"
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

func i64(t *testing.T, data []int64, shape ...int) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.FromInt64(data, shape)
	require.NoError(t, err)
	return r
}

func run(t *testing.T, l *graph.Layer, in ...*tensor.RawTensor) *tensor.RawTensor {
	t.Helper()
	out, err := Builtin().Execute(l, in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func TestBinary_Broadcast(t *testing.T) {
	a := f32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := f32(t, []float32{10, 20, 30}, 3)

	sum := run(t, &graph.Layer{Type: "Add"}, a, b)
	assert.Equal(t, tensor.Shape{2, 3}, sum.Shape())
	assert.Equal(t, []float32{11, 22, 33, 14, 25, 36}, sum.AsFloat32())

	col := f32(t, []float32{1, 2}, 2, 1)
	prod := run(t, &graph.Layer{Type: "Mul"}, a, col)
	assert.Equal(t, []float32{1, 2, 3, 8, 10, 12}, prod.AsFloat32())

	diff := run(t, &graph.Layer{Type: "Sub"}, b, b)
	assert.Equal(t, []float32{0, 0, 0}, diff.AsFloat32())
}

func TestBinary_Errors(t *testing.T) {
	r := Builtin()

	_, err := r.Execute(&graph.Layer{Name: "d", Type: "Div"}, []*tensor.RawTensor{
		i64(t, []int64{4, 6}, 2), i64(t, []int64{2, 0}, 2),
	})
	require.ErrorIs(t, err, errDivByZero)
	assert.Contains(t, err.Error(), `layer "d"`)

	_, err = r.Execute(&graph.Layer{Type: "Add"}, []*tensor.RawTensor{
		f32(t, []float32{1, 2, 3}, 3), f32(t, []float32{1, 2}, 2),
	})
	require.Error(t, err)

	_, err = r.Execute(&graph.Layer{Type: "Add"}, []*tensor.RawTensor{
		f32(t, []float32{1}, 1), i64(t, []int64{1}, 1),
	})
	require.Error(t, err)

	_, err = r.Execute(&graph.Layer{Type: "Add"}, []*tensor.RawTensor{f32(t, []float32{1}, 1)})
	require.Error(t, err)
}

func TestBinary_IntegerDivision(t *testing.T) {
	out := run(t, &graph.Layer{Type: "Div"}, i64(t, []int64{7, 9}, 2), i64(t, []int64{2, 3}, 2))
	assert.Equal(t, []int64{3, 3}, out.AsInt64())
}

func TestMatMul(t *testing.T) {
	a := f32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	b := f32(t, []float32{7, 8, 9, 10, 11, 12}, 3, 2)

	out := run(t, &graph.Layer{Type: "MatMul"}, a, b)
	assert.Equal(t, tensor.Shape{2, 2}, out.Shape())
	assert.Equal(t, []float32{58, 64, 139, 154}, out.AsFloat32())

	_, err := Builtin().Execute(&graph.Layer{Type: "MatMul"}, []*tensor.RawTensor{a, a})
	require.Error(t, err)
}

func TestGemm(t *testing.T) {
	a := f32(t, []float32{1, 2, 3, 4}, 2, 2)
	// B given transposed.
	bT := f32(t, []float32{1, 0, 0, 1}, 2, 2)
	c := f32(t, []float32{1, 1}, 2)

	l := &graph.Layer{Type: "Gemm", Attrs: map[string]any{"alpha": float32(2), "beta": float32(0.5), "transB": int64(1)}}
	out := run(t, l, a, bT, c)
	assert.Equal(t, []float32{2.5, 4.5, 6.5, 8.5}, out.AsFloat32())

	aT := f32(t, []float32{1, 3, 2, 4}, 2, 2)
	l = &graph.Layer{Type: "Gemm", Attrs: map[string]any{"transA": int64(1)}}
	out = run(t, l, aT, bT)
	assert.Equal(t, []float32{1, 2, 3, 4}, out.AsFloat32())
}

func TestActivations(t *testing.T) {
	x := f32(t, []float32{-2, 0, 3}, 3)

	assert.Equal(t, []float32{0, 0, 3}, run(t, &graph.Layer{Type: "Relu"}, x).AsFloat32())
	assert.Equal(t, []float32{-2, 0, 3}, x.AsFloat32(), "kernels must not modify inputs")

	leaky := run(t, &graph.Layer{Type: "LeakyRelu", Attrs: map[string]any{"alpha": 0.5}}, x)
	assert.Equal(t, []float32{-1, 0, 3}, leaky.AsFloat32())

	sig := run(t, &graph.Layer{Type: "Sigmoid"}, x).AsFloat32()
	assert.InDelta(t, 0.5, sig[1], 1e-6)

	tanh := run(t, &graph.Layer{Type: "Tanh"}, x).AsFloat32()
	assert.InDelta(t, math.Tanh(3), tanh[2], 1e-6)

	_, err := Builtin().Execute(&graph.Layer{Type: "Relu"}, []*tensor.RawTensor{i64(t, []int64{1}, 1)})
	require.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	x := f32(t, []float32{1, 2, 3, 1, 1, 1}, 2, 3)
	out := run(t, &graph.Layer{Type: "Softmax"}, x).AsFloat32()

	assert.InDelta(t, 1.0, out[0]+out[1]+out[2], 1e-6)
	assert.Greater(t, out[2], out[1])
	assert.InDelta(t, 1.0/3, out[4], 1e-6)

	cols := run(t, &graph.Layer{Type: "Softmax", Attrs: map[string]any{"axis": int64(0)}}, x).AsFloat32()
	assert.InDelta(t, 1.0, cols[0]+cols[3], 1e-6)
	assert.InDelta(t, 0.5, cols[0], 1e-6)
}

func TestReshapeAndFlatten(t *testing.T) {
	x := f32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	out := run(t, &graph.Layer{Type: "Reshape"}, x, i64(t, []int64{3, -1}, 2))
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())

	out = run(t, &graph.Layer{Type: "Reshape", Attrs: map[string]any{"shape": []int64{0, 3}}}, x)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())

	_, err := Builtin().Execute(&graph.Layer{Type: "Reshape"}, []*tensor.RawTensor{x, i64(t, []int64{4, -1}, 2)})
	require.Error(t, err)

	x3 := f32(t, make([]float32, 24), 2, 3, 4)
	assert.Equal(t, tensor.Shape{2, 12}, run(t, &graph.Layer{Type: "Flatten"}, x3).Shape())
	assert.Equal(t, tensor.Shape{1, 24}, run(t, &graph.Layer{Type: "Flatten", Attrs: map[string]any{"axis": int64(0)}}, x3).Shape())
}

func TestTranspose(t *testing.T) {
	x := f32(t, []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	out := run(t, &graph.Layer{Type: "Transpose"}, x)
	assert.Equal(t, tensor.Shape{3, 2}, out.Shape())
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.AsFloat32())

	y := i64(t, []int64{0, 1, 2, 3, 4, 5, 6, 7}, 2, 2, 2)
	out = run(t, &graph.Layer{Type: "Transpose", Attrs: map[string]any{"perm": []int64{0, 2, 1}}}, y)
	assert.Equal(t, []int64{0, 2, 1, 3, 4, 6, 5, 7}, out.AsInt64())

	_, err := Builtin().Execute(&graph.Layer{Type: "Transpose", Attrs: map[string]any{"perm": []int64{0, 0}}}, []*tensor.RawTensor{x})
	require.Error(t, err)
}

func TestConcat(t *testing.T) {
	a := f32(t, []float32{1, 2, 3, 4}, 2, 2)
	b := f32(t, []float32{5, 6}, 2, 1)

	out := run(t, &graph.Layer{Type: "Concat", Attrs: map[string]any{"axis": int64(1)}}, a, b)
	assert.Equal(t, tensor.Shape{2, 3}, out.Shape())
	assert.Equal(t, []float32{1, 2, 5, 3, 4, 6}, out.AsFloat32())

	out = run(t, &graph.Layer{Type: "Concat"}, a, a)
	assert.Equal(t, tensor.Shape{4, 2}, out.Shape())

	_, err := Builtin().Execute(&graph.Layer{Type: "Concat"}, []*tensor.RawTensor{a, b})
	require.Error(t, err)
}

func TestSqueezeUnsqueeze(t *testing.T) {
	x := f32(t, []float32{1, 2, 3}, 3)
	up := run(t, &graph.Layer{Type: "Unsqueeze", Attrs: map[string]any{"axes": []int64{0}}}, x)
	assert.Equal(t, tensor.Shape{1, 3}, up.Shape())

	down := run(t, &graph.Layer{Type: "Squeeze"}, up)
	assert.Equal(t, tensor.Shape{3}, down.Shape())
}

func TestUtility(t *testing.T) {
	x := f32(t, []float32{1, 2}, 2)
	assert.Same(t, x, run(t, &graph.Layer{Type: "Identity"}, x))
	assert.Same(t, x, run(t, &graph.Layer{Type: "Dropout"}, x))
	assert.Same(t, x, run(t, &graph.Layer{Type: graph.OpOutput}, x))

	c := &graph.Layer{Name: "w", Type: graph.OpConstant, Data: []*tensor.RawTensor{x}}
	assert.Same(t, x, run(t, c))

	_, err := Builtin().Execute(&graph.Layer{Name: "w", Type: graph.OpConstant}, nil)
	require.Error(t, err)

	cast := run(t, &graph.Layer{Type: "Cast", Attrs: map[string]any{"to": "int64"}}, f32(t, []float32{1.9, -2}, 2))
	assert.Equal(t, []int64{1, -2}, cast.AsInt64())
}
