package onnx_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/interp"
	"github.com/born-ml/graphrt/internal/onnx"
	"github.com/born-ml/graphrt/internal/onnx/onnxtest"
	"github.com/born-ml/graphrt/internal/opaque"
	"github.com/born-ml/graphrt/internal/tensor"
)

// mlp is x[N,2] -> MatMul(w) -> Add(b) -> Relu -> Reshape -> LeakyRelu.
func mlp() onnxtest.Model {
	return onnxtest.Model{
		Name:    "mlp",
		Inputs:  []onnxtest.Value{onnxtest.Float32Value("x", -1, 2)},
		Outputs: []onnxtest.Value{onnxtest.Float32Value("leaky", -1, 2)},
		Initializers: []onnxtest.Tensor{
			{Name: "w", Dims: []int64{2, 2}, Float32: []float32{1, -1, 2, 0}},
			{Name: "b", Dims: []int64{2}, Float32: []float32{0.5, 0.5}, Raw: true},
		},
		Nodes: []onnxtest.Node{
			{OpType: "MatMul", Inputs: []string{"x", "w"}, Outputs: []string{"mm"}},
			{OpType: "Add", Inputs: []string{"mm", "b"}, Outputs: []string{"add"}},
			{OpType: "Relu", Inputs: []string{"add"}, Outputs: []string{"act"}},
			{OpType: "Constant", Outputs: []string{"newshape"}, Attrs: []onnxtest.Attr{
				onnxtest.TensorAttr("value", onnxtest.Tensor{Dims: []int64{2}, Int64: []int64{2, -1}}),
			}},
			{OpType: "Reshape", Inputs: []string{"act", "newshape"}, Outputs: []string{"y"}},
			{OpType: "LeakyRelu", Inputs: []string{"y"}, Outputs: []string{"leaky"}, Attrs: []onnxtest.Attr{
				onnxtest.FloatAttr("alpha", 0.2),
			}},
		},
	}
}

func TestParse(t *testing.T) {
	m, err := onnx.Parse(onnxtest.AddRelu().Bytes())
	require.NoError(t, err)

	assert.Equal(t, int64(8), m.IRVersion)
	assert.Equal(t, "onnxtest", m.ProducerName)
	require.Len(t, m.OpsetImport, 1)
	assert.Equal(t, int64(17), m.OpsetImport[0].Version)

	require.NotNil(t, m.Graph)
	assert.Equal(t, "add_relu", m.Graph.Name)
	require.Len(t, m.Graph.Nodes, 2)
	assert.Equal(t, "Add", m.Graph.Nodes[0].OpType)
	assert.Equal(t, []string{"x", "y"}, m.Graph.Nodes[0].Inputs)
	assert.Equal(t, []string{"w"}, m.Graph.Nodes[1].Outputs)

	require.Len(t, m.Graph.Inputs, 2)
	tt := m.Graph.Inputs[0].Type.TensorType
	assert.Equal(t, int32(onnx.TensorProtoFloat), tt.ElemType)
	require.Len(t, tt.Shape.Dims, 1)
	assert.Equal(t, int64(2), tt.Shape.Dims[0].DimValue)
}

func TestParse_Malformed(t *testing.T) {
	data := onnxtest.AddRelu().Bytes()
	_, err := onnx.Parse(data[:len(data)-3])
	require.Error(t, err)

	_, err = onnx.Parse([]byte{0xff})
	require.Error(t, err)
}

func TestParse_RepeatedEncodings(t *testing.T) {
	m := onnxtest.Model{
		Name: "attrs",
		Nodes: []onnxtest.Node{{
			OpType:  "Transpose",
			Inputs:  []string{"x"},
			Outputs: []string{"y"},
			Attrs: []onnxtest.Attr{
				onnxtest.IntsAttr("perm", 1, 0, 2),
				{Name: "scales", Type: onnx.AttributeProtoFloats, Floats: []float32{0.5, 2}},
				onnxtest.StringAttr("mode", "nearest"),
			},
		}},
	}
	p, err := onnx.Parse(m.Bytes())
	require.NoError(t, err)

	attrs := p.Graph.Nodes[0].Attributes
	require.Len(t, attrs, 3)
	assert.Equal(t, []int64{1, 0, 2}, attrs[0].Ints)
	assert.Equal(t, []float32{0.5, 2}, attrs[1].Floats)
	assert.Equal(t, "nearest", string(attrs[2].S))
}

func TestToGraph_LayersNamedAfterTensors(t *testing.T) {
	m, err := onnx.Parse(mlp().Bytes())
	require.NoError(t, err)

	g := graph.New("empty_onnx_model")
	require.NoError(t, onnx.ToGraph(m, g))
	assert.Equal(t, "mlp", g.Name())

	names := make([]string, 0, g.Len())
	for _, l := range g.Layers() {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"w", "b", "x", "mm", "add", "act", "newshape", "y", "leaky"}, names)

	x, _ := g.Get("x")
	assert.Equal(t, graph.OpInput, x.Type)
	assert.Equal(t, tensor.Shape{-1, 2}, x.Shape)
	assert.Equal(t, tensor.Float32, x.DType)

	w, _ := g.Get("w")
	assert.Equal(t, graph.OpConstant, w.Type)
	require.Len(t, w.Data, 1)
	assert.Equal(t, []float32{1, -1, 2, 0}, w.Data[0].AsFloat32())

	b, _ := g.Get("b")
	assert.Equal(t, []float32{0.5, 0.5}, b.Data[0].AsFloat32())

	ns, _ := g.Get("newshape")
	assert.Equal(t, graph.OpConstant, ns.Type)
	assert.Equal(t, []int64{2, -1}, ns.Data[0].AsInt64())

	leaky, _ := g.Get("leaky")
	assert.Equal(t, []string{"y"}, leaky.Inputs)
	assert.InDelta(t, 0.2, leaky.AttrFloat("alpha", 0), 1e-6)
	assert.Equal(t, tensor.Shape{-1, 2}, leaky.Shape)

	in, _ := g.Attr(onnx.AttrInputs)
	assert.Equal(t, []string{"x"}, in)
	out, _ := g.Attr(onnx.AttrOutputs)
	assert.Equal(t, []string{"leaky"}, out)
	opset, _ := g.Attr(onnx.AttrOpset)
	assert.Equal(t, int64(17), opset)
}

func TestToGraph_RunsOnCPUKernels(t *testing.T) {
	m, err := onnx.Parse(mlp().Bytes())
	require.NoError(t, err)
	g := graph.New("empty_onnx_model")
	require.NoError(t, onnx.ToGraph(m, g))

	p, err := interp.Compile(g, []string{"x"}, []string{"leaky"}, interp.Config{Runtime: "test"})
	require.NoError(t, err)

	x, err := tensor.FromFloat32([]float32{1, 2, -3, 1}, tensor.Shape{2, 2})
	require.NoError(t, err)
	out, err := p.Run([]*tensor.RawTensor{x})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, tensor.Shape{2, 2}, out[0].Shape())
	assert.InDeltaSlice(t, []float32{5.5, 0, 0, 3.5}, out[0].AsFloat32(), 1e-6)
}

func TestToGraph_MultiOutputNode(t *testing.T) {
	m := onnxtest.Model{
		Name:    "split",
		Inputs:  []onnxtest.Value{onnxtest.Float32Value("x", 4)},
		Outputs: []onnxtest.Value{onnxtest.Float32Value("lo", 2), onnxtest.Float32Value("hi", 2)},
		Nodes: []onnxtest.Node{{
			Name: "halves", OpType: "Split", Inputs: []string{"x"}, Outputs: []string{"lo", "hi"},
			Attrs: []onnxtest.Attr{onnxtest.IntAttr("axis", 0)},
		}},
	}
	p, err := onnx.Parse(m.Bytes())
	require.NoError(t, err)
	g := graph.New("empty_onnx_model")
	require.NoError(t, onnx.ToGraph(p, g))

	split, ok := g.Get("halves")
	require.True(t, ok)
	assert.Equal(t, "Split", split.Type)
	assert.Equal(t, int64(0), split.AttrInt("axis", -1))

	for i, name := range []string{"lo", "hi"} {
		item, ok := g.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, graph.OpTupleGetItem, item.Type)
		assert.Equal(t, []string{"halves"}, item.Inputs)
		assert.Equal(t, int64(i), item.AttrInt("index", -1))
		assert.Equal(t, tensor.Shape{2}, item.Shape)
	}
}

func TestToGraph_CastTarget(t *testing.T) {
	m := onnxtest.Model{
		Name:   "cast",
		Inputs: []onnxtest.Value{onnxtest.Float32Value("x", 3)},
		Nodes: []onnxtest.Node{{
			OpType: "Cast", Inputs: []string{"x"}, Outputs: []string{"y"},
			Attrs: []onnxtest.Attr{onnxtest.IntAttr("to", onnx.TensorProtoInt64)},
		}},
	}
	p, err := onnx.Parse(m.Bytes())
	require.NoError(t, err)
	g := graph.New("empty_onnx_model")
	require.NoError(t, onnx.ToGraph(p, g))

	y, _ := g.Get("y")
	assert.Equal(t, tensor.Int64, y.Attrs["to"])
	assert.Equal(t, tensor.Int64, y.DType)

	prog, err := interp.Compile(g, []string{"x"}, []string{"y"}, interp.Config{Runtime: "test"})
	require.NoError(t, err)
	x, err := tensor.FromFloat32([]float32{1, -2, 3.9}, tensor.Shape{3})
	require.NoError(t, err)
	out, err := prog.Run([]*tensor.RawTensor{x})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, -2, 3}, out[0].AsInt64())
}

func TestToGraph_ReplacesContents(t *testing.T) {
	g := graph.New("stale")
	require.NoError(t, g.Add(&graph.Layer{Name: "old", Type: graph.OpInput}))

	m, err := onnx.Parse(onnxtest.AddRelu().Bytes())
	require.NoError(t, err)
	require.NoError(t, onnx.ToGraph(m, g))

	assert.False(t, g.Has("old"))
	assert.Equal(t, "add_relu", g.Name())
	assert.Equal(t, 4, g.Len())
}

func TestToGraph_NoGraph(t *testing.T) {
	m, err := onnx.Parse(nil)
	require.NoError(t, err)
	require.Error(t, onnx.ToGraph(m, graph.New("g")))
}

func TestRegister(t *testing.T) {
	reg := opaque.NewRegistry()
	require.NoError(t, onnx.Register(reg))
	assert.True(t, reg.Exists(onnx.FuncFromONNX))
	assert.True(t, reg.Exists(onnx.FuncFromONNXBytes))

	path := filepath.Join(t.TempDir(), "add_relu.onnx")
	require.NoError(t, onnxtest.AddRelu().WriteFile(path))

	g := graph.New("empty_onnx_model")
	require.NoError(t, reg.Call(onnx.FuncFromONNX, "ONNX model import", opaque.GraphArg(g), opaque.StringArg(path)))
	assert.Equal(t, "add_relu", g.Name())
	src, ok := g.Attr(onnx.AttrPath)
	require.True(t, ok)
	assert.Equal(t, path, src)

	data := onnxtest.AddRelu().Bytes()
	gb := graph.New("empty_onnx_model")
	require.NoError(t, reg.Call(onnx.FuncFromONNXBytes, "ONNX model import", opaque.GraphArg(gb), opaque.BytesArg(data)))
	assert.True(t, gb.Has("w"))
	kept, ok := gb.Attr(onnx.AttrBytes)
	require.True(t, ok)
	assert.Equal(t, data, kept)
}

func TestRegister_BadArguments(t *testing.T) {
	reg := opaque.NewRegistry()
	require.NoError(t, onnx.Register(reg))

	err := reg.Call(onnx.FuncFromONNX, "ONNX model import", opaque.StringArg("m.onnx"), opaque.GraphArg(graph.New("g")))
	require.ErrorIs(t, err, errdefs.ErrTypeMismatch)

	err = reg.Call(onnx.FuncFromONNX, "ONNX model import", opaque.GraphArg(graph.New("g")))
	require.ErrorIs(t, err, errdefs.ErrArityMismatch)

	err = reg.Call(onnx.FuncFromONNX, "ONNX model import",
		opaque.GraphArg(graph.New("g")), opaque.StringArg(filepath.Join(t.TempDir(), "missing.onnx")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.onnx")
}
