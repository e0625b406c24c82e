package onnx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/graphrt/errdefs"
	"github.com/born-ml/graphrt/internal/onnx/onnxtest"
	"github.com/born-ml/graphrt/onnx"
	"github.com/born-ml/graphrt/opaque"
	"github.com/born-ml/graphrt/runtime"
	"github.com/born-ml/graphrt/tensor"
)

func TestLoadAndRun(t *testing.T) {
	require.NoError(t, onnx.Register(opaque.Default()))

	g, err := onnx.LoadBytes(onnxtest.AddRelu().Bytes())
	require.NoError(t, err)
	assert.Equal(t, "add_relu", g.Name())

	_, err = runtime.LoadPlugins("")
	require.NoError(t, err)

	m, err := runtime.GetRuntimeModule(g, "cpu", []string{"x", "y"}, []string{"w"}, "cpu-sim", nil)
	require.NoError(t, err)

	x, _ := tensor.FromFloat32([]float32{1, -5}, tensor.Shape{2})
	y, _ := tensor.FromFloat32([]float32{2, 2}, tensor.Shape{2})
	w, _ := tensor.Zeros(tensor.Shape{2}, tensor.Float32)
	require.NoError(t, m.Run([]*tensor.RawTensor{x, y}, []*tensor.RawTensor{w}))
	assert.Equal(t, []float32{3, 0}, w.AsFloat32())

	require.NoError(t, m.Release())
	assert.ErrorIs(t, m.Run([]*tensor.RawTensor{x, y}, []*tensor.RawTensor{w}), errdefs.ErrUseAfterRelease)
}

func TestLoad_MissingFile(t *testing.T) {
	require.NoError(t, onnx.Register(opaque.Default()))
	_, err := onnx.Load("does-not-exist.onnx")
	require.Error(t, err)
}
