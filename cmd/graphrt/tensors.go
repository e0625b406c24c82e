package main

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

// jsonTensor is the inputs.json and output encoding of one tensor. DType
// defaults to float32.
type jsonTensor struct {
	Shape []int     `json:"shape"`
	DType string    `json:"dtype,omitempty"`
	Data  []float64 `json:"data"`
}

type jsonOutput struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
	Data  any    `json:"data"`
}

func readInputs(path string) (map[string]jsonTensor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read inputs")
	}
	var in map[string]jsonTensor
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errors.Wrapf(err, "decode inputs %s", path)
	}
	return in, nil
}

func (j jsonTensor) raw(name string) (*tensor.RawTensor, error) {
	dt := tensor.Float32
	if j.DType != "" {
		var err error
		if dt, err = tensor.ParseDataType(j.DType); err != nil {
			return nil, errors.Wrapf(err, "input %q", name)
		}
	}
	shape := tensor.Shape(j.Shape)

	var (
		t   *tensor.RawTensor
		err error
	)
	switch dt {
	case tensor.Float32:
		data := make([]float32, len(j.Data))
		for i, v := range j.Data {
			data[i] = float32(v)
		}
		t, err = tensor.FromFloat32(data, shape)
	case tensor.Float64:
		t, err = tensor.FromFloat64(j.Data, shape)
	case tensor.Int32:
		data := make([]int32, len(j.Data))
		for i, v := range j.Data {
			data[i] = int32(v)
		}
		t, err = tensor.FromSlice(data, shape)
	case tensor.Int64:
		data := make([]int64, len(j.Data))
		for i, v := range j.Data {
			data[i] = int64(v)
		}
		t, err = tensor.FromInt64(data, shape)
	default:
		return nil, errors.Errorf("input %q: dtype %s not supported in inputs files", name, dt)
	}
	return t, errors.Wrapf(err, "input %q", name)
}

// outputBuffer allocates the caller-owned buffer for output name from the
// static shape recorded on its layer.
func outputBuffer(g *graph.Graph, name string) (*tensor.RawTensor, error) {
	l, ok := g.Get(name)
	if !ok {
		return nil, errors.Errorf("output %q is not a layer of graph %s", name, g.Name())
	}
	if l.Shape == nil {
		return nil, errors.Errorf("output %q has no recorded shape", name)
	}
	for _, d := range l.Shape {
		if d < 0 {
			return nil, errors.Errorf("output %q has symbolic shape %v", name, l.Shape)
		}
	}
	return tensor.Zeros(l.Shape.Clone(), l.DType)
}

func encodeOutput(t *tensor.RawTensor) jsonOutput {
	return jsonOutput{
		Shape: t.Shape(),
		DType: t.DType().String(),
		Data:  t.Values(),
	}
}
