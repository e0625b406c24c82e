//go:build !windows && !(js && wasm)

package ort

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/tensor"
)

// Available reports whether this build can execute onnxruntime modules.
const Available = true

type backend struct {
	cfg      Config
	src      source
	name     string
	inNames  []string
	outNames []string
	logger   *slog.Logger

	cleanup func() error
	rt      *onnxruntime.Runtime
	env     *onnxruntime.Env
	session *onnxruntime.Session
}

func (b *backend) Open() error {
	if b.cfg.LibraryPath == "" {
		return errors.New("ort: no ONNX Runtime library configured (set library_path or ORT_LIBRARY_PATH)")
	}
	path, cleanup, err := b.src.materialize()
	if err != nil {
		return err
	}
	b.cleanup = cleanup

	rt, err := onnxruntime.NewRuntime(b.cfg.LibraryPath, b.cfg.APIVersion)
	if err != nil {
		return errors.Wrapf(err, "ort runtime %s", b.cfg.LibraryPath)
	}
	b.rt = rt

	env, err := rt.NewEnv("graphrt-"+b.name, onnxruntime.LoggingLevelWarning)
	if err != nil {
		return errors.Wrap(err, "ort env")
	}
	b.env = env

	session, err := rt.NewSession(env, path, nil)
	if err != nil {
		return errors.Wrapf(err, "ort session %s", path)
	}
	b.session = session

	b.logger.Debug("ort session opened", "runtime", Runtime, "graph", b.name, "model", path)
	return nil
}

func (b *backend) Execute(in, out []*tensor.RawTensor) error {
	inputs := make(map[string]*onnxruntime.Value, len(in))
	defer closeValues(inputs)
	for i, t := range in {
		v, err := toValue(b.rt, t, b.inNames[i])
		if err != nil {
			return err
		}
		inputs[b.inNames[i]] = v
	}

	outputs, err := b.session.Run(context.Background(), inputs)
	if err != nil {
		return errors.Wrapf(err, "run %q", b.name)
	}
	defer closeValues(outputs)

	for i, name := range b.outNames {
		v, ok := outputs[name]
		if !ok {
			return errdefs.NotFound(errdefs.OpExecution, "session outputs", name)
		}
		t, err := fromValue(v)
		if err != nil {
			return errors.Wrapf(err, "output %q", name)
		}
		if err := tensor.CopyInto(out[i], t, name); err != nil {
			return err
		}
	}
	return nil
}

// Close tears down in reverse order of Open; it tolerates a partial Open.
func (b *backend) Close() error {
	if b.session != nil {
		b.session.Close()
		b.session = nil
	}
	if b.env != nil {
		b.env.Close()
		b.env = nil
	}
	var err error
	if b.rt != nil {
		err = b.rt.Close()
		b.rt = nil
	}
	if b.cleanup != nil {
		if cerr := b.cleanup(); cerr != nil && err == nil {
			err = cerr
		}
		b.cleanup = nil
	}
	return err
}

func toValue(rt *onnxruntime.Runtime, t *tensor.RawTensor, name string) (*onnxruntime.Value, error) {
	shape := make([]int64, len(t.Shape()))
	for i, d := range t.Shape() {
		shape[i] = int64(d)
	}
	switch t.DType() {
	case tensor.Float32:
		return onnxruntime.NewTensorValue(rt, t.AsFloat32(), shape)
	case tensor.Int64:
		return onnxruntime.NewTensorValue(rt, t.AsInt64(), shape)
	default:
		return nil, errdefs.Type(errdefs.OpExecution, name, "float32 or int64", t.DType())
	}
}

func fromValue(v *onnxruntime.Value) (*tensor.RawTensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, errors.Wrap(err, "get element type")
	}

	switch elemType {
	case onnxruntime.ONNXTensorElementDataTypeFloat:
		data, shape, err := onnxruntime.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}
		return tensor.FromFloat32(data, dims(shape))
	case onnxruntime.ONNXTensorElementDataTypeInt64:
		data, shape, err := onnxruntime.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}
		return tensor.FromInt64(data, dims(shape))
	default:
		return nil, errors.Errorf("unsupported ORT element type %d", elemType)
	}
}

func dims(shape []int64) tensor.Shape {
	out := make(tensor.Shape, len(shape))
	for i, d := range shape {
		out[i] = int(d)
	}
	return out
}

func closeValues(vals map[string]*onnxruntime.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
