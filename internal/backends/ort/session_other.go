//go:build windows || (js && wasm)

package ort

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/tensor"
)

// Available reports whether this build can execute onnxruntime modules.
const Available = false

// backend is unavailable in windows and wasm builds; Open always fails.
type backend struct {
	cfg      Config
	src      source
	name     string
	inNames  []string
	outNames []string
	logger   *slog.Logger
}

func (b *backend) Open() error {
	return errors.Errorf("ort: native ONNX Runtime is unavailable in this build for graph %q", b.name)
}

func (b *backend) Execute(_, _ []*tensor.RawTensor) error {
	return errors.Errorf("ort: native ONNX Runtime is unavailable in this build for graph %q", b.name)
}

func (b *backend) Close() error { return nil }
