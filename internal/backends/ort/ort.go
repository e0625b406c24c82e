// Package ort registers the "onnxruntime" runtime, which executes an
// imported ONNX model with ONNX Runtime loaded through purego.
//
// Only the module factory is bound: ONNX Runtime runs whole models, so
// there is no per-layer compute function to expose. Each module owns its
// own ORT runtime, environment and session. The model source is the
// graph's onnx.path attribute, or its onnx.bytes attribute spilled to a
// temporary file under RunOptions.BuildDir for the module's lifetime.
package ort

import (
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/onnx"
	"github.com/born-ml/graphrt/internal/runtime"
)

// Runtime is the registered runtime name.
const Runtime = "onnxruntime"

// DefaultAPIVersion is the ORT C API version requested when none is set.
const DefaultAPIVersion = 23

// Config holds the ORT library settings.
type Config struct {
	LibraryPath string
	APIVersion  uint32
}

// ConfigFromSettings reads "library_path" and "api_version", falling back
// to the ORT_LIBRARY_PATH environment variable for the library.
func ConfigFromSettings(settings runtime.Settings) Config {
	cfg := Config{
		LibraryPath: settings.String("library_path", ""),
		APIVersion:  uint32(settings.Int("api_version", DefaultAPIVersion)), //nolint:gosec // G115: small positive API version
	}
	if cfg.LibraryPath == "" {
		cfg.LibraryPath = os.Getenv("ORT_LIBRARY_PATH")
	}
	if cfg.APIVersion == 0 {
		cfg.APIVersion = DefaultAPIVersion
	}
	return cfg
}

// Register binds onnxruntime into mods, replacing any earlier binding.
func Register(mods *runtime.ModuleFactories, settings runtime.Settings) error {
	if mods == nil {
		return errors.New("ort: nil module registry")
	}
	cfg := ConfigFromSettings(settings)
	mods.RegisterImpl(Runtime).SetImpl(&moduleFactory{cfg: cfg, logger: mods.Logger()})
	mods.Logger().Debug("runtime registered", "runtime", Runtime, "library", cfg.LibraryPath, "api_version", cfg.APIVersion, "available", Available)
	return nil
}

type moduleFactory struct {
	cfg    Config
	logger *slog.Logger
}

func (f *moduleFactory) NewRuntimeModule(g *graph.Graph, target string, inNames, outNames []string, opts *runtime.RunOptions) (runtime.RuntimeModule, error) {
	src, err := sourceOf(g)
	if err != nil {
		return nil, err
	}
	for _, names := range [][]string{inNames, outNames} {
		for _, name := range names {
			if !g.Has(name) {
				return nil, errdefs.NotFound(errdefs.OpConstruction, "graph "+g.Name(), name)
			}
		}
	}

	// Per-module settings override the registration defaults.
	cfg := f.cfg
	cfg.LibraryPath = opts.String("library_path", cfg.LibraryPath)
	if v := opts.Int("api_version", 0); v > 0 {
		cfg.APIVersion = uint32(v) //nolint:gosec // G115: small positive API version
	}
	src.dir = opts.Dir()

	b := &backend{
		cfg:      cfg,
		src:      src,
		name:     g.Name(),
		inNames:  inNames,
		outNames: outNames,
		logger:   f.logger,
	}
	return runtime.NewModule(runtime.ModuleConfig{
		Runtime:     Runtime,
		Target:      target,
		Graph:       g,
		InputNames:  inNames,
		OutputNames: outNames,
		Options:     opts,
		Logger:      f.logger,
	}, b)
}

// source is where a module loads its model from: a file path, or bytes to
// spill into dir.
type source struct {
	path  string
	bytes []byte
	dir   string
}

func sourceOf(g *graph.Graph) (source, error) {
	if v, ok := g.Attr(onnx.AttrPath); ok {
		if p, ok := v.(string); ok && p != "" {
			return source{path: p}, nil
		}
	}
	if v, ok := g.Attr(onnx.AttrBytes); ok {
		if b, ok := v.([]byte); ok && len(b) > 0 {
			return source{bytes: b}, nil
		}
	}
	return source{}, errdefs.Construction(Runtime,
		errors.Errorf("graph %q has no ONNX source (%s or %s attribute)", g.Name(), onnx.AttrPath, onnx.AttrBytes))
}

// materialize returns a model path, spilling in-memory bytes to a
// temporary file. cleanup removes that file and is never nil.
func (s source) materialize() (path string, cleanup func() error, err error) {
	if s.bytes == nil {
		return s.path, func() error { return nil }, nil
	}
	f, err := os.CreateTemp(s.dir, "graphrt-*.onnx")
	if err != nil {
		return "", nil, errors.Wrap(err, "ort: spill model")
	}
	name := f.Name()
	cleanup = func() error { return os.Remove(name) }

	if _, err := f.Write(s.bytes); err != nil {
		_ = f.Close()
		_ = cleanup()
		return "", nil, errors.Wrap(err, "ort: spill model")
	}
	if err := f.Close(); err != nil {
		_ = cleanup()
		return "", nil, errors.Wrap(err, "ort: spill model")
	}
	return name, cleanup, nil
}
