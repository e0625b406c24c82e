package plugins

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/config"
	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/onnx"
	"github.com/born-ml/graphrt/internal/opaque"
	"github.com/born-ml/graphrt/internal/runtime"
	"github.com/born-ml/graphrt/internal/tokenizer"
)

// LoadOptions selects the registries to populate and the plugins to load.
type LoadOptions struct {
	// Modules receives the runtimes. Nil means the default registry.
	Modules *runtime.ModuleFactories
	// Functions receives the built-in opaque functions. Nil means the
	// default registry.
	Functions *opaque.Registry
	// ManifestPath is the TOML manifest; empty loads the whole catalog.
	ManifestPath string
	// Config supplies per-runtime settings beneath the manifest's.
	Config config.Config
	Logger *slog.Logger
}

// Loaded reports what Load registered.
type Loaded struct {
	Runtimes  []string
	Functions []string
}

// Load installs the built-in opaque functions, then registers the selected
// plugins in order. A runtime name registered twice, as a plugin name or an
// alias, is bound to the later plugin.
func Load(opts LoadOptions) (*Loaded, error) {
	mods := opts.Modules
	if mods == nil {
		mods = runtime.DefaultModuleFactories()
	}
	fns := opts.Functions
	if fns == nil {
		fns = opaque.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = mods.Logger()
	}

	if err := onnx.Register(fns); err != nil {
		return nil, errors.WithMessage(err, "install onnx importer")
	}
	if err := tokenizer.Register(fns); err != nil {
		return nil, errors.WithMessage(err, "install tokenizer")
	}

	entries, err := selectEntries(opts.ManifestPath)
	if err != nil {
		return nil, err
	}

	loaded := &Loaded{Functions: fns.Names()}
	for _, e := range entries {
		if e.Disabled {
			logger.Debug("plugin disabled", "plugin", e.Name)
			continue
		}
		names, err := loadEntry(mods, e, opts.Config, logger)
		if err != nil {
			if opts.ManifestPath != "" {
				return nil, errors.WithMessagef(err, "plugin manifest %s", opts.ManifestPath)
			}
			return nil, err
		}
		loaded.Runtimes = append(loaded.Runtimes, names...)
	}
	return loaded, nil
}

func selectEntries(path string) ([]Entry, error) {
	if path == "" {
		names := Catalog()
		entries := make([]Entry, len(names))
		for i, name := range names {
			entries[i] = Entry{Name: name}
		}
		return entries, nil
	}
	m, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return m.Plugins, nil
}

func loadEntry(mods *runtime.ModuleFactories, e Entry, cfg config.Config, logger *slog.Logger) ([]string, error) {
	register, ok := Lookup(e.Name)
	if !ok {
		return nil, errdefs.NotFound(errdefs.OpRegister, CatalogName, e.Name)
	}

	merged := make(map[string]any)
	for k, v := range cfg.PluginSettings(e.Name) {
		merged[k] = v
	}
	for k, v := range e.Settings {
		merged[k] = v
	}
	settings, err := runtime.SettingsFromMap(merged)
	if err != nil {
		return nil, errors.WithMessagef(err, "plugin %q", e.Name)
	}

	if mods.Exists(e.Name) {
		// A compute layer left from an earlier binding must not outlive it.
		mods.RegisterImpl(e.Name).SetComputeImpl(nil)
	}
	if err := register(mods, settings); err != nil {
		return nil, errors.WithMessagef(err, "plugin %q", e.Name)
	}
	rec := mods.RegisterImpl(e.Name)
	impl := rec.Impl()
	if impl == nil {
		logger.Warn("plugin unavailable on this platform", "plugin", e.Name)
		return nil, nil
	}

	var compute runtime.ComputeFuncFactoryImpl
	if rec.HasComputeImpl() {
		compute = mods.ComputeFuncs().RegisterImpl(e.Name).Impl()
	}
	names := []string{e.Name}
	for _, alias := range e.Aliases {
		if alias == e.Name {
			continue
		}
		mods.RegisterImpl(alias).SetComputeImpl(compute).SetImpl(impl)
		names = append(names, alias)
	}

	logger.Info("plugin loaded", "plugin", e.Name, "runtimes", names, "compute", rec.HasComputeImpl(), "settings", settings.Keys())
	return names, nil
}
