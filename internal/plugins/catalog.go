// Package plugins loads runtime plugins into the module factory registry
// and installs the built-in opaque functions.
//
// A plugin is a registration function for one runtime. Which plugins load,
// under which names and with which settings, is chosen by an optional TOML
// manifest:
//
//	[[plugin]]
//	name = "dpu-sim"
//	aliases = ["dpu"]
//	[plugin.settings]
//	devices = 4
//
// Without a manifest every plugin in the catalog is loaded.
package plugins

import (
	"sort"

	"github.com/born-ml/graphrt/internal/backends/cpusim"
	"github.com/born-ml/graphrt/internal/backends/dpusim"
	"github.com/born-ml/graphrt/internal/backends/ort"
	"github.com/born-ml/graphrt/internal/backends/webgpu"
	"github.com/born-ml/graphrt/internal/runtime"
)

// CatalogName identifies the plugin catalog in errors.
const CatalogName = "plugin catalog"

// RegisterFunc binds one runtime into mods.
type RegisterFunc func(mods *runtime.ModuleFactories, settings runtime.Settings) error

var catalog = map[string]RegisterFunc{
	cpusim.Runtime: cpusim.Register,
	dpusim.Runtime: dpusim.Register,
	ort.Runtime:    ort.Register,
	webgpu.Runtime: webgpu.Register,
}

// Catalog returns the names of the built-in plugins, sorted.
func Catalog() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the registration function of the named plugin.
func Lookup(name string) (RegisterFunc, bool) {
	fn, ok := catalog[name]
	return fn, ok
}
