//go:build !windows

package webgpu

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/runtime"
)

// Available reports whether this build can execute webgpu modules.
const Available = false

func register(mods *runtime.ModuleFactories, _ runtime.Settings) error {
	if mods == nil {
		return errors.New("webgpu: nil module registry")
	}
	mods.Logger().Debug("runtime not registered: no native WebGPU bindings on this platform", "runtime", Runtime)
	return nil
}
