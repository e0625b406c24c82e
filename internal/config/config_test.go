package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

func newFlagBinder(defaults Config) *fakeBinder {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)
	return &fakeBinder{fs: fs}
}

// isolate runs the test in an empty directory with no GRAPHRT/ORT env.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, k := range []string{"GRAPHRT_ORT_LIBRARY_PATH", "ORT_LIBRARY_PATH", "GRAPHRT_LOG_LEVEL", "GRAPHRT_RUNTIME_NAME", "GRAPHRT_DPUSIM_DEVICES"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Plugins.Manifest)
	assert.Equal(t, "cpu-sim", cfg.Runtime.Name)
	assert.Equal(t, "cpu", cfg.Runtime.Target)
	assert.Empty(t, cfg.ORT.LibraryPath)
	assert.Equal(t, 23, cfg.ORT.APIVersion)
	assert.Equal(t, 2, cfg.DPUSim.Devices)
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(defaults), Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg)
}

func TestLoad_Flags(t *testing.T) {
	isolate(t)
	defaults := DefaultConfig()
	b := newFlagBinder(defaults)
	require.NoError(t, b.fs.Parse([]string{"--runtime=dpu-sim", "--target=dpu-a", "--dpusim-devices=4", "--log-format=json"}))

	cfg, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, "dpu-sim", cfg.Runtime.Name)
	assert.Equal(t, "dpu-a", cfg.Runtime.Target)
	assert.Equal(t, 4, cfg.DPUSim.Devices)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("GRAPHRT_LOG_LEVEL", "debug")
	t.Setenv("GRAPHRT_RUNTIME_NAME", "onnxruntime")
	t.Setenv("ORT_LIBRARY_PATH", "/opt/ort/libonnxruntime.so")

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(defaults), Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "onnxruntime", cfg.Runtime.Name)
	assert.Equal(t, "/opt/ort/libonnxruntime.so", cfg.ORT.LibraryPath)
}

func TestLoad_PrefixedORTEnvWins(t *testing.T) {
	isolate(t)
	t.Setenv("GRAPHRT_ORT_LIBRARY_PATH", "/a.so")
	t.Setenv("ORT_LIBRARY_PATH", "/b.so")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, "/a.so", cfg.ORT.LibraryPath)
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	isolate(t)
	t.Setenv("GRAPHRT_RUNTIME_NAME", "onnxruntime")

	defaults := DefaultConfig()
	b := newFlagBinder(defaults)
	require.NoError(t, b.fs.Parse([]string{"--runtime=webgpu"}))

	cfg, err := Load(LoadOptions{Cmd: b, Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, "webgpu", cfg.Runtime.Name)
}

func TestLoad_ConfigFileDiscovered(t *testing.T) {
	dir := isolate(t)
	content := "[runtime]\nname = \"dpu-sim\"\ntarget = \"dpu-b\"\n\n[dpusim]\ndevices = 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graphrt.toml"), []byte(content), 0o600))

	defaults := DefaultConfig()
	cfg, err := Load(LoadOptions{Cmd: newFlagBinder(defaults), Defaults: defaults})
	require.NoError(t, err)
	assert.Equal(t, "dpu-sim", cfg.Runtime.Name)
	assert.Equal(t, "dpu-b", cfg.Runtime.Target)
	assert.Equal(t, 8, cfg.DPUSim.Devices)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := "log:\n  level: warn\nplugins:\n  manifest: plugins.toml\nort:\n  api_version: 22\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(LoadOptions{ConfigFile: path, Defaults: DefaultConfig()})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "plugins.toml", cfg.Plugins.Manifest)
	assert.Equal(t, 22, cfg.ORT.APIVersion)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.json"), Defaults: DefaultConfig()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestPluginSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ORT.LibraryPath = "/x.so"

	assert.Equal(t, map[string]any{"api_version": 23, "library_path": "/x.so"}, cfg.PluginSettings("onnxruntime"))
	assert.Equal(t, map[string]any{"devices": 2}, cfg.PluginSettings("dpu-sim"))
	assert.Nil(t, cfg.PluginSettings("cpu-sim"))
}
