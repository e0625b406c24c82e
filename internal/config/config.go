// Package config loads graphrt settings from flags, GRAPHRT_* environment
// variables and an optional graphrt.{yaml,toml,json} file.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Plugins PluginsConfig `mapstructure:"plugins"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	ORT     ORTConfig     `mapstructure:"ort"`
	DPUSim  DPUSimConfig  `mapstructure:"dpusim"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PluginsConfig struct {
	Manifest string `mapstructure:"manifest"`
}

type RuntimeConfig struct {
	Name   string `mapstructure:"name"`
	Target string `mapstructure:"target"`
}

type ORTConfig struct {
	LibraryPath string `mapstructure:"library_path"`
	APIVersion  int    `mapstructure:"api_version"`
}

type DPUSimConfig struct {
	Devices int `mapstructure:"devices"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// flagKeys maps each flag registered by RegisterFlags to its config key.
var flagKeys = map[string]string{
	"log-level":        "log.level",
	"log-format":       "log.format",
	"plugins-manifest": "plugins.manifest",
	"runtime":          "runtime.name",
	"target":           "runtime.target",
	"ort-lib":          "ort.library_path",
	"ort-api-version":  "ort.api_version",
	"dpusim-devices":   "dpusim.devices",
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Runtime: RuntimeConfig{
			Name:   "cpu-sim",
			Target: "cpu",
		},
		ORT: ORTConfig{
			APIVersion: 23,
		},
		DPUSim: DPUSimConfig{
			Devices: 2,
		},
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.Log.Level, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.Log.Format, "Log format (text|json)")
	fs.String("plugins-manifest", defaults.Plugins.Manifest, "TOML manifest selecting the runtime plugins to load")
	fs.String("runtime", defaults.Runtime.Name, "Runtime used to execute graphs")
	fs.String("target", defaults.Runtime.Target, "Target passed to the runtime")
	fs.String("ort-lib", defaults.ORT.LibraryPath, "Path to the ONNX Runtime shared library")
	fs.Int("ort-api-version", defaults.ORT.APIVersion, "ONNX Runtime C API version")
	fs.Int("dpusim-devices", defaults.DPUSim.Devices, "Device sessions in the dpu-sim pool")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}

	v.SetEnvPrefix("GRAPHRT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	if err := v.BindEnv("ort.library_path", "GRAPHRT_ORT_LIBRARY_PATH", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, errors.Wrap(err, "bind ort env vars")
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
	} else {
		v.SetConfigName("graphrt")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, errors.Wrap(err, "read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("plugins.manifest", c.Plugins.Manifest)
	v.SetDefault("runtime.name", c.Runtime.Name)
	v.SetDefault("runtime.target", c.Runtime.Target)
	v.SetDefault("ort.library_path", c.ORT.LibraryPath)
	v.SetDefault("ort.api_version", c.ORT.APIVersion)
	v.SetDefault("dpusim.devices", c.DPUSim.Devices)
}

// PluginSettings returns the configured settings of the named runtime
// plugin. Manifest settings are layered on top of these.
func (c Config) PluginSettings(runtime string) map[string]any {
	switch runtime {
	case "onnxruntime":
		s := map[string]any{"api_version": c.ORT.APIVersion}
		if c.ORT.LibraryPath != "" {
			s["library_path"] = c.ORT.LibraryPath
		}
		return s
	case "dpu-sim":
		return map[string]any{"devices": c.DPUSim.Devices}
	default:
		return nil
	}
}
