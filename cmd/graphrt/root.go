package main

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphrt/internal/config"
	"github.com/born-ml/graphrt/internal/logging"
	"github.com/born-ml/graphrt/internal/opaque"
	"github.com/born-ml/graphrt/internal/plugins"
	"github.com/born-ml/graphrt/internal/runtime"
)

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
	mods    *runtime.ModuleFactories
	fns     *opaque.Registry
}

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()
	a := &app{}

	cmd := &cobra.Command{
		Use:           "graphrt",
		Short:         "Run ONNX models on pluggable graph runtimes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd, defaults)
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newRuntimesCmd(a))
	cmd.AddCommand(newInspectCmd(a))
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newTokenizeCmd(a))

	return cmd
}

// setup loads the configuration, installs the logger and loads the
// plugins into registries private to this invocation.
func (a *app) setup(cmd *cobra.Command, defaults config.Config) error {
	cfg, err := config.Load(config.LoadOptions{
		Cmd:        cmd,
		ConfigFile: a.cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)

	opt := runtime.WithLogger(a.logger)
	a.mods = runtime.NewModuleFactories(runtime.NewComputeFuncFactories(opt), opt)
	a.fns = opaque.NewRegistry(opaque.WithLogger(a.logger))

	_, err = plugins.Load(plugins.LoadOptions{
		Modules:      a.mods,
		Functions:    a.fns,
		ManifestPath: cfg.Plugins.Manifest,
		Config:       cfg,
		Logger:       a.logger,
	})
	return errors.WithMessage(err, "load plugins")
}
