package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphrt/internal/backends/cpusim"
	"github.com/born-ml/graphrt/internal/frontend"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/manifest"
	"github.com/born-ml/graphrt/internal/runtime"
	"github.com/born-ml/graphrt/internal/tensor"
)

// PartitionLayer names the fused layer created by --partition.
const PartitionLayer = "partition0"

type runFlags struct {
	model      string
	inNames    []string
	outNames   []string
	inputs     string
	deployment string
	name       string
	partition  bool
	quantize   bool
	calib      int
	buildDir   string
	repeat     int
}

// runPlan is everything needed to build and drive one runtime module.
type runPlan struct {
	model     string
	runtime   string
	target    string
	inNames   []string
	outNames  []string
	partition bool
	opts      *runtime.RunOptions
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import a model and execute it on a runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plan, err := a.plan(cmd, f)
			if err != nil {
				return err
			}
			if f.inputs == "" {
				return errors.New("--inputs is required")
			}
			feeds, err := readInputs(f.inputs)
			if err != nil {
				return err
			}

			results, err := a.execute(plan, feeds, f.repeat)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&f.model, "model", "", "Path to the .onnx model")
	cmd.Flags().StringSliceVar(&f.inNames, "in", nil, "Input tensor names, in the order the inputs are passed")
	cmd.Flags().StringSliceVar(&f.outNames, "out", nil, "Output tensor names, in the order the outputs are returned")
	cmd.Flags().StringVar(&f.inputs, "inputs", "", "JSON file mapping input names to {shape, dtype, data}")
	cmd.Flags().StringVar(&f.deployment, "deployment", "", "HCL deployment file replacing --model/--in/--out/--runtime/--target")
	cmd.Flags().StringVar(&f.name, "name", "", "Deployment to run when the file defines several")
	cmd.Flags().BoolVar(&f.partition, "partition", false, "Fuse the supported layers into one FusedOp before construction")
	cmd.Flags().BoolVar(&f.quantize, "quantize", false, "Enable on-the-fly quantization")
	cmd.Flags().IntVar(&f.calib, "calib", 0, "Calibration calls before quantizing (0 uses the runtime default)")
	cmd.Flags().StringVar(&f.buildDir, "build-dir", "", "Directory for runtime build artifacts")
	cmd.Flags().IntVar(&f.repeat, "repeat", 1, "Number of times to run the module")

	return cmd
}

func (a *app) plan(cmd *cobra.Command, f runFlags) (runPlan, error) {
	if f.deployment != "" {
		deps, err := manifest.LoadFile(f.deployment)
		if err != nil {
			return runPlan{}, err
		}
		d, err := manifest.Find(deps, f.name)
		if err != nil {
			return runPlan{}, err
		}
		return runPlan{
			model:     d.Model,
			runtime:   d.Runtime,
			target:    d.Target,
			inNames:   d.Inputs,
			outNames:  d.Outputs,
			partition: d.Partition,
			opts:      d.Options,
		}, nil
	}

	if f.model == "" {
		return runPlan{}, errors.New("--model or --deployment is required")
	}
	p := runPlan{
		model:     f.model,
		runtime:   a.cfg.Runtime.Name,
		target:    a.cfg.Runtime.Target,
		inNames:   f.inNames,
		outNames:  f.outNames,
		partition: f.partition,
	}
	if f.quantize || f.buildDir != "" || cmd.Flags().Changed("calib") {
		p.opts = &runtime.RunOptions{
			OnTheFlyQuantization:   f.quantize,
			QuantCalibrationInputs: f.calib,
			BuildDir:               f.buildDir,
		}
	}
	return p, nil
}

func (a *app) execute(p runPlan, feeds map[string]jsonTensor, repeat int) (map[string]jsonOutput, error) {
	g, err := frontend.ImportONNX(a.fns, p.model)
	if err != nil {
		return nil, err
	}
	if len(p.outNames) == 0 {
		return nil, errors.New("no output names given")
	}
	if p.partition {
		g, err = graph.Partition(g, PartitionLayer, graph.OpFused, p.target, cpusim.Kernels().Supports, p.outNames...)
		if err != nil {
			return nil, errors.Wrap(err, "partition")
		}
	}

	in := make([]*tensor.RawTensor, len(p.inNames))
	for i, name := range p.inNames {
		jt, ok := feeds[name]
		if !ok {
			return nil, errors.Errorf("inputs file has no tensor %q", name)
		}
		if in[i], err = jt.raw(name); err != nil {
			return nil, err
		}
	}
	out := make([]*tensor.RawTensor, len(p.outNames))
	for i, name := range p.outNames {
		if out[i], err = outputBuffer(g, name); err != nil {
			return nil, err
		}
	}

	m, err := a.mods.GetRuntimeModule(g, p.target, p.inNames, p.outNames, p.runtime, p.opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := m.Release(); rerr != nil {
			a.logger.Warn("release runtime module", "runtime", p.runtime, "err", rerr)
		}
	}()

	if repeat < 1 {
		repeat = 1
	}
	for i := 0; i < repeat; i++ {
		if err := m.Run(in, out); err != nil {
			return nil, err
		}
	}

	results := make(map[string]jsonOutput, len(out))
	for i, name := range p.outNames {
		results[name] = encodeOutput(out[i])
	}
	return results, nil
}
