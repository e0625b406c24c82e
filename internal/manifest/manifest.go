// Package manifest reads HCL deployment files describing which model to
// run, on which runtime and target, with which calling convention and
// options:
//
//	deployment "classifier" {
//	  model   = "model.onnx"
//	  runtime = "dpu-sim"
//	  target  = "dpu-a"
//	  inputs  = ["x"]
//	  outputs = ["y"]
//	  partition = true
//
//	  options {
//	    on_the_fly_quantization  = true
//	    quant_calibration_inputs = 4
//	    build_dir                = "build"
//	    settings = {
//	      devices = 2
//	    }
//	  }
//	}
package manifest

import (
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/runtime"
)

// Deployment is one decoded deployment block.
type Deployment struct {
	Name    string
	Model   string // resolved against the file's directory
	Runtime string
	Target  string
	Inputs  []string
	Outputs []string
	// Partition fuses the layers the runtime supports before construction.
	Partition bool
	// Options is nil when the block has no options block.
	Options *runtime.RunOptions
}

type hclFile struct {
	Deployments []*hclDeployment `hcl:"deployment,block"`
}

type hclDeployment struct {
	Name      string      `hcl:"name,label"`
	Model     string      `hcl:"model"`
	Runtime   string      `hcl:"runtime"`
	Target    *string     `hcl:"target,optional"`
	Inputs    []string    `hcl:"inputs"`
	Outputs   []string    `hcl:"outputs"`
	Partition *bool       `hcl:"partition,optional"`
	Options   *hclOptions `hcl:"options,block"`
}

type hclOptions struct {
	OnTheFlyQuantization   *bool          `hcl:"on_the_fly_quantization,optional"`
	QuantCalibrationInputs *int           `hcl:"quant_calibration_inputs,optional"`
	BuildDir               *string        `hcl:"build_dir,optional"`
	Settings               hcl.Expression `hcl:"settings,optional"`
}

// LoadFile parses the deployments in the HCL file at path.
func LoadFile(path string) ([]*Deployment, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "parse deployment file %s", path)
	}
	return decode(f.Body, filepath.Dir(path), path)
}

// Parse parses deployments from src. Relative model paths resolve against
// dir.
func Parse(src []byte, filename, dir string) ([]*Deployment, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "parse deployment file %s", filename)
	}
	return decode(f.Body, dir, filename)
}

func decode(body hcl.Body, dir, filename string) ([]*Deployment, error) {
	var parsed hclFile
	if diags := gohcl.DecodeBody(body, nil, &parsed); diags.HasErrors() {
		return nil, errors.Wrapf(diags, "decode deployment file %s", filename)
	}

	seen := make(map[string]bool, len(parsed.Deployments))
	out := make([]*Deployment, 0, len(parsed.Deployments))
	for _, d := range parsed.Deployments {
		if seen[d.Name] {
			return nil, errors.Errorf("%s: duplicate deployment %q", filename, d.Name)
		}
		seen[d.Name] = true

		dep, err := d.build(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: deployment %q", filename, d.Name)
		}
		out = append(out, dep)
	}
	return out, nil
}

func (d *hclDeployment) build(dir string) (*Deployment, error) {
	if d.Model == "" {
		return nil, errors.New("model is empty")
	}
	if d.Runtime == "" {
		return nil, errors.New("runtime is empty")
	}

	dep := &Deployment{
		Name:    d.Name,
		Model:   d.Model,
		Runtime: d.Runtime,
		Inputs:  d.Inputs,
		Outputs: d.Outputs,
	}
	if !filepath.IsAbs(dep.Model) && dir != "" {
		dep.Model = filepath.Join(dir, dep.Model)
	}
	if d.Target != nil {
		dep.Target = *d.Target
	}
	if d.Partition != nil {
		dep.Partition = *d.Partition
	}

	if d.Options != nil {
		opts, err := d.Options.build()
		if err != nil {
			return nil, err
		}
		dep.Options = opts
	}
	return dep, nil
}

func (o *hclOptions) build() (*runtime.RunOptions, error) {
	opts := &runtime.RunOptions{}
	if o.OnTheFlyQuantization != nil {
		opts.OnTheFlyQuantization = *o.OnTheFlyQuantization
	}
	if o.QuantCalibrationInputs != nil {
		if *o.QuantCalibrationInputs < 0 {
			return nil, errors.Errorf("quant_calibration_inputs must not be negative, got %d", *o.QuantCalibrationInputs)
		}
		opts.QuantCalibrationInputs = *o.QuantCalibrationInputs
	}
	if o.BuildDir != nil {
		opts.BuildDir = *o.BuildDir
	}

	if o.Settings == nil {
		return opts, nil
	}
	val, diags := o.Settings.Value(nil)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, "settings")
	}
	if val.IsNull() {
		return opts, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, errors.Errorf("settings must be an object, got %s", val.Type().FriendlyName())
	}

	opts.Settings = make(runtime.Settings)
	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		opts.Settings[k.AsString()] = v
	}
	return opts, nil
}

// Find returns the deployment called name. An empty name selects the only
// deployment when there is exactly one.
func Find(deps []*Deployment, name string) (*Deployment, error) {
	if name == "" {
		if len(deps) == 1 {
			return deps[0], nil
		}
		return nil, errors.Errorf("%d deployments defined, choose one of %v", len(deps), Names(deps))
	}
	for _, d := range deps {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, errors.Errorf("deployment %q not defined, choose one of %v", name, Names(deps))
}

// Names returns the deployment names, sorted.
func Names(deps []*Deployment) []string {
	names := make([]string, len(deps))
	for i, d := range deps {
		names[i] = d.Name
	}
	sort.Strings(names)
	return names
}

