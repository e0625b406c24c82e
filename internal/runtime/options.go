package runtime

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// DefaultQuantCalibrationInputs is the number of calibration calls used by
// on-the-fly quantization when RunOptions leaves it at zero.
const DefaultQuantCalibrationInputs = 8

// RunOptions is the configuration bag passed unchanged from
// GetRuntimeModule to the selected backend. A nil *RunOptions means
// "runtime defaults"; all methods accept a nil receiver.
type RunOptions struct {
	OnTheFlyQuantization   bool
	QuantCalibrationInputs int
	BuildDir               string
	Settings               Settings
}

// Quantization returns whether on-the-fly quantization is enabled and the
// number of calibration calls to run before quantizing.
func (o *RunOptions) Quantization() (bool, int) {
	if o == nil || !o.OnTheFlyQuantization {
		return false, 0
	}
	if o.QuantCalibrationInputs <= 0 {
		return true, DefaultQuantCalibrationInputs
	}
	return true, o.QuantCalibrationInputs
}

// Dir returns BuildDir, or "" for nil options.
func (o *RunOptions) Dir() string {
	if o == nil {
		return ""
	}
	return o.BuildDir
}

// Setting returns a backend-specific setting.
func (o *RunOptions) Setting(name string) (cty.Value, bool) {
	if o == nil {
		return cty.NilVal, false
	}
	return o.Settings.Get(name)
}

// Int returns the integer setting name, or def when absent or not a number.
func (o *RunOptions) Int(name string, def int) int {
	if o == nil {
		return def
	}
	return o.Settings.Int(name, def)
}

// String returns the string setting name, or def.
func (o *RunOptions) String(name, def string) string {
	if o == nil {
		return def
	}
	return o.Settings.String(name, def)
}

// Bool returns the boolean setting name, or def.
func (o *RunOptions) Bool(name string, def bool) bool {
	if o == nil {
		return def
	}
	return o.Settings.Bool(name, def)
}

// Settings holds typed backend or plugin settings.
type Settings map[string]cty.Value

// Get returns a known, non-null setting.
func (s Settings) Get(name string) (cty.Value, bool) {
	v, ok := s[name]
	if !ok || v.IsNull() || !v.IsKnown() {
		return cty.NilVal, false
	}
	return v, true
}

// Int returns the integer setting name, or def.
func (s Settings) Int(name string, def int) int {
	v, ok := s.Get(name)
	if !ok {
		return def
	}
	var out int
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return def
	}
	return out
}

// String returns the string setting name, or def.
func (s Settings) String(name, def string) string {
	v, ok := s.Get(name)
	if !ok {
		return def
	}
	var out string
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return def
	}
	return out
}

// Bool returns the boolean setting name, or def.
func (s Settings) Bool(name string, def bool) bool {
	v, ok := s.Get(name)
	if !ok {
		return def
	}
	var out bool
	if err := gocty.FromCtyValue(v, &out); err != nil {
		return def
	}
	return out
}

// Keys returns the setting names, sorted.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsFromMap converts decoded configuration (TOML, JSON, viper) into
// typed settings. Supported leaves are strings, bools, integers and floats;
// slices become tuples and nested maps become objects.
func SettingsFromMap(m map[string]any) (Settings, error) {
	s := make(Settings, len(m))
	for k, v := range m {
		cv, err := toCty(v)
		if err != nil {
			return nil, fmt.Errorf("setting %q: %w", k, err)
		}
		s[k] = cv
	}
	return s, nil
}

func toCty(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case cty.Value:
		return x, nil
	case string:
		return cty.StringVal(x), nil
	case bool:
		return cty.BoolVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case int32:
		return cty.NumberIntVal(int64(x)), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case uint64:
		return cty.NumberUIntVal(x), nil
	case float32:
		return cty.NumberFloatVal(float64(x)), nil
	case float64:
		return cty.NumberFloatVal(x), nil
	case []any:
		if len(x) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, len(x))
		for i := range x {
			e, err := toCty(x[i])
			if err != nil {
				return cty.NilVal, err
			}
			elems[i] = e
		}
		return cty.TupleVal(elems), nil
	case map[string]any:
		if len(x) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(x))
		for k, e := range x {
			cv, err := toCty(e)
			if err != nil {
				return cty.NilVal, err
			}
			attrs[k] = cv
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported setting type %T", v)
	}
}
