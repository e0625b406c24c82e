package runtime

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/errdefs"
	"github.com/born-ml/graphrt/internal/graph"
	"github.com/born-ml/graphrt/internal/tensor"
)

// State is the lifecycle state of a runtime module.
type State int32

// Module states.
const (
	StateConstructed State = iota
	StateReady
	StateExecuting
	StateReleased
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConstructed:
		return "Constructed"
	case StateReady:
		return "Ready"
	case StateExecuting:
		return "Executing"
	case StateReleased:
		return "Released"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// RuntimeModule is the executable unit bound to one graph, one target, one
// runtime and a fixed ordering of input and output tensor names.
type RuntimeModule interface {
	// Run executes the graph. in and out must follow InputNames and
	// OutputNames exactly; out buffers are caller-allocated and populated
	// in place. Run blocks until outputs are written.
	Run(in, out []*tensor.RawTensor) error

	InputNames() []string
	OutputNames() []string
	Runtime() string
	Target() string
	State() State

	// Release frees backend resources. Later Run calls fail with a
	// use-after-release error. Release is idempotent.
	Release() error
}

// Backend is the backend-private half of a Module.
//
// Open acquires resources (Constructed -> Ready). Close releases them and
// is called exactly once, also when Open fails. Execute receives buffers in
// the backend's natural order.
type Backend interface {
	Open() error
	Execute(in, out []*tensor.RawTensor) error
	Close() error
}

// ModuleConfig describes the calling convention of a Module.
type ModuleConfig struct {
	Runtime     string
	Target      string
	Graph       *graph.Graph
	InputNames  []string
	OutputNames []string
	Options     *RunOptions

	// InputOrder[j] is the caller position of the backend's j-th input,
	// for backends whose natural tensor order differs from the caller's.
	// Nil means identical order. OutputOrder is the same for outputs.
	InputOrder  []int
	OutputOrder []int

	Logger *slog.Logger
}

// Module is the generic RuntimeModule: it enforces the lifecycle and the
// calling convention and delegates execution to a Backend.
//
// Calls to Run on the same Module are serialized; a Module is not a
// concurrency primitive and backends may rely on exclusive access.
type Module struct {
	mu      sync.Mutex
	state   atomic.Int32
	cfg     ModuleConfig
	backend Backend
	logger  *slog.Logger
}

// NewModule validates cfg and opens backend. A backend that fails to open
// is closed before the construction error is returned; no partially usable
// module is ever returned.
func NewModule(cfg ModuleConfig, backend Backend) (*Module, error) {
	if backend == nil {
		return nil, errdefs.Construction(cfg.Runtime, errors.New("nil backend"))
	}
	cfg.InputNames = cloneNames(cfg.InputNames)
	cfg.OutputNames = cloneNames(cfg.OutputNames)
	if err := checkPermutation("input order", cfg.InputOrder, len(cfg.InputNames)); err != nil {
		return nil, errdefs.Construction(cfg.Runtime, err)
	}
	if err := checkPermutation("output order", cfg.OutputOrder, len(cfg.OutputNames)); err != nil {
		return nil, errdefs.Construction(cfg.Runtime, err)
	}
	cfg.InputOrder = append([]int(nil), cfg.InputOrder...)
	cfg.OutputOrder = append([]int(nil), cfg.OutputOrder...)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Module{cfg: cfg, backend: backend, logger: logger}
	m.state.Store(int32(StateConstructed))

	if err := backend.Open(); err != nil {
		if cerr := backend.Close(); cerr != nil {
			err = fmt.Errorf("%w (close after failed open: %v)", err, cerr)
		}
		return nil, errdefs.Construction(cfg.Runtime, err)
	}
	m.state.Store(int32(StateReady))

	logger.Debug("runtime module ready", "runtime", cfg.Runtime, "target", cfg.Target)
	return m, nil
}

// Run implements RuntimeModule.
func (m *Module) Run(in, out []*tensor.RawTensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateReleased {
		return errdefs.UseAfterRelease(errdefs.OpExecution, m.cfg.Runtime)
	}
	if err := checkBuffers("input", in, m.cfg.InputNames); err != nil {
		return err
	}
	if err := checkBuffers("output", out, m.cfg.OutputNames); err != nil {
		return err
	}

	if err := m.execute(in, out); err != nil {
		if errdefs.Classified(err) {
			return errors.WithMessagef(err, "runtime %q target %q", m.cfg.Runtime, m.cfg.Target)
		}
		return errdefs.Execution(m.cfg.Runtime, err)
	}
	return nil
}

// execute runs the backend, returning the module to Ready even when the
// backend panics. A recovered panic becomes an error.
func (m *Module) execute(in, out []*tensor.RawTensor) (err error) {
	m.state.Store(int32(StateExecuting))
	defer func() {
		m.state.Store(int32(StateReady))
		if r := recover(); r != nil {
			err = errors.Errorf("backend panic: %v", r)
		}
	}()
	return m.backend.Execute(permute(in, m.cfg.InputOrder), permute(out, m.cfg.OutputOrder))
}

// Release implements RuntimeModule.
//
// The module is Released even when the backend fails to close. That
// failure is reported as ErrExecutionFailure with Op "release", there
// being no dedicated release kind.
func (m *Module) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateReleased {
		return nil
	}
	m.state.Store(int32(StateReleased))

	if err := m.backend.Close(); err != nil {
		return &errdefs.Error{Kind: errdefs.ErrExecutionFailure, Op: errdefs.OpRelease, Name: m.cfg.Runtime, Err: err}
	}
	m.logger.Debug("runtime module released", "runtime", m.cfg.Runtime, "target", m.cfg.Target)
	return nil
}

// InputNames returns a copy of the input calling convention.
func (m *Module) InputNames() []string { return cloneNames(m.cfg.InputNames) }

// OutputNames returns a copy of the output calling convention.
func (m *Module) OutputNames() []string { return cloneNames(m.cfg.OutputNames) }

// Runtime returns the runtime name.
func (m *Module) Runtime() string { return m.cfg.Runtime }

// Target returns the target name.
func (m *Module) Target() string { return m.cfg.Target }

// Graph returns the bound graph.
func (m *Module) Graph() *graph.Graph { return m.cfg.Graph }

// Options returns the run options the module was built with.
func (m *Module) Options() *RunOptions { return m.cfg.Options }

// State returns the current lifecycle state.
func (m *Module) State() State { return State(m.state.Load()) }

func checkBuffers(kind string, bufs []*tensor.RawTensor, names []string) error {
	if len(bufs) != len(names) {
		return errdefs.Arity(errdefs.OpExecution, kind+" buffers", len(names), len(bufs))
	}
	for i, b := range bufs {
		if b == nil {
			return &errdefs.Error{
				Kind:   errdefs.ErrArityMismatch,
				Op:     errdefs.OpExecution,
				Name:   names[i],
				Detail: fmt.Sprintf("%s buffer %d is nil", kind, i),
			}
		}
	}
	return nil
}

func checkPermutation(what string, order []int, n int) error {
	if order == nil {
		return nil
	}
	if len(order) != n {
		return fmt.Errorf("%s has %d entries for %d tensors", what, len(order), n)
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("%s %v is not a permutation", what, order)
		}
		seen[idx] = true
	}
	return nil
}

func permute(bufs []*tensor.RawTensor, order []int) []*tensor.RawTensor {
	if order == nil {
		return bufs
	}
	out := make([]*tensor.RawTensor, len(order))
	for j, idx := range order {
		out[j] = bufs[idx]
	}
	return out
}

// Reorder computes the index list mapping a backend's natural tensor order
// onto the caller's: result[j] is the position in caller of backend[j].
func Reorder(caller, backend []string) ([]int, error) {
	if len(caller) != len(backend) {
		return nil, fmt.Errorf("reorder: %d caller names vs %d backend names", len(caller), len(backend))
	}
	pos := make(map[string]int, len(caller))
	for i, name := range caller {
		if _, dup := pos[name]; dup {
			return nil, fmt.Errorf("reorder: duplicate tensor name %q", name)
		}
		pos[name] = i
	}
	order := make([]int, len(backend))
	for j, name := range backend {
		i, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("reorder: backend tensor %q is not in the calling convention", name)
		}
		order[j] = i
	}
	return order, nil
}
