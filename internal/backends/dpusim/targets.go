package dpusim

import (
	"sort"
	"strings"
)

// TargetInfo describes a simulated DPU configuration.
type TargetInfo struct {
	Name   string
	Family string // IP family, e.g. DPUCZDX8G.
	Board  string // Empty for board-independent targets.
}

var targets = map[string]TargetInfo{}

func init() {
	for _, name := range []string{
		"DPUCZDX8G-zcu104",
		"DPUCZDX8G-zcu102",
		"DPUCAHX8H-u50",
		"DPUCADX8G",
	} {
		family, board, _ := strings.Cut(name, "-")
		targets[name] = TargetInfo{Name: name, Family: family, Board: board}
	}
}

// LookupTarget returns the description of a target name.
func LookupTarget(name string) (TargetInfo, bool) {
	t, ok := targets[name]
	return t, ok
}

// Targets returns the supported target names, sorted.
func Targets() []string {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
