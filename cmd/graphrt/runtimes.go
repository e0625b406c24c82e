package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/born-ml/graphrt/internal/backends/cpusim"
	"github.com/born-ml/graphrt/internal/backends/dpusim"
	"github.com/born-ml/graphrt/internal/backends/webgpu"
)

func newRuntimesCmd(a *app) *cobra.Command {
	var showOps bool

	cmd := &cobra.Command{
		Use:   "runtimes",
		Short: "List registered runtimes and opaque functions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUNTIME\tMODULE\tCOMPUTE")
			for _, rt := range a.mods.Runtimes() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", rt, yesNo(a.mods.Exists(rt)), yesNo(a.mods.ComputeFuncs().Exists(rt)))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "FUNCTIONS")
			for _, name := range a.fns.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			if !showOps {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "%s ops: %s\n", cpusim.Runtime, strings.Join(cpusim.Kernels().SupportedOps(), " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s targets: %s\n", dpusim.Runtime, strings.Join(dpusim.Targets(), " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s ops: %s\n", webgpu.Runtime, strings.Join(webgpu.SupportedOps(), " "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showOps, "ops", false, "Also print the operators and targets of the built-in runtimes")

	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
