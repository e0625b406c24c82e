package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphrt/internal/frontend"
)

func newInspectCmd(a *app) *cobra.Command {
	var modelPath string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Import an ONNX model and print its layers in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if modelPath == "" {
				return errors.New("--model is required")
			}
			g, err := frontend.ImportONNX(a.fns, modelPath)
			if err != nil {
				return err
			}
			layers, err := g.Sorted()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "graph %s: %d layers\n", g.Name(), g.Len())
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tINPUTS\tSHAPE\tDTYPE")
			for _, l := range layers {
				shape, dtype := "-", "-"
				if l.Shape != nil {
					shape = fmt.Sprint(l.Shape)
					dtype = l.DType.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.Name, l.Type, strings.Join(l.Inputs, ","), shape, dtype)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&modelPath, "model", "", "Path to the .onnx model")

	return cmd
}
