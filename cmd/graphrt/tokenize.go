package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/born-ml/graphrt/internal/opaque"
	"github.com/born-ml/graphrt/internal/tokenizer"
)

func newTokenizeCmd(a *app) *cobra.Command {
	var text, encoding string

	cmd := &cobra.Command{
		Use:   "tokenize",
		Short: "Tokenize text into int64 token ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if text == "" {
				return errors.New("--text is required")
			}
			out := opaque.TensorsArg()
			if err := a.fns.Call(tokenizer.FuncTokenize, "text tokenization",
				opaque.StringArg(text), opaque.StringArg(encoding), out); err != nil {
				return err
			}
			ts, err := out.AsTensors()
			if err != nil {
				return err
			}
			if len(ts) != 1 {
				return errors.Errorf("tokenizer returned %d tensors", len(ts))
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(ts[0].AsInt64())
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to tokenize")
	cmd.Flags().StringVar(&encoding, "encoding", tokenizer.DefaultEncoding, "tiktoken encoding name")

	return cmd
}
