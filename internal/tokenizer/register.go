package tokenizer

import (
	"github.com/pkg/errors"

	"github.com/born-ml/graphrt/internal/opaque"
	"github.com/born-ml/graphrt/internal/tensor"
)

// FuncTokenize is the opaque function installed by Register:
//
//	text.tokenize(string text, string encoding, tensors out)
//
// out receives one int64 tensor of shape [n] holding the token ids.
const FuncTokenize = "text.tokenize"

// Register installs FuncTokenize into reg.
func Register(reg *opaque.Registry) error {
	return reg.Register(FuncTokenize, tokenize)
}

func tokenize(args ...*opaque.Value) error {
	if err := opaque.Expect(args, opaque.KindString, opaque.KindString, opaque.KindTensors); err != nil {
		return err
	}
	text, _ := args[0].AsString()
	name, _ := args[1].AsString()

	tok, err := NewTikToken(name)
	if err != nil {
		return err
	}
	ids := tok.Encode(text)
	if len(ids) == 0 {
		return errors.New("tokenizer: text produced no tokens")
	}

	t, err := tensor.FromInt64(ids, tensor.Shape{len(ids)})
	if err != nil {
		return errors.Wrap(err, "tokenizer")
	}
	return args[2].SetTensors(t)
}
