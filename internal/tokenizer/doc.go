// Package tokenizer exposes tiktoken BPE tokenization as the opaque
// function "text.tokenize", so graphs fed with token ids can be driven
// from text without linking a tokenizer into the caller.
//
//	reg := opaque.NewRegistry()
//	_ = tokenizer.Register(reg)
//	out := opaque.TensorsArg()
//	err := reg.Call(tokenizer.FuncTokenize, "text tokenization",
//	    opaque.StringArg("Hello, world!"), opaque.StringArg("cl100k_base"), out)
//	ids, _ := out.AsTensors() // one int64 tensor of shape [n]
package tokenizer
