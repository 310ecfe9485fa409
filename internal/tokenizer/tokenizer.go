package tokenizer

import (
	"bytes"
	"fmt"
	"os"

	gotk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Special token strings probed against the vocabulary, in priority order.
// Covers the llama/gemma/gpt families seen in exported decoder models.
var (
	bosCandidates = []string{"<bos>", "<s>", "<|begin_of_text|>", "<|startoftext|>"}
	eosCandidates = []string{"<eos>", "</s>", "<|end_of_text|>", "<|endoftext|>", "<|eot_id|>"}
)

// Tokenizer wraps a HuggingFace tokenizer.json vocabulary. Read-only after
// New, so one instance serves sequential generation requests.
type Tokenizer struct {
	tk  *gotk.Tokenizer
	bos int
	eos int
}

// New loads a tokenizer.json file.
func New(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tokenizer file: %w", err)
	}
	tk, err := pretrained.FromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing tokenizer file %s: %w", path, err)
	}

	t := &Tokenizer{tk: tk}
	t.bos, t.eos = resolveSpecial(func(s string) (int, bool) {
		id, ok := tk.TokenToId(s)
		return id, ok
	})
	return t, nil
}

// resolveSpecial probes the vocabulary for BOS/EOS surface forms. Returns -1
// for a token the vocabulary does not declare; -1 never matches a generated
// id, so EOS termination simply does not trigger.
func resolveSpecial(lookup func(string) (int, bool)) (bos, eos int) {
	bos, eos = -1, -1
	for _, s := range bosCandidates {
		if id, ok := lookup(s); ok {
			bos = id
			break
		}
	}
	for _, s := range eosCandidates {
		if id, ok := lookup(s); ok {
			eos = id
			break
		}
	}
	return bos, eos
}

// BOS returns the beginning-of-sequence token id, or -1 if the vocabulary
// has none.
func (t *Tokenizer) BOS() int { return t.bos }

// EOS returns the end-of-sequence token id, or -1 if the vocabulary has none.
func (t *Tokenizer) EOS() int { return t.eos }

// Encode converts text into token ids. BOS is prepended when the vocabulary
// declares one; exported decoder graphs expect it at position zero.
func (t *Tokenizer) Encode(text string) ([]int, error) {
	enc, err := t.tk.EncodeSingle(text, false)
	if err != nil {
		return nil, fmt.Errorf("encoding prompt: %w", err)
	}
	ids := enc.Ids
	if t.bos >= 0 {
		out := make([]int, 0, len(ids)+1)
		out = append(out, t.bos)
		out = append(out, ids...)
		return out, nil
	}
	return append([]int(nil), ids...), nil
}

// Decode renders token ids back into text. Rendering stops at the first EOS
// token; special tokens are not rendered.
func (t *Tokenizer) Decode(ids []int) string {
	return t.tk.Decode(trimAtEOS(ids, t.eos), true)
}

// trimAtEOS cuts the sequence at the first occurrence of eos.
func trimAtEOS(ids []int, eos int) []int {
	if eos < 0 {
		return ids
	}
	for i, id := range ids {
		if id == eos {
			return ids[:i]
		}
	}
	return ids
}
