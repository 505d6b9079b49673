package tokenizer

import "github.com/arnodel/jsonproj/token"

// An Iterator is a pull-style view over the tokens of one chunk. Unlike
// the Feed callback form, each call to Next returns a fresh token
// record that the caller may keep.
type Iterator struct {
	t     *Tokenizer
	chunk []byte
	i     int
	done  bool
}

// Tokens returns an iterator over the tokens completed while processing
// chunk. Tokenizer state carries over from previous Feed or Tokens
// calls, so a token started in an earlier chunk can complete here.
func (t *Tokenizer) Tokens(chunk []byte) *Iterator {
	return &Iterator{t: t, chunk: chunk}
}

// Next returns the next completed token, or nil when the chunk is
// exhausted. Exhaustion is not an error: the tokenizer may be holding
// an incomplete token awaiting further input.
func (it *Iterator) Next() (*token.Token, error) {
	if it.done {
		return nil, nil
	}
	t := it.t
	for it.i < len(it.chunk) {
		if it.i%pollInterval == 0 {
			if err := t.poll(); err != nil {
				it.done = true
				return nil, err
			}
		}
		emitted, consumed, err := t.processByte(it.chunk[it.i])
		if err != nil {
			it.done = true
			return nil, err
		}
		if consumed {
			it.i++
			t.pos++
		}
		if emitted {
			tok := t.tok
			return &tok, nil
		}
	}
	it.done = true
	return nil, nil
}
