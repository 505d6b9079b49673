package engine

import (
	"github.com/arnodel/jsonproj/token"
	"github.com/arnodel/jsonproj/tokenizer"
)

// startSlack is how far before the earliest requested root key's colon
// the indexed entry point starts scanning, so the key string itself is
// picked up.
const startSlack = 50

// An Index maps the root-level keys of one immutable buffer to the
// byte offset of the colon following each key. It is ephemeral: it must
// be rebuilt whenever the buffer identity changes, and it is only valid
// for the buffer it was built from.
type Index struct {
	colons    map[string]int64
	keyStarts map[string]int64
}

// BuildIndex scans buf and records, for every root-level object key,
// the offset of the colon following it and the offset of the key's
// opening quote. For a buffer whose root is not an object the index is
// empty.
func BuildIndex(buf []byte) (*Index, error) {
	idx := &Index{colons: map[string]int64{}, keyStarts: map[string]int64{}}
	tz := tokenizer.New()
	depth := 0
	rootIsObject := false
	var pendingKey string
	var pendingStart int64
	hasKey := false
	err := tz.Feed(buf, func(tok *token.Token) error {
		switch tok.Kind {
		case token.LBrace, token.LBracket:
			if depth == 0 {
				rootIsObject = tok.Kind == token.LBrace
			}
			depth++
			hasKey = false
		case token.RBrace, token.RBracket:
			depth--
			hasKey = false
		case token.String:
			if depth == 1 && rootIsObject {
				pendingKey = tok.Str
				pendingStart = tok.Start
				hasKey = true
			}
		case token.Colon:
			if depth == 1 && rootIsObject && hasKey {
				if _, seen := idx.colons[pendingKey]; !seen {
					idx.colons[pendingKey] = tok.Start
					idx.keyStarts[pendingKey] = pendingStart
				}
				hasKey = false
			}
		default:
			hasKey = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// ColonOffset returns the colon offset recorded for a root key.
func (idx *Index) ColonOffset(key string) (int64, bool) {
	offset, ok := idx.colons[key]
	return offset, ok
}

// startFor returns the offset the engine can start scanning from when
// only the given root keys are selected, or 0 when starting from the
// top is required. A non-zero start always sits at a clean token
// boundary: the slack window before the earliest selected key is used
// only when the bytes in it tokenize as inter-member filler, otherwise
// the scan enters exactly at the key's opening quote.
func (idx *Index) startFor(buf []byte, keys []string) int64 {
	var minColon, entry int64 = -1, 0
	for _, key := range keys {
		offset, ok := idx.colons[key]
		if !ok {
			// A requested key is not in the buffer; scanning from the
			// top keeps default synthesis and error behavior intact.
			return 0
		}
		if minColon < 0 || offset < minColon {
			minColon = offset
			entry = idx.keyStarts[key]
		}
	}
	if minColon < 0 || entry < 1 {
		return 0
	}
	start := minColon - startSlack
	if start < 1 {
		return 0
	}
	if start >= entry {
		// A key longer than the slack: the window would land inside the
		// key string itself.
		return entry
	}
	if slackIsInert(buf[start:entry]) {
		return start
	}
	return entry
}

// slackIsInert reports whether a slack window resumes tokenization
// cleanly. Only whitespace and commas qualify; anything else may be the
// tail of a preceding value, such as the inside of a string.
func slackIsInert(window []byte) bool {
	for _, b := range window {
		switch b {
		case ' ', '\t', '\n', '\r', ',':
		default:
			return false
		}
	}
	return true
}

var openBrace = []byte("{")

// ExecuteIndexed projects buf using idx to skip ahead of the earliest
// selected root key instead of scanning from the top of the buffer. A
// synthetic opening brace replaces the skipped prefix. Results are the
// same as Execute(buf) for any selection: when no safe entry point can
// be established the whole buffer is scanned. The index must have been
// built from this exact buffer.
func (e *Engine) ExecuteIndexed(buf []byte, idx *Index) error {
	start := idx.startFor(buf, e.root.Children.Keys())
	if start <= 0 {
		return e.Execute(buf)
	}
	if err := e.ProcessChunk(openBrace); err != nil {
		return err
	}
	if err := e.ProcessChunk(buf[start:]); err != nil {
		return err
	}
	return e.Finish()
}
