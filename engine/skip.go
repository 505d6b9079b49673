package engine

import (
	"github.com/arnodel/jsonproj/token"
)

const (
	// DefaultWindowSize is the window used by ExecuteChunked when none
	// is given.
	DefaultWindowSize = 64 * 1024

	// MinWindowSize is the smallest window ExecuteChunked will use.
	MinWindowSize = 4 * 1024
)

// skipLevel tracks one open container inside a skipped subtree: whether
// it is an array and how many keys (colons) or separators (commas) have
// been seen in it, for the fan-out guard.
type skipLevel struct {
	isArray bool
	count   int
}

func (e *Engine) enterSkip(isArray bool) {
	e.skipLevels = append(e.skipLevels[:0], skipLevel{isArray: isArray})
	e.skipString = false
	e.skipEscape = false
}

// skipToken consumes one token of a skipped subtree. Only structural
// nesting and fan-out counts are tracked; scalar content is discarded.
func (e *Engine) skipToken(tok *token.Token) error {
	e.skipped += tok.End - tok.Start
	switch tok.Kind {
	case token.LBrace:
		return e.skipOpen(false, tok.Start)
	case token.LBracket:
		return e.skipOpen(true, tok.Start)
	case token.RBrace, token.RBracket:
		e.skipClose()
	case token.Colon:
		return e.skipColon(tok.Start)
	case token.Comma:
		return e.skipComma(tok.Start)
	}
	return nil
}

func (e *Engine) skipOpen(isArray bool, offset int64) error {
	if e.guard != nil && len(e.sels)+len(e.skipLevels)+1 > e.guard.MaxDepth {
		return &FanOutError{Kind: FanOutDepth, Offset: offset}
	}
	e.skipLevels = append(e.skipLevels, skipLevel{isArray: isArray})
	return nil
}

func (e *Engine) skipClose() {
	e.skipLevels = e.skipLevels[:len(e.skipLevels)-1]
	if len(e.skipLevels) == 0 {
		// The skipped structure has ended; the engine resumes normal
		// lexing with no pending key.
		e.hasPendingKey = false
	}
}

// skipColon counts one object key. Inside a skipped subtree keys are
// counted by their colons rather than by key tokens.
func (e *Engine) skipColon(offset int64) error {
	if e.guard == nil || len(e.skipLevels) == 0 {
		return nil
	}
	top := &e.skipLevels[len(e.skipLevels)-1]
	if top.isArray {
		return nil
	}
	top.count++
	if top.count > e.guard.MaxObjectKeys {
		return &FanOutError{Kind: FanOutObjectKeys, Offset: offset}
	}
	return nil
}

// skipComma counts one array separator: n commas mean n+1 elements.
func (e *Engine) skipComma(offset int64) error {
	if e.guard == nil || len(e.skipLevels) == 0 {
		return nil
	}
	top := &e.skipLevels[len(e.skipLevels)-1]
	if !top.isArray {
		return nil
	}
	top.count++
	if top.count+1 > e.guard.MaxArraySize {
		return &FanOutError{Kind: FanOutArraySize, Offset: offset}
	}
	return nil
}

// ExecuteChunked processes buf in fixed-size windows. When a window
// starts with the engine inside a skipped subtree and the tokenizer
// idle, the window is scanned at byte level, tracking only nesting and
// string state, without entering the tokenizer. The output is
// bitwise-identical to Execute(buf).
func (e *Engine) ExecuteChunked(buf []byte, window int) error {
	if window <= 0 {
		window = DefaultWindowSize
	}
	if window < MinWindowSize {
		window = MinWindowSize
	}
	off := 0
	for off < len(buf) {
		end := off + window
		if end > len(buf) {
			end = len(buf)
		}
		if len(e.skipLevels) > 0 && e.tz.Idle() {
			if e.err != nil {
				return e.err
			}
			win := buf[off:end]
			base := e.tz.Pos()
			if err := e.poll(); err != nil {
				return e.fail(err)
			}
			n, err := e.scanSkip(win, base)
			// Only the scanned bytes are recorded for raw capture; the
			// rest of the window is fed again from off+n.
			e.noteChunk(win[:n], base)
			e.tz.SkipAhead(int64(n))
			e.skipped += int64(n)
			if err != nil {
				return e.fail(err)
			}
			off += n
			continue
		}
		if err := e.ProcessChunk(buf[off:end]); err != nil {
			return err
		}
		off = end
	}
	return e.Finish()
}

// scanSkip scans bytes of a skipped subtree, returning how many were
// consumed. It stops early when the skipped structure closes. String
// and escape state persist across windows.
func (e *Engine) scanSkip(win []byte, base int64) (int, error) {
	for i := 0; i < len(win); i++ {
		b := win[i]
		if e.skipString {
			if e.skipEscape {
				e.skipEscape = false
				continue
			}
			switch b {
			case '\\':
				e.skipEscape = true
			case '"':
				e.skipString = false
			}
			continue
		}
		switch b {
		case '"':
			e.skipString = true
		case '{':
			if err := e.skipOpen(false, base+int64(i)); err != nil {
				return i, err
			}
		case '[':
			if err := e.skipOpen(true, base+int64(i)); err != nil {
				return i, err
			}
		case '}', ']':
			e.skipClose()
			if len(e.skipLevels) == 0 {
				return i + 1, nil
			}
		case ':':
			if err := e.skipColon(base + int64(i)); err != nil {
				return i, err
			}
		case ',':
			if err := e.skipComma(base + int64(i)); err != nil {
				return i, err
			}
		}
	}
	return len(win), nil
}
