// Package tokenizer turns a stream of byte chunks into a stream of JSON
// tokens. It is incremental: a token may start in one chunk and end in
// a later one, and the internal state survives between Feed calls. The
// hot path does not allocate.
package tokenizer

import (
	"bytes"
	"strconv"

	"github.com/arnodel/jsonproj/token"
)

const (
	// pollInterval is the number of bytes processed between checks of
	// the cancellation flag and the budget hook.
	pollInterval = 32 * 1024

	// accumSize is the initial capacity of the accumulator buffer.
	accumSize = 64 * 1024

	maxInternLen     = 32
	maxInternEntries = 500
)

type state uint8

const (
	stateIdle state = iota
	stateString
	stateStringEscape
	stateNumber
	stateLiteral
)

var (
	litTrue  = []byte("true")
	litFalse = []byte("false")
	litNull  = []byte("null")
)

// A TokenConsumer is called once per completed token. The record it
// receives is reused by the tokenizer, so implementations must copy any
// field they want to keep before returning. Returning a non-nil error
// stops tokenization.
type TokenConsumer func(*token.Token) error

// A Tokenizer scans byte chunks into JSON tokens. The zero value is not
// ready to use, call New. It is not safe for concurrent use.
type Tokenizer struct {
	state state

	// pos is the logical offset of the next byte to process, counted
	// from the start of the stream across all chunks.
	pos int64

	// start is the offset of the first byte of the token in progress.
	start int64

	accum []byte

	// literal target for stateLiteral
	lit     []byte
	litKind token.Kind

	// integer fast path for stateNumber
	intOK  bool
	neg    bool
	intVal int64
	digits int

	tok    token.Token
	intern map[string]string

	// Cancelled, when non-nil, is polled every pollInterval bytes.
	// Returning true stops processing with an AbortError.
	Cancelled func() bool

	// CheckBudget, when non-nil, is polled at the same cadence as
	// Cancelled. A non-nil return value stops processing and is
	// returned to the caller as is.
	CheckBudget func() error
}

// New returns a Tokenizer ready to process a stream starting at
// position 0.
func New() *Tokenizer {
	return &Tokenizer{
		accum:  make([]byte, 0, accumSize),
		intern: make(map[string]string, maxInternEntries),
	}
}

// Reset clears the scanning state so the next chunk is treated as the
// start of a new stream at position 0. The string intern cache is kept.
func (t *Tokenizer) Reset() {
	t.state = stateIdle
	t.pos = 0
	t.start = 0
	t.accum = t.accum[:0]
	t.intOK = false
	t.neg = false
	t.intVal = 0
	t.digits = 0
}

// Pos returns the logical offset of the next byte to be processed.
func (t *Tokenizer) Pos() int64 {
	return t.pos
}

// Idle reports whether no token is in progress, so the next byte can
// safely be examined without tokenizer context.
func (t *Tokenizer) Idle() bool {
	return t.state == stateIdle
}

// SkipAhead advances the logical position by n bytes without examining
// them. The caller must have established (e.g. with a byte-level scan)
// that the skipped range contains no byte the tokenizer needs to see.
// Only valid while Idle.
func (t *Tokenizer) SkipAhead(n int64) {
	t.pos += n
}

// Feed processes the next chunk of the stream, invoking onToken exactly
// once per completed token. It may consume the whole chunk without
// producing any token when all bytes belong to an in-progress string,
// number or literal.
func (t *Tokenizer) Feed(chunk []byte, onToken TokenConsumer) error {
	for i := 0; i < len(chunk); {
		if i%pollInterval == 0 {
			if err := t.poll(); err != nil {
				return err
			}
		}
		emitted, consumed, err := t.processByte(chunk[i])
		if err != nil {
			return err
		}
		if emitted {
			if err := onToken(&t.tok); err != nil {
				return err
			}
		}
		if consumed {
			i++
			t.pos++
		}
	}
	return nil
}

// Flush finalizes the stream: a number in progress is completed and
// emitted, an unclosed string or literal is dropped, and a final EOF
// token is produced. The tokenizer is left idle at its current
// position.
func (t *Tokenizer) Flush(onToken TokenConsumer) error {
	if t.state == stateNumber {
		emitted, err := t.finishNumber()
		if err != nil {
			return err
		}
		if emitted {
			if err := onToken(&t.tok); err != nil {
				return err
			}
		}
	}
	t.state = stateIdle
	t.tok = token.Token{Kind: token.EOF, Start: t.pos, End: t.pos}
	return onToken(&t.tok)
}

func (t *Tokenizer) poll() error {
	if t.Cancelled != nil && t.Cancelled() {
		return &AbortError{Offset: t.pos}
	}
	if t.CheckBudget != nil {
		if err := t.CheckBudget(); err != nil {
			return err
		}
	}
	return nil
}

// processByte advances the FSM by one byte. It reports whether a token
// was completed (available in t.tok) and whether the byte was consumed.
// A byte that terminates a number is not consumed and must be handed
// back to the FSM, which is then idle.
func (t *Tokenizer) processByte(b byte) (emitted bool, consumed bool, err error) {
	switch t.state {
	case stateIdle:
		switch b {
		case '{':
			t.emitStructural(token.LBrace)
			return true, true, nil
		case '}':
			t.emitStructural(token.RBrace)
			return true, true, nil
		case '[':
			t.emitStructural(token.LBracket)
			return true, true, nil
		case ']':
			t.emitStructural(token.RBracket)
			return true, true, nil
		case ':':
			t.emitStructural(token.Colon)
			return true, true, nil
		case ',':
			t.emitStructural(token.Comma)
			return true, true, nil
		case '"':
			t.state = stateString
			t.start = t.pos
			t.accum = t.accum[:0]
			return false, true, nil
		case 't':
			t.startLiteral(litTrue, token.True, b)
			return false, true, nil
		case 'f':
			t.startLiteral(litFalse, token.False, b)
			return false, true, nil
		case 'n':
			t.startLiteral(litNull, token.Null, b)
			return false, true, nil
		}
		if b == '-' || (b >= '0' && b <= '9') {
			t.state = stateNumber
			t.start = t.pos
			t.accum = append(t.accum[:0], b)
			t.intOK = true
			t.neg = b == '-'
			t.intVal = 0
			t.digits = 0
			if b != '-' {
				t.intVal = int64(b - '0')
				t.digits = 1
			}
			return false, true, nil
		}
		// Whitespace and anything else between tokens is ignored.
		return false, true, nil

	case stateString:
		switch b {
		case '"':
			t.state = stateIdle
			t.tok = token.Token{
				Kind:  token.String,
				Start: t.start,
				End:   t.pos + 1,
				Str:   t.internString(t.accum),
			}
			return true, true, nil
		case '\\':
			t.accum = append(t.accum, b)
			t.state = stateStringEscape
			return false, true, nil
		default:
			t.accum = append(t.accum, b)
			return false, true, nil
		}

	case stateStringEscape:
		// Escape bodies are kept verbatim rather than expanded, so the
		// decoded value of "a\nb" contains the two bytes `\` `n`. This
		// keeps decoded strings byte-aligned with the source.
		t.accum = append(t.accum, b)
		t.state = stateString
		return false, true, nil

	case stateNumber:
		switch {
		case b >= '0' && b <= '9':
			t.accum = append(t.accum, b)
			if t.intOK {
				if t.digits >= 18 {
					// A 19th digit may overflow int64; parse as float.
					t.intOK = false
				} else {
					t.intVal = t.intVal*10 + int64(b-'0')
					t.digits++
				}
			}
			return false, true, nil
		case b == '.' || b == 'e' || b == 'E' || b == '+' || b == '-':
			t.accum = append(t.accum, b)
			t.intOK = false
			return false, true, nil
		default:
			emitted, err := t.finishNumber()
			// The terminating byte is re-examined by the caller.
			return emitted, false, err
		}

	case stateLiteral:
		t.accum = append(t.accum, b)
		if len(t.accum) < len(t.lit) {
			return false, true, nil
		}
		if !bytes.Equal(t.accum, t.lit) {
			return false, false, &TokenizationError{
				Offset: t.start,
				Msg:    "invalid literal " + strconv.Quote(string(t.accum)),
			}
		}
		t.state = stateIdle
		t.tok = token.Token{Kind: t.litKind, Start: t.start, End: t.pos + 1}
		return true, true, nil
	}
	panic("invalid tokenizer state")
}

func (t *Tokenizer) emitStructural(kind token.Kind) {
	t.tok = token.Token{Kind: kind, Start: t.pos, End: t.pos + 1}
}

func (t *Tokenizer) startLiteral(target []byte, kind token.Kind, b byte) {
	t.state = stateLiteral
	t.start = t.pos
	t.accum = append(t.accum[:0], b)
	t.lit = target
	t.litKind = kind
}

func (t *Tokenizer) finishNumber() (bool, error) {
	t.state = stateIdle
	var num float64
	if t.intOK && t.digits > 0 {
		num = float64(t.intVal)
		if t.neg {
			num = -num
		}
	} else {
		var err error
		num, err = strconv.ParseFloat(string(t.accum), 64)
		if err != nil {
			return false, &TokenizationError{
				Offset: t.start,
				Msg:    "invalid number " + strconv.Quote(string(t.accum)),
			}
		}
	}
	t.tok = token.Token{
		Kind:  token.Number,
		Start: t.start,
		End:   t.start + int64(len(t.accum)),
		Num:   num,
	}
	return true, nil
}

// internString returns the accumulator content as a string, going
// through a bounded cache for short strings so repeated keys share one
// allocation.
func (t *Tokenizer) internString(b []byte) string {
	if len(b) >= maxInternLen {
		return string(b)
	}
	if s, ok := t.intern[string(b)]; ok {
		return s
	}
	s := string(b)
	if len(t.intern) < maxInternEntries {
		t.intern[s] = s
	}
	return s
}
