// Package sink provides output sinks for projection matches: a JSON
// writer with compact, indented and colorized layouts, and a gzip
// compression wrapper.
package sink

import (
	"io"

	"github.com/arnodel/jsonproj/engine"
)

// An Option configures a WriterSink.
type Option func(*WriterSink)

// WithIndent lays out each match over multiple lines, indenting nested
// containers by n spaces.
func WithIndent(n int) Option {
	return func(s *WriterSink) {
		s.p.indentSize = n
	}
}

// WithColor wraps keys and scalars in the colorizer's ANSI codes.
func WithColor(c *Colorizer) Option {
	return func(s *WriterSink) {
		s.color = c
	}
}

// A WriterSink writes each match to an io.Writer as a JSON document
// followed by a newline. The zero layout is compact; WithIndent selects
// an indented layout. Raw matches are written verbatim. Write errors
// are sticky: after the first one, remaining matches are dropped and
// Err reports it.
type WriterSink struct {
	p     printer
	color *Colorizer

	err      error
	last     engine.Stats
	hasStats bool
}

var _ engine.Sink = &WriterSink{}

// NewWriter returns a WriterSink writing to w.
func NewWriter(w io.Writer, opts ...Option) *WriterSink {
	s := &WriterSink{p: printer{Writer: w, indentSize: -1}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Err returns the first write error encountered, if any.
func (s *WriterSink) Err() error {
	return s.err
}

// LastStats returns the most recent telemetry snapshot.
func (s *WriterSink) LastStats() (engine.Stats, bool) {
	return s.last, s.hasStats
}

func (s *WriterSink) Match(value any) {
	if s.err != nil {
		return
	}
	defer catchPrintError(&s.err)
	s.p.indentLevel = 0
	s.printValue(value)
	s.p.printBytes(newline)
}

func (s *WriterSink) RawMatch(data []byte) {
	if s.err != nil {
		return
	}
	defer catchPrintError(&s.err)
	s.p.printBytes(data)
	s.p.printBytes(newline)
}

func (s *WriterSink) Stats(stats engine.Stats) {
	s.last = stats
	s.hasStats = true
}

// Drain flushes the underlying writer when it is buffered.
func (s *WriterSink) Drain() {
	f, ok := s.p.Writer.(interface{ Flush() error })
	if !ok {
		return
	}
	if err := f.Flush(); err != nil && s.err == nil {
		s.err = err
	}
}

func (s *WriterSink) printValue(v any) {
	switch x := v.(type) {
	case *engine.Object:
		s.printObject(x)
	case *engine.Array:
		s.printArray(x)
	default:
		s.color.printScalar(&s.p, classify(v), engine.MarshalValue(v))
	}
}

func (s *WriterSink) printObject(o *engine.Object) {
	members := o.Members()
	if len(members) == 0 {
		s.p.printBytes(emptyObject)
		return
	}
	s.p.printBytes(openBrace)
	s.p.indent()
	for i, member := range members {
		if i > 0 {
			s.p.printBytes(comma)
			s.p.newLine()
		}
		s.color.printKey(&s.p, engine.MarshalValue(member.Key))
		s.p.printBytes(colon)
		if s.p.indentSize >= 0 {
			s.p.printBytes(space)
		}
		s.printValue(member.Value)
	}
	s.p.dedent()
	s.p.printBytes(closeBrace)
}

func (s *WriterSink) printArray(a *engine.Array) {
	items := a.Items()
	if len(items) == 0 {
		s.p.printBytes(emptyArray)
		return
	}
	s.p.printBytes(openBracket)
	s.p.indent()
	for i, item := range items {
		if i > 0 {
			s.p.printBytes(comma)
			s.p.newLine()
		}
		s.printValue(item)
	}
	s.p.dedent()
	s.p.printBytes(closeBracket)
}

var (
	openBrace    = []byte{'{'}
	closeBrace   = []byte{'}'}
	openBracket  = []byte{'['}
	closeBracket = []byte{']'}
	colon        = []byte{':'}
	comma        = []byte{','}
	emptyObject  = []byte("{}")
	emptyArray   = []byte("[]")
)
