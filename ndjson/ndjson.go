// Package ndjson drives the projection engine over line-delimited
// JSON. Each line is an independent document projected with a fresh
// engine state; failures carry 1-based line numbers and can either
// stop the run or be skipped with a callback.
package ndjson

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tliron/commonlog"

	"github.com/arnodel/jsonproj/engine"
	"github.com/arnodel/jsonproj/selection"
)

var log = commonlog.GetLogger("jsonproj.ndjson")

const (
	// DefaultMaxLineLength caps a single input line at 1 MiB unless
	// configured otherwise.
	DefaultMaxLineLength = 1 << 20

	// errContentCap bounds how much of an offending line a LineError
	// carries.
	errContentCap = 120
)

// ErrLineTooLong reports a line exceeding the configured cap.
var ErrLineTooLong = errors.New("line too long")

// A LineError wraps a failure on one input line.
type LineError struct {
	Line    int
	Content string
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// An Option configures a Driver.
type Option func(*Driver)

// WithMaxLineLength caps the byte length of a single line.
func WithMaxLineLength(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxLineLength = n
		}
	}
}

// WithSkipErrors keeps the run going past failing lines. Each failure
// is logged and reported to onError when it is not nil.
func WithSkipErrors(onError func(*LineError)) Option {
	return func(d *Driver) {
		d.skipErrors = true
		d.onError = onError
	}
}

// WithSink sets the sink receiving the matches of every line.
func WithSink(sink engine.Sink) Option {
	return func(d *Driver) { d.sink = sink }
}

// WithEngineOptions forwards options to the per-line engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(d *Driver) { d.engineOpts = opts }
}

// A Driver projects every line of a line-delimited stream against one
// selection tree.
type Driver struct {
	tree          *selection.Tree
	sink          engine.Sink
	maxLineLength int
	skipErrors    bool
	onError       func(*LineError)
	engineOpts    []engine.Option
}

// NewDriver returns a Driver projecting against tree.
func NewDriver(tree *selection.Tree, opts ...Option) *Driver {
	d := &Driver{
		tree:          tree,
		maxLineLength: DefaultMaxLineLength,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// lineSink forwards matches to the run's sink but keeps per-line stats
// and drain signals out of it; the driver reports aggregates once at
// the end of the run.
type lineSink struct {
	inner        engine.Sink
	matched      int64
	processed    int64
	skippedBytes float64
}

func (s *lineSink) Match(value any) {
	if s.inner != nil {
		s.inner.Match(value)
	}
}

func (s *lineSink) RawMatch(data []byte) {
	if s.inner != nil {
		s.inner.RawMatch(data)
	}
}

func (s *lineSink) Stats(stats engine.Stats) {
	s.matched += stats.MatchedCount
	s.processed += stats.ProcessedBytes
	s.skippedBytes += stats.SkipRatio * float64(stats.ProcessedBytes)
}

func (s *lineSink) Drain() {}

// Run reads r line by line until EOF, projecting each non-blank line.
// The context is checked between lines; cancellation surfaces as the
// context's error.
func (d *Driver) Run(ctx context.Context, r io.Reader) error {
	sc := NewScanner(r, d.maxLineLength)
	agg := &lineSink{inner: d.sink}
	opts := append(append([]engine.Option{}, d.engineOpts...), engine.WithSink(agg))
	e := engine.New(d.tree, opts...)

	lineNo := 0
	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, tooLong, err := sc.Scan()
		if err != nil && err != io.EOF {
			return fmt.Errorf("read input: %w", err)
		}
		atEOF := err == io.EOF
		if atEOF && len(content) == 0 && !tooLong {
			break
		}
		lineNo++
		if lerr := d.runLine(e, lineNo, content, tooLong); lerr != nil {
			if !d.skipErrors {
				return lerr
			}
			log.Errorf("skipping line %d: %s", lerr.Line, lerr.Err)
			if d.onError != nil {
				d.onError(lerr)
			}
		}
		if atEOF {
			break
		}
	}

	if d.sink != nil {
		elapsed := time.Since(start)
		stats := engine.Stats{
			MatchedCount:   agg.matched,
			ProcessedBytes: agg.processed,
			Duration:       elapsed,
		}
		if elapsed > 0 {
			stats.ThroughputMBps = float64(agg.processed) / elapsed.Seconds() / (1 << 20)
		}
		if agg.processed > 0 {
			stats.SkipRatio = agg.skippedBytes / float64(agg.processed)
		}
		d.sink.Stats(stats)
		d.sink.Drain()
	}
	log.Debugf("processed %d lines, %d matches", lineNo, agg.matched)
	return nil
}

func (d *Driver) runLine(e *engine.Engine, lineNo int, content []byte, tooLong bool) *LineError {
	if tooLong {
		return &LineError{Line: lineNo, Content: truncate(content), Err: ErrLineTooLong}
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}
	e.Reset()
	if err := e.Execute(content); err != nil {
		return &LineError{Line: lineNo, Content: truncate(content), Err: err}
	}
	return nil
}

// A Scanner splits a byte stream into lines of bounded length. Unlike
// bufio.Scanner it keeps going after an overlong line, reporting it
// instead of stopping the whole stream.
type Scanner struct {
	br  *bufio.Reader
	max int
}

// NewScanner returns a Scanner capping lines at maxLineLength bytes.
func NewScanner(r io.Reader, maxLineLength int) *Scanner {
	if maxLineLength <= 0 {
		maxLineLength = DefaultMaxLineLength
	}
	return &Scanner{br: bufio.NewReaderSize(r, 64*1024), max: maxLineLength}
}

// Scan reads up to the next newline, stripping the line terminator.
// When the line exceeds the cap the remainder is discarded and tooLong
// is set; the returned content then holds only the line's head. The
// returned slice is freshly allocated and owned by the caller. At end
// of input err is io.EOF; content may still hold a final unterminated
// line.
func (s *Scanner) Scan() (content []byte, tooLong bool, err error) {
	return readLine(s.br, s.max)
}

func readLine(br *bufio.Reader, max int) (content []byte, tooLong bool, err error) {
	for {
		frag, readErr := br.ReadSlice('\n')
		if len(frag) > 0 && frag[len(frag)-1] == '\n' {
			frag = frag[:len(frag)-1]
			if len(frag) > 0 && frag[len(frag)-1] == '\r' {
				frag = frag[:len(frag)-1]
			}
			content = appendCapped(content, frag, max, &tooLong)
			return content, tooLong, nil
		}
		content = appendCapped(content, frag, max, &tooLong)
		switch readErr {
		case bufio.ErrBufferFull:
			// Keep reading the same line.
		case io.EOF:
			return content, tooLong, io.EOF
		default:
			return content, tooLong, readErr
		}
	}
}

func appendCapped(dst, frag []byte, max int, tooLong *bool) []byte {
	if len(dst)+len(frag) > max {
		*tooLong = true
		if room := max - len(dst); room > 0 {
			dst = append(dst, frag[:room]...)
		}
		return dst
	}
	return append(dst, frag...)
}

func truncate(content []byte) string {
	if len(content) > errContentCap {
		return string(content[:errContentCap]) + "..."
	}
	return string(content)
}
