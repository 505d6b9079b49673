package sink

import (
	"fmt"
	"io"
)

// A printer lays out output on an io.Writer with a configurable indent
// width. An indent width below zero suppresses line breaks entirely so
// the whole value is laid out on one line; zero keeps line breaks but
// indents nothing.
//
// Write errors are exceptional here, so the methods do not return one.
// Implementations panic with a *printError instead, and printing entry
// points capture it with
//
//	defer catchPrintError(&err)
type printer struct {
	io.Writer
	indentSize  int
	indentLevel int
}

// A printError carries an error encountered while sending output.
type printError struct {
	err error
}

func (e *printError) Error() string {
	return fmt.Sprintf("output error: %s", e.err)
}

func (e *printError) Unwrap() error {
	return e.err
}

// catchPrintError recovers a panicking *printError into err. Any other
// panic value is re-raised.
func catchPrintError(err *error) {
	if r := recover(); r != nil {
		perr, ok := r.(*printError)
		if !ok {
			panic(r)
		}
		if *err == nil {
			*err = perr
		}
	}
}

// newLine outputs '\n' followed by the spaces of the current
// indentation level.
func (p *printer) newLine() {
	if p.indentSize < 0 {
		return
	}
	p.printBytes(newline)
	for i := p.indentSize * p.indentLevel; i > 0; i-- {
		p.printBytes(space)
	}
}

// indent increments the indentation level and starts a new line.
func (p *printer) indent() {
	p.indentLevel++
	p.newLine()
}

// dedent decrements the indentation level and starts a new line.
func (p *printer) dedent() {
	p.indentLevel--
	p.newLine()
}

// printBytes sends the given bytes verbatim to the printer's writer.
func (p *printer) printBytes(b []byte) {
	_, err := p.Write(b)
	if err != nil {
		panic(&printError{err: err})
	}
}

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)
