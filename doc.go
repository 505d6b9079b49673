// Package jsonproj projects JSON documents through a selection query
// without materializing the parts the query does not ask for.
//
// The package is organized into several sub-packages:
//
// - selection: query parsing into a selection tree
// - token: JSON token types
// - tokenizer: incremental byte-stream tokenization
// - engine: the projection engine driving tokens through a selection
// - sink: output sinks (plain, indented, colorized, gzip)
// - ndjson: line-delimited stream driver
// - dispatch: parallel line dispatch over a worker pool
// - subscribe: push-style subscriptions fed by io.Writer chunks
// - config: YAML configuration for budgets, guards and drivers
//
// Input is consumed incrementally, so projection of a document starts
// producing matches before the document has been fully read and memory
// usage stays proportional to the selected output, not to the input.
//
// The CLI utility is in the directory cmd/jproj. You can install it with:
//
//	go install github.com/arnodel/jsonproj/cmd/jproj
//
// For one-off projections the top-level helpers cover the common case:
//
//	result, err := jsonproj.Project(`{id,name}`, data)
package jsonproj

import (
	"github.com/arnodel/jsonproj/engine"
	"github.com/arnodel/jsonproj/selection"
)

// Project runs query against a single JSON document and returns the
// projected value. Objects and arrays in the result are *engine.Object
// and *engine.Array; call their Interface method for plain Go values.
func Project(query string, data []byte) (any, error) {
	tree, err := selection.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	e := engine.New(tree)
	if err := e.Execute(data); err != nil {
		return nil, err
	}
	return e.Result(), nil
}

// ProjectRaw runs query against a single JSON document and returns the
// source bytes of each match verbatim.
func ProjectRaw(query string, data []byte) ([][]byte, error) {
	tree, err := selection.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	var raws [][]byte
	sink := engine.SinkFuncs{
		RawMatchFunc: func(span []byte) {
			raws = append(raws, append([]byte(nil), span...))
		},
	}
	e := engine.New(tree, engine.WithMode(engine.ModeRaw), engine.WithSink(sink))
	if err := e.Execute(data); err != nil {
		return nil, err
	}
	return raws, nil
}
