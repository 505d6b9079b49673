// Package engine implements selection-driven projection of streaming
// JSON. An Engine consumes the token stream of a byte sequence and
// builds the projection described by a selection tree, skipping over
// unselected subtrees without materializing them. Matches are delivered
// to a Sink either as built containers or as raw source bytes.
//
// An Engine is single-flow: it must not be shared between concurrent
// executions. The selection tree it is built from is read-only and may
// be shared freely.
package engine

import (
	"sync/atomic"
	"time"

	"github.com/arnodel/jsonproj/internal/debug"
	"github.com/arnodel/jsonproj/selection"
	"github.com/arnodel/jsonproj/token"
	"github.com/arnodel/jsonproj/tokenizer"
)

// Mode selects how matches are delivered to the sink.
type Mode uint8

const (
	// ModeObject delivers each match as a materialized container or
	// value.
	ModeObject Mode = iota

	// ModeRaw delivers the exact source bytes of each match. The
	// materialized result is still built and observable via Result.
	ModeRaw
)

// A Budget bounds an execution. Zero values mean unlimited.
type Budget struct {
	MaxMatches  int64
	MaxBytes    int64
	MaxDuration time.Duration
}

// A Guard bounds the fan-out of the input: nesting depth, array width
// and object width. It applies inside skipped subtrees too.
type Guard struct {
	MaxDepth      int
	MaxArraySize  int
	MaxObjectKeys int
}

// DefaultGuard returns the standard fan-out limits.
func DefaultGuard() Guard {
	return Guard{MaxDepth: 100, MaxArraySize: 100000, MaxObjectKeys: 10000}
}

// An Option configures an Engine at construction time.
type Option func(*Engine)

// WithMode selects the emission mode. It cannot be changed once the
// engine is built.
func WithMode(mode Mode) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithBudget bounds the execution.
func WithBudget(budget Budget) Option {
	return func(e *Engine) { e.budget = budget }
}

// WithGuard enables the fan-out guard.
func WithGuard(guard Guard) Option {
	return func(e *Engine) { e.guard = &guard }
}

// WithSink sets the output sink.
func WithSink(sink Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// An Engine projects one JSON document (or stream position) against a
// selection tree.
type Engine struct {
	root   *selection.Node
	mode   Mode
	budget Budget
	guard  *Guard
	sink   Sink

	tz *tokenizer.Tokenizer

	// Parallel stacks, one entry per open container. sels holds the
	// selection node active at that depth, results the container being
	// built, inArray whether it is an array, keys the output key under
	// which it attaches to its parent, counts the number of input
	// elements or keys seen so far.
	sels    []*selection.Node
	results []any
	inArray []bool
	keys    []string
	counts  []int

	pendingKey    string
	hasPendingKey bool

	skipLevels []skipLevel
	skipString bool
	skipEscape bool

	raw      rawCapture
	curChunk []byte
	curBase  int64

	matched int64
	skipped int64
	started time.Time

	cancelled atomic.Bool

	finalResult any
	hasFinal    bool

	err error
}

// New returns an Engine projecting against sel.
func New(sel *selection.Tree, opts ...Option) *Engine {
	e := &Engine{
		root:    &selection.Node{Children: sel},
		tz:      tokenizer.New(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tz.Cancelled = e.cancelled.Load
	e.tz.CheckBudget = e.checkBudget
	return e
}

// Reset clears all execution state so the engine can process a new
// document with the same selection, mode, budget and sink.
func (e *Engine) Reset() {
	e.tz.Reset()
	e.sels = e.sels[:0]
	e.results = e.results[:0]
	e.inArray = e.inArray[:0]
	e.keys = e.keys[:0]
	e.counts = e.counts[:0]
	e.hasPendingKey = false
	e.skipLevels = e.skipLevels[:0]
	e.skipString = false
	e.skipEscape = false
	e.raw.reset()
	e.curChunk = nil
	e.curBase = 0
	e.matched = 0
	e.skipped = 0
	e.started = time.Now()
	e.cancelled.Store(false)
	e.finalResult = nil
	e.hasFinal = false
	e.err = nil
}

// Cancel requests a cooperative stop. The execution fails with an
// AbortError at the next check point.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// Result returns the projection built so far: the completed final
// output after a successful run, or the partially built root container
// after a controlled termination. Nil if nothing was built.
func (e *Engine) Result() any {
	if e.hasFinal {
		return e.finalResult
	}
	if len(e.results) > 0 {
		return e.results[0]
	}
	return nil
}

// Matched returns the number of matches emitted so far.
func (e *Engine) Matched() int64 {
	return e.matched
}

// Stats returns a telemetry snapshot of the execution so far.
func (e *Engine) Stats() Stats {
	processed := e.tz.Pos()
	elapsed := time.Since(e.started)
	var throughput float64
	if elapsed > 0 {
		throughput = float64(processed) / elapsed.Seconds() / (1 << 20)
	}
	var skipRatio float64
	if processed > 0 {
		skipRatio = float64(e.skipped) / float64(processed)
	}
	return Stats{
		MatchedCount:   e.matched,
		ProcessedBytes: processed,
		Duration:       elapsed,
		ThroughputMBps: throughput,
		SkipRatio:      skipRatio,
	}
}

// Execute processes a whole buffer and finishes the stream.
func (e *Engine) Execute(buf []byte) error {
	if err := e.ProcessChunk(buf); err != nil {
		return err
	}
	return e.Finish()
}

// ProcessChunk processes the next chunk of the stream.
func (e *Engine) ProcessChunk(chunk []byte) error {
	if e.err != nil {
		return e.err
	}
	e.noteChunk(chunk, e.tz.Pos())
	if err := e.tz.Feed(chunk, e.processToken); err != nil {
		return e.fail(err)
	}
	return nil
}

// Finish signals the end of the stream: a trailing number is completed,
// final stats are reported and the sink is drained. Unbalanced input is
// not an error; whatever was built remains observable via Result.
func (e *Engine) Finish() error {
	if e.err != nil {
		return e.err
	}
	if err := e.tz.Flush(e.processToken); err != nil {
		return e.fail(err)
	}
	if e.sink != nil {
		e.sink.Stats(e.Stats())
		e.sink.Drain()
	}
	return nil
}

func (e *Engine) fail(err error) error {
	e.err = err
	return err
}

func (e *Engine) checkBudget() error {
	if e.budget.MaxBytes > 0 && e.tz.Pos() > e.budget.MaxBytes {
		return &BudgetExhaustedError{Kind: BudgetBytes, Offset: e.tz.Pos()}
	}
	if e.budget.MaxDuration > 0 && time.Since(e.started) > e.budget.MaxDuration {
		return &BudgetExhaustedError{Kind: BudgetDuration, Offset: e.tz.Pos()}
	}
	return nil
}

func (e *Engine) poll() error {
	if e.cancelled.Load() {
		return &tokenizer.AbortError{Offset: e.tz.Pos()}
	}
	return e.checkBudget()
}

func (e *Engine) noteChunk(chunk []byte, base int64) {
	e.curChunk = chunk
	e.curBase = base
	if e.raw.active {
		e.raw.add(chunk, base)
	}
}

func (e *Engine) processToken(tok *token.Token) error {
	if len(e.skipLevels) > 0 {
		return e.skipToken(tok)
	}
	switch tok.Kind {
	case token.LBrace, token.LBracket:
		return e.structureStart(tok)
	case token.RBrace, token.RBracket:
		return e.structureEnd(tok)
	case token.String, token.Number, token.True, token.False, token.Null:
		return e.valueToken(tok)
	case token.Comma:
		// In an object a comma always precedes a fresh key; dropping a
		// stray pending key here lets scanning recover when it starts
		// mid-document (see ExecuteIndexed).
		if n := len(e.inArray); n > 0 && !e.inArray[n-1] {
			e.hasPendingKey = false
		}
	}
	// Colon and EOF carry no state outside skip mode.
	return nil
}

func (e *Engine) push(sel *selection.Node, result any, isArray bool, key string) {
	e.sels = append(e.sels, sel)
	e.results = append(e.results, result)
	e.inArray = append(e.inArray, isArray)
	e.keys = append(e.keys, key)
	e.counts = append(e.counts, 0)
}

func (e *Engine) pop() {
	n := len(e.sels) - 1
	e.sels = e.sels[:n]
	e.results = e.results[:n]
	e.inArray = e.inArray[:n]
	e.keys = e.keys[:n]
	e.counts = e.counts[:n]
}

func (e *Engine) structureStart(tok *token.Token) error {
	isArray := tok.Kind == token.LBracket
	depth := len(e.sels)

	if e.guard != nil && depth+1 > e.guard.MaxDepth {
		return &FanOutError{Kind: FanOutDepth, Offset: tok.Start}
	}

	if depth == 0 {
		var result any
		if isArray {
			result = NewArray()
		} else {
			result = NewObject()
			e.beginRawCapture(tok.Start)
		}
		e.push(e.root, result, isArray, "")
		e.hasPendingKey = false
		return nil
	}

	parentSel := e.sels[depth-1]
	if e.inArray[depth-1] {
		// Array elements inherit the array's selection.
		if err := e.countElement(depth-1, tok.Start); err != nil {
			return err
		}
		child := newContainer(isArray)
		e.results[depth-1].(*Array).Append(child)
		if depth == 1 {
			e.beginRawCapture(tok.Start)
		}
		e.push(parentSel, child, isArray, "")
		e.hasPendingKey = false
		return nil
	}

	if !e.hasPendingKey {
		// A container with no key to attach under cannot be part of
		// the projection; consume it like an unselected subtree.
		e.enterSkip(isArray)
		return nil
	}
	key := e.pendingKey
	e.hasPendingKey = false

	node, ok := lookupChild(parentSel, key)
	if !ok {
		debug.Printf("skipping subtree at key %q (offset %d)", key, tok.Start)
		e.enterSkip(isArray)
		return nil
	}
	outputKey := node.OutputKey(key)
	child := newContainer(isArray)
	e.results[depth-1].(*Object).Set(outputKey, child)
	e.push(node, child, isArray, outputKey)
	return nil
}

func (e *Engine) structureEnd(tok *token.Token) error {
	depth := len(e.sels)
	if depth == 0 {
		return &StructuralError{Offset: tok.Start, Msg: "unexpected closing bracket"}
	}
	isArray := e.inArray[depth-1]
	if isArray != (tok.Kind == token.RBracket) {
		return &StructuralError{Offset: tok.Start, Msg: "mismatched closing bracket"}
	}

	sel := e.sels[depth-1]
	result := e.results[depth-1]
	if obj, ok := result.(*Object); ok {
		synthesizeDefaults(sel, obj)
	}

	e.pop()
	e.hasPendingKey = false

	if len(e.sels) == 0 {
		e.finalResult = result
		e.hasFinal = true
		if !isArray {
			// The root object is the single match of the run.
			return e.emit(result, tok.End)
		}
		// Root array: elements were emitted one by one already.
		return nil
	}
	if len(e.sels) == 1 && e.inArray[0] {
		return e.emit(result, tok.End)
	}
	return nil
}

func (e *Engine) valueToken(tok *token.Token) error {
	depth := len(e.sels)
	if depth == 0 {
		// A bare scalar document is its own projection.
		e.finalResult = tok.Value()
		e.hasFinal = true
		return nil
	}
	sel := e.sels[depth-1]
	if e.inArray[depth-1] {
		if err := e.countElement(depth-1, tok.Start); err != nil {
			return err
		}
		// A selection with children projects objects; scalar elements
		// are not part of its shape.
		if sel.Children != nil {
			return nil
		}
		value := applyDirectives(sel.Directives, tok.Value())
		e.results[depth-1].(*Array).Append(value)
		return nil
	}

	if !e.hasPendingKey {
		if tok.Kind == token.String {
			e.pendingKey = tok.Str
			e.hasPendingKey = true
			return e.countKey(depth-1, tok.Start)
		}
		// A value with no key to attach under is silently discarded.
		return nil
	}
	key := e.pendingKey
	e.hasPendingKey = false

	node, ok := lookupChild(sel, key)
	if !ok {
		return nil
	}
	value := applyDirectives(node.Directives, tok.Value())
	e.results[depth-1].(*Object).Set(node.OutputKey(key), value)
	return nil
}

func (e *Engine) countElement(depth int, offset int64) error {
	e.counts[depth]++
	if e.guard != nil && e.counts[depth] > e.guard.MaxArraySize {
		return &FanOutError{Kind: FanOutArraySize, Offset: offset}
	}
	return nil
}

func (e *Engine) countKey(depth int, offset int64) error {
	e.counts[depth]++
	if e.guard != nil && e.counts[depth] > e.guard.MaxObjectKeys {
		return &FanOutError{Kind: FanOutObjectKeys, Offset: offset}
	}
	return nil
}

func (e *Engine) emit(value any, end int64) error {
	if e.budget.MaxMatches > 0 && e.matched+1 > e.budget.MaxMatches {
		return &BudgetExhaustedError{Kind: BudgetMatches, Offset: end}
	}
	e.matched++
	if e.mode == ModeRaw {
		data := e.raw.assemble(end)
		e.raw.reset()
		if e.sink != nil {
			e.sink.RawMatch(data)
		}
		return nil
	}
	if e.sink != nil {
		e.sink.Match(value)
	}
	return nil
}

func (e *Engine) beginRawCapture(start int64) {
	if e.mode != ModeRaw {
		return
	}
	e.raw.begin(start, e.curChunk, e.curBase)
}

// lookupChild resolves key in the children of sel. A leaf selection
// accepts the subtree it sits on but selects none of its children.
func lookupChild(sel *selection.Node, key string) (*selection.Node, bool) {
	if sel.Children == nil {
		return nil, false
	}
	return sel.Children.Get(key)
}

// synthesizeDefaults inserts, for every selected key carrying a default
// directive, the default value when the key is absent from the built
// object.
func synthesizeDefaults(sel *selection.Node, obj *Object) {
	if sel.Children == nil {
		return
	}
	for _, key := range sel.Children.Keys() {
		node, _ := sel.Children.Get(key)
		if node.Directive("default") == nil {
			continue
		}
		outputKey := node.OutputKey(key)
		if _, present := obj.Get(outputKey); !present {
			obj.Set(outputKey, applyDirectives(node.Directives, nil))
		}
	}
}

func newContainer(isArray bool) any {
	if isArray {
		return NewArray()
	}
	return NewObject()
}
