// Package dispatch shards a line-delimited JSON stream across a pool
// of workers, each running its own projection engine. Matches are
// delivered to a single sink, either in input order or as they arrive.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/arnodel/jsonproj/engine"
	"github.com/arnodel/jsonproj/ndjson"
	"github.com/arnodel/jsonproj/selection"
)

var log = commonlog.GetLogger("jsonproj.dispatch")

// Ordering selects how worker results are sequenced at the sink.
type Ordering int

const (
	// OrderingPreserve emits results in input line order. Lines that
	// complete ahead of their turn are held until every earlier line
	// has been delivered; this reorder window has no size limit of its
	// own. Only the results channel feeding it is bounded, at twice the
	// worker count.
	OrderingPreserve Ordering = iota

	// OrderingRelaxed emits results as workers complete them.
	OrderingRelaxed
)

// An Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of workers. Zero or negative picks
// runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = n }
}

// WithOrdering selects the result ordering mode.
func WithOrdering(o Ordering) Option {
	return func(p *Pool) { p.ordering = o }
}

// WithSink sets the sink receiving all matches. It is called from a
// single goroutine.
func WithSink(sink engine.Sink) Option {
	return func(p *Pool) { p.sink = sink }
}

// WithEngineOptions forwards options to every worker's engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(p *Pool) { p.engineOpts = opts }
}

// WithMaxLineLength caps the byte length of a single input line.
func WithMaxLineLength(n int) Option {
	return func(p *Pool) { p.maxLineLength = n }
}

// WithSkipErrors keeps the run going past failing lines, reporting
// each to onError when it is not nil.
func WithSkipErrors(onError func(*ndjson.LineError)) Option {
	return func(p *Pool) {
		p.skipErrors = true
		p.onError = onError
	}
}

// A Pool distributes input lines over workers.
type Pool struct {
	tree          *selection.Tree
	workers       int
	ordering      Ordering
	sink          engine.Sink
	engineOpts    []engine.Option
	maxLineLength int
	skipErrors    bool
	onError       func(*ndjson.LineError)
}

// NewPool returns a Pool projecting against tree.
func NewPool(tree *selection.Tree, opts ...Option) *Pool {
	p := &Pool{tree: tree}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers <= 0 {
		p.workers = runtime.NumCPU()
	}
	return p
}

// job is one input line handed to a worker.
type job struct {
	seq     int64
	line    int
	content []byte
	tooLong bool
}

// result is the outcome of one line. Matches hold materialized values,
// raws copies of raw spans; at most one of them is populated per mode.
type result struct {
	seq     int64
	matches []any
	raws    [][]byte
	stats   engine.Stats
	err     *ndjson.LineError
}

// Run shards the lines of r over the pool's workers and blocks until
// the stream is exhausted, a line fails without skip-errors, or the
// context is cancelled.
func (p *Pool) Run(ctx context.Context, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job, p.workers)
	results := make(chan result, 2*p.workers)

	for i := 0; i < p.workers; i++ {
		go p.worker(ctx, jobs, results)
	}

	readErr := make(chan error, 1)
	go p.read(ctx, r, jobs, readErr)

	err := p.collect(ctx, results, cancel)
	if err != nil {
		return err
	}
	if rerr := <-readErr; rerr != nil {
		return rerr
	}
	return ctx.Err()
}

// read feeds lines into jobs and closes it at EOF.
func (p *Pool) read(ctx context.Context, r io.Reader, jobs chan<- job, readErr chan<- error) {
	defer close(jobs)
	sc := ndjson.NewScanner(r, p.maxLineLength)
	var seq int64
	line := 0
	for {
		content, tooLong, err := sc.Scan()
		if err != nil && err != io.EOF {
			readErr <- fmt.Errorf("read input: %w", err)
			return
		}
		atEOF := err == io.EOF
		if atEOF && len(content) == 0 && !tooLong {
			break
		}
		line++
		select {
		case jobs <- job{seq: seq, line: line, content: content, tooLong: tooLong}:
			seq++
		case <-ctx.Done():
			readErr <- nil
			return
		}
		if atEOF {
			break
		}
	}
	readErr <- nil
}

// worker projects its share of lines on a private engine.
func (p *Pool) worker(ctx context.Context, jobs <-chan job, results chan<- result) {
	id := uuid.NewString()
	log.Debugf("worker %s started", id)

	var res result
	collector := engine.SinkFuncs{
		MatchFunc: func(value any) {
			res.matches = append(res.matches, value)
		},
		RawMatchFunc: func(data []byte) {
			res.raws = append(res.raws, append([]byte(nil), data...))
		},
		StatsFunc: func(stats engine.Stats) {
			res.stats = stats
		},
	}
	opts := append(append([]engine.Option{}, p.engineOpts...), engine.WithSink(collector))
	e := engine.New(p.tree, opts...)

	for j := range jobs {
		res = result{seq: j.seq}
		if j.tooLong {
			res.err = &ndjson.LineError{Line: j.line, Content: clip(j.content), Err: ndjson.ErrLineTooLong}
		} else {
			e.Reset()
			if err := e.Execute(j.content); err != nil {
				res.err = &ndjson.LineError{Line: j.line, Content: clip(j.content), Err: err}
			}
		}
		select {
		case results <- res:
		case <-ctx.Done():
			log.Debugf("worker %s cancelled", id)
			return
		}
	}
	log.Debugf("worker %s done", id)
	select {
	case results <- result{seq: -1}:
	case <-ctx.Done():
	}
}

// collect sequences worker results into the sink. A seq of -1 marks
// one worker's exit; the stream ends when all workers have exited.
func (p *Pool) collect(ctx context.Context, results <-chan result, cancel context.CancelFunc) error {
	var (
		next     int64
		exited   int
		firstErr error
		pending  = map[int64]result{}
		agg      aggregate
		start    = time.Now()
	)

	deliver := func(res result) {
		if firstErr != nil {
			return
		}
		if res.err != nil {
			if !p.skipErrors && firstErr == nil {
				firstErr = res.err
				cancel()
				return
			}
			log.Errorf("skipping line %d: %s", res.err.Line, res.err.Err)
			if p.onError != nil {
				p.onError(res.err)
			}
			return
		}
		agg.add(res.stats)
		if p.sink == nil {
			return
		}
		for _, m := range res.matches {
			p.sink.Match(m)
		}
		for _, raw := range res.raws {
			p.sink.RawMatch(raw)
		}
	}

	for exited < p.workers {
		select {
		case res := <-results:
			if res.seq < 0 {
				exited++
				continue
			}
			if firstErr != nil {
				continue
			}
			if p.ordering == OrderingRelaxed {
				deliver(res)
				continue
			}
			pending[res.seq] = res
			for {
				queued, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				deliver(queued)
			}
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			return firstErr
		}
	}

	if firstErr != nil {
		return firstErr
	}
	if p.sink != nil {
		p.sink.Stats(agg.snapshot(time.Since(start)))
		p.sink.Drain()
	}
	return nil
}

// aggregate accumulates per-line stats into run totals.
type aggregate struct {
	matched      int64
	processed    int64
	skippedBytes float64
}

func (a *aggregate) add(stats engine.Stats) {
	a.matched += stats.MatchedCount
	a.processed += stats.ProcessedBytes
	a.skippedBytes += stats.SkipRatio * float64(stats.ProcessedBytes)
}

func (a *aggregate) snapshot(elapsed time.Duration) engine.Stats {
	stats := engine.Stats{
		MatchedCount:   a.matched,
		ProcessedBytes: a.processed,
		Duration:       elapsed,
	}
	if elapsed > 0 {
		stats.ThroughputMBps = float64(a.processed) / elapsed.Seconds() / (1 << 20)
	}
	if a.processed > 0 {
		stats.SkipRatio = a.skippedBytes / float64(a.processed)
	}
	return stats
}

func clip(content []byte) string {
	const limit = 120
	if len(content) > limit {
		return string(content[:limit]) + "..."
	}
	return string(content)
}
