// Package subscribe offers a push façade over the projection engine:
// a Subscription is fed byte chunks as they arrive and delivers
// matches, throttled telemetry and a drain signal to a handler.
// Matches can be narrowed further with a JSONPath post-filter.
package subscribe

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/theory/jsonpath"
	"github.com/tliron/commonlog"
	"golang.org/x/time/rate"

	"github.com/arnodel/jsonproj/engine"
	"github.com/arnodel/jsonproj/selection"
)

var log = commonlog.GetLogger("jsonproj.subscribe")

// statsPerSecond throttles telemetry delivery to the handler.
const statsPerSecond = 4

// An Option configures a Subscription.
type Option func(*Subscription) error

// WithFilter keeps only matches with at least one result for the
// JSONPath expression. The filter is applied to the materialized match
// converted to plain Go values.
func WithFilter(expr string) Option {
	return func(s *Subscription) error {
		path, err := jsonpath.Parse(expr)
		if err != nil {
			return fmt.Errorf("invalid filter %s: %w", expr, err)
		}
		s.filter = path
		return nil
	}
}

// WithEngineOptions forwards options to the subscription's engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Subscription) error {
		s.engineOpts = opts
		return nil
	}
}

// A Subscription feeds successive byte chunks to a projection flow.
// It is single-flow like the engine underneath: calls to Write and
// Close must not overlap.
type Subscription struct {
	id         string
	sink       engine.Sink
	filter     *jsonpath.Path
	limiter    *rate.Limiter
	engineOpts []engine.Option
	e          *engine.Engine
	closed     bool
}

// New opens a subscription projecting incoming chunks against tree and
// delivering output to sink.
func New(tree *selection.Tree, sink engine.Sink, opts ...Option) (*Subscription, error) {
	s := &Subscription{
		id:      uuid.NewString(),
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(statsPerSecond), 1),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	engineOpts := append(append([]engine.Option{}, s.engineOpts...), engine.WithSink(subscriptionSink{s}))
	s.e = engine.New(tree, engineOpts...)
	log.Debugf("subscription %s opened", s.id)
	return s, nil
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Write feeds the next chunk of the stream. It implements io.Writer so
// a subscription can be the target of io.Copy.
func (s *Subscription) Write(chunk []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("subscription %s is closed", s.id)
	}
	// A raw-mode engine keeps references to the chunks of a match in
	// flight, while io.Writer callers may reuse their buffer, so the
	// engine gets its own copy.
	owned := append([]byte(nil), chunk...)
	if err := s.e.ProcessChunk(owned); err != nil {
		return 0, err
	}
	s.maybeStats()
	return len(chunk), nil
}

// Cancel requests a cooperative stop of the in-flight execution.
func (s *Subscription) Cancel() {
	s.e.Cancel()
}

// Result returns the projection built so far.
func (s *Subscription) Result() any {
	return s.e.Result()
}

// Close ends the stream, delivering final stats and the drain signal.
func (s *Subscription) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.e.Finish()
	log.Debugf("subscription %s closed: %d matches", s.id, s.e.Matched())
	return err
}

// maybeStats delivers a telemetry snapshot unless one was delivered
// too recently.
func (s *Subscription) maybeStats() {
	if s.sink == nil || !s.limiter.Allow() {
		return
	}
	s.sink.Stats(s.e.Stats())
}

// subscriptionSink filters matches on their way to the handler. The
// engine reports stats only from Finish, and those are forwarded as
// they are; the throttled snapshots after each Write come from
// maybeStats.
type subscriptionSink struct {
	s *Subscription
}

func (w subscriptionSink) Match(value any) {
	if w.s.sink == nil || !w.s.keep(value) {
		return
	}
	w.s.sink.Match(value)
}

func (w subscriptionSink) RawMatch(data []byte) {
	if w.s.sink == nil {
		return
	}
	w.s.sink.RawMatch(data)
}

func (w subscriptionSink) Stats(stats engine.Stats) {
	if w.s.sink == nil {
		return
	}
	// Final stats from Finish always go through.
	w.s.sink.Stats(stats)
}

func (w subscriptionSink) Drain() {
	if w.s.sink == nil {
		return
	}
	w.s.sink.Drain()
}

func (s *Subscription) keep(value any) bool {
	if s.filter == nil {
		return true
	}
	return len(s.filter.Select(toPlain(value))) > 0
}

func toPlain(value any) any {
	switch x := value.(type) {
	case *engine.Object:
		return x.Interface()
	case *engine.Array:
		return x.Interface()
	default:
		return value
	}
}
