package engine

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/arnodel/jsonproj/selection"
	"github.com/arnodel/jsonproj/tokenizer"
)

func mustTree(t *testing.T, query string) *selection.Tree {
	t.Helper()
	tree, err := selection.ParseQuery(query)
	if err != nil {
		t.Fatalf("ParseQuery(%q): %s", query, err)
	}
	return tree
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %s", err)
	}
	return string(data)
}

type recordingSink struct {
	matches []string
	raws    []string
	stats   []Stats
	drained bool
}

func (s *recordingSink) Match(value any) {
	data, _ := json.Marshal(value)
	s.matches = append(s.matches, string(data))
}

func (s *recordingSink) RawMatch(data []byte) {
	s.raws = append(s.raws, string(data))
}

func (s *recordingSink) Stats(stats Stats) {
	s.stats = append(s.stats, stats)
}

func (s *recordingSink) Drain() {
	s.drained = true
}

func run(t *testing.T, input, query string, opts ...Option) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	e := New(mustTree(t, query), append(opts, WithSink(sink))...)
	if err := e.Execute([]byte(input)); err != nil {
		t.Fatalf("Execute: %s", err)
	}
	return e, sink
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		query   string
		want    string
		matches []string
	}{
		{
			name:    "flat selection",
			input:   `{"id":1,"name":"Leanne Graham","email":"e@x","phone":"123"}`,
			query:   `{ id, name, email }`,
			want:    `{"id":1,"name":"Leanne Graham","email":"e@x"}`,
			matches: []string{`{"id":1,"name":"Leanne Graham","email":"e@x"}`},
		},
		{
			name:    "nested selection",
			input:   `{"a":{"b":{"c":1}}}`,
			query:   `{ a { b { c } } }`,
			want:    `{"a":{"b":{"c":1}}}`,
			matches: []string{`{"a":{"b":{"c":1}}}`},
		},
		{
			name:    "array of objects",
			input:   `[{"id":1,"name":"A","active":true},{"id":2,"name":"B","active":false}]`,
			query:   `{ name }`,
			want:    `[{"name":"A"},{"name":"B"}]`,
			matches: []string{`{"name":"A"}`, `{"name":"B"}`},
		},
		{
			name:    "alias and coerce",
			input:   `{"firstName":"Leanne","age":"25"}`,
			query:   `{ first: firstName, age @coerce(type:"number") }`,
			want:    `{"first":"Leanne","age":25}`,
			matches: []string{`{"first":"Leanne","age":25}`},
		},
		{
			name:    "substring",
			input:   `{"biography":"Full-stack developer from Gwenborough"}`,
			query:   `{ bio: biography @substring(start:0, len:10) }`,
			want:    `{"bio":"Full-stack"}`,
			matches: []string{`{"bio":"Full-stack"}`},
		},
		{
			name:    "default",
			input:   `{}`,
			query:   `{ missing @default(value:"N/A") }`,
			want:    `{"missing":"N/A"}`,
			matches: []string{`{"missing":"N/A"}`},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			e, sink := run(t, test.input, test.query)
			if got := marshal(t, e.Result()); got != test.want {
				t.Errorf("result: got %s, want %s", got, test.want)
			}
			if len(sink.matches) != len(test.matches) {
				t.Fatalf("got %d matches %v, want %d", len(sink.matches), sink.matches, len(test.matches))
			}
			for i, want := range test.matches {
				if sink.matches[i] != want {
					t.Errorf("match %d: got %s, want %s", i, sink.matches[i], want)
				}
			}
			if !sink.drained {
				t.Error("sink not drained")
			}
		})
	}
}

func TestSkipUnselectedSubtree(t *testing.T) {
	input := `{"keep":1,"drop":{"deep":[1,2,{"x":"y"}],"s":"a\"b{"},"keep2":2}`
	e, _ := run(t, input, `{ keep, keep2 }`)
	want := `{"keep":1,"keep2":2}`
	if got := marshal(t, e.Result()); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestSkipBracesInsideStrings(t *testing.T) {
	// The skipped string contains braces and escaped quotes which must
	// not be counted as structure.
	input := `{"drop":"}{][\"", "keep":true}`
	e, _ := run(t, input, `{ keep }`)
	want := `{"keep":true}`
	if got := marshal(t, e.Result()); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestChunkedMatchesWhole(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"pad":"`)
	sb.WriteString(strings.Repeat("x", 20000))
	sb.WriteString(`","wanted":{"a":[1,2,3],"b":"v"},"tail":"`)
	sb.WriteString(strings.Repeat("y", 9000))
	sb.WriteString(`"}`)
	input := sb.String()
	query := `{ wanted { a, b } }`

	whole, _ := run(t, input, query)

	chunkedSink := &recordingSink{}
	chunked := New(mustTree(t, query), WithSink(chunkedSink))
	if err := chunked.ExecuteChunked([]byte(input), MinWindowSize); err != nil {
		t.Fatalf("ExecuteChunked: %s", err)
	}
	if got, want := marshal(t, chunked.Result()), marshal(t, whole.Result()); got != want {
		t.Errorf("chunked result %s, whole result %s", got, want)
	}
}

func TestChunkBoundaryPlacement(t *testing.T) {
	input := `{"a":{"b":"` + strings.Repeat("z", 100) + `"},"n":12.5,"t":true}`
	query := `{ a { b }, n, t }`
	whole, _ := run(t, input, query)
	want := marshal(t, whole.Result())

	for split := 1; split < len(input); split += 7 {
		e := New(mustTree(t, query))
		if err := e.ProcessChunk([]byte(input[:split])); err != nil {
			t.Fatalf("split %d: %s", split, err)
		}
		if err := e.ProcessChunk([]byte(input[split:])); err != nil {
			t.Fatalf("split %d: %s", split, err)
		}
		if err := e.Finish(); err != nil {
			t.Fatalf("split %d: %s", split, err)
		}
		if got := marshal(t, e.Result()); got != want {
			t.Errorf("split %d: got %s, want %s", split, got, want)
		}
	}
}

func TestRawModeWholeDocument(t *testing.T) {
	input := `{"id":1,"name":"A"}`
	sink := &recordingSink{}
	e := New(mustTree(t, `{ id, name }`), WithMode(ModeRaw), WithSink(sink))
	if err := e.Execute([]byte(input)); err != nil {
		t.Fatalf("Execute: %s", err)
	}
	if len(sink.raws) != 1 {
		t.Fatalf("got %d raw matches, want 1", len(sink.raws))
	}
	if sink.raws[0] != input {
		t.Errorf("got %q, want %q", sink.raws[0], input)
	}
}

func TestRawModeArrayElements(t *testing.T) {
	elems := []string{`{"id":1,"x":"a"}`, `{"id":2,"x":"b"}`, `{"id":3}`}
	input := "[" + strings.Join(elems, ",") + "]"
	sink := &recordingSink{}
	e := New(mustTree(t, `{ id, x }`), WithMode(ModeRaw), WithSink(sink))
	if err := e.Execute([]byte(input)); err != nil {
		t.Fatalf("Execute: %s", err)
	}
	if len(sink.raws) != len(elems) {
		t.Fatalf("got %d raw matches, want %d", len(sink.raws), len(elems))
	}
	for i, want := range elems {
		if sink.raws[i] != want {
			t.Errorf("raw %d: got %q, want %q", i, sink.raws[i], want)
		}
	}
	// The materialized result is still built in raw mode.
	if got, want := marshal(t, e.Result()), `[{"id":1,"x":"a"},{"id":2,"x":"b"},{"id":3}]`; got != want {
		t.Errorf("result: got %s, want %s", got, want)
	}
}

func TestRawModeCrossChunk(t *testing.T) {
	input := `  {"key":"` + strings.Repeat("v", 50) + `"}`
	want := strings.TrimLeft(input, " ")
	sink := &recordingSink{}
	e := New(mustTree(t, `{ key }`), WithMode(ModeRaw), WithSink(sink))
	// Feed in many small chunks so the match spans more than three.
	buf := []byte(input)
	for i := 0; i < len(buf); i += 10 {
		end := i + 10
		if end > len(buf) {
			end = len(buf)
		}
		if err := e.ProcessChunk(buf[i:end]); err != nil {
			t.Fatalf("ProcessChunk: %s", err)
		}
	}
	if err := e.Finish(); err != nil {
		t.Fatalf("Finish: %s", err)
	}
	if len(sink.raws) != 1 {
		t.Fatalf("got %d raw matches, want 1", len(sink.raws))
	}
	if sink.raws[0] != want {
		t.Errorf("got %q, want %q", sink.raws[0], want)
	}
}

func TestBudgetMaxMatchesPrefix(t *testing.T) {
	input := `[{"id":1},{"id":2},{"id":3}]`
	query := `{ id }`
	full, fullSink := run(t, input, query)
	_ = full

	sink := &recordingSink{}
	e := New(mustTree(t, query), WithSink(sink), WithBudget(Budget{MaxMatches: 2}))
	err := e.Execute([]byte(input))
	var budgetErr *BudgetExhaustedError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("got %v, want BudgetExhaustedError", err)
	}
	if budgetErr.Kind != BudgetMatches {
		t.Errorf("got kind %s, want matches", budgetErr.Kind)
	}
	if len(sink.matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(sink.matches))
	}
	for i, match := range sink.matches {
		if match != fullSink.matches[i] {
			t.Errorf("match %d: got %s, want %s", i, match, fullSink.matches[i])
		}
	}
}

func TestBudgetMaxBytes(t *testing.T) {
	input := `{"a":"` + strings.Repeat("x", 200000) + `"}`
	e := New(mustTree(t, `{ a }`), WithBudget(Budget{MaxBytes: 1000}))
	err := e.Execute([]byte(input))
	var budgetErr *BudgetExhaustedError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("got %v, want BudgetExhaustedError", err)
	}
	if budgetErr.Kind != BudgetBytes {
		t.Errorf("got kind %s, want bytes", budgetErr.Kind)
	}
}

func TestCancellation(t *testing.T) {
	input := `{"a":"` + strings.Repeat("x", 200000) + `"}`
	e := New(mustTree(t, `{ a }`))
	e.Cancel()
	err := e.Execute([]byte(input))
	var abortErr *tokenizer.AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("got %v, want AbortError", err)
	}
}

func TestPartialResultAfterTruncatedInput(t *testing.T) {
	e, _ := run(t, `{"a":1,"b":"unfinished`, `{ a, b }`)
	result := e.Result()
	if result == nil {
		t.Fatal("no partial result")
	}
	if got, want := marshal(t, result), `{"a":1}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestGarbageBetweenTokens(t *testing.T) {
	e, _ := run(t, `{"a": !!! 1}`, `{ a }`)
	if got, want := marshal(t, e.Result()), `{"a":1}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNullWithDefault(t *testing.T) {
	e, _ := run(t, `{"v":null}`, `{ v @default(value:"none") }`)
	if got, want := marshal(t, e.Result()), `{"v":"none"}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestLeafSelectionOnContainer(t *testing.T) {
	// A leaf selection accepts the subtree but projects no children.
	e, _ := run(t, `{"a":{"x":1,"y":2}}`, `{ a }`)
	if got, want := marshal(t, e.Result()), `{"a":{}}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestArrayOfScalars(t *testing.T) {
	e, _ := run(t, `{"tags":["a","b","c"]}`, `{ tags }`)
	if got, want := marshal(t, e.Result()), `{"tags":["a","b","c"]}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestResetIdempotence(t *testing.T) {
	input := `[{"id":1},{"id":2}]`
	sink := &recordingSink{}
	e := New(mustTree(t, `{ id }`), WithSink(sink))
	if err := e.Execute([]byte(input)); err != nil {
		t.Fatalf("first run: %s", err)
	}
	first := marshal(t, e.Result())
	firstMatches := len(sink.matches)

	e.Reset()
	if err := e.Execute([]byte(input)); err != nil {
		t.Fatalf("second run: %s", err)
	}
	if got := marshal(t, e.Result()); got != first {
		t.Errorf("got %s after reset, want %s", got, first)
	}
	if len(sink.matches) != 2*firstMatches {
		t.Errorf("got %d total matches, want %d", len(sink.matches), 2*firstMatches)
	}
}

func TestDeepNesting(t *testing.T) {
	const depth = 1000
	input := strings.Repeat(`{"a":`, depth) + "1" + strings.Repeat("}", depth)
	e, _ := run(t, input, `{ b }`)
	if got, want := marshal(t, e.Result()), `{}`; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestStatsReported(t *testing.T) {
	input := `{"keep":1,"drop":{"big":"` + strings.Repeat("x", 1000) + `"}}`
	e, sink := run(t, input, `{ keep }`)
	if len(sink.stats) == 0 {
		t.Fatal("no stats reported")
	}
	stats := sink.stats[len(sink.stats)-1]
	if stats.MatchedCount != 1 {
		t.Errorf("got matched %d, want 1", stats.MatchedCount)
	}
	if stats.ProcessedBytes != int64(len(input)) {
		t.Errorf("got processed %d, want %d", stats.ProcessedBytes, len(input))
	}
	if stats.SkipRatio <= 0 {
		t.Errorf("got skip ratio %v, want > 0", stats.SkipRatio)
	}
	if got := e.Stats().MatchedCount; got != 1 {
		t.Errorf("accessor matched %d, want 1", got)
	}
}
