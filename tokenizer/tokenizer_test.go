package tokenizer

import (
	"errors"
	"testing"

	"github.com/arnodel/jsonproj/token"
)

func collect(t *testing.T, chunks ...string) ([]token.Token, error) {
	t.Helper()
	tz := New()
	var toks []token.Token
	add := func(tok *token.Token) error {
		toks = append(toks, *tok)
		return nil
	}
	for _, chunk := range chunks {
		if err := tz.Feed([]byte(chunk), add); err != nil {
			return toks, err
		}
	}
	if err := tz.Flush(add); err != nil {
		return toks, err
	}
	return toks, nil
}

func kindsOf(toks []token.Token) []token.Kind {
	kinds := make([]token.Kind, len(toks))
	for i, tok := range toks {
		kinds[i] = tok.Kind
	}
	return kinds
}

func sameKinds(a, b []token.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTokenizeDocument(t *testing.T) {
	toks, err := collect(t, `{"id":1,"tags":["a","b"],"ok":true,"x":null}`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := []token.Kind{
		token.LBrace,
		token.String, token.Colon, token.Number, token.Comma,
		token.String, token.Colon, token.LBracket,
		token.String, token.Comma, token.String, token.RBracket, token.Comma,
		token.String, token.Colon, token.True, token.Comma,
		token.String, token.Colon, token.Null,
		token.RBrace,
		token.EOF,
	}
	if !sameKinds(kindsOf(toks), want) {
		t.Fatalf("got kinds %v, want %v", kindsOf(toks), want)
	}
	if toks[1].Str != "id" || toks[3].Num != 1 {
		t.Errorf(`got key %q value %v, want "id" 1`, toks[1].Str, toks[3].Num)
	}
}

func TestTokenOffsets(t *testing.T) {
	input := `{"ab": 12}`
	toks, err := collect(t, input)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	tests := []struct {
		i          int
		start, end int64
	}{
		{0, 0, 1},  // {
		{1, 1, 5},  // "ab"
		{2, 5, 6},  // :
		{3, 7, 9},  // 12
		{4, 9, 10}, // }
	}
	for _, test := range tests {
		tok := toks[test.i]
		if tok.Start != test.start || tok.End != test.end {
			t.Errorf("token %d (%s): got [%d, %d), want [%d, %d)",
				test.i, tok.Kind, tok.Start, tok.End, test.start, test.end)
		}
	}
	var prev int64 = -1
	for _, tok := range toks {
		if tok.Kind != token.EOF && tok.Start >= tok.End {
			t.Errorf("token %s: start %d >= end %d", tok.Kind, tok.Start, tok.End)
		}
		if tok.Start < prev {
			t.Errorf("token %s: start %d before previous %d", tok.Kind, tok.Start, prev)
		}
		prev = tok.Start
	}
}

func TestChunkBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		kind   token.Kind
		str    string
		num    float64
	}{
		{"mid string", []string{`"hel`, `lo"`}, token.String, "hello", 0},
		{"mid escape", []string{`"a\`, `nb"`}, token.String, `a\nb`, 0},
		{"mid number", []string{`12`, `3.5 `}, token.Number, "", 123.5},
		{"mid literal", []string{`tr`, `ue`}, token.True, "", 0},
		{"byte at a time", []string{`"`, `x`, `"`}, token.String, "x", 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			toks, err := collect(t, test.chunks...)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if len(toks) < 1 {
				t.Fatal("no tokens")
			}
			tok := toks[0]
			if tok.Kind != test.kind {
				t.Fatalf("got kind %s, want %s", tok.Kind, test.kind)
			}
			if tok.Str != test.str || tok.Num != test.num {
				t.Errorf("got (%q, %v), want (%q, %v)", tok.Str, tok.Num, test.str, test.num)
			}
			if tok.Start != 0 {
				t.Errorf("got start %d, want 0", tok.Start)
			}
		})
	}
}

func TestCrossChunkOffsets(t *testing.T) {
	// "hello" split over two chunks: starts in the first, ends in the
	// second.
	toks, err := collect(t, `  "hel`, `lo"`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	tok := toks[0]
	if tok.Start != 2 || tok.End != 9 {
		t.Errorf("got [%d, %d), want [2, 9)", tok.Start, tok.End)
	}
}

func TestInvalidLiteral(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		offset int64
	}{
		{"truX", `{"id": truX}`, 7},
		{"nope", `nope`, 0},
		{"fals0", `[fals0]`, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := collect(t, test.input)
			var tokErr *TokenizationError
			if !errors.As(err, &tokErr) {
				t.Fatalf("got %v, want TokenizationError", err)
			}
			if tokErr.Offset != test.offset {
				t.Errorf("got offset %d, want %d", tokErr.Offset, test.offset)
			}
		})
	}
}

func TestGarbageBetweenTokens(t *testing.T) {
	toks, err := collect(t, `{"a": !!! 1}`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := []token.Kind{
		token.LBrace, token.String, token.Colon, token.Number,
		token.RBrace, token.EOF,
	}
	if !sameKinds(kindsOf(toks), want) {
		t.Fatalf("got kinds %v, want %v", kindsOf(toks), want)
	}
	if toks[3].Num != 1 {
		t.Errorf("got %v, want 1", toks[3].Num)
	}
}

func TestUnclosedStringAtEOF(t *testing.T) {
	toks, err := collect(t, `{"a": "unfinished`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// The unfinished string is dropped; only the structural prefix and
	// EOF remain.
	want := []token.Kind{token.LBrace, token.String, token.Colon, token.EOF}
	if !sameKinds(kindsOf(toks), want) {
		t.Fatalf("got kinds %v, want %v", kindsOf(toks), want)
	}
}

func TestNumberAtFlush(t *testing.T) {
	toks, err := collect(t, `42`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if toks[0].Kind != token.Number || toks[0].Num != 42 {
		t.Fatalf("got %s %v, want Number 42", toks[0].Kind, toks[0].Num)
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"0", 0},
		{"-7", -7},
		{"123456789", 123456789},
		{"3.25", 3.25},
		{"-0.5", -0.5},
		{"1e3", 1000},
		{"2.5E-1", 0.25},
	}
	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			toks, err := collect(t, test.input)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if toks[0].Num != test.want {
				t.Errorf("got %v, want %v", toks[0].Num, test.want)
			}
		})
	}
}

func TestMalformedNumber(t *testing.T) {
	_, err := collect(t, `[1.2.3]`)
	var tokErr *TokenizationError
	if !errors.As(err, &tokErr) {
		t.Fatalf("got %v, want TokenizationError", err)
	}
	if tokErr.Offset != 1 {
		t.Errorf("got offset %d, want 1", tokErr.Offset)
	}
}

func TestEscapedString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"escaped quote", `"a\"b"`, `a\"b`},
		{"escaped backslash", `"a\\b"`, `a\\b`},
		{"non-ASCII bytes kept verbatim", `"é"`, `é`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			toks, err := collect(t, test.input)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if toks[0].Str != test.want {
				t.Errorf("got %q, want %q", toks[0].Str, test.want)
			}
		})
	}
}

func TestCancellation(t *testing.T) {
	tz := New()
	tz.Cancelled = func() bool { return true }
	err := tz.Feed([]byte(`{"a": 1}`), func(*token.Token) error { return nil })
	var abortErr *AbortError
	if !errors.As(err, &abortErr) {
		t.Fatalf("got %v, want AbortError", err)
	}
}

func TestBudgetHook(t *testing.T) {
	budgetErr := errors.New("over budget")
	tz := New()
	tz.CheckBudget = func() error { return budgetErr }
	err := tz.Feed([]byte(`1`), func(*token.Token) error { return nil })
	if !errors.Is(err, budgetErr) {
		t.Fatalf("got %v, want budget error", err)
	}
}

func TestIterator(t *testing.T) {
	tz := New()
	var toks []token.Token
	for _, chunk := range []string{`{"a`, `b": [1, tr`, `ue]}`} {
		it := tz.Tokens([]byte(chunk))
		for {
			tok, err := it.Next()
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if tok == nil {
				break
			}
			toks = append(toks, *tok)
		}
	}
	want := []token.Kind{
		token.LBrace, token.String, token.Colon, token.LBracket,
		token.Number, token.Comma, token.True, token.RBracket, token.RBrace,
	}
	if !sameKinds(kindsOf(toks), want) {
		t.Fatalf("got kinds %v, want %v", kindsOf(toks), want)
	}
	if toks[1].Str != "ab" {
		t.Errorf("got key %q, want %q", toks[1].Str, "ab")
	}
}

func TestResetIdempotence(t *testing.T) {
	tz := New()
	input := []byte(`{"a": [1, 2, "three"]}`)
	run := func() []token.Token {
		var toks []token.Token
		add := func(tok *token.Token) error {
			toks = append(toks, *tok)
			return nil
		}
		if err := tz.Feed(input, add); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		if err := tz.Flush(add); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		return toks
	}
	first := run()
	tz.Reset()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("got %d tokens after reset, want %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("token %d: got %v, want %v", i, second[i], first[i])
		}
	}
}

func TestFeedWholeChunkNoToken(t *testing.T) {
	tz := New()
	count := 0
	err := tz.Feed([]byte(`"a long string that does not clo`), func(*token.Token) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if count != 0 {
		t.Errorf("got %d tokens, want 0", count)
	}
}
