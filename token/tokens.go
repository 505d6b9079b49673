package token

import "strconv"

// A Token is an item in the stream produced by tokenizing a JSON input.
// For example, the JSON value
//
//	{"id": 123, "tags": ["important", "new"]}
//
// would be represented by the stream of Token (in pseudocode for
// clarity):
//
//	{            -> LBrace
//	"id"         -> String("id")
//	:            -> Colon
//	123          -> Number(123)
//	,            -> Comma
//	"tags"       -> String("tags")
//	:            -> Colon
//	[            -> LBracket
//	"important", -> String("important"), Comma
//	"new"        -> String("new")
//	]            -> RBracket
//	}            -> RBrace
//
// Each token records the byte offsets of its source text, so downstream
// consumers can refer back to the raw input without copying it.
type Token struct {
	// Kind of the token.
	Kind Kind

	// Start is the byte offset of the first byte of the token in the
	// overall input (across all chunks fed so far).
	Start int64

	// End is the byte offset one past the last byte of the token.
	End int64

	// Str is the decoded value for String tokens. Escape sequences are
	// kept verbatim, so `"a\nb"` yields `a\nb` with the backslash
	// intact. Empty for other kinds.
	Str string

	// Num is the numeric value for Number tokens, zero otherwise.
	Num float64
}

// IsScalar reports whether the token carries a value rather than
// structure or punctuation.
func (t *Token) IsScalar() bool {
	switch t.Kind {
	case String, Number, True, False, Null:
		return true
	}
	return false
}

// Value returns the Go value of a scalar token: string for String,
// float64 for Number, bool for True/False and nil for Null. It returns
// nil for non-scalar tokens.
func (t *Token) Value() any {
	switch t.Kind {
	case String:
		return t.Str
	case Number:
		return t.Num
	case True:
		return true
	case False:
		return false
	default:
		return nil
	}
}

func (t *Token) String() string {
	switch t.Kind {
	case String:
		return "String(" + t.Str + ")"
	case Number:
		return "Number(" + strconv.FormatFloat(t.Num, 'g', -1, 64) + ")"
	default:
		return t.Kind.String()
	}
}

// Kind enumerates the kinds of tokens a JSON document is made of. The
// zero value Invalid is never produced by a well-behaved tokenizer.
type Kind uint8

const (
	Invalid Kind = iota
	LBrace
	RBrace
	LBracket
	RBracket
	Colon
	Comma
	String
	Number
	True
	False
	Null

	// EOF marks the end of the input. It is produced exactly once, when
	// the tokenizer is flushed.
	EOF
)

var kindNames = [...]string{
	Invalid:  "Invalid",
	LBrace:   "LBrace",
	RBrace:   "RBrace",
	LBracket: "LBracket",
	RBracket: "RBracket",
	Colon:    "Colon",
	Comma:    "Comma",
	String:   "String",
	Number:   "Number",
	True:     "True",
	False:    "False",
	Null:     "Null",
	EOF:      "EOF",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Invalid"
}

// IsOpen reports whether the kind opens a container.
func (k Kind) IsOpen() bool {
	return k == LBrace || k == LBracket
}

// IsClose reports whether the kind closes a container.
func (k Kind) IsClose() bool {
	return k == RBrace || k == RBracket
}
