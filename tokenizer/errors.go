package tokenizer

import "fmt"

// TokenizationError reports an input byte sequence that cannot be
// tokenized, e.g. a literal that does not spell true, false or null, or
// a number that fails to parse. Offset is the byte offset of the start
// of the offending token.
type TokenizationError struct {
	Offset int64
	Msg    string
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("tokenize: %s at offset %d", e.Msg, e.Offset)
}

// Position returns the byte offset where the error was detected.
func (e *TokenizationError) Position() int64 {
	return e.Offset
}

// AbortError reports that the cancellation flag was found set at a
// check point. Offset is the byte offset reached when the flag was
// observed.
type AbortError struct {
	Offset int64
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted at offset %d", e.Offset)
}

// Position returns the byte offset reached at the abort check point.
func (e *AbortError) Position() int64 {
	return e.Offset
}
