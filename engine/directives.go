package engine

import (
	"strconv"

	"github.com/arnodel/jsonproj/selection"
)

// substringCap bounds the length a substring directive can extract.
const substringCap = 10000

// applyDirectives runs a directive chain over a value, left to right.
// Unknown directive names and non-matching input types leave the value
// unchanged.
func applyDirectives(directives []selection.Directive, v any) any {
	for i := range directives {
		v = applyDirective(&directives[i], v)
	}
	return v
}

func applyDirective(d *selection.Directive, v any) any {
	switch d.Name {
	case "alias":
		// The alias is consumed when the output key is resolved.
		return v

	case "coerce":
		switch d.Arg("type") {
		case "number":
			return coerceNumber(v)
		case "string":
			return coerceString(v)
		}
		return v

	case "default":
		if v == nil {
			return d.Arg("value")
		}
		return v

	case "formatNumber":
		n, ok := v.(float64)
		if !ok {
			return v
		}
		dec := clampInt(int(argFloat(d, "dec")), 0, 20)
		rounded, err := strconv.ParseFloat(strconv.FormatFloat(n, 'f', dec, 64), 64)
		if err != nil {
			return v
		}
		return rounded

	case "substring":
		s, ok := v.(string)
		if !ok {
			return v
		}
		start := int(argFloat(d, "start"))
		if start < 0 {
			start = 0
		}
		length := int(argFloat(d, "len"))
		if length < 0 {
			length = 0
		} else if length > substringCap {
			length = substringCap
		}
		if start >= len(s) {
			return ""
		}
		end := start + length
		if end > len(s) {
			end = len(s)
		}
		return s[start:end]
	}
	return v
}

func coerceNumber(v any) any {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		n, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return v
		}
		return n
	case bool:
		if x {
			return float64(1)
		}
		return float64(0)
	}
	return v
}

func coerceString(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return v
}

func argFloat(d *selection.Directive, name string) float64 {
	if f, ok := d.Arg(name).(float64); ok {
		return f
	}
	return 0
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
