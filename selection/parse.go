package selection

import (
	"fmt"
	"strconv"

	"github.com/arnodel/grammar"
	"github.com/arnodel/jsonproj/selection/parser"
)

// SyntaxError reports an invalid query string.
type SyntaxError struct {
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Msg)
}

// ParseQuery parses a query string into a selection tree. Duplicate
// keys are allowed, the last occurrence wins. Unknown directive names
// are kept in the tree and ignored at transform time.
func ParseQuery(s string) (*Tree, error) {
	stream, err := parser.TokeniseQueryString(s)
	if err != nil {
		return nil, &SyntaxError{Msg: err.Error()}
	}
	var query parser.Query
	if parseErr := grammar.Parse(&query, stream); parseErr != nil {
		return nil, &SyntaxError{Msg: parseErr.Error()}
	}
	if n := stream.Next(); n != grammar.EOF {
		return nil, &SyntaxError{Msg: fmt.Sprintf("unexpected %q", n.Value())}
	}
	return compileFieldList(query.List())
}

func compileFieldList(list *parser.FieldList) (*Tree, error) {
	tree := NewTree()
	for _, field := range list.Fields() {
		node, err := compileField(field)
		if err != nil {
			return nil, err
		}
		tree.Add(field.Key.TokValue, node)
	}
	return tree, nil
}

func compileField(field *parser.Field) (*Node, error) {
	node := &Node{}
	if field.AliasPrefix != nil {
		node.Alias = field.AliasPrefix.Alias.TokValue
	}
	for i := range field.Directives {
		directive, err := compileDirective(&field.Directives[i])
		if err != nil {
			return nil, err
		}
		// The alias directive names the output key, same as the alias
		// prefix form.
		if directive.Name == "alias" {
			if alias := aliasFromArgs(directive.Args); alias != "" {
				node.Alias = alias
			}
		}
		node.Directives = append(node.Directives, directive)
	}
	if field.Children != nil {
		children, err := compileFieldList(&field.Children.FieldList)
		if err != nil {
			return nil, err
		}
		node.Children = children
	}
	return node, nil
}

func aliasFromArgs(args map[string]any) string {
	for _, name := range []string{"name", "to"} {
		if s, ok := args[name].(string); ok {
			return s
		}
	}
	if len(args) == 1 {
		for _, v := range args {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func compileDirective(call *parser.DirectiveCall) (Directive, error) {
	directive := Directive{Name: call.Name.TokValue}
	if call.Args != nil {
		directive.Args = map[string]any{}
		for _, arg := range call.Args.Args() {
			value, err := compileArgValue(&arg.Value)
			if err != nil {
				return Directive{}, err
			}
			directive.Args[arg.Name.TokValue] = value
		}
	}
	return directive, nil
}

func compileArgValue(v *parser.ArgValue) (any, error) {
	switch {
	case v.String != nil:
		s, err := strconv.Unquote(v.String.TokValue)
		if err != nil {
			return nil, &SyntaxError{Msg: fmt.Sprintf("bad string %s", v.String.TokValue)}
		}
		return s, nil
	case v.Number != nil:
		n, err := strconv.ParseFloat(v.Number.TokValue, 64)
		if err != nil {
			return nil, &SyntaxError{Msg: fmt.Sprintf("bad number %s", v.Number.TokValue)}
		}
		return n, nil
	case v.Bool != nil:
		return v.Bool.TokValue == "true", nil
	case v.Ident != nil:
		return v.Ident.TokValue, nil
	default:
		panic("invalid ArgValue")
	}
}
