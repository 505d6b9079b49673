package parser

import "github.com/arnodel/grammar"

var TokeniseQueryString = grammar.SimpleTokeniser([]grammar.TokenDef{
	{
		Ptn: `\s+`,
	},
	{
		Name: "bool",
		Ptn:  `true\b|false\b`,
	},
	{
		Name: "name",
		Ptn:  `[A-Za-z_][A-Za-z0-9_]*`,
	},
	{
		Name: "number",
		Ptn:  `-?(?:0|[1-9][0-9]*)(?:\.[0-9]+)?(?:[eE][+-]?[0-9]+)?`,
	},
	{
		Name: "string",
		Ptn:  `"(?:\\.|[^"\\])*"`,
	},
	{
		Name: "op",
		Ptn:  `[{}(),:@]`,
	},
})
