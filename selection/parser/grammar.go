// Package parser implements the query grammar for selection trees.
//
// The grammar is
//
//	query      := '{' field_list '}' | field_list
//	field_list := field ( ',' field )*
//	field      := [ alias ':' ] key ( '@' directive )* [ '{' field_list '}' ]
//	directive  := name [ '(' arg_list ')' ]
//	arg_list   := arg ( ',' arg )*
//	arg        := name ':' ( string | number | true | false | identifier )
package parser

import "github.com/arnodel/grammar"

type Token = grammar.SimpleToken

type Query struct {
	grammar.OneOf
	Braced *BracedFieldList
	Bare   *FieldList
}

// List returns the field list of the query, braced or not.
func (q *Query) List() *FieldList {
	switch {
	case q.Braced != nil:
		return &q.Braced.FieldList
	case q.Bare != nil:
		return q.Bare
	default:
		panic("invalid Query")
	}
}

type BracedFieldList struct {
	grammar.Seq
	Open Token `tok:"op,{"`
	FieldList
	Close Token `tok:"op,}"`
}

type FieldList struct {
	grammar.Seq
	First Field
	Rest  []FieldListRest
}

// Fields returns all fields of the list in source order.
func (l *FieldList) Fields() []*Field {
	fields := make([]*Field, 0, 1+len(l.Rest))
	fields = append(fields, &l.First)
	for i := range l.Rest {
		fields = append(fields, &l.Rest[i].Field)
	}
	return fields
}

type FieldListRest struct {
	grammar.Seq
	Comma Token `tok:"op,,"`
	Field Field
}

type Field struct {
	grammar.Seq
	*AliasPrefix
	Key        Token `tok:"name"`
	Directives []DirectiveCall
	Children   *BracedFieldList
}

type AliasPrefix struct {
	grammar.Seq
	Alias Token `tok:"name"`
	Colon Token `tok:"op,:"`
}

type DirectiveCall struct {
	grammar.Seq
	At   Token `tok:"op,@"`
	Name Token `tok:"name"`
	Args *ArgList
}

type ArgList struct {
	grammar.Seq
	Open  Token `tok:"op,("`
	First Arg
	Rest  []ArgListRest
	Close Token `tok:"op,)"`
}

// Args returns all arguments of the list in source order.
func (l *ArgList) Args() []*Arg {
	args := make([]*Arg, 0, 1+len(l.Rest))
	args = append(args, &l.First)
	for i := range l.Rest {
		args = append(args, &l.Rest[i].Arg)
	}
	return args
}

type ArgListRest struct {
	grammar.Seq
	Comma Token `tok:"op,,"`
	Arg   Arg
}

type Arg struct {
	grammar.Seq
	Name  Token `tok:"name"`
	Colon Token `tok:"op,:"`
	Value ArgValue
}

type ArgValue struct {
	grammar.OneOf
	String *Token `tok:"string"`
	Number *Token `tok:"number"`
	Bool   *Token `tok:"bool"`
	Ident  *Token `tok:"name"`
}
