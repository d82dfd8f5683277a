package oql

import (
	"fmt"
	"strings"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokEOF        TokenKind = iota
	TokIdent                // identifier or keyword
	TokString               // 'string literal'
	TokNumber               // 42, 3.14
	TokNamedParam           // :name
	TokPosParam             // ?1
	TokDot                  // .
	TokComma                // ,
	TokLParen               // (
	TokRParen               // )
	TokEq                   // =
	TokNeq                  // <> or !=
	TokLt                   // <
	TokLte                  // <=
	TokGt                   // >
	TokGte                  // >=
	TokPlus                 // +
	TokMinus                // -
	TokStar                 // *
	TokSlash                // /
)

// Token is a single lexical token produced by the lexer.
type Token struct {
	Kind TokenKind
	Lit  string // raw text of the token; unescaped for strings, name only for params
	Pos  int    // rune offset in input
}

func (t Token) String() string {
	if t.Lit != "" {
		return fmt.Sprintf("%s(%q)", t.Kind, t.Lit)
	}
	return t.Kind.String()
}

// Is reports whether t is the given keyword, compared case-insensitively.
func (t Token) Is(keyword string) bool {
	return t.Kind == TokIdent && strings.EqualFold(t.Lit, keyword)
}

// display is the token as it reads in an error message.
func (t Token) display() string {
	switch t.Kind {
	case TokEOF:
		return "end of input"
	case TokString:
		return "'" + t.Lit + "'"
	case TokNamedParam:
		return ":" + t.Lit
	case TokPosParam:
		return "?" + t.Lit
	}
	return t.Lit
}

var tokenKindNames = map[TokenKind]string{
	TokEOF:        "EOF",
	TokIdent:      "identifier",
	TokString:     "string",
	TokNumber:     "number",
	TokNamedParam: "named parameter",
	TokPosParam:   "positional parameter",
	TokDot:        ".",
	TokComma:      ",",
	TokLParen:     "(",
	TokRParen:     ")",
	TokEq:         "=",
	TokNeq:        "<>",
	TokLt:         "<",
	TokLte:        "<=",
	TokGt:         ">",
	TokGte:        ">=",
	TokPlus:       "+",
	TokMinus:      "-",
	TokStar:       "*",
	TokSlash:      "/",
}

func (k TokenKind) String() string {
	if s, ok := tokenKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// reserved words never bind as identification variables or result variables.
var reserved = map[string]bool{
	"ACCESS": true, "ALL": true, "AND": true, "ANY": true, "AS": true,
	"ASC": true, "BETWEEN": true, "BY": true, "CASE": true, "DELETE": true,
	"DESC": true, "DISTINCT": true, "ELSE": true, "EMPTY": true, "END": true,
	"ESCAPE": true, "EXISTS": true, "FALSE": true, "FETCH": true, "FROM": true,
	"GRANT": true, "GROUP": true, "HAVING": true, "IN": true, "INNER": true,
	"IS": true, "JOIN": true, "LEFT": true, "LIKE": true, "MEMBER": true,
	"NEW": true, "NOT": true, "NULL": true, "OF": true, "ON": true,
	"OR": true, "ORDER": true, "OUTER": true, "SELECT": true, "SET": true,
	"SOME": true, "THEN": true, "TO": true, "TRUE": true, "UPDATE": true,
	"WHEN": true, "WHERE": true, "WITH": true,
}

// IsReserved reports whether word is a reserved keyword.
func IsReserved(word string) bool {
	return reserved[strings.ToUpper(word)]
}
