package oql

import (
	"strings"
	"unicode"
)

// Lexer tokenizes query and rule text.
type Lexer struct {
	input  []rune
	pos    int
	peeked *Token
}

// NewLexer creates a lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: []rune(input)}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (Token, error) {
	if l.peeked != nil {
		return *l.peeked, nil
	}
	tok, err := l.next()
	if err != nil {
		return Token{}, err
	}
	l.peeked = &tok
	return tok, nil
}

// Next consumes and returns the next token.
func (l *Lexer) Next() (Token, error) {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok, nil
	}
	return l.next()
}

// Tokenize returns every token of input, terminated by a TokEOF token.
func Tokenize(input string) ([]Token, error) {
	lex := NewLexer(input)
	var toks []Token
	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks, nil
		}
	}
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.input) {
		return Token{Kind: TokEOF, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]
	pos := l.pos

	single := func(kind TokenKind) (Token, error) {
		l.pos++
		return Token{Kind: kind, Lit: string(ch), Pos: pos}, nil
	}

	switch ch {
	case '.':
		if l.pos+1 < len(l.input) && unicode.IsDigit(l.input[l.pos+1]) {
			return l.readNumber(pos)
		}
		return single(TokDot)
	case ',':
		return single(TokComma)
	case '(':
		return single(TokLParen)
	case ')':
		return single(TokRParen)
	case '+':
		return single(TokPlus)
	case '-':
		return single(TokMinus)
	case '*':
		return single(TokStar)
	case '/':
		return single(TokSlash)
	case '=':
		return single(TokEq)
	case '!':
		if l.peekRune(1) == '=' {
			l.pos += 2
			return Token{Kind: TokNeq, Lit: "!=", Pos: pos}, nil
		}
		return Token{}, l.errorf(pos, "unexpected '!', did you mean '!='?")
	case '<':
		switch l.peekRune(1) {
		case '=':
			l.pos += 2
			return Token{Kind: TokLte, Lit: "<=", Pos: pos}, nil
		case '>':
			l.pos += 2
			return Token{Kind: TokNeq, Lit: "<>", Pos: pos}, nil
		}
		return single(TokLt)
	case '>':
		if l.peekRune(1) == '=' {
			l.pos += 2
			return Token{Kind: TokGte, Lit: ">=", Pos: pos}, nil
		}
		return single(TokGt)
	case '\'':
		return l.readString(pos)
	case ':':
		l.pos++
		if l.pos >= len(l.input) || !isIdentStart(l.input[l.pos]) {
			return Token{}, l.errorf(pos, "expected parameter name after ':'")
		}
		start := l.pos
		for l.pos < len(l.input) && isIdentCont(l.input[l.pos]) {
			l.pos++
		}
		return Token{Kind: TokNamedParam, Lit: string(l.input[start:l.pos]), Pos: pos}, nil
	case '?':
		l.pos++
		start := l.pos
		for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
			l.pos++
		}
		if start == l.pos {
			return Token{}, l.errorf(pos, "expected parameter position after '?'")
		}
		return Token{Kind: TokPosParam, Lit: string(l.input[start:l.pos]), Pos: pos}, nil
	default:
		if unicode.IsDigit(ch) {
			return l.readNumber(pos)
		}
		if isIdentStart(ch) {
			return l.readIdent(pos)
		}
		return Token{}, l.errorf(pos, "unexpected character %q", ch)
	}
}

// readString reads a single-quoted literal; a doubled quote escapes itself.
func (l *Lexer) readString(pos int) (Token, error) {
	l.pos++ // skip opening '
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\'' {
			if l.peekRune(1) == '\'' {
				b.WriteRune('\'')
				l.pos += 2
				continue
			}
			l.pos++ // skip closing '
			return Token{Kind: TokString, Lit: b.String(), Pos: pos}, nil
		}
		b.WriteRune(ch)
		l.pos++
	}
	return Token{}, l.errorf(pos, "unterminated string literal")
}

func (l *Lexer) readNumber(pos int) (Token, error) {
	start := l.pos
	for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' && unicode.IsDigit(l.peekRune(1)) {
		l.pos++ // consume .
		for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		save := l.pos
		l.pos++
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.pos++
		}
		if l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
			for l.pos < len(l.input) && unicode.IsDigit(l.input[l.pos]) {
				l.pos++
			}
		} else {
			l.pos = save
		}
	}
	// Type suffixes (10L, 1.5D, 2F) are accepted and kept in the literal.
	if l.pos < len(l.input) && strings.ContainsRune("lLdDfF", l.input[l.pos]) &&
		(l.pos+1 >= len(l.input) || !isIdentCont(l.input[l.pos+1])) {
		l.pos++
	}
	return Token{Kind: TokNumber, Lit: string(l.input[start:l.pos]), Pos: pos}, nil
}

func (l *Lexer) readIdent(pos int) (Token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentCont(l.input[l.pos]) {
		l.pos++
	}
	return Token{Kind: TokIdent, Lit: string(l.input[start:l.pos]), Pos: pos}, nil
}

func (l *Lexer) peekRune(offset int) rune {
	if l.pos+offset < len(l.input) {
		return l.input[l.pos+offset]
	}
	return 0
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

func (l *Lexer) errorf(pos int, format string, args ...any) error {
	return newParseError(pos, format, args...)
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_' || ch == '$'
}

func isIdentCont(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$'
}
