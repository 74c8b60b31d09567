package compiler

import (
	"strconv"
	"unicode"
)

// keywords maps source text to its keyword TokenType. Matching is case
// sensitive: "Get" is the inclusion keyword, "get" is an ordinary identifier.
var keywords = map[string]TokenType{
	"Get":   GET,
	"class": CLASS,
	"new":   NEW,
	"local": LOCAL,
	"print": PRINT,
	"rest":  REST,
	"if":    IF,
	"then":  THEN,
	"while": WHILE,
	"do":    DO,
	"is":    IS,
	"done":  DONE,
}

// Lexer holds all mutable state for a single scanning pass over src.
//
// The language defines no lexical errors: unknown characters are skipped,
// malformed numbers become 0, and an unterminated string consumes to end of
// input. nextToken therefore never fails.
type Lexer struct {
	src  []rune
	pos  int // index of the next rune to consume
	line int // current 1-based source line
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1}
}

// peek returns the rune at the current position without advancing.
func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the rune one position ahead of the current position.
func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

// advance consumes one rune and returns it.
func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// scanIdent collects a full identifier or keyword token.
// The first character (letter or '_') must still be at l.peek().
func (l *Lexer) scanIdent() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) && isIdentRune(l.peek()) {
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	if kw, ok := keywords[lexeme]; ok {
		return Token{Type: kw, Lexeme: lexeme, Line: line}
	}
	return Token{Type: IDENTIFIER, Lexeme: lexeme, Line: line}
}

// scanNumber collects a maximal run of digits and dots and parses it as a
// float. A run that does not parse (e.g. "1.2.3") becomes 0, never an error.
func (l *Lexer) scanNumber() Token {
	line := l.line
	start := l.pos
	for l.pos < len(l.src) && (unicode.IsDigit(l.peek()) || l.peek() == '.') {
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	val, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		val = 0
	}
	return Token{Type: NUMBER, Lexeme: lexeme, Value: val, Line: line}
}

// scanString collects a "..." literal with no escape processing. A missing
// closing quote consumes to end of input.
func (l *Lexer) scanString() Token {
	line := l.line
	l.advance() // consume opening "
	start := l.pos
	for l.pos < len(l.src) && l.peek() != '"' {
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	l.advance() // consume closing " (no-op at end of input)
	return Token{Type: STRING, Lexeme: lexeme, Line: line}
}

// nextToken skips whitespace and returns the next Token. Characters that
// match no rule are silently dropped and scanning resumes.
func (l *Lexer) nextToken() Token {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return Token{Type: EOF, Line: l.line}
		}

		ch := l.peek()
		line := l.line

		if unicode.IsLetter(ch) || ch == '_' {
			return l.scanIdent()
		}
		if unicode.IsDigit(ch) {
			return l.scanNumber()
		}
		if ch == '"' {
			return l.scanString()
		}

		l.advance() // consume the character before the switch
		switch ch {
		case '?':
			return Token{QUEST, "?", 0, line}
		case '%':
			return Token{PERCENT, "%", 0, line}
		case '@':
			return Token{AT, "@", 0, line}
		case ',':
			return Token{COMMA, ",", 0, line}
		case '.':
			return Token{DOT, ".", 0, line}
		case '[':
			return Token{LBRACKET, "[", 0, line}
		case ']':
			return Token{RBRACKET, "]", 0, line}
		case '>':
			return Token{GREATER, ">", 0, line}
		case '<':
			return Token{LESS, "<", 0, line}
		case '+':
			return Token{PLUS, "+", 0, line}
		case '-':
			return Token{MINUS, "-", 0, line}
		case '*':
			return Token{STAR, "*", 0, line}
		case '/':
			return Token{SLASH, "/", 0, line}
		case '=':
			if l.peek() == '=' { // lookahead: distinguish = vs ==
				l.advance()
				return Token{EQUALS, "==", 0, line}
			}
			return Token{ASSIGN, "=", 0, line}
		}
		// Unrecognized character: skip it and keep scanning.
	}
}

// Lex tokenises src and returns all tokens including the final EOF token.
func Lex(src string) []Token {
	l := newLexer(src)
	var tokens []Token
	for {
		tok := l.nextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}
