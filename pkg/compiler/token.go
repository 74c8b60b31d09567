package compiler

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / class / field name
	NUMBER     // numeric literal, carried as float64
	STRING     // string literal "..."

	// Keywords
	CLASS // "class"
	IS    // "is"
	DONE  // "done"
	LOCAL // "local"
	NEW   // "new"
	PRINT // "print"
	GET   // "Get" (capital G, module inclusion)
	IF    // "if"
	THEN  // "then"
	WHILE // "while"
	DO    // "do"
	REST  // "rest"

	// Punctuation / operators  (order matters: ASSIGN before EQUALS)
	ASSIGN   // =
	EQUALS   // ==
	GREATER  // >
	LESS     // <
	PLUS     // +
	MINUS    // -
	STAR     // *
	SLASH    // /
	DOT      // .
	COMMA    // ,
	AT       // @
	QUEST    // ?
	PERCENT  // %
	LBRACKET // [
	RBRACKET // ]
)

// tokenNames is indexed by TokenType.
var tokenNames = [...]string{
	EOF:        "EOF",
	IDENTIFIER: "IDENTIFIER",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	CLASS:      "CLASS",
	IS:         "IS",
	DONE:       "DONE",
	LOCAL:      "LOCAL",
	NEW:        "NEW",
	PRINT:      "PRINT",
	GET:        "GET",
	IF:         "IF",
	THEN:       "THEN",
	WHILE:      "WHILE",
	DO:         "DO",
	REST:       "REST",
	ASSIGN:     "ASSIGN",
	EQUALS:     "EQUALS",
	GREATER:    "GREATER",
	LESS:       "LESS",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
	STAR:       "STAR",
	SLASH:      "SLASH",
	DOT:        "DOT",
	COMMA:      "COMMA",
	AT:         "AT",
	QUEST:      "QUEST",
	PERCENT:    "PERCENT",
	LBRACKET:   "LBRACKET",
	RBRACKET:   "RBRACKET",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit produced by the Lexer.
// Value is only meaningful for NUMBER tokens; every consumer truncates it
// to an integer at use time.
type Token struct {
	Type   TokenType
	Lexeme string  // the exact source text that was matched
	Value  float64 // numeric payload for NUMBER
	Line   int     // 1-based source line
}

func (t Token) String() string {
	if t.Type == NUMBER {
		return fmt.Sprintf("%-10s %-14q  line %d", t.Type, formatNumber(t.Value), t.Line)
	}
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
