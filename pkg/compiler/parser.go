package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Parser consumes the flat token slice produced by the Lexer and builds the
// statement list via single-token-lookahead recursive descent. It never
// backtracks and it never fails: malformed shapes degrade to documented
// fallbacks (a "nop" assembly statement, a comment placeholder for an
// unreadable include) and parsing continues.
//
// Grammar:
//
//	program    = statement* EOF
//	statement  = include | atBlock | local | classDef | print | if | while | pathStmt
//	include    = "Get" IDENTIFIER                      ; captures <name>.hmr raw
//	atBlock    = "@" ("asm" | "intel" | "python") "is"? token* "done"
//	local      = "local" IDENTIFIER "="? ("new" IDENTIFIER | NUMBER)
//	classDef   = "class" IDENTIFIER "is"? IDENTIFIER* "done"
//	print      = "print" (STRING | path)
//	if         = "if" "?" NUMBER then-run body "done"  ; probabilistic form
//	           | "if" path cmp NUMBER then-run body "done"
//	while      = "while" path cmp NUMBER do-run body "done"
//	pathStmt   = path "=" (NUMBER | path op NUMBER)
//	path       = IDENTIFIER ("." IDENTIFIER)*
//	cmp        = "==" | ">" | "<"
//
// Reads past the end of the token slice clamp to the EOF token, and nested
// bodies stop at "done" or end of input.
type Parser struct {
	tokens  []Token
	pos     int
	baseDir string // directory Get modules are resolved against
}

func NewParser(tokens []Token, baseDir string) *Parser {
	return &Parser{tokens: tokens, baseDir: baseDir}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: EOF}
	}
	return p.tokens[p.pos]
}

// advance consumes and returns the current token.
func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// parsePath collects IDENTIFIER ("." IDENTIFIER)* and returns the element
// list. A leading non-identifier yields an empty path.
func (p *Parser) parsePath() []string {
	var path []string
	if p.peek().Type != IDENTIFIER {
		return path
	}
	path = append(path, p.advance().Lexeme)
	for p.peek().Type == DOT {
		p.advance()
		if tok := p.advance(); tok.Type == IDENTIFIER {
			path = append(path, tok.Lexeme)
		}
	}
	return path
}

// parseBody repeatedly dispatches statements until the closing "done" (which
// it consumes) or end of input.
func (p *Parser) parseBody() []Stmt {
	var body []Stmt
	for p.peek().Type != DONE && p.peek().Type != EOF {
		body = append(body, p.parseStatement())
	}
	if p.peek().Type == DONE {
		p.advance()
	}
	return body
}

// skipAny consumes tokens as long as the current one is in types.
func (p *Parser) skipAny(types ...TokenType) {
	for {
		tt := p.peek().Type
		skipped := false
		for _, want := range types {
			if tt == want {
				p.advance()
				skipped = true
				break
			}
		}
		if !skipped {
			return
		}
	}
}

// numberOr returns the numeric payload of the consumed token, or def when
// the token is not a number.
func (p *Parser) numberOr(def float64) float64 {
	if tok := p.advance(); tok.Type == NUMBER {
		return tok.Value
	}
	return def
}

// parseInclude handles  Get <name>. The module file <name>.hmr is read
// relative to baseDir and captured raw; expansion is deferred to code
// generation. A read failure becomes a comment placeholder, never an error.
func (p *Parser) parseInclude() Stmt {
	name := "lib"
	if tok := p.advance(); tok.Type == IDENTIFIER {
		name = tok.Lexeme
	}
	content, err := os.ReadFile(filepath.Join(p.baseDir, name+".hmr"))
	if err != nil {
		return &AsmStmt{Code: fmt.Sprintf("// Error: Could not read %s.hmr", name)}
	}
	return &IncludeStmt{Name: name, Source: string(content)}
}

// parseAtBlock handles the three "@" embedded-block kinds. Each scans tokens
// up to "done" and reconstitutes a text blob with fixed separators; numbers
// get a literal-marker "#" prefix only in the asm flavor. An unrecognized
// kind degrades to a nop without consuming the identifier.
func (p *Parser) parseAtBlock() Stmt {
	kind := p.peek()
	if kind.Type != IDENTIFIER {
		return &AsmStmt{Code: "nop"}
	}

	switch kind.Lexeme {
	case "asm":
		p.advance()
		if p.peek().Type == IS {
			p.advance()
		}
		var code strings.Builder
		for p.peek().Type != DONE && p.peek().Type != EOF {
			switch tok := p.advance(); tok.Type {
			case IDENTIFIER:
				code.WriteString(tok.Lexeme + " ")
			case NUMBER:
				code.WriteString("#" + formatNumber(tok.Value) + " ")
			case COMMA:
				code.WriteString(", ")
			}
		}
		if p.peek().Type == DONE {
			p.advance()
		}
		return &AsmStmt{Code: code.String()}

	case "intel":
		p.advance()
		if p.peek().Type == IS {
			p.advance()
		}
		var code strings.Builder
		for p.peek().Type != DONE && p.peek().Type != EOF {
			switch tok := p.advance(); tok.Type {
			case IDENTIFIER:
				code.WriteString(tok.Lexeme + " ")
			case NUMBER:
				code.WriteString(formatNumber(tok.Value) + " ")
			case COMMA:
				code.WriteString(", ")
			case LBRACKET:
				code.WriteString("[ ")
			case RBRACKET:
				code.WriteString("] ")
			}
		}
		if p.peek().Type == DONE {
			p.advance()
		}
		return &IntelStmt{Code: code.String()}

	case "python":
		p.advance()
		if p.peek().Type == IS {
			p.advance()
		}
		var script strings.Builder
		for p.peek().Type != DONE && p.peek().Type != EOF {
			switch tok := p.advance(); tok.Type {
			case IDENTIFIER:
				script.WriteString(tok.Lexeme + " ")
			case STRING:
				script.WriteString("\"" + tok.Lexeme + "\" ")
			case NUMBER:
				script.WriteString(formatNumber(tok.Value) + " ")
			}
		}
		if p.peek().Type == DONE {
			p.advance()
		}
		return &PythonStmt{Script: script.String()}
	}

	return &AsmStmt{Code: "nop"}
}

// parseStatement dispatches on the current token. It always produces a
// statement; shapes that match nothing become a nop.
func (p *Parser) parseStatement() Stmt {
	switch p.peek().Type {

	case GET:
		p.advance()
		return p.parseInclude()

	case AT:
		p.advance()
		return p.parseAtBlock()

	case LOCAL:
		p.advance()
		name := ""
		if tok := p.advance(); tok.Type == IDENTIFIER {
			name = tok.Lexeme
		}
		if p.peek().Type == ASSIGN {
			p.advance()
		}
		if p.peek().Type == NEW {
			p.advance()
			className := ""
			if tok := p.advance(); tok.Type == IDENTIFIER {
				className = tok.Lexeme
			}
			return &HeapAlloc{VarName: name, ClassName: className}
		}
		return &LocalDecl{Name: name, Value: p.numberOr(0)}

	case CLASS:
		p.advance()
		name := ""
		if tok := p.advance(); tok.Type == IDENTIFIER {
			name = tok.Lexeme
		}
		if p.peek().Type == IS {
			p.advance()
		}
		var fields []string
		for p.peek().Type != DONE && p.peek().Type != EOF {
			if tok := p.advance(); tok.Type == IDENTIFIER {
				fields = append(fields, tok.Lexeme)
			}
		}
		if p.peek().Type == DONE {
			p.advance()
		}
		return &ClassDef{Name: name, Fields: fields}

	case PRINT:
		p.advance()
		if p.peek().Type == STRING {
			return &PrintString{Value: p.advance().Lexeme}
		}
		path := p.parsePath()
		if len(path) == 0 {
			return &AsmStmt{Code: "nop"}
		}
		return &PrintVar{Path: path}

	case IF:
		p.advance()
		if p.peek().Type == QUEST {
			p.advance()
			p.skipAny(LESS, PERCENT) // decoration: if ? < 30 then
			chance := p.numberOr(0)
			p.skipAny(GREATER, IS, THEN)
			return &ChanceStmt{Chance: chance, Body: p.parseBody()}
		}
		path := p.parsePath()
		op := p.advance().Type
		val := p.numberOr(0)
		p.skipAny(THEN, IS)
		return &IfStmt{Path: path, Op: op, Value: val, Body: p.parseBody()}

	case WHILE:
		p.advance()
		path := p.parsePath()
		op := p.advance().Type
		val := p.numberOr(0)
		p.skipAny(DO, IS)
		return &WhileStmt{Path: path, Op: op, Value: val, Body: p.parseBody()}

	default:
		path := p.parsePath()
		if p.peek().Type != ASSIGN {
			p.advance()
			return &AsmStmt{Code: "nop"}
		}
		p.advance() // =
		if p.peek().Type == NUMBER {
			return &AssignStmt{Path: path, Value: p.advance().Value}
		}
		// Self-referential form: path = path <op> <number>. The repeated
		// path is parsed and discarded; only the operator and literal
		// survive.
		p.parsePath()
		op := p.advance().Type
		return &MathStmt{Path: path, Op: op, Value: p.numberOr(0)}
	}
}

// Parse consumes the full token sequence and returns the statement list.
func Parse(tokens []Token, baseDir string) []Stmt {
	p := NewParser(tokens, baseDir)
	var stmts []Stmt
	for p.peek().Type != EOF {
		stmts = append(stmts, p.parseStatement())
	}
	return stmts
}
