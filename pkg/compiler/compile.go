package compiler

import "strings"

// Compile runs the full pipeline over one source file: lex, parse, generate.
// baseDir is the directory Get-included modules are resolved against,
// normally the directory of the source file. The returned string is a
// complete GNU-syntax AArch64 assembly program.
func Compile(src, baseDir string) (string, error) {
	tokens := Lex(src)
	stmts := Parse(tokens, baseDir)
	gen := NewCodeGen(NewSymbolTable(), baseDir)
	return gen.Generate(stmts)
}

// FormatTokens renders a token slice one per line, for the --tokens dump.
func FormatTokens(tokens []Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.String() + "\n")
	}
	return sb.String()
}

// FormatAST renders a statement list one node per line, nested bodies
// indented, for the --ast dump.
func FormatAST(stmts []Stmt) string {
	var sb strings.Builder
	formatStmts(&sb, stmts, 0)
	return sb.String()
}

func formatStmts(sb *strings.Builder, stmts []Stmt, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, stmt := range stmts {
		sb.WriteString(indent + stmt.String() + "\n")
		switch s := stmt.(type) {
		case *IfStmt:
			formatStmts(sb, s.Body, depth+1)
		case *ChanceStmt:
			formatStmts(sb, s.Body, depth+1)
		case *WhileStmt:
			formatStmts(sb, s.Body, depth+1)
		}
	}
}
