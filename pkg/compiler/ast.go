package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// Stmt is implemented by every statement node. The AST is a closed sum: one
// struct per statement kind, each owning its fields and any nested body.
type Stmt interface {
	stmtNode()
	String() string
}

// formatNumber renders a literal the way the surface syntax writes it:
// whole values without a fractional part ("5", not "5.000000").
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pathString(path []string) string {
	return strings.Join(path, ".")
}

// LocalDecl represents  local name = <number>
type LocalDecl struct {
	Name  string
	Value float64
}

func (*LocalDecl) stmtNode() {}
func (d *LocalDecl) String() string {
	return fmt.Sprintf("LocalDecl(%s = %s)", d.Name, formatNumber(d.Value))
}

// ClassDef represents  class Name is f1 f2 ... done
// Field order is significant: a field's byte offset is its position * 8.
type ClassDef struct {
	Name   string
	Fields []string
}

func (*ClassDef) stmtNode() {}
func (c *ClassDef) String() string {
	return fmt.Sprintf("ClassDef(%s, fields=%v)", c.Name, c.Fields)
}

// HeapAlloc represents  local name = new Class
type HeapAlloc struct {
	VarName   string
	ClassName string
}

func (*HeapAlloc) stmtNode() {}
func (h *HeapAlloc) String() string {
	return fmt.Sprintf("HeapAlloc(%s = new %s)", h.VarName, h.ClassName)
}

// AssignStmt represents  path = <number>
type AssignStmt struct {
	Path  []string
	Value float64
}

func (*AssignStmt) stmtNode() {}
func (a *AssignStmt) String() string {
	return fmt.Sprintf("Assign(%s = %s)", pathString(a.Path), formatNumber(a.Value))
}

// MathStmt represents the self-referential update  path = path <op> <number>.
// Only the operator and the literal survive parsing; the repeated path is
// discarded.
type MathStmt struct {
	Path  []string
	Op    TokenType
	Value float64
}

func (*MathStmt) stmtNode() {}
func (m *MathStmt) String() string {
	return fmt.Sprintf("Math(%s %s= %s)", pathString(m.Path), m.Op, formatNumber(m.Value))
}

// PrintVar represents  print path  for a scalar or an object field.
type PrintVar struct {
	Path []string
}

func (*PrintVar) stmtNode()        {}
func (p *PrintVar) String() string { return fmt.Sprintf("PrintVar(%s)", pathString(p.Path)) }

// PrintString represents  print "literal"
type PrintString struct {
	Value string
}

func (*PrintString) stmtNode()        {}
func (p *PrintString) String() string { return fmt.Sprintf("PrintString(%q)", p.Value) }

// IfStmt represents  if path <cmp> <number> then body done
type IfStmt struct {
	Path  []string
	Op    TokenType
	Value float64
	Body  []Stmt
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	return fmt.Sprintf("If(%s %s %s, body=%d)", pathString(i.Path), i.Op, formatNumber(i.Value), len(i.Body))
}

// ChanceStmt represents the probabilistic form  if ? <chance> then body done
// ("Chaos Roll"): the body executes with Chance percent probability.
type ChanceStmt struct {
	Chance float64
	Body   []Stmt
}

func (*ChanceStmt) stmtNode() {}
func (c *ChanceStmt) String() string {
	return fmt.Sprintf("Chance(%s%%, body=%d)", formatNumber(c.Chance), len(c.Body))
}

// WhileStmt represents  while path <cmp> <number> do body done
type WhileStmt struct {
	Path  []string
	Op    TokenType
	Value float64
	Body  []Stmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("While(%s %s %s, body=%d)", pathString(w.Path), w.Op, formatNumber(w.Value), len(w.Body))
}

// AsmStmt is a raw assembly line (@asm blocks, and the parser's generic
// fallback for malformed statements, which carries "nop").
type AsmStmt struct {
	Code string
}

func (*AsmStmt) stmtNode()        {}
func (a *AsmStmt) String() string { return fmt.Sprintf("Asm(%q)", a.Code) }

// IntelStmt is an @intel block: the line is emitted wrapped in syntax-mode
// toggle directives.
type IntelStmt struct {
	Code string
}

func (*IntelStmt) stmtNode()        {}
func (i *IntelStmt) String() string { return fmt.Sprintf("Intel(%q)", i.Code) }

// PythonStmt is an @python block: the script runs at compile time and its
// stdout is injected into the assembly as a comment.
type PythonStmt struct {
	Script string
}

func (*PythonStmt) stmtNode()        {}
func (p *PythonStmt) String() string { return fmt.Sprintf("Python(%q)", p.Script) }

// IncludeStmt holds the raw text of a Get-included module, captured at parse
// time and expanded (lexed, parsed, generated) at generation time.
type IncludeStmt struct {
	Name   string // module name as written, without the .hmr extension
	Source string
}

func (*IncludeStmt) stmtNode() {}
func (m *IncludeStmt) String() string {
	return fmt.Sprintf("Include(%s.hmr, %d bytes)", m.Name, len(m.Source))
}
