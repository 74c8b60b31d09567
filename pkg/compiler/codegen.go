package compiler

import (
	"fmt"
	"os/exec"
	"strings"
)

const (
	heapReg     = "x20" // bump-allocation cursor, set up by the prologue
	divReg      = "x11" // holds the constant 10 for the decimal print loop
	chaosReg    = "x12" // chaos state object fallback when "math" is unbound
	fallbackReg = "x0"  // stand-in register for unresolvable paths
)

// CodeGen walks the statement list and emits AArch64 assembly in a single
// pass. All state that must survive across statements (and across included
// modules) lives in the SymbolTable; the generator itself only carries the
// output buffer and the inclusion guard.
type CodeGen struct {
	syms      *SymbolTable
	out       strings.Builder
	baseDir   string
	including map[string]bool // module names currently being expanded

	// RunScript executes an @python block and returns its stdout. Tests
	// replace it; the default shells out to python3.
	RunScript func(script string) (string, error)
}

func NewCodeGen(syms *SymbolTable, baseDir string) *CodeGen {
	return &CodeGen{
		syms:      syms,
		baseDir:   baseDir,
		including: make(map[string]bool),
		RunScript: runPython,
	}
}

func runPython(script string) (string, error) {
	out, err := exec.Command("python3", "-c", script).Output()
	if err != nil {
		return "", fmt.Errorf("python script: %w", err)
	}
	return string(out), nil
}

// line emits one indented instruction.
func (g *CodeGen) line(format string, args ...any) {
	fmt.Fprintf(&g.out, "    "+format+"\n", args...)
}

// label emits an unindented label definition.
func (g *CodeGen) label(name string) {
	g.out.WriteString(name + ":\n")
}

func (g *CodeGen) comment(format string, args ...any) {
	fmt.Fprintf(&g.out, "    // "+format+"\n", args...)
}

// imm truncates a source literal to the integer the hardware sees.
func imm(v float64) int64 {
	return int64(v)
}

// Generate emits the complete program: startup prologue, one block of code
// per statement, and the exit epilogue. The only fatal condition is a
// failing @python block; every other irregularity degrades to a documented
// fallback and generation continues.
func (g *CodeGen) Generate(stmts []Stmt) (string, error) {
	g.out.WriteString(".global _start\n")
	g.out.WriteString(".section .text\n")
	g.label("_start")

	g.prologue()
	if err := g.genStmts(stmts); err != nil {
		return "", err
	}
	g.epilogue()

	return g.out.String(), nil
}

// prologue requests one page of anonymous memory from the kernel (mmap,
// syscall 222) and parks the returned base in the heap cursor. It also
// pre-loads the divisor register used by every decimal print.
func (g *CodeGen) prologue() {
	g.comment("runtime setup: heap page + print divisor")
	g.line("mov %s, #10", divReg)
	g.line("mov x0, #0")
	g.line("mov x1, #4096")
	g.line("mov x2, #3")
	g.line("mov x3, #34")
	g.line("mov x4, #-1")
	g.line("mov x5, #0")
	g.line("mov x8, #222")
	g.line("svc #0")
	g.line("mov %s, x0", heapReg)
}

// epilogue terminates the process with exit status 0 (syscall 93).
func (g *CodeGen) epilogue() {
	g.comment("exit(0)")
	g.line("mov x0, #0")
	g.line("mov x8, #93")
	g.line("svc #0")
}

func (g *CodeGen) genStmts(stmts []Stmt) error {
	for _, stmt := range stmts {
		if err := g.genStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (g *CodeGen) genStmt(stmt Stmt) error {
	switch s := stmt.(type) {
	case *LocalDecl:
		g.genLocal(s)
	case *ClassDef:
		g.syms.DefineClass(s.Name, s.Fields)
		g.comment("class %s: %d fields, %d bytes", s.Name, len(s.Fields), 8*len(s.Fields))
	case *HeapAlloc:
		g.genHeapAlloc(s)
	case *AssignStmt:
		g.genAssign(s)
	case *MathStmt:
		g.genMath(s)
	case *PrintVar:
		g.genPrintVar(s)
	case *PrintString:
		g.genPrintString(s)
	case *IfStmt:
		return g.genIf(s)
	case *ChanceStmt:
		return g.genChance(s)
	case *WhileStmt:
		return g.genWhile(s)
	case *AsmStmt:
		g.line("%s", s.Code)
	case *IntelStmt:
		g.line(".intel_syntax noprefix")
		g.line("%s", s.Code)
		g.line(".att_syntax")
	case *PythonStmt:
		return g.genPython(s)
	case *IncludeStmt:
		return g.genInclude(s)
	}
	return nil
}

func (g *CodeGen) genLocal(s *LocalDecl) {
	reg := g.syms.EnsureReg(s.Name)
	g.line("mov %s, #%d", reg, imm(s.Value))
}

// genHeapAlloc carves the object out of the heap page: the variable gets the
// current cursor and the cursor advances by the class size. An unknown class
// has size zero, so the object aliases whatever is allocated next.
func (g *CodeGen) genHeapAlloc(s *HeapAlloc) {
	reg := g.syms.BindFresh(s.VarName)
	g.syms.BindObject(s.VarName, s.ClassName)

	size := 0
	if fields, ok := g.syms.ClassFields(s.ClassName); ok {
		size = 8 * len(fields)
	}
	g.line("mov %s, %s", reg, heapReg)
	g.line("add %s, %s, #%d", heapReg, heapReg, size)
}

// resolvePath maps a parsed path onto (register, byte offset). A one-element
// path is a scalar living in its register at offset 0; a longer path is an
// object register plus the offset of path[1] within the object's class.
// Anything unresolvable lands on the fallback register at offset 0.
func (g *CodeGen) resolvePath(path []string) (reg string, offset int, isField bool) {
	if len(path) == 0 {
		return fallbackReg, 0, false
	}
	reg, ok := g.syms.Register(path[0])
	if !ok {
		reg = fallbackReg
	}
	if len(path) == 1 {
		return reg, 0, false
	}
	cls, _ := g.syms.ObjectClass(path[0])
	return reg, g.syms.FieldOffset(cls, path[1]), true
}

func (g *CodeGen) genAssign(s *AssignStmt) {
	reg, offset, isField := g.resolvePath(s.Path)
	if isField {
		g.line("mov x1, #%d", imm(s.Value))
		g.line("str x1, [%s, #%d]", reg, offset)
		return
	}
	g.line("mov %s, #%d", reg, imm(s.Value))
}

func mathMnemonic(op TokenType) string {
	if op == MINUS {
		return "sub"
	}
	return "add"
}

// genMath emits the read-modify-write for  path = path <op> literal. Field
// targets round-trip through memory; scalars update their register in place.
func (g *CodeGen) genMath(s *MathStmt) {
	mn := mathMnemonic(s.Op)
	reg, offset, isField := g.resolvePath(s.Path)
	if isField {
		g.line("ldr x1, [%s, #%d]", reg, offset)
		g.line("%s x1, x1, #%d", mn, imm(s.Value))
		g.line("str x1, [%s, #%d]", reg, offset)
		return
	}
	g.line("%s %s, %s, #%d", mn, reg, reg, imm(s.Value))
}

// genPrintVar emits the decimal conversion loop: digits are peeled off
// least-significant-first into a stack buffer that already ends in a
// newline, then written with one write syscall. The value is treated as
// unsigned. Field paths print the loaded slot value; printing a name that
// was never declared emits nothing.
func (g *CodeGen) genPrintVar(s *PrintVar) {
	if len(s.Path) == 0 {
		return
	}
	if _, ok := g.syms.Register(s.Path[0]); !ok {
		return
	}
	reg, offset, isField := g.resolvePath(s.Path)
	n := g.syms.NewLabel()
	loop := fmt.Sprintf(".Lp%d", n)

	g.line("stp x0, x1, [sp, #-16]!")
	if isField {
		g.line("ldr x0, [%s, #%d]", reg, offset)
	} else {
		g.line("mov x0, %s", reg)
	}
	g.line("sub sp, sp, #32")
	g.line("mov x1, sp")
	g.line("add x1, x1, #31")
	g.line("mov w2, #10")
	g.line("strb w2, [x1]")
	g.label(loop)
	g.line("sub x1, x1, #1")
	g.line("udiv x2, x0, %s", divReg)
	g.line("msub x3, x2, %s, x0", divReg)
	g.line("add x3, x3, #48")
	g.line("strb w3, [x1]")
	g.line("mov x0, x2")
	g.line("cbnz x0, %s", loop)
	g.line("mov x0, #1")
	g.line("mov x2, sp")
	g.line("add x2, x2, #32")
	g.line("sub x2, x2, x1")
	g.line("mov x8, #64")
	g.line("svc #0")
	g.line("add sp, sp, #32")
	g.line("ldp x0, x1, [sp], #16")
}

// genPrintString interleaves a .data fragment holding the literal (with a
// trailing newline) and the write syscall that prints it.
func (g *CodeGen) genPrintString(s *PrintString) {
	n := g.syms.NewLabel()
	lbl := fmt.Sprintf(".Lstr%d", n)

	g.out.WriteString("\n.section .data\n")
	fmt.Fprintf(&g.out, "%s: .ascii \"%s\\n\"\n", lbl, s.Value)
	g.out.WriteString(".section .text\n")
	g.line("mov x0, #1")
	g.line("adr x1, %s", lbl)
	g.line("mov x2, #%d", len(s.Value)+1)
	g.line("mov x8, #64")
	g.line("svc #0")
}

// negatedCond maps a comparison operator to the condition that branches
// AROUND the body: the emitted test jumps to the end label when the source
// condition is false.
func negatedCond(op TokenType) string {
	switch op {
	case EQUALS:
		return "ne"
	case GREATER:
		return "le"
	case LESS:
		return "ge"
	default:
		return "eq"
	}
}

// genCompare emits the cmp for a condition. Field paths load into x1 first;
// scalars compare their register directly.
func (g *CodeGen) genCompare(path []string, value float64) {
	reg, offset, isField := g.resolvePath(path)
	if isField {
		g.line("ldr x1, [%s, #%d]", reg, offset)
		reg = "x1"
	}
	g.line("cmp %s, #%d", reg, imm(value))
}

func (g *CodeGen) genIf(s *IfStmt) error {
	end := fmt.Sprintf(".Lif%d", g.syms.NewLabel())
	g.genCompare(s.Path, s.Value)
	g.line("b.%s %s", negatedCond(s.Op), end)
	if err := g.genStmts(s.Body); err != nil {
		return err
	}
	g.label(end)
	return nil
}

// genChance emits the probabilistic branch. The random state lives in the
// second slot of the "math" object (chaosReg when no such object exists):
// a zero state is seeded from the virtual counter-timer, then advanced with
// a splitmix-style scramble. The scrambled value mod 100 is compared against
// the chance; b.hs skips the body on roll >= chance, so the body runs with
// exactly chance-in-100 probability.
func (g *CodeGen) genChance(s *ChanceStmt) error {
	stateReg := chaosReg
	if reg, ok := g.syms.Register("math"); ok {
		stateReg = reg
	}
	skip := fmt.Sprintf(".Lskp%d", g.syms.NewLabel())
	end := fmt.Sprintf(".Lif%d", g.syms.NewLabel())

	g.line("ldr x1, [%s, #8]", stateReg)
	g.line("cmp x1, #0")
	g.line("b.ne %s", skip)
	g.line("mrs x1, cntvct_el0")
	g.label(skip)
	g.line("ldr x2, =0x9E3779B97F4A7C15")
	g.line("mul x1, x1, x2")
	g.line("eor x1, x1, x1, lsr #33")
	g.line("str x1, [%s, #8]", stateReg)
	g.line("and x1, x1, #0x7FFFFFFF")
	g.line("mov x2, #100")
	g.line("udiv x3, x1, x2")
	g.line("msub x1, x3, x2, x1")
	g.line("cmp x1, #%d", imm(s.Chance))
	g.line("b.hs %s", end)
	if err := g.genStmts(s.Body); err != nil {
		return err
	}
	g.label(end)
	return nil
}

func (g *CodeGen) genWhile(s *WhileStmt) error {
	n := g.syms.NewLabel()
	start := fmt.Sprintf(".Lw_start%d", n)
	end := fmt.Sprintf(".Lw_end%d", n)

	g.label(start)
	g.genCompare(s.Path, s.Value)
	g.line("b.%s %s", negatedCond(s.Op), end)
	if err := g.genStmts(s.Body); err != nil {
		return err
	}
	g.line("b %s", start)
	g.label(end)
	return nil
}

// genPython runs the captured script at compile time and injects its stdout
// into the output as comments. A failing script aborts the whole
// compilation: unlike every other construct there is no sensible fallback
// for code the build was told to run.
func (g *CodeGen) genPython(s *PythonStmt) error {
	out, err := g.RunScript(s.Script)
	if err != nil {
		return err
	}
	for _, ln := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		g.comment("python: %s", ln)
	}
	return nil
}

// genInclude expands a captured module in place: its source is lexed and
// parsed fresh, then generated into the same output with the same symbol
// table, so the module's classes and variables are visible to the rest of
// the program. A module currently being expanded is skipped to break
// inclusion cycles.
func (g *CodeGen) genInclude(s *IncludeStmt) error {
	if g.including[s.Name] {
		g.comment("Error: include cycle %s.hmr", s.Name)
		return nil
	}
	g.including[s.Name] = true
	defer delete(g.including, s.Name)

	g.comment("begin %s.hmr", s.Name)
	stmts := Parse(Lex(s.Source), g.baseDir)
	if err := g.genStmts(stmts); err != nil {
		return err
	}
	g.comment("end %s.hmr", s.Name)
	return nil
}
