package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// SymbolTable carries all cross-statement state of a generation pass:
// the variable-to-register map, class layouts, object-to-class bindings
// and the shared label counter. One table serves the root program and
// every module it pulls in, so registers and labels never collide
// across inclusion boundaries.
type SymbolTable struct {
	regs     map[string]string   // variable name -> hardware register ("x12", ...)
	classes  map[string][]string // class name -> ordered field names
	objTypes map[string]string   // object variable -> class name
	nextReg  int                 // next register number to hand out
	nextLab  int                 // next label number to hand out
}

// firstReg is the lowest register the allocator hands out. Lower registers
// are reserved for scratch use by the emitted sequences.
const firstReg = 12

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		regs:     make(map[string]string),
		classes:  make(map[string][]string),
		objTypes: make(map[string]string),
		nextReg:  firstReg,
	}
}

// fresh allocates the next register unconditionally. Registers are never
// recycled; programs are expected to be small.
func (st *SymbolTable) fresh() string {
	reg := fmt.Sprintf("x%d", st.nextReg)
	st.nextReg++
	return reg
}

// EnsureReg returns the register already bound to name, allocating a fresh
// one on first sight. Redeclaring a scalar keeps its register.
func (st *SymbolTable) EnsureReg(name string) string {
	if reg, ok := st.regs[name]; ok {
		return reg
	}
	reg := st.fresh()
	st.regs[name] = reg
	return reg
}

// BindFresh binds name to a brand-new register even if name was already
// bound. Each heap allocation gets its own pointer register; the old
// binding is abandoned.
func (st *SymbolTable) BindFresh(name string) string {
	reg := st.fresh()
	st.regs[name] = reg
	return reg
}

// Register looks up the register bound to name.
func (st *SymbolTable) Register(name string) (string, bool) {
	reg, ok := st.regs[name]
	return reg, ok
}

// DefineClass records a class layout. A redefinition replaces the previous
// field list.
func (st *SymbolTable) DefineClass(name string, fields []string) {
	st.classes[name] = fields
}

// ClassFields returns the ordered field list of a class.
func (st *SymbolTable) ClassFields(name string) ([]string, bool) {
	fields, ok := st.classes[name]
	return fields, ok
}

// BindObject records that the variable var holds an instance of class.
func (st *SymbolTable) BindObject(varName, className string) {
	st.objTypes[varName] = className
}

// ObjectClass returns the class a variable was allocated as.
func (st *SymbolTable) ObjectClass(varName string) (string, bool) {
	cls, ok := st.objTypes[varName]
	return cls, ok
}

// FieldOffset returns the byte offset of field within className: every
// field is one 8-byte slot, laid out in declaration order. An unknown
// class or field resolves to offset 0.
func (st *SymbolTable) FieldOffset(className, field string) int {
	for i, f := range st.classes[className] {
		if f == field {
			return i * 8
		}
	}
	return 0
}

// NewLabel returns the next value of the shared label counter. All label
// families (.Lif, .Lw_start, .Lskp, .Lp, .Lstr) draw from it, so no two
// labels in one output ever collide.
func (st *SymbolTable) NewLabel() int {
	n := st.nextLab
	st.nextLab++
	return n
}

// String renders the table for the --symbols debug dump, sorted for
// stable output.
func (st *SymbolTable) String() string {
	var sb strings.Builder

	names := make([]string, 0, len(st.regs))
	for name := range st.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	sb.WriteString("Registers:\n")
	for _, name := range names {
		if cls, ok := st.objTypes[name]; ok {
			fmt.Fprintf(&sb, "  %-12s %-5s (object of %s)\n", name, st.regs[name], cls)
		} else {
			fmt.Fprintf(&sb, "  %-12s %s\n", name, st.regs[name])
		}
	}

	classNames := make([]string, 0, len(st.classes))
	for name := range st.classes {
		classNames = append(classNames, name)
	}
	sort.Strings(classNames)
	sb.WriteString("Classes:\n")
	for _, name := range classNames {
		fmt.Fprintf(&sb, "  %-12s %s (%d bytes)\n",
			name, strings.Join(st.classes[name], " "), 8*len(st.classes[name]))
	}

	return sb.String()
}
