// Package cpu interprets the AArch64 subset the compiler emits. It is a
// text-level machine: Load parses GNU-syntax assembly straight into an
// instruction list (no encoding step), and Step executes one instruction
// against a flat memory image with Linux syscall semantics for mmap, write
// and exit. It exists so compiled programs can be executed and asserted on
// without an ARM box or a cross toolchain.
package cpu

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

const (
	// MemSize is the flat memory image size. The stack pointer starts at
	// the top and grows down; .data strings and the heap live near the
	// bottom.
	MemSize  = 1 << 20
	dataBase = 0x1000  // .ascii literals are placed from here
	heapBase = 0x10000 // what the mmap syscall hands out

	spIndex  = 31 // register slot used for sp
	numRegs  = 32
	maxSteps = 5_000_000
)

// Linux AArch64 syscall numbers the machine implements.
const (
	sysWrite = 64
	sysExit  = 93
	sysMmap  = 222
)

type instruction struct {
	mnemonic string
	ops      []string // operand tokens, commas and brackets split out
	raw      string
	line     int
}

// CPU holds the full machine state. Zero value is not usable; construct
// with New.
type CPU struct {
	regs   [numRegs]uint64
	mem    []byte
	prog   []instruction
	labels map[string]int    // text label -> instruction index
	data   map[string]uint64 // data label -> memory address
	pc     int

	// last cmp operand pair; conditional branches re-derive the condition
	// from these instead of modelling NZCV
	cmpA, cmpB uint64

	// Cycles backs the cntvct_el0 counter-timer register. Defaults to a
	// wall-clock seed; tests set it for deterministic runs.
	Cycles uint64

	Output   io.Writer
	Halted   bool
	ExitCode uint64
	Steps    int
	MaxSteps int
}

func New() *CPU {
	c := &CPU{
		mem:      make([]byte, MemSize),
		labels:   make(map[string]int),
		data:     make(map[string]uint64),
		Output:   io.Discard,
		Cycles:   uint64(time.Now().UnixNano()),
		MaxSteps: maxSteps,
	}
	c.regs[spIndex] = MemSize
	return c
}

// operand splitting: commas separate operands, brackets and the pre-index
// bang become their own tokens so addressing modes parse positionally
var opSplitter = strings.NewReplacer(",", " ", "[", " [ ", "]", " ] ", "!", " ! ")

// Load parses an assembly listing into the instruction list and the memory
// image. Pass one walks the lines recording label positions and placing
// .ascii data; pass two is implicit since instructions are collected in the
// same walk (label targets are instruction indexes, which are known by the
// time a branch executes).
func (c *CPU) Load(asm string) error {
	inData := false
	dataCursor := uint64(dataBase)

	for i, rawLine := range strings.Split(asm, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		switch {
		case strings.HasPrefix(line, ".section"):
			inData = strings.Contains(line, ".data")
			continue
		case strings.HasPrefix(line, ".global"),
			strings.HasPrefix(line, ".intel_syntax"),
			strings.HasPrefix(line, ".att_syntax"):
			continue
		}

		if inData {
			// data lines look like:  .Lstr0: .ascii "hi\n"
			name, rest, ok := strings.Cut(line, ":")
			if !ok {
				return fmt.Errorf("line %d: unlabelled data %q", i+1, line)
			}
			payload, err := asciiPayload(strings.TrimSpace(rest))
			if err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
			c.data[name] = dataCursor
			copy(c.mem[dataCursor:], payload)
			dataCursor += uint64(len(payload))
			continue
		}

		if name, ok := strings.CutSuffix(line, ":"); ok {
			c.labels[name] = len(c.prog)
			continue
		}

		fields := strings.Fields(opSplitter.Replace(line))
		c.prog = append(c.prog, instruction{
			mnemonic: fields[0],
			ops:      fields[1:],
			raw:      line,
			line:     i + 1,
		})
	}

	if start, ok := c.labels["_start"]; ok {
		c.pc = start
	}
	return nil
}

// asciiPayload decodes an .ascii directive argument, handling the escapes
// the compiler emits.
func asciiPayload(directive string) ([]byte, error) {
	rest, ok := strings.CutPrefix(directive, ".ascii")
	if !ok {
		return nil, fmt.Errorf("unsupported data directive %q", directive)
	}
	s := strings.TrimSpace(rest)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return nil, fmt.Errorf("malformed .ascii argument %q", s)
	}
	s = s[1 : len(s)-1]

	var out []byte
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			out = append(out, s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case '\\':
			out = append(out, '\\')
		case '"':
			out = append(out, '"')
		default:
			out = append(out, '\\', s[i])
		}
	}
	return out, nil
}

// Run steps until the program exits or the step budget runs out.
func (c *CPU) Run() error {
	for !c.Halted {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step executes one instruction. Running off the end of the program halts
// the machine the way exit(0) would.
func (c *CPU) Step() error {
	if c.Halted {
		return nil
	}
	if c.pc >= len(c.prog) {
		c.Halted = true
		return nil
	}
	if c.Steps++; c.Steps > c.MaxSteps {
		return fmt.Errorf("step budget exceeded after %d instructions", c.MaxSteps)
	}

	ins := c.prog[c.pc]
	c.pc++
	if err := c.exec(ins); err != nil {
		return fmt.Errorf("line %d: %q: %w", ins.line, ins.raw, err)
	}
	return nil
}

func (c *CPU) exec(ins instruction) error {
	switch ins.mnemonic {
	case "nop":
		return nil

	case "mov":
		v, err := c.value(ins.ops[1])
		if err != nil {
			return err
		}
		return c.setReg(ins.ops[0], v)

	case "add", "sub", "mul", "udiv", "and", "eor":
		return c.arith(ins)

	case "msub":
		// msub d, a, b, c  =>  d = c - a*b
		a, err := c.value(ins.ops[1])
		if err != nil {
			return err
		}
		b, err := c.value(ins.ops[2])
		if err != nil {
			return err
		}
		acc, err := c.value(ins.ops[3])
		if err != nil {
			return err
		}
		return c.setReg(ins.ops[0], acc-a*b)

	case "cmp":
		a, err := c.value(ins.ops[0])
		if err != nil {
			return err
		}
		b, err := c.value(ins.ops[1])
		if err != nil {
			return err
		}
		c.cmpA, c.cmpB = a, b
		return nil

	case "b":
		return c.branch(ins.ops[0])

	case "cbnz":
		v, err := c.value(ins.ops[0])
		if err != nil {
			return err
		}
		if v != 0 {
			return c.branch(ins.ops[1])
		}
		return nil

	case "adr":
		addr, ok := c.data[ins.ops[1]]
		if !ok {
			return fmt.Errorf("unknown data label %q", ins.ops[1])
		}
		return c.setReg(ins.ops[0], addr)

	case "mrs":
		if ins.ops[1] != "cntvct_el0" {
			return fmt.Errorf("unsupported system register %q", ins.ops[1])
		}
		return c.setReg(ins.ops[0], c.Cycles)

	case "ldr":
		return c.load(ins, 8)
	case "str":
		return c.store(ins, 8)
	case "strb":
		return c.store(ins, 1)
	case "ldp":
		return c.loadPair(ins)
	case "stp":
		return c.storePair(ins)

	case "svc":
		return c.syscall()
	}

	if cond, ok := strings.CutPrefix(ins.mnemonic, "b."); ok {
		taken, err := c.condition(cond)
		if err != nil {
			return err
		}
		if taken {
			return c.branch(ins.ops[0])
		}
		return nil
	}

	return fmt.Errorf("unknown mnemonic %q", ins.mnemonic)
}

func (c *CPU) arith(ins instruction) error {
	a, err := c.value(ins.ops[1])
	if err != nil {
		return err
	}
	// shifted register form:  eor x1, x1, x1, lsr #33
	var b uint64
	if len(ins.ops) >= 4 && (ins.ops[3] == "lsr" || ins.ops[3] == "lsl") {
		b, err = c.value(ins.ops[2])
		if err != nil {
			return err
		}
		sh, err := c.value(ins.ops[4])
		if err != nil {
			return err
		}
		if ins.ops[3] == "lsr" {
			b >>= sh
		} else {
			b <<= sh
		}
	} else {
		b, err = c.value(ins.ops[2])
		if err != nil {
			return err
		}
	}

	var r uint64
	switch ins.mnemonic {
	case "add":
		r = a + b
	case "sub":
		r = a - b
	case "mul":
		r = a * b
	case "udiv":
		if b == 0 {
			r = 0 // AArch64 udiv by zero yields zero, no trap
		} else {
			r = a / b
		}
	case "and":
		r = a & b
	case "eor":
		r = a ^ b
	}
	return c.setReg(ins.ops[0], r)
}

// condition evaluates a branch condition against the last cmp pair. Signed
// conditions reinterpret the operands as int64; hs/lo stay unsigned.
func (c *CPU) condition(cond string) (bool, error) {
	sa, sb := int64(c.cmpA), int64(c.cmpB)
	switch cond {
	case "eq":
		return c.cmpA == c.cmpB, nil
	case "ne":
		return c.cmpA != c.cmpB, nil
	case "le":
		return sa <= sb, nil
	case "lt":
		return sa < sb, nil
	case "ge":
		return sa >= sb, nil
	case "gt":
		return sa > sb, nil
	case "hs":
		return c.cmpA >= c.cmpB, nil
	case "lo":
		return c.cmpA < c.cmpB, nil
	}
	return false, fmt.Errorf("unknown condition %q", cond)
}

func (c *CPU) branch(label string) error {
	target, ok := c.labels[label]
	if !ok {
		return fmt.Errorf("unknown label %q", label)
	}
	c.pc = target
	return nil
}

// address resolves a bracketed operand sequence starting at ops[idx]:
// [ base ]  or  [ base #off ]. Returns the effective address and the index
// just past the closing bracket.
func (c *CPU) address(ops []string, idx int) (uint64, int, error) {
	if idx >= len(ops) || ops[idx] != "[" {
		return 0, idx, fmt.Errorf("expected address, got %v", ops[idx:])
	}
	idx++
	base, err := c.value(ops[idx])
	if err != nil {
		return 0, idx, err
	}
	idx++
	var off int64
	if ops[idx] != "]" {
		v, err := parseImm(ops[idx])
		if err != nil {
			return 0, idx, err
		}
		off = int64(v)
		idx++
	}
	if ops[idx] != "]" {
		return 0, idx, fmt.Errorf("expected ], got %q", ops[idx])
	}
	return base + uint64(off), idx + 1, nil
}

func (c *CPU) checkMem(addr uint64, size int) error {
	if addr+uint64(size) > uint64(len(c.mem)) {
		return fmt.Errorf("memory access at %#x out of range", addr)
	}
	return nil
}

func (c *CPU) load(ins instruction, size int) error {
	// literal form:  ldr x2, =0x9E3779B97F4A7C15
	if strings.HasPrefix(ins.ops[1], "=") {
		v, err := parseImm(ins.ops[1][1:])
		if err != nil {
			return err
		}
		return c.setReg(ins.ops[0], v)
	}
	addr, _, err := c.address(ins.ops, 1)
	if err != nil {
		return err
	}
	if err := c.checkMem(addr, size); err != nil {
		return err
	}
	if size == 1 {
		return c.setReg(ins.ops[0], uint64(c.mem[addr]))
	}
	return c.setReg(ins.ops[0], binary.LittleEndian.Uint64(c.mem[addr:]))
}

func (c *CPU) store(ins instruction, size int) error {
	v, err := c.value(ins.ops[0])
	if err != nil {
		return err
	}
	addr, _, err := c.address(ins.ops, 1)
	if err != nil {
		return err
	}
	if err := c.checkMem(addr, size); err != nil {
		return err
	}
	if size == 1 {
		c.mem[addr] = byte(v)
		return nil
	}
	binary.LittleEndian.PutUint64(c.mem[addr:], v)
	return nil
}

// storePair handles  stp r1, r2, [base, #off]!  — the pre-indexed writeback
// form is the only one the compiler emits for stores.
func (c *CPU) storePair(ins instruction) error {
	v1, err := c.value(ins.ops[0])
	if err != nil {
		return err
	}
	v2, err := c.value(ins.ops[1])
	if err != nil {
		return err
	}
	addr, next, err := c.address(ins.ops, 2)
	if err != nil {
		return err
	}
	if err := c.checkMem(addr, 16); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(c.mem[addr:], v1)
	binary.LittleEndian.PutUint64(c.mem[addr+8:], v2)
	if next < len(ins.ops) && ins.ops[next] == "!" {
		return c.setReg(ins.ops[2+1], addr) // writeback to the base register
	}
	return nil
}

// loadPair handles  ldp r1, r2, [base], #off  — post-indexed, matching the
// stack restore the compiler emits.
func (c *CPU) loadPair(ins instruction) error {
	addr, next, err := c.address(ins.ops, 2)
	if err != nil {
		return err
	}
	if err := c.checkMem(addr, 16); err != nil {
		return err
	}
	if err := c.setReg(ins.ops[0], binary.LittleEndian.Uint64(c.mem[addr:])); err != nil {
		return err
	}
	if err := c.setReg(ins.ops[1], binary.LittleEndian.Uint64(c.mem[addr+8:])); err != nil {
		return err
	}
	if next < len(ins.ops) {
		off, err := parseImm(ins.ops[next])
		if err != nil {
			return err
		}
		return c.setReg(ins.ops[2+1], addr+off)
	}
	return nil
}

// syscall dispatches on x8 the way the Linux AArch64 ABI does for the three
// calls compiled programs make.
func (c *CPU) syscall() error {
	switch c.regs[8] {
	case sysMmap:
		c.regs[0] = heapBase
		return nil
	case sysWrite:
		addr, n := c.regs[1], c.regs[2]
		if err := c.checkMem(addr, int(n)); err != nil {
			return err
		}
		if _, err := c.Output.Write(c.mem[addr : addr+n]); err != nil {
			return err
		}
		c.regs[0] = n
		return nil
	case sysExit:
		c.Halted = true
		c.ExitCode = c.regs[0]
		return nil
	}
	return fmt.Errorf("unsupported syscall %d", c.regs[8])
}

// regIndex maps a register name to its slot. w-names alias the low half of
// the same slot.
func regIndex(name string) (idx int, wide bool, err error) {
	if name == "sp" {
		return spIndex, true, nil
	}
	if len(name) < 2 || (name[0] != 'x' && name[0] != 'w') {
		return 0, false, fmt.Errorf("unknown register %q", name)
	}
	n, perr := strconv.Atoi(name[1:])
	if perr != nil || n < 0 || n > 30 {
		return 0, false, fmt.Errorf("unknown register %q", name)
	}
	return n, name[0] == 'x', nil
}

// value resolves an operand: #imm, =imm or register.
func (c *CPU) value(op string) (uint64, error) {
	if strings.HasPrefix(op, "#") {
		return parseImm(op)
	}
	idx, wide, err := regIndex(op)
	if err != nil {
		return 0, err
	}
	if !wide {
		return c.regs[idx] & 0xFFFFFFFF, nil
	}
	return c.regs[idx], nil
}

func (c *CPU) setReg(name string, v uint64) error {
	idx, wide, err := regIndex(name)
	if err != nil {
		return err
	}
	if !wide {
		v &= 0xFFFFFFFF // writes to w-registers zero the high half
	}
	c.regs[idx] = v
	return nil
}

// Reg returns a register by name, for assertions in tests.
func (c *CPU) Reg(name string) (uint64, error) {
	return c.value(name)
}

func parseImm(op string) (uint64, error) {
	s := strings.TrimPrefix(op, "#")
	if u, err := strconv.ParseUint(s, 0, 64); err == nil {
		return u, nil
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad immediate %q", op)
	}
	return uint64(n), nil
}
