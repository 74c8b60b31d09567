package cpu_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"hamer/pkg/cpu"
)

func run(t *testing.T, asm string) *cpu.CPU {
	t.Helper()
	c := cpu.New()
	require.NoError(t, c.Load(asm))
	require.NoError(t, c.Run())
	return c
}

func reg(t *testing.T, c *cpu.CPU, name string) uint64 {
	t.Helper()
	v, err := c.Reg(name)
	require.NoError(t, err)
	return v
}

func TestArithmetic(t *testing.T) {
	c := run(t, `
_start:
    mov x0, #47
    mov x11, #10
    udiv x2, x0, x11
    msub x3, x2, x11, x0
    add x4, x2, x3
    sub x5, x0, #40
    mul x6, x2, x3
`)
	require.Equal(t, uint64(4), reg(t, c, "x2"))
	require.Equal(t, uint64(7), reg(t, c, "x3"))
	require.Equal(t, uint64(11), reg(t, c, "x4"))
	require.Equal(t, uint64(7), reg(t, c, "x5"))
	require.Equal(t, uint64(28), reg(t, c, "x6"))
}

func TestShiftedAndMaskedOperands(t *testing.T) {
	c := run(t, `
_start:
    ldr x1, =0x9E3779B97F4A7C15
    eor x2, x1, x1, lsr #33
    and x3, x1, #0x7FFFFFFF
    udiv x4, x1, x0
`)
	seed := uint64(0x9E3779B97F4A7C15)
	require.Equal(t, seed^(seed>>33), reg(t, c, "x2"))
	require.Equal(t, seed&0x7FFFFFFF, reg(t, c, "x3"))
	require.Equal(t, uint64(0), reg(t, c, "x4")) // udiv by zero yields zero
}

func TestWideRegisterMasking(t *testing.T) {
	c := run(t, `
_start:
    mov x3, #-1
    mov w4, #-1
`)
	require.Equal(t, ^uint64(0), reg(t, c, "x3"))
	require.Equal(t, uint64(0xFFFFFFFF), reg(t, c, "x4"))
}

func TestSignedAndUnsignedBranches(t *testing.T) {
	c := run(t, `
_start:
    mov x0, #-1
    cmp x0, #1
    b.le .signed_ok
    b .check_unsigned
.signed_ok:
    mov x5, #1
.check_unsigned:
    cmp x0, #1
    b.hs .unsigned_ok
    b .end
.unsigned_ok:
    mov x6, #1
.end:
    nop
`)
	require.Equal(t, uint64(1), reg(t, c, "x5"), "-1 <= 1 signed")
	require.Equal(t, uint64(1), reg(t, c, "x6"), "-1 >= 1 unsigned")
}

func TestLoopWithCbnz(t *testing.T) {
	c := run(t, `
_start:
    mov x0, #5
    mov x1, #0
.loop:
    add x1, x1, x0
    sub x0, x0, #1
    cbnz x0, .loop
`)
	require.Equal(t, uint64(15), reg(t, c, "x1"))
}

func TestStackPair(t *testing.T) {
	c := run(t, `
_start:
    mov x0, #11
    mov x1, #22
    stp x0, x1, [sp, #-16]!
    mov x0, #0
    mov x1, #0
    ldp x0, x1, [sp], #16
`)
	require.Equal(t, uint64(11), reg(t, c, "x0"))
	require.Equal(t, uint64(22), reg(t, c, "x1"))
	require.Equal(t, uint64(cpu.MemSize), reg(t, c, "sp"), "sp restored")
}

func TestLoadStore(t *testing.T) {
	c := run(t, `
_start:
    mov x0, #0x2000
    mov x1, #77
    str x1, [x0, #8]
    ldr x2, [x0, #8]
`)
	require.Equal(t, uint64(77), reg(t, c, "x2"))
}

func TestWriteSyscall(t *testing.T) {
	var out bytes.Buffer
	c := cpu.New()
	c.Output = &out
	require.NoError(t, c.Load(`
.section .data
.Lstr0: .ascii "hi\n"
.section .text
_start:
    mov x0, #1
    adr x1, .Lstr0
    mov x2, #3
    mov x8, #64
    svc #0
    mov x0, #0
    mov x8, #93
    svc #0
`))
	require.NoError(t, c.Run())
	require.Equal(t, "hi\n", out.String())
	require.True(t, c.Halted)
	require.Equal(t, uint64(0), c.ExitCode)
}

func TestExitCode(t *testing.T) {
	c := run(t, `
_start:
    mov x0, #3
    mov x8, #93
    svc #0
`)
	require.Equal(t, uint64(3), c.ExitCode)
}

func TestMmapSyscall(t *testing.T) {
	c := run(t, `
_start:
    mov x8, #222
    svc #0
    mov x20, x0
`)
	require.NotZero(t, reg(t, c, "x20"))
}

func TestCounterTimer(t *testing.T) {
	c := cpu.New()
	c.Cycles = 99
	require.NoError(t, c.Load(`
_start:
    mrs x1, cntvct_el0
`))
	require.NoError(t, c.Run())
	require.Equal(t, uint64(99), reg(t, c, "x1"))
}

func TestStepBudget(t *testing.T) {
	c := cpu.New()
	c.MaxSteps = 10
	require.NoError(t, c.Load(`
_start:
    b _start
`))
	err := c.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "step budget")
}

func TestUnknownMnemonic(t *testing.T) {
	c := cpu.New()
	require.NoError(t, c.Load(`
_start:
    frob x0, x1
`))
	err := c.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown mnemonic")
}

func TestRunOffEndHalts(t *testing.T) {
	c := run(t, `
_start:
    mov x0, #1
`)
	require.True(t, c.Halted)
}
