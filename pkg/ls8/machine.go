package ls8

import (
	"errors"
	"io"
)

// Machine is the complete LS-8 machine state: eight 8-bit registers, the
// flags register, 256 bytes of flat RAM, and the fetch bookkeeping
// registers. A Machine is owned by exactly one run loop; nothing escapes
// it except what PRN/PRA emit to the output sink.
type Machine struct {
	R   [8]byte // general-purpose registers; R5 = IM, R6 = IS, R7 = SP
	PC  byte    // program counter
	IR  byte    // instruction register, latched opcode for the current step
	MAR byte    // memory address register
	MDR byte    // memory data register
	FL  byte    // flags register, 00000LGE
	RAM [256]byte

	halt              bool
	interruptsEnabled bool
	pcSet             bool // handler wrote PC this step
	opA, opB          byte // operand bytes latched during fetch

	out      io.Writer
	handlers [256]func() error
}

// Reserved memory map.
const (
	StackInit  byte = 0xF4 // initial top of stack; the stack grows downward
	KeyAddr    byte = 0xF4 // keyboard mailbox, written by the host
	VectorBase byte = 0xF8 // interrupt vectors I0..I7 live at 0xF8..0xFF
)

// FL bit indices. Bits 3-7 of FL are always zero.
const (
	flagE = 0 // equal
	flagG = 1 // greater
	flagL = 2 // less
)

const flagBits byte = 0x07

// ErrImageTooLarge is returned by Load for images that do not fit RAM.
var ErrImageTooLarge = errors.New("program image exceeds 256 bytes")

// New returns a Machine in the architectural reset state, with PRN/PRA
// wired to out. RAM is all zero and the stack pointer sits at 0xF4.
func New(out io.Writer) *Machine {
	m := &Machine{
		out:               out,
		interruptsEnabled: true,
	}
	m.R[7] = StackInit
	m.initHandlers()
	return m
}

// Load copies a program image into RAM starting at address 0. The rest of
// RAM keeps its contents (all zero on a fresh Machine).
func (m *Machine) Load(image []byte) error {
	if len(image) > len(m.RAM) {
		return ErrImageTooLarge
	}
	copy(m.RAM[:], image)
	return nil
}

// Halted reports whether HLT has been executed or a fatal error stopped
// the machine.
func (m *Machine) Halted() bool { return m.halt }

// register returns the register selected by the low three bits of b.
func (m *Machine) register(b byte) byte { return m.R[b&7] }

// setRegister writes v to the register selected by the low three bits of b.
func (m *Machine) setRegister(b, v byte) { m.R[b&7] = v }

// IM is the interrupt mask, a view onto R5.
func (m *Machine) IM() byte     { return m.R[5] }
func (m *Machine) SetIM(v byte) { m.R[5] = v }

// IS is the interrupt status, a view onto R6.
func (m *Machine) IS() byte     { return m.R[6] }
func (m *Machine) SetIS(v byte) { m.R[6] = v }

// SP is the stack pointer, a view onto R7. All stack movement goes
// through this view so the pointer lives in exactly one place.
func (m *Machine) SP() byte     { return m.R[7] }
func (m *Machine) SetSP(v byte) { m.R[7] = v }

// flag returns FL bit i as 0 or 1.
func (m *Machine) flag(i int) byte { return (m.FL >> (i & 7)) & 1 }

// setFlag writes FL bit i, leaving bits 3-7 zero.
func (m *Machine) setFlag(i int, b bool) {
	if b {
		m.FL |= 1 << (i & 7)
	} else {
		m.FL &^= 1 << (i & 7)
	}
	m.FL &= flagBits
}

// FlagE reports the Equal flag.
func (m *Machine) FlagE() bool { return m.flag(flagE) != 0 }

// FlagG reports the Greater-than flag.
func (m *Machine) FlagG() bool { return m.flag(flagG) != 0 }

// FlagL reports the Less-than flag.
func (m *Machine) FlagL() bool { return m.flag(flagL) != 0 }

// Vector returns interrupt vector In, the handler address stored at
// RAM[0xF8+n].
func (m *Machine) Vector(n byte) byte { return m.RAM[VectorBase+(n&7)] }

// Key returns the keyboard mailbox byte at RAM[0xF4].
func (m *Machine) Key() byte { return m.RAM[KeyAddr] }

// WriteKey stores a host keypress in the keyboard mailbox. Call it only
// between steps; the core itself never blocks on input.
func (m *Machine) WriteKey(b byte) { m.RAM[KeyAddr] = b }

// ramRead latches RAM[MAR] into MDR.
func (m *Machine) ramRead() { m.MDR = m.RAM[m.MAR] }

// ramWrite stores MDR at RAM[MAR].
func (m *Machine) ramWrite() { m.RAM[m.MAR] = m.MDR }

// push stores v at the new top of stack. SP wraps mod 256.
func (m *Machine) push(v byte) {
	m.SetSP(m.SP() - 1)
	m.RAM[m.SP()] = v
}

// pop returns the byte at the top of the stack and zeroes the vacated
// slot. The zeroing is an observable trace property, not something
// programs may rely on.
func (m *Machine) pop() byte {
	v := m.RAM[m.SP()]
	m.RAM[m.SP()] = 0
	m.SetSP(m.SP() + 1)
	return v
}
