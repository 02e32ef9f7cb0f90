package vm

// words.go defines the basic data types of the machine.

import (
	"fmt"
	"strings"

	"github.com/smoynes/ozzie/internal/log"
)

// Word is the base data type on which the machine operates. Registers, memory cells and
// instruction fields are all signed 32-bit values, and memory is addressed in words.
type Word int32

func (w Word) String() string {
	return fmt.Sprintf("%d", int32(w))
}

// InstrSize is the width of one instruction in words. The program counter advances by
// this much after every executed instruction.
const InstrSize Word = 4

// Reg identifies one register in the register file.
type Reg uint8

// Register names. R0 through R4 are general purpose and addressable by programs; the
// rest are managed by the CPU and the operating system.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4

	// PC holds the absolute address of the next instruction.
	PC

	// SP holds the window-relative address of the top occupied stack word. The stack
	// grows downward from Lim-1.
	SP

	// Base and Lim bound the process memory window: every access must fall within
	// [Base, Base+Lim).
	Base
	Lim

	// NumRegs is the size of the register file.
	NumRegs

	// NumGPR is the count of program-addressable registers.
	NumGPR = R4 + 1
)

func (r Reg) String() string {
	switch {
	case r < NumGPR:
		return fmt.Sprintf("R%d", uint8(r))
	case r == PC:
		return "PC"
	case r == SP:
		return "SP"
	case r == Base:
		return "BASE"
	case r == Lim:
		return "LIM"
	default:
		return fmt.Sprintf("R?%d", uint8(r))
	}
}

// RegisterFile is the full register set of one CPU, and also the saved register image
// held in a process control block.
type RegisterFile [NumRegs]Word

func (rf RegisterFile) String() string {
	b := strings.Builder{}

	for i := R0; i < NumGPR; i++ {
		fmt.Fprintf(&b, "%s: %s ", i, rf[i])
	}

	fmt.Fprintf(&b, "PC: %s SP: %s BASE: %s LIM: %s",
		rf[PC], rf[SP], rf[Base], rf[Lim])

	return b.String()
}

func (rf RegisterFile) LogValue() log.Value {
	return log.GroupValue(
		log.String("R0", rf[R0].String()),
		log.String("R1", rf[R1].String()),
		log.String("R2", rf[R2].String()),
		log.String("R3", rf[R3].String()),
		log.String("R4", rf[R4].String()),
		log.String("PC", rf[PC].String()),
		log.String("SP", rf[SP].String()),
		log.String("BASE", rf[Base].String()),
		log.String("LIM", rf[Lim].String()),
	)
}

// ControlRegister is the master control register. The operating system clears the run
// bit to stop the machine.
type ControlRegister Word

const (
	// ControlRunning is the bit in the control register which, while set, lets the
	// machine continue computing.
	ControlRunning ControlRegister = 1 << 15
)

func (cr ControlRegister) Running() bool {
	return cr&ControlRunning != 0
}

func (cr ControlRegister) String() string {
	if cr.Running() {
		return "RUN"
	}

	return "STOP"
}
