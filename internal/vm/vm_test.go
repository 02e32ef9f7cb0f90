package vm

import (
	"errors"
	"testing"
)

// stubHandler records every trap the CPU raises.
type stubHandler struct {
	accesses []Word
	illegals [][4]Word
	divZero  int
	syscalls int
	clocks   int
	reads    []Completion
	writes   []Completion
}

func (h *stubHandler) IllegalMemoryAccess(addr Word) { h.accesses = append(h.accesses, addr) }
func (h *stubHandler) DivideByZero()                 { h.divZero++ }
func (h *stubHandler) IllegalInstruction(i [4]Word)  { h.illegals = append(h.illegals, i) }
func (h *stubHandler) SystemCall()                   { h.syscalls++ }
func (h *stubHandler) InterruptClock()               { h.clocks++ }

func (h *stubHandler) IOReadComplete(dev int, addr Word, data Word) {
	h.reads = append(h.reads, Completion{Kind: ReadDone, Device: dev, Addr: addr, Data: data})
}

func (h *stubHandler) IOWriteComplete(dev int, addr Word) {
	h.writes = append(h.writes, Completion{Kind: WriteDone, Device: dev, Addr: addr})
}

type testHarness struct {
	*testing.T
}

// Make builds a machine with a 256-word window at base 64 and the PC at the window
// base.
func (t testHarness) Make() (*CPU, *Interrupt, *stubHandler) {
	t.Helper()

	ram := NewRAM(1024)
	intr := NewInterrupt()
	cpu := NewCPU(ram, intr)
	handler := &stubHandler{}

	cpu.SetHandler(handler)

	cpu.Reg[Base] = 64
	cpu.Reg[Lim] = 256
	cpu.Reg[PC] = 64
	cpu.Reg[SP] = 256

	return cpu, intr, handler
}

// Load stores instructions into RAM starting at the PC.
func (t testHarness) Load(cpu *CPU, instrs ...[4]Word) {
	t.Helper()

	addr := cpu.Reg[PC]

	for _, instr := range instrs {
		for _, w := range instr {
			cpu.RAM().Write(addr, w)
			addr++
		}
	}
}

func step(t *testing.T, cpu *CPU) {
	t.Helper()

	if err := cpu.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
}

func TestInstructions(tt *testing.T) {
	tt.Parallel()

	tt.Run("SET", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		t.Load(cpu, Encode(OpSet, Word(R1), 42))
		step(tt, cpu)

		if cpu.Reg[R1] != 42 {
			t.Errorf("R1 want: 42, got: %s", cpu.Reg[R1])
		}

		if cpu.Reg[PC] != 64+InstrSize {
			t.Errorf("PC want: %s, got: %s", 64+InstrSize, cpu.Reg[PC])
		}
	})

	tt.Run("arithmetic", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		cpu.Reg[R0] = 7
		cpu.Reg[R1] = 5

		t.Load(cpu,
			Encode(OpAdd, Word(R2), Word(R0), Word(R1)),
			Encode(OpSub, Word(R3), Word(R0), Word(R1)),
			Encode(OpMul, Word(R4), Word(R0), Word(R1)),
			Encode(OpDiv, Word(R2), Word(R0), Word(R1)),
		)

		for i := 0; i < 4; i++ {
			step(tt, cpu)
		}

		if cpu.Reg[R3] != 2 {
			t.Errorf("SUB want: 2, got: %s", cpu.Reg[R3])
		}

		if cpu.Reg[R4] != 35 {
			t.Errorf("MUL want: 35, got: %s", cpu.Reg[R4])
		}

		if cpu.Reg[R2] != 1 {
			t.Errorf("DIV want: 1, got: %s", cpu.Reg[R2])
		}
	})

	tt.Run("COPY", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		cpu.Reg[R3] = -17

		t.Load(cpu, Encode(OpCopy, Word(R0), Word(R3)))
		step(tt, cpu)

		if cpu.Reg[R0] != -17 {
			t.Errorf("COPY want: -17, got: %s", cpu.Reg[R0])
		}
	})

	tt.Run("BRANCH", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		t.Load(cpu, Encode(OpBranch, 20))
		step(tt, cpu)

		if cpu.Reg[PC] != 64+20 {
			t.Errorf("PC want: %s, got: %s", Word(84), cpu.Reg[PC])
		}
	})

	tt.Run("BNE-taken", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		cpu.Reg[R0] = 1
		cpu.Reg[R1] = 2

		t.Load(cpu, Encode(OpBne, Word(R0), Word(R1), 40))
		step(tt, cpu)

		if cpu.Reg[PC] != 64+40 {
			t.Errorf("PC want: %s, got: %s", Word(104), cpu.Reg[PC])
		}
	})

	tt.Run("BLT-not-taken", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		cpu.Reg[R0] = 5
		cpu.Reg[R1] = 5

		t.Load(cpu, Encode(OpBlt, Word(R0), Word(R1), 40))
		step(tt, cpu)

		if cpu.Reg[PC] != 64+InstrSize {
			t.Errorf("PC want: %s, got: %s", 64+InstrSize, cpu.Reg[PC])
		}
	})

	tt.Run("PUSH-POP", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		cpu.Reg[R0] = 99

		t.Load(cpu,
			Encode(OpPush, Word(R0)),
			Encode(OpPop, Word(R1)),
		)

		step(tt, cpu)

		if cpu.Reg[SP] != 255 {
			t.Errorf("SP want: 255, got: %s", cpu.Reg[SP])
		}

		if got := cpu.RAM().Read(64 + 255); got != 99 {
			t.Errorf("stack top want: 99, got: %s", got)
		}

		step(tt, cpu)

		if cpu.Reg[R1] != 99 {
			t.Errorf("POP want: 99, got: %s", cpu.Reg[R1])
		}

		if cpu.Reg[SP] != 256 {
			t.Errorf("SP want: 256, got: %s", cpu.Reg[SP])
		}
	})

	tt.Run("LOAD-SAVE", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, _ := t.Make()

		cpu.Reg[R0] = 77 // value
		cpu.Reg[R1] = 30 // window-relative address

		t.Load(cpu,
			Encode(OpSave, Word(R0), Word(R1)),
			Encode(OpLoad, Word(R2), Word(R1)),
		)

		step(tt, cpu)

		if got := cpu.RAM().Read(64 + 30); got != 77 {
			t.Errorf("SAVE want: 77, got: %s", got)
		}

		step(tt, cpu)

		if cpu.Reg[R2] != 77 {
			t.Errorf("LOAD want: 77, got: %s", cpu.Reg[R2])
		}
	})
}

func TestTraps(tt *testing.T) {
	tt.Parallel()

	tt.Run("divide-by-zero", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, handler := t.Make()

		cpu.Reg[R0] = 10
		cpu.Reg[R1] = 0
		cpu.Reg[R2] = 5

		t.Load(cpu, Encode(OpDiv, Word(R2), Word(R0), Word(R1)))
		step(tt, cpu)

		if handler.divZero != 1 {
			t.Errorf("want divide trap, got: %d", handler.divZero)
		}

		if cpu.Reg[R2] != 5 {
			t.Errorf("division must have no effect, got: %s", cpu.Reg[R2])
		}
	})

	tt.Run("illegal-branch", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, handler := t.Make()

		t.Load(cpu, Encode(OpBranch, 100000))
		step(tt, cpu)

		if len(handler.accesses) != 1 {
			t.Fatalf("want access trap, got: %v", handler.accesses)
		}

		if handler.accesses[0] != 64+100000 {
			t.Errorf("fault addr want: %s, got: %s", Word(100064), handler.accesses[0])
		}
	})

	tt.Run("illegal-opcode", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, handler := t.Make()

		t.Load(cpu, [4]Word{999, 0, 0, 0})
		step(tt, cpu)

		if len(handler.illegals) != 1 {
			t.Fatalf("want illegal instruction trap, got: %v", handler.illegals)
		}
	})

	tt.Run("stack-overflow", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, handler := t.Make()

		cpu.Reg[SP] = 0 // Stack touches the window bottom.

		t.Load(cpu, Encode(OpPush, Word(R0)))
		step(tt, cpu)

		if len(handler.accesses) != 1 {
			t.Fatalf("push past window must trap, got: %v", handler.accesses)
		}

		if cpu.Reg[SP] != 0 {
			t.Errorf("SP must be unchanged, got: %s", cpu.Reg[SP])
		}
	})

	tt.Run("fetch-out-of-window", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, handler := t.Make()

		cpu.Reg[PC] = 64 + 256 // one past the window

		step(tt, cpu)

		if len(handler.accesses) != 1 {
			t.Fatalf("fetch past window must trap, got: %v", handler.accesses)
		}
	})

	tt.Run("trap-dispatches-syscall", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, _, handler := t.Make()

		t.Load(cpu, Encode(OpTrap))
		step(tt, cpu)

		if handler.syscalls != 1 {
			t.Errorf("want syscall, got: %d", handler.syscalls)
		}
	})
}

func TestClockInterrupt(tt *testing.T) {
	tt.Parallel()

	t := testHarness{tt}
	cpu, _, handler := t.Make()

	cpu.SetClockFrequency(4)

	var instrs [][4]Word
	for i := 0; i < 8; i++ {
		instrs = append(instrs, Encode(OpSet, Word(R0), Word(i)))
	}

	t.Load(cpu, instrs...)

	for i := 0; i < 8; i++ {
		step(tt, cpu)
	}

	if handler.clocks != 2 {
		t.Errorf("clock interrupts want: 2, got: %d", handler.clocks)
	}
}

func TestCompletionDelivery(tt *testing.T) {
	tt.Parallel()

	tt.Run("polled-before-fetch", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, intr, handler := t.Make()

		intr.Post(Completion{Kind: ReadDone, Device: 3, Addr: 9, Data: 21})

		t.Load(cpu, Encode(OpSet, Word(R0), 1))
		step(tt, cpu)

		if len(handler.reads) != 1 {
			t.Fatalf("want read completion, got: %v", handler.reads)
		}

		if got := handler.reads[0]; got.Device != 3 || got.Addr != 9 || got.Data != 21 {
			t.Errorf("completion fields wrong: %s", got)
		}

		// The instruction still executed after the completion.
		if cpu.Reg[R0] != 1 {
			t.Errorf("R0 want: 1, got: %s", cpu.Reg[R0])
		}
	})

	tt.Run("write-complete", func(tt *testing.T) {
		t := testHarness{tt}
		cpu, intr, handler := t.Make()

		intr.Post(Completion{Kind: WriteDone, Device: 1, Addr: 2})

		t.Load(cpu, Encode(OpSet, Word(R0), 1))
		step(tt, cpu)

		if len(handler.writes) != 1 {
			t.Fatalf("want write completion, got: %v", handler.writes)
		}
	})
}

func TestHalted(tt *testing.T) {
	tt.Parallel()

	t := testHarness{tt}
	cpu, _, _ := t.Make()

	cpu.Halt()

	if err := cpu.Step(); !errors.Is(err, ErrHalted) {
		t.Errorf("want ErrHalted, got: %v", err)
	}

	cpu.Start()

	t.Load(cpu, Encode(OpSet, Word(R0), 1))
	step(tt, cpu)

	if cpu.Reg[R0] != 1 {
		t.Errorf("machine must run after Start, got: %s", cpu.Reg[R0])
	}
}
