package vm

// cpu.go defines the instruction cycle.

import (
	"context"
	"errors"
	"fmt"

	"github.com/smoynes/ozzie/internal/log"
)

// ErrHalted is returned when the CPU is stepped while the run flag in the control
// register is clear.
var ErrHalted = errors.New("halted")

// A TrapHandler is the CPU's capability to call into the operating system. The CPU
// raises hardware faults, system calls, device completions and clock interrupts through
// it and nothing else; it holds the handler as a reference, not a base class.
type TrapHandler interface {
	// IllegalMemoryAccess reports an access outside the window [Base, Base+Lim).
	IllegalMemoryAccess(addr Word)

	// DivideByZero reports a DIV with a zero divisor.
	DivideByZero()

	// IllegalInstruction reports an undecodable instruction tuple.
	IllegalInstruction(instr [4]Word)

	// SystemCall transfers control for a TRAP. The handler pops its own call
	// identifier and arguments from the running process's stack.
	SystemCall()

	// IOReadComplete delivers a device read completion.
	IOReadComplete(device int, addr Word, data Word)

	// IOWriteComplete delivers a device write completion.
	IOWriteComplete(device int, addr Word)

	// InterruptClock fires every clock quantum.
	InterruptClock()
}

// CPU executes instructions one at a time. It borrows the RAM and the interrupt
// controller from the operating system and owns only its registers and tick counter.
type CPU struct {
	// Reg is the live register file.
	Reg RegisterFile

	// MCR is the master control register.
	MCR ControlRegister

	ram     *RAM
	intr    *Interrupt
	handler TrapHandler

	ticks     uint64
	clockFreq uint64

	log *log.Logger
}

// DefaultClockFrequency is the number of ticks between clock interrupts unless
// configured otherwise.
const DefaultClockFrequency = 10

// NewCPU creates a CPU borrowing the given memory and interrupt controller. The trap
// handler must be set before the first step.
func NewCPU(ram *RAM, intr *Interrupt) *CPU {
	return &CPU{
		MCR:       ControlRunning,
		ram:       ram,
		intr:      intr,
		clockFreq: DefaultClockFrequency,
		log:       log.DefaultLogger(),
	}
}

// SetHandler installs the operating system's trap handler.
func (cpu *CPU) SetHandler(handler TrapHandler) {
	cpu.handler = handler
}

// SetClockFrequency changes the clock interrupt period, in ticks.
func (cpu *CPU) SetClockFrequency(freq uint64) {
	cpu.clockFreq = freq
}

// WithLogger configures the CPU's logger.
func (cpu *CPU) WithLogger(logger *log.Logger) {
	cpu.log = logger
}

// RAM returns the memory the CPU executes against.
func (cpu *CPU) RAM() *RAM {
	return cpu.ram
}

// Ticks returns the tick counter.
func (cpu *CPU) Ticks() uint64 {
	return cpu.ticks
}

// AddTicks charges extra ticks to the counter. The operating system uses it to account
// for context-switch overhead.
func (cpu *CPU) AddTicks(n uint64) {
	cpu.ticks += n
}

// Halt clears the run flag. The machine stops before the next step.
func (cpu *CPU) Halt() {
	cpu.MCR &^= ControlRunning
}

// Start sets the run flag again after a halt.
func (cpu *CPU) Start() {
	cpu.MCR |= ControlRunning
}

// Run executes the instruction cycle until the machine halts or the context is
// cancelled.
func (cpu *CPU) Run(ctx context.Context) error {
	cpu.log.Info("START", log.Group("STATE", cpu))

	for {
		select {
		case <-ctx.Done():
			cpu.log.Warn("CANCELLED")
			return ctx.Err()
		default:
		}

		if err := cpu.Step(); errors.Is(err, ErrHalted) {
			cpu.log.Info("HALTED", log.Group("STATE", cpu))
			return nil
		} else if err != nil {
			cpu.log.Error("HALTED (HCF)", "ERR", err, log.Group("STATE", cpu))
			return err
		}
	}
}

// Step runs a single instruction to completion, in strict order:
//
//   - consume a pending device completion, if any, before anything else, so
//     completions delivered during the previous step are observed first;
//   - fetch the instruction tuple addressed by PC;
//   - execute, bounds-checking every data access and branch target before any effect
//     and raising faults through the trap handler;
//   - advance PC by the instruction width, unconditionally;
//   - count the tick and fire the clock interrupt at the end of each quantum.
func (cpu *CPU) Step() error {
	if !cpu.MCR.Running() {
		return fmt.Errorf("step: %w", ErrHalted)
	}

	if comp, ok := cpu.intr.Take(); ok {
		cpu.log.Debug("completion", "INT", comp)

		switch comp.Kind {
		case ReadDone:
			cpu.handler.IOReadComplete(comp.Device, comp.Addr, comp.Data)
		case WriteDone:
			cpu.handler.IOWriteComplete(comp.Device, comp.Addr)
		}
	}

	pc := cpu.Reg[PC]

	if !cpu.inWindow(pc) || !cpu.inWindow(pc+InstrSize-1) {
		cpu.handler.IllegalMemoryAccess(pc)
		return nil
	}

	op := Decode(cpu.ram.FetchInstruction(pc))

	cpu.log.Debug("EXEC", "OP", op.String(), log.Group("STATE", cpu))

	cpu.execute(op)

	cpu.Reg[PC] += InstrSize

	cpu.ticks++
	if cpu.ticks%cpu.clockFreq == 0 {
		cpu.handler.InterruptClock()
	}

	return nil
}

// execute performs the operation, mapping faults onto the trap handler. A faulting
// operation has no effect.
func (cpu *CPU) execute(op operation) {
	var (
		access *AccessFault
		badOp  *IllegalFault
	)

	switch err := op.Execute(cpu); {
	case err == nil:
	case errors.Is(err, errZeroDivide):
		cpu.handler.DivideByZero()
	case errors.As(err, &access):
		cpu.handler.IllegalMemoryAccess(access.Addr)
	case errors.As(err, &badOp):
		cpu.handler.IllegalInstruction(badOp.Instr)
	default:
		cpu.log.Error("unmapped fault", "OP", op.String(), "ERR", err)
		cpu.Halt()
	}
}

// jump redirects control to a window-relative target. The written value compensates
// for the post-execution increment so the next fetch lands exactly on the target.
func (cpu *CPU) jump(rel Word) error {
	target := cpu.Reg[Base] + rel

	if !cpu.inWindow(target) {
		return &AccessFault{Addr: target}
	}

	cpu.Reg[PC] = target - InstrSize

	return nil
}

// inWindow reports whether an absolute address falls inside the running process's
// memory window.
func (cpu *CPU) inWindow(addr Word) bool {
	base, lim := cpu.Reg[Base], cpu.Reg[Lim]

	return addr >= base && addr < base+lim
}

func (cpu *CPU) String() string {
	return fmt.Sprintf("%s MCR: %s TICK: %d", cpu.Reg, cpu.MCR, cpu.ticks)
}

func (cpu *CPU) LogValue() log.Value {
	return log.GroupValue(
		log.Any("REG", cpu.Reg),
		log.String("MCR", cpu.MCR.String()),
		log.Int64("TICK", int64(cpu.ticks)),
	)
}

// AccessFault is raised when an access falls outside the memory window. Addr is the
// absolute faulting address.
type AccessFault struct {
	Addr Word
}

func (f *AccessFault) Error() string {
	return fmt.Sprintf("illegal memory access: %s", f.Addr)
}

// IllegalFault is raised for an undecodable instruction.
type IllegalFault struct {
	Instr [4]Word
}

func (f *IllegalFault) Error() string {
	return fmt.Sprintf("illegal instruction: %v", f.Instr)
}

var errZeroDivide = errors.New("divide by zero")
