// Package monitor implements the operating system for the simulated machine: process
// lifecycle, priority scheduling, contiguous memory management with compaction, device
// mediation, and the system-call layer. The monitor owns the RAM, the process table,
// the device table, the free list and the program registry; the CPU borrows the RAM
// and the interrupt controller and calls back into the monitor through the trap
// handler capability.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/smoynes/ozzie/internal/log"
	"github.com/smoynes/ozzie/internal/vm"
)

// Config tunes the kernel. Zero values of RAMSize, ClockFrequency, AgingTime,
// SwitchTicks and DefaultPriority are replaced by defaults; the other fields are used
// as given, so a zero AgingPriority turns aging off.
type Config struct {
	// RAMSize is the machine memory size in words.
	RAMSize vm.Word

	// ClockFrequency is the number of ticks between clock interrupts.
	ClockFrequency uint64

	// AgingTime is the number of clock quanta between priority aging passes.
	AgingTime uint64

	// AgingPriority is added to every ready process's priority on an aging pass.
	AgingPriority int

	// PriorityThreshold biases selection toward the current process: a contender
	// must beat the current priority by more than this to preempt.
	PriorityThreshold int

	// SwitchTicks is the tick cost charged for each register save and each restore
	// on a context switch.
	SwitchTicks uint64

	// ReadPriority and WritePriority reward a process for performing I/O.
	ReadPriority  int
	WritePriority int

	// DefaultPriority is the priority of a newly created process.
	DefaultPriority int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		RAMSize:           2048,
		ClockFrequency:    10,
		AgingTime:         2,
		AgingPriority:     1,
		PriorityThreshold: 4,
		SwitchTicks:       30,
		ReadPriority:      1,
		WritePriority:     1,
		DefaultPriority:   1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.RAMSize <= 0 {
		c.RAMSize = def.RAMSize
	}

	if c.ClockFrequency == 0 {
		c.ClockFrequency = def.ClockFrequency
	}

	if c.AgingTime == 0 {
		c.AgingTime = def.AgingTime
	}

	if c.SwitchTicks == 0 {
		c.SwitchTicks = def.SwitchTicks
	}

	if c.DefaultPriority == 0 {
		c.DefaultPriority = def.DefaultPriority
	}

	return c
}

// Monitor is the operating system.
type Monitor struct {
	cfg  Config
	ram  *vm.RAM
	cpu  *vm.CPU
	intr *vm.Interrupt

	procs    []*PCB
	devices  []*deviceRecord
	free     []MemBlock
	programs []*Program

	// current is a borrowed reference into the process table; nil before the first
	// dispatch and after the last exit.
	current *PCB
	nextPID int

	// inSyscall is true while dispatching a TRAP, when the program counter has not
	// yet passed the trapping instruction. Context save and restore compensate for
	// the pending increment through it.
	inSyscall bool

	haltErr error

	out io.Writer
	log *log.Logger
}

// An OptionFn adjusts the monitor during construction.
type OptionFn func(*Monitor)

// WithConfig replaces the kernel tuning wholesale.
func WithConfig(cfg Config) OptionFn {
	return func(m *Monitor) { m.cfg = cfg.withDefaults() }
}

// WithLogger configures the monitor's logger.
func WithLogger(logger *log.Logger) OptionFn {
	return func(m *Monitor) { m.log = logger }
}

// WithOutput directs console output, i.e. the OUTPUT and COREDUMP system calls.
func WithOutput(out io.Writer) OptionFn {
	return func(m *Monitor) { m.out = out }
}

// New assembles a machine and its operating system. The monitor builds the RAM, the
// interrupt controller and the CPU, installs itself as the CPU's trap handler, and
// starts with all of memory free.
func New(opts ...OptionFn) *Monitor {
	m := &Monitor{
		cfg: DefaultConfig(),
		out: os.Stdout,
		log: log.DefaultLogger(),
	}

	for _, fn := range opts {
		fn(m)
	}

	m.ram = vm.NewRAM(m.cfg.RAMSize)
	m.intr = vm.NewInterrupt()
	m.cpu = vm.NewCPU(m.ram, m.intr)
	m.cpu.SetClockFrequency(m.cfg.ClockFrequency)
	m.cpu.SetHandler(m)
	m.cpu.WithLogger(m.log)

	m.free = []MemBlock{{Addr: 0, Size: m.cfg.RAMSize}}

	return m
}

// Interrupt returns the interrupt controller, for wiring devices.
func (m *Monitor) Interrupt() *vm.Interrupt {
	return m.intr
}

// CPU returns the machine's processor.
func (m *Monitor) CPU() *vm.CPU {
	return m.cpu
}

// Run dispatches the highest-priority ready process and drives the machine until every
// process has exited or a fatal trap stops it. If no process exists yet, one is spawned
// from the first registered program.
func (m *Monitor) Run(ctx context.Context) error {
	m.haltErr = nil
	m.cpu.Start()

	if len(m.procs) == 0 {
		if len(m.programs) == 0 {
			return ErrNoProgram
		}

		if _, err := m.Spawn(0); err != nil {
			return err
		}
	}

	m.schedule()

	if err := m.cpu.Run(ctx); err != nil {
		return err
	}

	return m.haltErr
}

// halt stops the machine. A nil cause is a clean shutdown.
func (m *Monitor) halt(cause error) {
	m.haltErr = cause
	m.current = nil
	m.cpu.Halt()

	if cause != nil {
		m.log.Error("machine fault", "ERR", cause)
	} else {
		m.log.Info("all processes exited")
	}
}

// inTable reports whether the PCB is still in the process table.
func (m *Monitor) inTable(p *PCB) bool {
	for _, q := range m.procs {
		if q == p {
			return true
		}
	}

	return false
}

// removeProcess drops a PCB from the process table.
func (m *Monitor) removeProcess(p *PCB) {
	for i, q := range m.procs {
		if q == p {
			m.procs = append(m.procs[:i], m.procs[i+1:]...)
			return
		}
	}
}

// findPID resolves a pid to its PCB.
func (m *Monitor) findPID(pid int) *PCB {
	for _, p := range m.procs {
		if p.PID == pid {
			return p
		}
	}

	return nil
}

// saveContext copies the live registers into the PCB. During a system call the program
// counter has not yet passed the trapping instruction, so the saved value is advanced
// past it; the saved PC always addresses the next instruction the process will run.
func (m *Monitor) saveContext(p *PCB) {
	p.Saved = m.cpu.Reg

	if m.inSyscall {
		p.Saved[vm.PC] += vm.InstrSize
	}
}

// restoreContext copies the PCB's registers into the CPU, compensating for the
// increment still pending when restoring inside a system call.
func (m *Monitor) restoreContext(p *PCB) {
	m.cpu.Reg = p.Saved

	if m.inSyscall {
		m.cpu.Reg[vm.PC] -= vm.InstrSize
	}
}

// pushLive pushes a word onto the running process's stack. Stack growth past the
// window bottom degrades to an illegal access like any other memory fault.
func (m *Monitor) pushLive(w vm.Word) bool {
	addr := m.cpu.Reg[vm.Base] + m.cpu.Reg[vm.SP] - 1

	if !m.windowed(m.cpu.Reg, addr) {
		m.IllegalMemoryAccess(addr)
		return false
	}

	m.cpu.Reg[vm.SP]--
	m.ram.Write(addr, w)

	return true
}

// popLive pops a word from the running process's stack.
func (m *Monitor) popLive() (vm.Word, bool) {
	addr := m.cpu.Reg[vm.Base] + m.cpu.Reg[vm.SP]

	if !m.windowed(m.cpu.Reg, addr) {
		m.IllegalMemoryAccess(addr)
		return 0, false
	}

	w := m.ram.Read(addr)
	m.cpu.Reg[vm.SP]++

	return w, true
}

// pushSaved pushes a word onto a blocked process's stack through RAM, using the saved
// stack pointer, never the live one.
func (m *Monitor) pushSaved(p *PCB, w vm.Word) bool {
	addr := p.Saved[vm.Base] + p.Saved[vm.SP] - 1

	if !m.windowed(p.Saved, addr) {
		m.IllegalMemoryAccess(addr)
		return false
	}

	p.Saved[vm.SP]--
	m.ram.Write(addr, w)

	return true
}

func (m *Monitor) windowed(regs vm.RegisterFile, addr vm.Word) bool {
	return addr >= regs[vm.Base] && addr < regs[vm.Base]+regs[vm.Lim]
}

// Errors surfaced by the kernel.
var (
	// ErrNoProgram is returned by Run when nothing is registered to execute.
	ErrNoProgram = errors.New("no program registered")

	// ErrNoMemory is returned when an allocation cannot be satisfied even after
	// compaction.
	ErrNoMemory = errors.New("not enough memory")

	// ErrIllegalAccess, ErrDivideByZero and ErrIllegalInstruction are the fatal
	// hardware traps.
	ErrIllegalAccess      = errors.New("illegal memory access")
	ErrDivideByZero       = errors.New("cannot divide by zero")
	ErrIllegalInstruction = errors.New("illegal instruction")
)

// Snapshot is a point-in-time view of the kernel for diagnostic shells.
type Snapshot struct {
	Tick      uint64
	Processes []ProcessInfo
	Free      []MemBlock
	Devices   []DeviceInfo
}

// ProcessInfo describes one process table entry.
type ProcessInfo struct {
	PID       int
	State     string
	Priority  int
	Base      vm.Word
	Lim       vm.Word
	MaxStarve uint64
	AvgStarve float64
}

// DeviceInfo describes one device table entry.
type DeviceInfo struct {
	ID      int
	Openers []int
}

// Snapshot captures the process table, free list and device table.
func (m *Monitor) Snapshot() Snapshot {
	snap := Snapshot{Tick: m.cpu.Ticks()}

	for _, p := range m.procs {
		state := "ready"

		switch {
		case p == m.current:
			state = "running"
		case p.Blocked():
			state = fmt.Sprintf("blocked(dev:%d %s)", p.Block.Device, p.Block.Op)
		}

		snap.Processes = append(snap.Processes, ProcessInfo{
			PID:       p.PID,
			State:     state,
			Priority:  p.Priority,
			Base:      p.Saved[vm.Base],
			Lim:       p.Saved[vm.Lim],
			MaxStarve: p.MaxStarve,
			AvgStarve: p.AvgStarve,
		})
	}

	snap.Free = append(snap.Free, m.free...)

	for _, rec := range m.devices {
		info := DeviceInfo{ID: rec.dev.ID()}

		for pid := range rec.openers {
			info.Openers = append(info.Openers, pid)
		}

		snap.Devices = append(snap.Devices, info)
	}

	return snap
}
