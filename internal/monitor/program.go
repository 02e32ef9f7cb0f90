package monitor

// program.go contains the program registry and process creation.

import (
	"fmt"

	"github.com/smoynes/ozzie/internal/vm"
)

// Program is a registered executable: a word array whose length is a multiple of the
// instruction width, an allocation size, and a count of how many processes have been
// created from it.
type Program struct {
	Name string
	Code []vm.Word

	// AllocSize is the memory window given to processes running this program. Zero
	// means twice the code size, leaving the upper half for data and stack.
	AllocSize vm.Word

	Calls int
}

// AddProgram registers a program and returns its registry index.
func (m *Monitor) AddProgram(p *Program) int {
	m.programs = append(m.programs, p)
	return len(m.programs) - 1
}

// Programs returns the registry.
func (m *Monitor) Programs() []*Program {
	return m.programs
}

// Spawn creates a ready process from the program at a registry index.
func (m *Monitor) Spawn(index int) (int, error) {
	if index < 0 || index >= len(m.programs) {
		return 0, fmt.Errorf("%w: program %d", ErrNoProgram, index)
	}

	p, err := m.createProcess(m.programs[index])
	if err != nil {
		return 0, err
	}

	return p.PID, nil
}

// createProcess allocates a window, copies the program image to its base, and enters
// a new PCB into the process table. The process starts with an empty stack: SP equals
// the window limit, so the first push writes the topmost word.
func (m *Monitor) createProcess(prog *Program) (*PCB, error) {
	codeLen := vm.Word(len(prog.Code))

	size := prog.AllocSize
	if size == 0 {
		size = 2 * codeLen
	}

	if size < codeLen {
		return nil, fmt.Errorf("%w: %s smaller than its code", ErrNoMemory, prog.Name)
	}

	base, err := m.alloc(size)
	if err != nil {
		return nil, err
	}

	for i, w := range prog.Code {
		m.ram.Write(base+vm.Word(i), w)
	}

	p := &PCB{
		PID:      m.nextPID,
		Priority: m.cfg.DefaultPriority,
	}
	p.Saved[vm.PC] = base
	p.Saved[vm.SP] = size
	p.Saved[vm.Base] = base
	p.Saved[vm.Lim] = size

	m.nextPID++
	prog.Calls++

	p.markReady(m.cpu.Ticks())
	m.procs = append(m.procs, p)

	m.log.Debug("created process",
		"PID", p.PID, "PROGRAM", prog.Name, "BASE", base, "LIM", size)

	return p, nil
}

// leastCalled picks the registered program with the fewest process creations,
// earliest registration winning ties. Returns nil when the registry is empty.
func (m *Monitor) leastCalled() *Program {
	var best *Program

	for _, p := range m.programs {
		if best == nil || p.Calls < best.Calls {
			best = p
		}
	}

	return best
}
