package monitor

// idle.go contains the idle process.

import (
	"github.com/smoynes/ozzie/internal/vm"
)

// idleImage is the canned filler program dispatched when nothing is runnable: two
// no-op register sets, then an exit. It runs a handful of steps and retires, giving
// the scheduler another chance at the next clock interrupt.
var idleImage = flatten(
	vm.Encode(vm.OpSet, vm.Word(vm.R0), 0),
	vm.Encode(vm.OpSet, vm.Word(vm.R0), 0),
	vm.Encode(vm.OpPush, vm.Word(vm.R0)),
	vm.Encode(vm.OpTrap),
)

// idleStackSlack is the extra window beyond the code so the exit push never faults.
const idleStackSlack = vm.Word(4)

func flatten(instrs ...[4]vm.Word) []vm.Word {
	code := make([]vm.Word, 0, len(instrs)*int(vm.InstrSize))

	for _, instr := range instrs {
		code = append(code, instr[:]...)
	}

	return code
}

// createIdleProcess allocates and enters an idle process. The window is the image
// plus stack slack.
func (m *Monitor) createIdleProcess() (*PCB, error) {
	prog := &Program{
		Name:      "idle",
		Code:      idleImage,
		AllocSize: vm.Word(len(idleImage)) + idleStackSlack,
	}

	p, err := m.createProcess(prog)
	if err != nil {
		return nil, err
	}

	p.idle = true
	p.Priority = 0

	m.log.Debug("idle process created", "PID", p.PID)

	return p, nil
}
