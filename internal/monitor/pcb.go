package monitor

// pcb.go defines process control blocks.

import (
	"fmt"

	"github.com/smoynes/ozzie/internal/vm"
)

// PCB is a process control block: the saved register image and the kernel bookkeeping
// for one process. The process table exclusively owns PCBs; the CPU never aliases one,
// registers are copied in and out on every switch.
type PCB struct {
	PID int

	// Saved is the register image while the process is not running.
	Saved vm.RegisterFile

	// Block is nil for a runnable process, or the request it is waiting on.
	Block *BlockState

	Priority int

	// LastReadyTick is the tick at which the process last became ready.
	LastReadyTick uint64

	// ReadyEntries counts transitions into the ready state.
	ReadyEntries uint64

	// MaxStarve and AvgStarve track how long the process has waited in the ready
	// state before being dispatched, in ticks.
	MaxStarve uint64
	AvgStarve float64

	// idle marks the filler process created when nothing is runnable.
	idle bool
}

// Blocked reports whether the process is waiting on a device.
func (p *PCB) Blocked() bool {
	return p.Block != nil
}

// markReady records a transition into the ready state.
func (p *PCB) markReady(tick uint64) {
	p.LastReadyTick = tick
	p.ReadyEntries++
}

// recordDispatch folds the wait since the last ready transition into the starvation
// statistics.
func (p *PCB) recordDispatch(tick uint64) {
	starve := tick - p.LastReadyTick

	if starve > p.MaxStarve {
		p.MaxStarve = starve
	}

	if p.ReadyEntries > 0 {
		n := float64(p.ReadyEntries)
		p.AvgStarve += (float64(starve) - p.AvgStarve) / n
	}
}

func (p *PCB) String() string {
	state := "ready"

	if p.Blocked() {
		state = p.Block.String()
	}

	return fmt.Sprintf("PCB(pid:%d pri:%d %s)", p.PID, p.Priority, state)
}

// BlockOp is the operation a blocked process waits to finish.
type BlockOp uint8

const (
	BlockOpen BlockOp = iota
	BlockRead
	BlockWrite
)

func (op BlockOp) String() string {
	switch op {
	case BlockOpen:
		return "OPEN"
	case BlockRead:
		return "READ"
	default:
		return "WRITE"
	}
}

// BlockState identifies the request a process is blocked on. It holds the device id,
// not a device reference; the kernel resolves through the device table.
type BlockState struct {
	Device int
	Op     BlockOp
	Addr   vm.Word
}

func (b BlockState) String() string {
	return fmt.Sprintf("blocked(dev:%d %s addr:%s)", b.Device, b.Op, b.Addr)
}
