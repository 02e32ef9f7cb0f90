package vm

// intr.go contains the interrupt controller.

import (
	"fmt"
	"sync"
)

// CompletionKind tags an interrupt record.
type CompletionKind int

// Completion kinds. The values are shared wire constants between device posters and
// the CPU consumer.
const (
	ReadDone  CompletionKind = 0
	WriteDone CompletionKind = 1
)

func (k CompletionKind) String() string {
	if k == ReadDone {
		return "READ_DONE"
	}

	return "WRITE_DONE"
}

// Completion is an I/O completion record carried from a device to the CPU.
type Completion struct {
	Kind   CompletionKind
	Device int
	Addr   Word
	Data   Word
}

func (c Completion) String() string {
	return fmt.Sprintf("%s(dev:%d addr:%s data:%s)", c.Kind, c.Device, c.Addr, c.Data)
}

// Interrupt is the controller between devices and the CPU: a single-slot mailbox with a
// FIFO backlog behind it. Devices post completions from their own goroutines; the CPU
// polls at the top of every step. Completions from one device are delivered in posting
// order.
type Interrupt struct {
	mut     sync.Mutex
	slot    *Completion
	backlog []Completion
}

// NewInterrupt creates an interrupt controller with an empty slot.
func NewInterrupt() *Interrupt {
	return &Interrupt{}
}

// Post delivers a completion record. If the slot is occupied the record queues behind
// it; Post never blocks and never drops.
func (i *Interrupt) Post(c Completion) {
	i.mut.Lock()
	defer i.mut.Unlock()

	if i.slot == nil {
		i.slot = &c
		return
	}

	i.backlog = append(i.backlog, c)
}

// Take consumes the pending record, refilling the slot from the backlog.
func (i *Interrupt) Take() (Completion, bool) {
	i.mut.Lock()
	defer i.mut.Unlock()

	if i.slot == nil {
		return Completion{}, false
	}

	taken := *i.slot

	if len(i.backlog) > 0 {
		next := i.backlog[0]
		i.backlog = i.backlog[1:]
		i.slot = &next
	} else {
		i.slot = nil
	}

	return taken, true
}

// Empty reports whether no record is pending.
func (i *Interrupt) Empty() bool {
	i.mut.Lock()
	defer i.mut.Unlock()

	return i.slot == nil
}
