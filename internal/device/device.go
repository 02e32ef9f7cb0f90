// Package device provides leaf devices for the simulated machine. Each device holds
// the interrupt controller it was wired to and posts completion records into it;
// the operating system mediates every access, so devices validate nothing.
package device

import (
	"sync"

	"github.com/smoynes/ozzie/internal/vm"
)

// Keyboard is an input device fed by Update, one word per key. It is non-sharable:
// exactly one process may hold it open. Reads complete when a key is available,
// immediately if one is already buffered, otherwise when the next key arrives.
type Keyboard struct {
	mut sync.Mutex

	id   int
	intr *vm.Interrupt

	keys    []vm.Word
	pending []vm.Word // read addresses awaiting a key
}

// NewKeyboard creates a keyboard posting completions to the given controller.
func NewKeyboard(intr *vm.Interrupt) *Keyboard {
	return &Keyboard{intr: intr}
}

func (k *Keyboard) ID() int          { return k.id }
func (k *Keyboard) SetID(id int)     { k.id = id }
func (k *Keyboard) Sharable() bool   { return false }
func (k *Keyboard) Available() bool  { return true }
func (k *Keyboard) Readable() bool   { return true }
func (k *Keyboard) Writeable() bool  { return false }
func (k *Keyboard) Write(vm.Word, vm.Word) {}

// Read requests the next key. The data is delivered by completion record; the returned
// word is the key when one was already buffered, and zero otherwise.
func (k *Keyboard) Read(addr vm.Word) vm.Word {
	k.mut.Lock()
	defer k.mut.Unlock()

	if len(k.keys) > 0 {
		key := k.keys[0]
		k.keys = k.keys[1:]
		k.post(addr, key)

		return key
	}

	k.pending = append(k.pending, addr)

	return 0
}

// Update delivers a key press. A waiting read completes at once; otherwise the key
// buffers until one arrives.
func (k *Keyboard) Update(key vm.Word) {
	k.mut.Lock()
	defer k.mut.Unlock()

	if len(k.pending) > 0 {
		addr := k.pending[0]
		k.pending = k.pending[1:]
		k.post(addr, key)

		return
	}

	k.keys = append(k.keys, key)
}

func (k *Keyboard) post(addr, key vm.Word) {
	k.intr.Post(vm.Completion{
		Kind:   vm.ReadDone,
		Device: k.id,
		Addr:   addr,
		Data:   key,
	})
}
