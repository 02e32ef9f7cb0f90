package device

import (
	"bytes"
	"testing"
	"time"

	"github.com/smoynes/ozzie/internal/vm"
)

func take(t *testing.T, intr *vm.Interrupt) vm.Completion {
	t.Helper()

	c, ok := intr.Take()
	if !ok {
		t.Fatal("want completion, mailbox empty")
	}

	return c
}

func TestKeyboard(tt *testing.T) {
	tt.Parallel()

	tt.Run("buffered-key-completes-read", func(t *testing.T) {
		intr := vm.NewInterrupt()
		kbd := NewKeyboard(intr)
		kbd.SetID(3)

		kbd.Update('q')
		kbd.Read(5)

		c := take(t, intr)

		if c.Kind != vm.ReadDone || c.Device != 3 || c.Addr != 5 || c.Data != 'q' {
			t.Errorf("completion wrong: %s", c)
		}
	})

	tt.Run("pending-read-completes-on-key", func(t *testing.T) {
		intr := vm.NewInterrupt()
		kbd := NewKeyboard(intr)

		kbd.Read(7)

		if !intr.Empty() {
			t.Fatal("read with no key must not complete")
		}

		kbd.Update('z')

		c := take(t, intr)

		if c.Addr != 7 || c.Data != 'z' {
			t.Errorf("completion wrong: %s", c)
		}
	})

	tt.Run("keys-in-order", func(t *testing.T) {
		intr := vm.NewInterrupt()
		kbd := NewKeyboard(intr)

		kbd.Update('a')
		kbd.Update('b')

		kbd.Read(0)
		kbd.Read(0)

		if c := take(t, intr); c.Data != 'a' {
			t.Errorf("first key want 'a', got: %s", c.Data)
		}

		if c := take(t, intr); c.Data != 'b' {
			t.Errorf("second key want 'b', got: %s", c.Data)
		}
	})

	tt.Run("capability", func(t *testing.T) {
		kbd := NewKeyboard(vm.NewInterrupt())

		if kbd.Sharable() || !kbd.Readable() || kbd.Writeable() || !kbd.Available() {
			t.Error("keyboard must be a non-sharable read-only device")
		}
	})
}

func TestPrinter(tt *testing.T) {
	tt.Parallel()

	tt.Run("write-prints-and-completes", func(t *testing.T) {
		var out bytes.Buffer

		intr := vm.NewInterrupt()
		prt := NewPrinter(intr, &out)
		prt.SetID(1)
		prt.SetDelay(0)

		prt.Write(2, 'x')

		deadline := time.After(time.Second)

		for intr.Empty() {
			select {
			case <-deadline:
				t.Fatal("no completion posted")
			default:
				time.Sleep(time.Millisecond)
			}
		}

		c := take(t, intr)

		if c.Kind != vm.WriteDone || c.Device != 1 || c.Addr != 2 {
			t.Errorf("completion wrong: %s", c)
		}

		if got := out.String(); got != "x" {
			t.Errorf("printed want: %q, got: %q", "x", got)
		}

		if !prt.Available() {
			t.Error("printer must be available after completion")
		}
	})

	tt.Run("busy-while-printing", func(t *testing.T) {
		intr := vm.NewInterrupt()
		prt := NewPrinter(intr, &bytes.Buffer{})
		prt.SetDelay(50 * time.Millisecond)

		prt.Write(0, 'y')

		if prt.Available() {
			t.Error("printer must be busy during the print delay")
		}
	})

	tt.Run("capability", func(t *testing.T) {
		prt := NewPrinter(vm.NewInterrupt(), &bytes.Buffer{})

		if !prt.Sharable() || prt.Readable() || !prt.Writeable() {
			t.Error("printer must be a sharable write-only device")
		}
	})
}

func TestLoopback(tt *testing.T) {
	tt.Parallel()

	intr := vm.NewInterrupt()
	lb := NewLoopback(intr)
	lb.SetID(2)

	lb.Write(9, 42)

	if c := take(tt, intr); c.Kind != vm.WriteDone || c.Addr != 9 {
		tt.Errorf("write completion wrong: %s", c)
	}

	if got := lb.Read(9); got != 42 {
		tt.Errorf("read want: 42, got: %s", got)
	}

	c := take(tt, intr)

	if c.Kind != vm.ReadDone || c.Data != 42 {
		tt.Errorf("read completion wrong: %s", c)
	}

	if !lb.Sharable() || !lb.Readable() || !lb.Writeable() || !lb.Available() {
		tt.Error("loopback must be a sharable read/write device")
	}
}
