package vm

import (
	"testing"
)

func TestInterruptMailbox(tt *testing.T) {
	tt.Parallel()

	tt.Run("empty", func(t *testing.T) {
		intr := NewInterrupt()

		if !intr.Empty() {
			t.Error("new controller must be empty")
		}

		if _, ok := intr.Take(); ok {
			t.Error("take from empty must fail")
		}
	})

	tt.Run("single-slot", func(t *testing.T) {
		intr := NewInterrupt()

		intr.Post(Completion{Kind: ReadDone, Device: 1, Addr: 5, Data: 10})

		if intr.Empty() {
			t.Error("posted controller must not be empty")
		}

		c, ok := intr.Take()

		if !ok || c.Device != 1 || c.Data != 10 {
			t.Errorf("take want dev 1 data 10, got: %s", c)
		}

		if !intr.Empty() {
			t.Error("controller must be empty after take")
		}
	})

	tt.Run("backlog-fifo", func(t *testing.T) {
		intr := NewInterrupt()

		for i := 0; i < 4; i++ {
			intr.Post(Completion{Kind: ReadDone, Device: 2, Addr: Word(i)})
		}

		for i := 0; i < 4; i++ {
			c, ok := intr.Take()

			if !ok {
				t.Fatalf("take %d failed", i)
			}

			if c.Addr != Word(i) {
				t.Errorf("order violated: want addr %d, got: %s", i, c.Addr)
			}
		}

		if !intr.Empty() {
			t.Error("controller must drain")
		}
	})

	tt.Run("interleaved", func(t *testing.T) {
		intr := NewInterrupt()

		intr.Post(Completion{Device: 1, Addr: 0})
		intr.Post(Completion{Device: 1, Addr: 1})

		if c, _ := intr.Take(); c.Addr != 0 {
			t.Errorf("want addr 0, got: %s", c.Addr)
		}

		intr.Post(Completion{Device: 1, Addr: 2})

		if c, _ := intr.Take(); c.Addr != 1 {
			t.Errorf("want addr 1, got: %s", c.Addr)
		}

		if c, _ := intr.Take(); c.Addr != 2 {
			t.Errorf("want addr 2, got: %s", c.Addr)
		}
	})
}
