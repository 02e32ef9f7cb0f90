// Package tty binds the simulated keyboard device to a real terminal. It puts the
// controlling terminal into raw mode and forwards each received byte as a key press.
package tty

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/smoynes/ozzie/internal/device"
	"github.com/smoynes/ozzie/internal/vm"
)

// ErrNoTTY is returned if standard input is not a terminal.
var ErrNoTTY = errors.New("console: not a TTY")

// Console is a simulated serial console using Unix terminal I/O.
type Console struct {
	in    *os.File
	fd    int
	state *term.State
	keyCh chan vm.Word
}

// WithConsole attaches the standard input to a keyboard device. Calling the returned
// function restores the terminal state and stops forwarding.
func WithConsole(parent context.Context, kbd *device.Keyboard) (context.Context, *Console, context.CancelFunc, error) {
	ctx, cancel := context.WithCancel(parent)

	console, err := NewConsole(os.Stdin)
	if err != nil {
		cancel()
		return ctx, nil, func() {}, err
	}

	go console.readTerminal(ctx, cancel)
	go console.updateKeyboard(ctx, kbd)

	return ctx, console, func() {
		console.Restore()
		cancel()
	}, nil
}

// NewConsole puts the input stream into raw mode. If it is not a terminal, ErrNoTTY is
// returned. Callers are responsible for calling Restore.
func NewConsole(in *os.File) (*Console, error) {
	fd := int(in.Fd())

	if !term.IsTerminal(fd) {
		return nil, ErrNoTTY
	}

	saved, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoTTY, err)
	}

	cons := &Console{
		in:    in,
		fd:    fd,
		state: saved,
		keyCh: make(chan vm.Word, 1),
	}

	if err := cons.setTerminalParams(1, 0); err != nil {
		cons.Restore()
		return nil, err
	}

	return cons, nil
}

// Press injects a key press into the input stream.
func (c *Console) Press(key byte) {
	c.keyCh <- vm.Word(key)
}

// Restore returns the terminal to its initial state and cancels in-progress reads.
func (c *Console) Restore() {
	_ = c.in.SetReadDeadline(time.Now())
	_ = term.Restore(c.fd, c.state)
}

func (c *Console) setTerminalParams(vmin, vtime byte) error {
	_ = syscall.SetNonblock(c.fd, true)

	termIO, err := unix.IoctlGetTermios(c.fd, getTermiosIoctl)
	if err != nil {
		return err
	}

	termIO.Cc[unix.VMIN] = vmin
	termIO.Cc[unix.VTIME] = vtime

	if err := unix.IoctlSetTermios(c.fd, setTermiosIoctl, termIO); err != nil {
		return err
	}

	_ = c.in.SetReadDeadline(time.Time{})

	return nil
}

func (c *Console) readTerminal(ctx context.Context, cancel context.CancelFunc) {
	buf := bufio.NewReader(c.in)

	_ = syscall.SetNonblock(c.fd, false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			b, err := buf.ReadByte()
			if err != nil {
				cancel()
				return
			}

			c.keyCh <- vm.Word(b)
		}
	}
}

func (c *Console) updateKeyboard(ctx context.Context, kbd *device.Keyboard) {
	for {
		select {
		case key := <-c.keyCh:
			kbd.Update(key)
		case <-ctx.Done():
			return
		}
	}
}
