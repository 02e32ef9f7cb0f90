/*
Package vm simulates the hardware of a small word-addressed microcomputer.

The machine has a flat RAM addressed in 32-bit words, a nine-register file, a
fixed-width four-word instruction set, a single-slot interrupt controller and a
capability interface for external devices. A CPU executes one instruction per step:
it polls the interrupt controller, fetches the tuple addressed by PC, executes it
under base/limit protection, advances PC by the instruction width, and counts a tick,
firing a clock interrupt at the end of every quantum.

The CPU knows nothing about processes, scheduling or memory management. Everything
exceptional — faults, system calls, device completions, the clock — is raised through
the [TrapHandler] capability, which the operating system in the monitor package
implements. PC is held absolute while a process runs; branch targets in instructions
are window-relative, and the branch writes the target minus the instruction width so
the unconditional post-execution increment lands exactly on the target. SP is
window-relative and points at the top occupied stack word.
*/
package vm
