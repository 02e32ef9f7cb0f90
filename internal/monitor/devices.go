package monitor

// devices.go contains the device table.

import (
	"github.com/smoynes/ozzie/internal/vm"
)

// deviceRecord pairs a device capability with the set of processes holding it open.
// Openers are tracked by pid, not PCB reference; the kernel resolves through the
// process table when it needs one.
type deviceRecord struct {
	dev     vm.Device
	openers map[int]struct{}
}

// AddDevice registers a device and assigns its identifier, which is its index in the
// device table.
func (m *Monitor) AddDevice(dev vm.Device) int {
	id := len(m.devices)
	dev.SetID(id)

	m.devices = append(m.devices, &deviceRecord{
		dev:     dev,
		openers: make(map[int]struct{}),
	})

	return id
}

// device resolves a device id, or nil.
func (m *Monitor) device(id int) *deviceRecord {
	if id < 0 || id >= len(m.devices) {
		return nil
	}

	return m.devices[id]
}

func (rec *deviceRecord) isOpenBy(pid int) bool {
	_, ok := rec.openers[pid]
	return ok
}

func (rec *deviceRecord) open(pid int) {
	rec.openers[pid] = struct{}{}
}

func (rec *deviceRecord) close(pid int) {
	delete(rec.openers, pid)
}

func (rec *deviceRecord) openCount() int {
	return len(rec.openers)
}

// releaseAll closes every device held by a pid, granting each freed non-sharable
// device to its first open-waiter. Used when a process exits without closing.
func (m *Monitor) releaseAll(pid int) {
	for id, rec := range m.devices {
		if !rec.isOpenBy(pid) {
			continue
		}

		rec.close(pid)
		m.grantToWaiter(id, rec)
	}
}

// grantToWaiter completes a pending blocked open, if one exists: the waiter joins the
// opener set, a success status lands on its saved stack, and it becomes ready.
func (m *Monitor) grantToWaiter(id int, rec *deviceRecord) {
	if !rec.dev.Sharable() && rec.openCount() > 0 {
		return
	}

	waiter := m.findBlocked(id, BlockOpen, 0)
	if waiter == nil {
		return
	}

	rec.open(waiter.PID)

	if !m.pushSaved(waiter, StatusSuccess) {
		return
	}

	m.unblock(waiter)
}
