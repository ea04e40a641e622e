package cart

import (
	"sync"
	"time"
)

// Debouncer delays fn until no Schedule call has happened for delay.
// Each Schedule cancels the pending run. Runs never overlap, so fn always
// observes the latest state when it reads it at fire time.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu     sync.Mutex
	timer  *time.Timer
	gen    uint64
	closed bool

	run sync.Mutex
	wg  sync.WaitGroup
}

func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

func (d *Debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.stopLocked()
	d.gen++
	gen := d.gen
	d.wg.Add(1)
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Pending reports whether a run is scheduled and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Flush runs a pending fn immediately. It is a no-op when nothing is scheduled.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.stopLocked()
	d.mu.Unlock()
	if pending {
		d.exec()
	}
}

// Close flushes, rejects further schedules and waits for in-flight runs.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	pending := d.stopLocked()
	d.mu.Unlock()
	if pending {
		d.exec()
	}
	d.wg.Wait()
}

// stopLocked cancels the timer and reports whether it was still pending.
func (d *Debouncer) stopLocked() bool {
	if d.timer == nil {
		return false
	}
	stopped := d.timer.Stop()
	d.timer = nil
	if stopped {
		d.wg.Done()
	}
	return stopped
}

func (d *Debouncer) fire(gen uint64) {
	defer d.wg.Done()
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.exec()
}

func (d *Debouncer) exec() {
	d.run.Lock()
	defer d.run.Unlock()
	d.fn()
}
