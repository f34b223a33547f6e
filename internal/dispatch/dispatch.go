// Package dispatch sends rendered ESC/POS jobs to the bound printer.
package dispatch

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chaz8081/bleprint/internal/ble"
)

// TargetResolver is the part of the BLE manager the dispatcher needs.
type TargetResolver interface {
	Target() (ble.Connection, ble.Target, bool)
}

// Options configures a Dispatcher.
type Options struct {
	// NoPrinter is called when a job arrives and nothing is connected,
	// typically to prompt the user to pick a printer.
	NoPrinter func()
}

// Dispatcher writes one job at a time. A job submitted while another is
// being written is dropped, not queued.
type Dispatcher struct {
	resolver TargetResolver
	opts     Options
	busy     atomic.Bool

	mu      sync.Mutex
	lastErr error
}

// New creates a Dispatcher backed by the given resolver.
// Panics if resolver is nil (programmer error).
func New(resolver TargetResolver, opts Options) *Dispatcher {
	if resolver == nil {
		panic("dispatch: New called with nil resolver")
	}
	return &Dispatcher{resolver: resolver, opts: opts}
}

// PrintContent writes data to the connected printer in a single write and
// reports whether it was accepted by the transport.
func (d *Dispatcher) PrintContent(data []byte) bool {
	if !d.busy.CompareAndSwap(false, true) {
		slog.Warn("[PRINT] job dropped, printer busy", "bytes", len(data))
		return false
	}
	defer d.busy.Store(false)

	conn, target, ok := d.resolver.Target()
	if !ok {
		slog.Warn("[PRINT] no connected printer")
		d.setLastErr(ble.ErrNoPrinter)
		if d.opts.NoPrinter != nil {
			d.opts.NoPrinter()
		}
		return false
	}

	if err := conn.Write(target.ServiceID, target.CharacteristicID, data); err != nil {
		err = fmt.Errorf("%w: %v", ble.ErrWriteFailure, err)
		slog.Error("[PRINT] write failed", "device", conn.ID(), "error", err)
		d.setLastErr(err)
		return false
	}

	slog.Debug("[PRINT] job sent", "device", conn.ID(), "bytes", len(data))
	d.setLastErr(nil)
	return true
}

// Printing reports whether a job is being written.
func (d *Dispatcher) Printing() bool {
	return d.busy.Load()
}

// LastError returns the error of the most recent job, or nil if it succeeded.
func (d *Dispatcher) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Dispatcher) setLastErr(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}
