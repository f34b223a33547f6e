package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultScanTimeout bounds a scan that nobody stops.
const DefaultScanTimeout = 7 * time.Second

// scanBacklog is how many discovered devices the scan channel holds for a
// slow reader. Devices beyond it still reach Devices().
const scanBacklog = 64

// Scanner runs time-bounded scans and keeps the deduplicated list of named
// devices seen by the most recent one.
type Scanner struct {
	adapter Adapter
	timeout time.Duration

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	out      chan Device
	done     chan struct{}
	devices  []Device
	seen     map[string]bool
	err      error
}

// NewScanner creates a Scanner. A timeout <= 0 selects DefaultScanTimeout.
func NewScanner(adapter Adapter, timeout time.Duration) *Scanner {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	done := make(chan struct{})
	close(done)
	return &Scanner{
		adapter: adapter,
		timeout: timeout,
		done:    done,
		seen:    make(map[string]bool),
	}
}

// Start begins a scan and returns a channel of newly discovered devices,
// closed when the scan ends. Each device is recorded in Devices before it is
// queued on the channel. Discovery never waits for the reader: once
// scanBacklog devices are pending, further ones are only recorded.
//
// If a scan is already running, Start returns that scan's channel and leaves
// the device list alone.
func (s *Scanner) Start(ctx context.Context) <-chan Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanning {
		return s.out
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.scanning = true
	s.cancel = cancel
	s.out = make(chan Device, scanBacklog)
	s.done = make(chan struct{})
	s.devices = nil
	s.seen = make(map[string]bool)
	s.err = nil

	slog.Info("[SCAN] started", "timeout", s.timeout)
	go s.run(scanCtx, cancel, s.out, s.done)
	return s.out
}

func (s *Scanner) run(ctx context.Context, cancel context.CancelFunc, out chan Device, done chan struct{}) {
	err := s.adapter.Scan(ctx, func(d Device) {
		if d.Name == "" {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.seen[d.ID] || ctx.Err() != nil {
			return
		}
		s.seen[d.ID] = true
		s.devices = append(s.devices, d)

		slog.Debug("[SCAN] found device", "id", d.ID, "name", d.Name, "rssi", d.RSSI)
		select {
		case out <- d:
		default:
			slog.Debug("[SCAN] reader behind, device kept in list only", "id", d.ID)
		}
	})
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	// Late callbacks see a done context and no longer send.
	cancel()

	s.mu.Lock()
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrScan) {
			err = fmt.Errorf("%w: %v", ErrScan, err)
		}
		s.err = err
	}
	s.scanning = false
	s.cancel = nil
	found := len(s.devices)
	close(out)
	s.mu.Unlock()

	if err != nil {
		slog.Error("[SCAN] stopped on error", "error", err)
	} else if timedOut {
		slog.Info("[SCAN] timed out", "found", found)
	} else {
		slog.Info("[SCAN] stopped", "found", found)
	}

	close(done)
}

// Stop ends the running scan. Safe to call at any time, any number of times.
func (s *Scanner) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Devices returns a copy of the devices seen by the current or last scan, in
// discovery order.
func (s *Scanner) Devices() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, len(s.devices))
	copy(out, s.devices)
	return out
}

// Scanning reports whether a scan is in progress.
func (s *Scanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// Err returns the error that ended the last scan, if any.
func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done returns a channel closed when the current scan has fully ended. When
// no scan is running the channel is already closed.
func (s *Scanner) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
