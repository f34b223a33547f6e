package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/bleprint/internal/store"
)

// RecordStore persists the last successfully bound printer.
type RecordStore interface {
	Save(store.Record) error
	Load() (store.Record, bool, error)
	Clear() error
}

// ManagerOptions configures the Manager.
type ManagerOptions struct {
	ScanTimeout   time.Duration // scan auto-stop (default 7s)
	OnStateChange func(State)   // called after every transition, outside locks
}

// Manager owns the single printer connection. It runs the scanner, probes
// newly connected devices and persists the result so a later process can
// reconnect silently.
//
// Connection-mutating operations are serialized; State and Status never
// block on an in-flight connect.
type Manager struct {
	adapter Adapter
	records RecordStore
	scanner *Scanner
	opts    ManagerOptions

	opMu sync.Mutex // held for the whole of Connect and Disconnect

	mu        sync.Mutex
	state     State
	conn      Connection
	available bool
	lastErr   error

	cycling atomic.Bool
}

// NewManager creates a Manager. Call Start before using it.
// Panics if adapter or records is nil (programmer error).
func NewManager(adapter Adapter, records RecordStore, opts ManagerOptions) *Manager {
	if adapter == nil || records == nil {
		panic("ble: NewManager called with nil adapter or store")
	}
	return &Manager{
		adapter: adapter,
		records: records,
		scanner: NewScanner(adapter, opts.ScanTimeout),
		opts:    opts,
	}
}

// Start enables the adapter and, if a printer was bound in an earlier run,
// tries to reconnect to it. A failed reconnect is reported but leaves the
// Manager usable. If the adapter cannot be enabled every later operation
// fails with ErrAdapterUnavailable.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.adapter.Enable(); err != nil {
		if !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrAdapterUnavailable) {
			err = fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
		}
		m.mu.Lock()
		m.available = false
		m.lastErr = err
		m.mu.Unlock()
		slog.Error("[BLE] adapter unavailable", "error", err)
		return err
	}

	m.mu.Lock()
	m.available = true
	m.mu.Unlock()

	m.adapter.SetPowerHandler(m.onPower)
	return m.restore(ctx)
}

// restore reconnects to the persisted printer when there is one, the adapter
// is on, nothing else has been bound meanwhile and the device is not already
// connected. The record is only a hint: the device is connected and probed
// again from scratch.
func (m *Manager) restore(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if st := m.State(); st.Kind != Disconnected {
		slog.Debug("[BLE] skipping restore", "state", st.String())
		return nil
	}

	rec, ok, err := m.records.Load()
	if err != nil {
		slog.Warn("[BLE] could not read saved printer", "error", err)
		return nil
	}
	if !ok || !m.adapter.Powered() {
		return nil
	}
	if _, connected := m.adapter.Connected(rec.DeviceID); connected {
		slog.Debug("[BLE] saved printer already connected", "device", rec.DeviceID)
		return nil
	}

	slog.Info("[BLE] reconnecting to saved printer", "device", rec.DeviceID)
	return m.connectLocked(ctx, rec.DeviceID)
}

func (m *Manager) onPower(on bool) {
	if m.cycling.Load() {
		return
	}
	if on {
		slog.Info("[BLE] adapter powered on")
		m.mu.Lock()
		m.available = true
		m.mu.Unlock()
		go func() {
			if err := m.restore(context.Background()); err != nil {
				slog.Warn("[BLE] reconnect after power-on failed", "error", err)
			}
		}()
		return
	}

	slog.Warn("[BLE] adapter powered off")
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
	m.transitionIf(func(s State) bool { return s.Kind != Disconnected && s.Kind != Scanning }, State{Kind: Disconnected})
}

// StartScanning begins a scan (see Scanner.Start). While it runs an
// otherwise idle Manager reports the Scanning state.
func (m *Manager) StartScanning(ctx context.Context) <-chan Device {
	if !m.Available() {
		m.setLastErr(ErrAdapterUnavailable)
		ch := make(chan Device)
		close(ch)
		return ch
	}

	out := m.scanner.Start(ctx)
	if m.transitionIf(func(s State) bool { return s.Kind == Disconnected }, State{Kind: Scanning}) {
		done := m.scanner.Done()
		go func() {
			<-done
			if err := m.scanner.Err(); err != nil {
				m.setLastErr(err)
			}
			m.transitionIf(func(s State) bool { return s.Kind == Scanning }, State{Kind: Disconnected})
		}()
	}
	return out
}

// StopScanning ends the running scan, if any.
func (m *Manager) StopScanning() {
	m.scanner.Stop()
}

// Devices returns the named devices seen by the current or last scan.
func (m *Manager) Devices() []Device {
	return m.scanner.Devices()
}

// ScanDone returns a channel closed when the current scan has ended.
func (m *Manager) ScanDone() <-chan struct{} {
	return m.scanner.Done()
}

// Connect binds the printer with the given ID: transport connect (skipped if
// the device is already connected), probe, persist, Connected. The device is
// probed on every connect, so a stale target self-heals. Selecting the
// device that is already bound is a no-op. Any other bound printer is
// released first. Failures leave the Manager Disconnected and are never
// retried automatically.
func (m *Manager) Connect(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty device id", ErrConnectFailure)
	}
	if !m.Available() {
		return ErrAdapterUnavailable
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.connectLocked(ctx, id)
}

// connectLocked runs a connect attempt (caller must hold opMu).
func (m *Manager) connectLocked(ctx context.Context, id string) error {
	cur := m.State()
	if cur.Kind == Connected && cur.DeviceID == id {
		slog.Debug("[BLE] device already bound", "device", id)
		return nil
	}
	if cur.Kind == Connected {
		slog.Info("[BLE] releasing printer", "device", cur.DeviceID)
		m.release(cur.DeviceID)
	}

	m.transition(State{Kind: Connecting, DeviceID: id})
	if cur.Kind == Scanning {
		m.scanner.Stop()
	}

	conn, already := m.adapter.Connected(id)
	if !already {
		c, err := m.adapter.Connect(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrConnectFailure) && !errors.Is(err, ErrPermissionDenied) {
				err = fmt.Errorf("%w: %v", ErrConnectFailure, err)
			}
			m.fail(id, err)
			return err
		}
		conn = c
	}

	m.transition(State{Kind: Probing, DeviceID: id})

	target, err := Probe(conn)
	if err != nil {
		if derr := m.adapter.Disconnect(id); derr != nil {
			slog.Warn("[BLE] disconnect after failed probe", "device", id, "error", derr)
		}
		m.fail(id, err)
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	conn.OnDisconnect(func() { m.onLinkLost(id, conn) })

	if err := m.records.Save(store.Record{
		DeviceID:         id,
		ServiceID:        target.ServiceID,
		CharacteristicID: target.CharacteristicID,
	}); err != nil {
		slog.Warn("[BLE] could not save printer", "device", id, "error", err)
	}

	m.transition(State{Kind: Connected, DeviceID: id, Target: target})
	slog.Info("[BLE] connected", "device", id, "service", target.ServiceID, "characteristic", target.CharacteristicID)
	return nil
}

// SelectDevice is Connect with the error logged and kept in LastError.
func (m *Manager) SelectDevice(ctx context.Context, id string) bool {
	if err := m.Connect(ctx, id); err != nil {
		slog.Error("[BLE] select device failed", "device", id, "error", err)
		m.setLastErr(err)
		return false
	}
	return true
}

// Disconnect unbinds the printer: drops the transport link to id, clears the
// saved record and power-cycles the adapter to shed lingering native state.
// The Manager ends Disconnected whatever was bound.
func (m *Manager) Disconnect(id string) error {
	if !m.Available() {
		return ErrAdapterUnavailable
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	var errs []error
	if err := m.adapter.Disconnect(id); err != nil {
		errs = append(errs, err)
	}
	if err := m.records.Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := m.cycleAdapter(); err != nil {
		errs = append(errs, err)
	}

	m.transitionIf(func(s State) bool { return s.Kind == Connected }, State{Kind: Disconnected})
	slog.Info("[BLE] disconnected", "device", id)
	return errors.Join(errs...)
}

// DisconnectFromDevice is Disconnect with the error logged and kept in LastError.
func (m *Manager) DisconnectFromDevice(id string) bool {
	if err := m.Disconnect(id); err != nil {
		slog.Error("[BLE] disconnect failed", "device", id, "error", err)
		m.setLastErr(err)
		return false
	}
	return true
}

// Close stops any scan and drops the transport link without forgetting the
// saved printer.
func (m *Manager) Close() error {
	m.scanner.Stop()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	cur := m.State()
	if cur.Kind != Connected {
		return nil
	}
	m.release(cur.DeviceID)
	return nil
}

// release drops the transport link to id and returns to Disconnected
// without touching the saved record (caller must hold opMu).
func (m *Manager) release(id string) {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	if err := m.adapter.Disconnect(id); err != nil {
		slog.Warn("[BLE] disconnect failed", "device", id, "error", err)
	}
	m.transition(State{Kind: Disconnected})
}

func (m *Manager) cycleAdapter() error {
	m.cycling.Store(true)
	defer m.cycling.Store(false)

	if err := m.adapter.Disable(); err != nil {
		slog.Warn("[BLE] adapter disable failed", "error", err)
	}
	if err := m.adapter.Enable(); err != nil {
		m.mu.Lock()
		m.available = false
		m.mu.Unlock()
		return fmt.Errorf("%w: re-enable: %v", ErrAdapterUnavailable, err)
	}
	return nil
}

func (m *Manager) onLinkLost(id string, conn Connection) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.mu.Unlock()

	slog.Warn("[BLE] printer link lost", "device", id)
	m.transitionIf(func(s State) bool { return s.Kind == Connected && s.DeviceID == id }, State{Kind: Disconnected})
}

// fail records err, passes through Failed and settles in Disconnected.
func (m *Manager) fail(id string, err error) {
	m.setLastErr(err)
	slog.Error("[BLE] connection failed", "device", id, "error", err)
	m.transition(State{Kind: Failed, DeviceID: id, Err: err})
	m.transition(State{Kind: Disconnected})
}

func (m *Manager) transition(next State) {
	m.transitionIf(func(State) bool { return true }, next)
}

// transitionIf moves to next when the current state satisfies ok and the
// move is legal. It reports whether the state changed.
func (m *Manager) transitionIf(ok func(State) bool, next State) bool {
	m.mu.Lock()
	prev := m.state
	if !ok(prev) {
		m.mu.Unlock()
		return false
	}
	if prev.Kind == next.Kind && prev.DeviceID == next.DeviceID && next.Kind != Failed {
		m.mu.Unlock()
		return false
	}
	if !canTransition(prev.Kind, next.Kind) {
		m.mu.Unlock()
		slog.Error("[BLE] illegal state transition", "from", prev.String(), "to", next.String())
		return false
	}
	m.state = next
	cb := m.opts.OnStateChange
	m.mu.Unlock()

	slog.Debug("[BLE] state", "from", prev.String(), "to", next.String())
	if cb != nil {
		cb(next)
	}
	return true
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the flags a UI shows.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := m.state
	avail := m.available
	m.mu.Unlock()
	return Status{
		State:     st,
		Scanning:  m.scanner.Scanning(),
		Connected: st.Kind == Connected,
		Available: avail,
	}
}

// Available reports whether the adapter was enabled successfully.
func (m *Manager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.available
}

// Target returns the live connection and its print target while Connected.
func (m *Manager) Target() (Connection, Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != Connected || m.conn == nil {
		return nil, Target{}, false
	}
	return m.conn, m.state.Target, true
}

// LastError returns the most recent failure reported at an API boundary.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
