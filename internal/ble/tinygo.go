package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth (BlueZ on Linux, CoreBluetooth on
// macOS, WinRT on Windows). On macOS, device IDs are CoreBluetooth UUIDs
// rather than MAC addresses; both round-trip through Address.Set/String.
//
// The power handler only fires from this adapter's own Enable and Disable.
// tinygo does not report radio power changes made by the OS, so a restore on
// power-on happens only after an Enable issued through this adapter.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects everything below.
	mu          sync.Mutex
	enabled     bool
	powerCb     func(bool)
	connections map[string]*tinyGoConnection // keyed by device ID
}

// NewTinyGoAdapter creates a BLE adapter over the platform default radio.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: make(map[string]*tinyGoConnection),
	}
}

func (a *TinyGoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return classifyError(err, ErrAdapterUnavailable)
	}

	// The adapter-level handler is the only place tinygo reports link loss.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		a.mu.Lock()
		conn, ok := a.connections[id]
		delete(a.connections, id)
		a.mu.Unlock()
		if ok {
			slog.Info("[BLE] link lost", "device", id)
			conn.fireDisconnect()
		}
	})

	a.mu.Lock()
	wasEnabled := a.enabled
	a.enabled = true
	cb := a.powerCb
	a.mu.Unlock()

	if !wasEnabled && cb != nil {
		cb(true)
	}
	return nil
}

// Disable drops every tracked connection and stops any scan. tinygo has no
// way to power the radio down, so the adapter is only marked disabled until
// the next Enable.
func (a *TinyGoAdapter) Disable() error {
	a.mu.Lock()
	conns := a.connections
	a.connections = make(map[string]*tinyGoConnection)
	wasEnabled := a.enabled
	a.enabled = false
	cb := a.powerCb
	a.mu.Unlock()

	if err := a.adapter.StopScan(); err != nil {
		slog.Debug("[BLE] stop scan during disable", "error", err)
	}
	for id, c := range conns {
		if err := c.device.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect during disable failed", "device", id, "error", err)
		}
	}

	if wasEnabled && cb != nil {
		cb(false)
	}
	return nil
}

func (a *TinyGoAdapter) Powered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *TinyGoAdapter) SetPowerHandler(handler func(on bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.powerCb = handler
}

func (a *TinyGoAdapter) Scan(ctx context.Context, handler func(Device)) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		handler(Device{
			ID:   result.Address.String(),
			Name: result.LocalName(),
			RSSI: int(result.RSSI),
		})
	})
	close(done)

	if err != nil && ctx.Err() == nil {
		return classifyError(err, ErrScan)
	}
	return nil
}

func (a *TinyGoAdapter) Connect(ctx context.Context, id string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(id)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	go func() {
		device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	}()

	select {
	case <-ctx.Done():
		// The underlying Connect will eventually time out or succeed. We
		// can't cancel it from here, but we return immediately.
		return nil, fmt.Errorf("ble: connect to %s: %w", id, ctx.Err())
	case result := <-ch:
		if result.err != nil {
			return nil, fmt.Errorf("ble: connect to %s: %w", id, classifyError(result.err, ErrConnectFailure))
		}
		conn := &tinyGoConnection{
			id:     id,
			device: result.device,
			chars:  make(map[string]map[string]bluetooth.DeviceCharacteristic),
		}

		a.mu.Lock()
		a.connections[id] = conn
		a.mu.Unlock()

		return conn, nil
	}
}

func (a *TinyGoAdapter) Connected(id string) (Connection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	conn, ok := a.connections[id]
	if !ok {
		return nil, false
	}
	return conn, true
}

func (a *TinyGoAdapter) Disconnect(id string) error {
	a.mu.Lock()
	conn, ok := a.connections[id]
	delete(a.connections, id)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	if err := conn.device.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", id, err)
	}
	return nil
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	id     string
	device bluetooth.Device

	mu           sync.Mutex
	services     []bluetooth.DeviceService
	chars        map[string]map[string]bluetooth.DeviceCharacteristic // service -> char UUID -> char
	disconnectCb func()
}

func (c *tinyGoConnection) ID() string { return c.id }

func (c *tinyGoConnection) Services() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}
	c.services = svcs
	c.chars = make(map[string]map[string]bluetooth.DeviceCharacteristic)

	ids := make([]string, len(svcs))
	for i, s := range svcs {
		ids[i] = s.UUID().String()
	}
	return ids, nil
}

func (c *tinyGoConnection) Characteristics(serviceID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chars, err := c.discoverLocked(serviceID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(chars))
	for i, ch := range chars {
		ids[i] = ch.UUID().String()
	}
	return ids, nil
}

// discoverLocked discovers the characteristics of serviceID, caching them by
// UUID (caller must hold mu).
func (c *tinyGoConnection) discoverLocked(serviceID string) ([]bluetooth.DeviceCharacteristic, error) {
	if c.services == nil {
		svcs, err := c.device.DiscoverServices(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover services: %w", err)
		}
		c.services = svcs
	}

	for i := range c.services {
		if !strings.EqualFold(c.services[i].UUID().String(), serviceID) {
			continue
		}
		chars, err := c.services[i].DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", serviceID, err)
		}
		byID := make(map[string]bluetooth.DeviceCharacteristic, len(chars))
		for _, ch := range chars {
			byID[strings.ToLower(ch.UUID().String())] = ch
		}
		c.chars[strings.ToLower(serviceID)] = byID
		return chars, nil
	}
	return nil, fmt.Errorf("ble: service %s not found", serviceID)
}

func (c *tinyGoConnection) Write(serviceID, characteristicID string, data []byte) error {
	c.mu.Lock()
	byID, ok := c.chars[strings.ToLower(serviceID)]
	if !ok {
		if _, err := c.discoverLocked(serviceID); err != nil {
			c.mu.Unlock()
			return err
		}
		byID = c.chars[strings.ToLower(serviceID)]
	}
	ch, ok := byID[strings.ToLower(characteristicID)]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: characteristic %s not found in service %s", characteristicID, serviceID)
	}

	if err := writeCharacteristic(ch, data); err != nil {
		return fmt.Errorf("ble: write %s: %w", characteristicID, err)
	}
	return nil
}

func (c *tinyGoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinyGoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// classifyError maps platform permission failures to ErrPermissionDenied and
// wraps everything else with fallback.
func classifyError(err error, fallback error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"notpermitted", "notauthorized", "permission", "unauthorized", "access denied"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("%w: %v", fallback, err)
}
