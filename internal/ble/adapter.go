// Package ble finds, binds and keeps a single BLE receipt printer. It owns the
// scan, the greedy characteristic probe and the connection state machine; the
// radio itself sits behind the Adapter interface.
package ble

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied   = errors.New("ble: bluetooth permission denied")
	ErrAdapterUnavailable = errors.New("ble: bluetooth adapter unavailable")
	ErrScan               = errors.New("ble: scan failed")
	ErrConnectFailure     = errors.New("ble: connect failed")
	ErrProbeExhausted     = errors.New("ble: no writable characteristic found")
	ErrWriteFailure       = errors.New("ble: write failed")
	ErrNoPrinter          = errors.New("ble: no connected printer")
)

// Device is a peripheral seen during a scan.
type Device struct {
	ID   string // hardware address, or a CoreBluetooth UUID on macOS
	Name string
	RSSI int
}

// DisplayName returns Name, or a placeholder when the device advertised none.
func (d Device) DisplayName() string {
	if d.Name == "" {
		return "Unnamed Device"
	}
	return d.Name
}

// Target is the (service, characteristic) pair print jobs are written to.
type Target struct {
	ServiceID        string
	CharacteristicID string
}

// Valid reports whether both halves of the target are set.
func (t Target) Valid() bool {
	return t.ServiceID != "" && t.CharacteristicID != ""
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// ID returns the device identifier the connection was opened with.
	ID() string
	// Services lists service UUIDs in device-reported order.
	Services() ([]string, error)
	// Characteristics lists characteristic UUIDs of a service in device-reported order.
	Characteristics(serviceID string) ([]string, error)
	// Write sends data to the given characteristic and fails if the device
	// rejects it (with response where the platform supports it).
	Write(serviceID, characteristicID string, data []byte) error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Disable releases every connection and stops the adapter.
	Disable() error
	// Powered reports whether the adapter is currently enabled.
	Powered() bool
	// SetPowerHandler registers a callback for adapter power changes.
	SetPowerHandler(handler func(on bool))
	// Scan blocks, calling handler for every advertisement, until ctx is
	// cancelled or the transport fails.
	Scan(ctx context.Context, handler func(Device)) error
	// Connect establishes a connection to the device with the given ID.
	Connect(ctx context.Context, id string) (Connection, error)
	// Connected returns the live transport connection to id, if any.
	Connected(id string) (Connection, bool)
	// Disconnect drops the transport connection to id, if any.
	Disconnect(id string) error
}
