// Package store persists the last printer the application successfully bound
// to, so a later process can try to reconnect silently. The record is only a
// hint: it never says whether a printer is connected right now.
package store

import (
	"errors"
	"fmt"
	"log/slog"
)

// Keys under which the record is kept.
const (
	KeyDeviceID         = "selectedPrinterDeviceId"
	KeyServiceID        = "selectedPrinterServiceUUID"
	KeyCharacteristicID = "selectedPrinterCharacteristicUUID"
)

// KV is a durable string key/value store.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
}

// Record is the persisted (device, service, characteristic) tuple.
type Record struct {
	DeviceID         string
	ServiceID        string
	CharacteristicID string
}

// Valid reports whether every field of the record is set.
func (r Record) Valid() bool {
	return r.DeviceID != "" && r.ServiceID != "" && r.CharacteristicID != ""
}

// PrinterStore reads and writes a Record through a KV backend.
type PrinterStore struct {
	kv KV
}

// NewPrinterStore wraps kv. Panics if kv is nil (programmer error).
func NewPrinterStore(kv KV) *PrinterStore {
	if kv == nil {
		panic("store: NewPrinterStore called with nil KV")
	}
	return &PrinterStore{kv: kv}
}

// Save writes all three fields of r.
func (s *PrinterStore) Save(r Record) error {
	if !r.Valid() {
		return fmt.Errorf("store: refusing to save incomplete record %+v", r)
	}
	for _, kv := range [][2]string{
		{KeyDeviceID, r.DeviceID},
		{KeyServiceID, r.ServiceID},
		{KeyCharacteristicID, r.CharacteristicID},
	} {
		if err := s.kv.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("store: set %s: %w", kv[0], err)
		}
	}
	slog.Debug("[STORE] saved printer record", "device", r.DeviceID)
	return nil
}

// Load returns the stored record. ok is false unless all three fields are
// present; a partially written record is treated as absent.
func (s *PrinterStore) Load() (Record, bool, error) {
	var r Record
	fields := []struct {
		key string
		dst *string
	}{
		{KeyDeviceID, &r.DeviceID},
		{KeyServiceID, &r.ServiceID},
		{KeyCharacteristicID, &r.CharacteristicID},
	}
	for _, f := range fields {
		v, ok, err := s.kv.Get(f.key)
		if err != nil {
			return Record{}, false, fmt.Errorf("store: get %s: %w", f.key, err)
		}
		if !ok || v == "" {
			return Record{}, false, nil
		}
		*f.dst = v
	}
	return r, true, nil
}

// Clear removes every field of the record. All keys are attempted even if
// one removal fails.
func (s *PrinterStore) Clear() error {
	var errs []error
	for _, key := range []string{KeyDeviceID, KeyServiceID, KeyCharacteristicID} {
		if err := s.kv.Remove(key); err != nil {
			errs = append(errs, fmt.Errorf("store: remove %s: %w", key, err))
		}
	}
	if len(errs) == 0 {
		slog.Debug("[STORE] cleared printer record")
	}
	return errors.Join(errs...)
}
