package ble

import (
	"fmt"
	"log/slog"
)

// ProbePayload is written to each candidate characteristic. ESC @ resets
// the printer and prints nothing, so a successful probe leaves no trace on
// paper.
var ProbePayload = []byte{0x1B, 0x40}

// Probe finds the first (service, characteristic) pair on conn that accepts
// a write. Pairs are tried strictly in device-reported order, one at a time;
// the first success wins and the rest are never touched. Returns
// ErrProbeExhausted if nothing accepts the write.
//
// Most printers expose a single serial-style characteristic, so the greedy
// choice is usually the only one. Nothing checks that the chosen pair keeps
// working across firmware changes; callers re-probe on every fresh
// connection instead.
func Probe(conn Connection) (Target, error) {
	services, err := conn.Services()
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrProbeExhausted, err)
	}

	tried := 0
	for _, svc := range services {
		chars, err := conn.Characteristics(svc)
		if err != nil {
			slog.Debug("[BLE] skipping service", "service", svc, "error", err)
			continue
		}
		for _, ch := range chars {
			tried++
			if err := conn.Write(svc, ch, ProbePayload); err != nil {
				slog.Debug("[BLE] probe write rejected", "service", svc, "characteristic", ch, "error", err)
				continue
			}
			slog.Info("[BLE] found writable characteristic", "device", conn.ID(), "service", svc, "characteristic", ch)
			return Target{ServiceID: svc, CharacteristicID: ch}, nil
		}
	}

	return Target{}, fmt.Errorf("%w: tried %d characteristics on %d services", ErrProbeExhausted, tried, len(services))
}
