//go:build !darwin && !windows

package ble

import "tinygo.org/x/bluetooth"

// writeCharacteristic uses WriteWithoutResponse, the only write tinygo offers
// on BlueZ. BlueZ still rejects characteristics without a write property
// with NotPermitted, which is what lets the probe skip them.
func writeCharacteristic(ch bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := ch.WriteWithoutResponse(data)
	return err
}
