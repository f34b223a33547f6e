//go:build darwin || windows

package ble

import "tinygo.org/x/bluetooth"

// writeCharacteristic writes with response, so a characteristic that does
// not accept writes fails here.
func writeCharacteristic(ch bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := ch.Write(data)
	return err
}
