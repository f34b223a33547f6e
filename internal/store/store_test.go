package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRecord = Record{
	DeviceID:         "AA:BB:CC:DD:EE:FF",
	ServiceID:        "000018f0-0000-1000-8000-00805f9b34fb",
	CharacteristicID: "00002af1-0000-1000-8000-00805f9b34fb",
}

// backends returns each KV implementation under test.
func backends(t *testing.T) map[string]KV {
	t.Helper()

	sqlitePath := filepath.Join(t.TempDir(), "printer.db")
	sq, err := OpenSQLiteKV(sqlitePath)
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]KV{
		"file":   NewFileKV(filepath.Join(t.TempDir(), "nested", "printer.yaml")),
		"sqlite": sq,
	}
}

func TestPrinterStoreRoundTrip(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewPrinterStore(kv)

			_, ok, err := s.Load()
			require.NoError(t, err)
			assert.False(t, ok, "empty store should have no record")

			require.NoError(t, s.Save(testRecord))

			got, ok, err := s.Load()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, testRecord, got)

			require.NoError(t, s.Clear())
			_, ok, err = s.Load()
			require.NoError(t, err)
			assert.False(t, ok, "store should be empty after Clear")
		})
	}
}

func TestPrinterStoreOverwrite(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewPrinterStore(kv)
			require.NoError(t, s.Save(testRecord))

			next := Record{DeviceID: "11:22:33:44:55:66", ServiceID: "s2", CharacteristicID: "c2"}
			require.NoError(t, s.Save(next))

			got, ok, err := s.Load()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, next, got)
		})
	}
}

func TestPrinterStorePartialRecordIsAbsent(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, kv.Set(KeyDeviceID, testRecord.DeviceID))
			require.NoError(t, kv.Set(KeyServiceID, testRecord.ServiceID))

			_, ok, err := NewPrinterStore(kv).Load()
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPrinterStoreRejectsIncompleteSave(t *testing.T) {
	kv := NewFileKV(filepath.Join(t.TempDir(), "printer.yaml"))
	s := NewPrinterStore(kv)

	err := s.Save(Record{DeviceID: "AA"})
	assert.Error(t, err)

	_, ok, _ := kv.Get(KeyDeviceID)
	assert.False(t, ok, "nothing should be written for an incomplete record")
}

func TestClearOnEmptyStore(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, NewPrinterStore(kv).Clear())
		})
	}
}

type failingKV struct{}

func (failingKV) Get(string) (string, bool, error) { return "", false, errors.New("disk on fire") }
func (failingKV) Set(string, string) error         { return errors.New("disk on fire") }
func (failingKV) Remove(string) error              { return errors.New("disk on fire") }

func TestPrinterStoreBackendErrors(t *testing.T) {
	s := NewPrinterStore(failingKV{})

	_, _, err := s.Load()
	assert.Error(t, err)
	assert.Error(t, s.Save(testRecord))

	err = s.Clear()
	require.Error(t, err)
	assert.Contains(t, err.Error(), KeyCharacteristicID, "Clear should attempt every key")
}

func TestFileKVWritesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.yaml")
	kv := NewFileKV(path)
	require.NoError(t, kv.Set(KeyDeviceID, "AA:BB"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "selectedPrinterDeviceId: AA:BB")

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")
}

func TestFileKVCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "printer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0o600))

	_, _, err := NewFileKV(path).Get(KeyDeviceID)
	assert.Error(t, err)
}

func TestNewPrinterStoreNilPanics(t *testing.T) {
	assert.Panics(t, func() { NewPrinterStore(nil) })
}
