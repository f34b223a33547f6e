package ble

import (
	"bytes"
	"errors"
	"testing"
)

func TestProbeReturnsFirstWritable(t *testing.T) {
	conn := newMockConnection("AA", []mockService{
		{id: "S1", chars: []mockChar{{id: "C1", fail: true}, {id: "C2"}}},
		{id: "S2", chars: []mockChar{{id: "C3"}}},
	})

	got, err := Probe(conn)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	want := Target{ServiceID: "S1", CharacteristicID: "C2"}
	if got != want {
		t.Errorf("Probe() = %+v, want %+v", got, want)
	}

	writes := conn.Writes()
	if len(writes) != 2 {
		t.Fatalf("Probe() made %d writes, want 2 (stop at first success)", len(writes))
	}
	if writes[0].char != "C1" || writes[1].char != "C2" {
		t.Errorf("write order = %s,%s, want C1,C2", writes[0].char, writes[1].char)
	}
	for _, w := range writes {
		if !bytes.Equal(w.data, ProbePayload) {
			t.Errorf("probe wrote %x, want %x", w.data, ProbePayload)
		}
	}
}

func TestProbeSkipsToLaterService(t *testing.T) {
	conn := newMockConnection("AA", []mockService{
		{id: "S1", chars: []mockChar{{id: "C1", fail: true}}},
		{id: "S2", chars: nil},
		{id: "S3", chars: []mockChar{{id: "C4", fail: true}, {id: "C5"}}},
	})

	got, err := Probe(conn)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if got != (Target{ServiceID: "S3", CharacteristicID: "C5"}) {
		t.Errorf("Probe() = %+v, want S3/C5", got)
	}
}

func TestProbeExhausted(t *testing.T) {
	conn := newMockConnection("AA", []mockService{
		{id: "S1", chars: []mockChar{{id: "C1", fail: true}, {id: "C2", fail: true}}},
	})

	got, err := Probe(conn)
	if !errors.Is(err, ErrProbeExhausted) {
		t.Fatalf("Probe() error = %v, want ErrProbeExhausted", err)
	}
	if got.Valid() {
		t.Errorf("Probe() returned target %+v on failure", got)
	}
	if n := len(conn.Writes()); n != 2 {
		t.Errorf("Probe() made %d writes, want 2", n)
	}
}

func TestProbeNoServices(t *testing.T) {
	_, err := Probe(newMockConnection("AA", nil))
	if !errors.Is(err, ErrProbeExhausted) {
		t.Errorf("Probe() error = %v, want ErrProbeExhausted", err)
	}
}

func TestProbeServiceDiscoveryError(t *testing.T) {
	conn := newMockConnection("AA", nil)
	conn.servicesErr = errors.New("gatt busy")

	_, err := Probe(conn)
	if !errors.Is(err, ErrProbeExhausted) {
		t.Errorf("Probe() error = %v, want ErrProbeExhausted", err)
	}
}

func TestProbeIsRepeatable(t *testing.T) {
	conn := newMockConnection("AA", []mockService{
		{id: "S1", chars: []mockChar{{id: "C1", fail: true}, {id: "C2"}}},
	})

	first, err := Probe(conn)
	if err != nil {
		t.Fatalf("first Probe() error = %v", err)
	}
	second, err := Probe(conn)
	if err != nil {
		t.Fatalf("second Probe() error = %v", err)
	}
	if first != second {
		t.Errorf("repeated Probe() = %+v, want %+v", second, first)
	}
}
