package dispatch

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/bleprint/internal/ble"
)

// mockConn records writes. If gate is set, Write blocks until it is closed.
type mockConn struct {
	mu      sync.Mutex
	writes  [][]byte
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (c *mockConn) ID() string { return "AA:AA" }
func (c *mockConn) Services() ([]string, error) { return nil, nil }
func (c *mockConn) Characteristics(string) ([]string, error) { return nil, nil }
func (c *mockConn) OnDisconnect(func()) {}

func (c *mockConn) Write(_, _ string, data []byte) error {
	if c.entered != nil {
		close(c.entered)
	}
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return c.err
}

func (c *mockConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

type mockResolver struct {
	conn *mockConn
}

func (r *mockResolver) Target() (ble.Connection, ble.Target, bool) {
	if r.conn == nil {
		return nil, ble.Target{}, false
	}
	return r.conn, ble.Target{ServiceID: "18f0", CharacteristicID: "2af1"}, true
}

func TestPrintContentSingleWrite(t *testing.T) {
	conn := &mockConn{}
	d := New(&mockResolver{conn: conn}, Options{})

	job := []byte{0x1B, 0x40, 'h', 'i', 0x0A, 0x1D, 0x56, 0x01}
	if !d.PrintContent(job) {
		t.Fatalf("PrintContent() = false: %v", d.LastError())
	}
	if len(conn.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(conn.writes))
	}
	if !bytes.Equal(conn.writes[0], job) {
		t.Errorf("wrote %x, want %x", conn.writes[0], job)
	}
	if d.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", d.LastError())
	}
	if d.Printing() {
		t.Error("Printing() = true after job finished")
	}
}

func TestPrintContentNoPrinter(t *testing.T) {
	prompted := 0
	d := New(&mockResolver{}, Options{NoPrinter: func() { prompted++ }})

	if d.PrintContent([]byte("x")) {
		t.Error("PrintContent() = true with no printer")
	}
	if prompted != 1 {
		t.Errorf("NoPrinter called %d times, want 1", prompted)
	}
	if !errors.Is(d.LastError(), ble.ErrNoPrinter) {
		t.Errorf("LastError() = %v, want ErrNoPrinter", d.LastError())
	}
}

func TestPrintContentNoPrinterWithoutHook(t *testing.T) {
	d := New(&mockResolver{}, Options{})
	if d.PrintContent([]byte("x")) {
		t.Error("PrintContent() = true with no printer")
	}
}

func TestPrintContentWriteFailure(t *testing.T) {
	conn := &mockConn{err: errors.New("att: write not permitted")}
	d := New(&mockResolver{conn: conn}, Options{})

	if d.PrintContent([]byte("x")) {
		t.Error("PrintContent() = true after write error")
	}
	if !errors.Is(d.LastError(), ble.ErrWriteFailure) {
		t.Errorf("LastError() = %v, want ErrWriteFailure", d.LastError())
	}
	if d.Printing() {
		t.Error("Printing() stuck after failed write")
	}
}

func TestPrintContentRejectsWhileBusy(t *testing.T) {
	conn := &mockConn{gate: make(chan struct{}), entered: make(chan struct{})}
	d := New(&mockResolver{conn: conn}, Options{})

	result := make(chan bool)
	go func() { result <- d.PrintContent([]byte("first")) }()

	select {
	case <-conn.entered:
	case <-time.After(time.Second):
		t.Fatal("first job never reached the transport")
	}
	if !d.Printing() {
		t.Error("Printing() = false during a write")
	}
	if d.PrintContent([]byte("second")) {
		t.Error("overlapping PrintContent() = true, want rejected")
	}

	close(conn.gate)
	if !<-result {
		t.Error("first job failed")
	}
	if n := conn.count(); n != 1 {
		t.Errorf("writes = %d, want 1 (second job dropped, not queued)", n)
	}
}

func TestNewPanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(nil) did not panic")
		}
	}()
	New(nil, Options{})
}
